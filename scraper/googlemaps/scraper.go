// Package googlemaps acquires hotels from Google Maps search results.
package googlemaps

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stays-service/config"
	"stays-service/models"
	"stays-service/scraper"
	"stays-service/utils"

	"github.com/chromedp/chromedp"
)

var (
	placeCoordsRegex = regexp.MustCompile(`!3d(-?\d+(?:\.\d+)?)!4d(-?\d+(?:\.\d+)?)`)
	ratingRegex      = regexp.MustCompile(`(\d+\.?\d*)`)
	rupeePriceRegex  = regexp.MustCompile(`₹\s?([0-9,]+)`)
)

type placeData struct {
	Name    string `json:"name"`
	Link    string `json:"link"`
	Rating  string `json:"rating"`
	Price   string `json:"price"`
	Address string `json:"address"`
	Image   string `json:"image"`
}

// Scraper drives a headless browser through a Maps hotel search.
type Scraper struct {
	cfg         *config.Config
	logger      *utils.Logger
	rateLimiter *utils.RateLimiter
	maxScrolls  int
}

func NewScraper(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:         cfg,
		logger:      logger.Named("googlemaps"),
		rateLimiter: utils.NewRateLimiter(cfg.RateLimitDelay),
		maxScrolls:  8,
	}
}

func (s *Scraper) Kind() models.SourceKind { return models.SourceGoogleMaps }

// SearchURL builds the Maps search URL for hotels in city.
func SearchURL(base, city string) string {
	return strings.TrimRight(base, "/") + "/search/" + url.PathEscape("hotels in "+strings.TrimSpace(city))
}

func (s *Scraper) Fetch(ctx context.Context, city string) ([]models.RawItem, error) {
	ctx, cancel := scraper.NewBrowserContext(ctx)
	defer cancel()

	if err := chromedp.Run(ctx,
		chromedp.Navigate(SearchURL(s.cfg.GoogleMapsURL, city)),
		chromedp.WaitVisible(`div[role="feed"]`, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("open results feed: %w", err)
	}

	// The feed lazy-loads; scroll until enough cards are present or it stops growing.
	var count, prev int
	for i := 0; i < s.maxScrolls; i++ {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollFeedJS, nil),
			chromedp.Sleep(1500*time.Millisecond),
			chromedp.Evaluate(`document.querySelectorAll('div[role="feed"] a[href*="/maps/place/"]').length`, &count),
		); err != nil {
			return nil, fmt.Errorf("scroll feed: %w", err)
		}
		s.logger.Debug("  [%s] scroll %d: %d places", city, i+1, count)
		if count >= s.cfg.PropertiesPerPage || count == prev {
			break
		}
		prev = count
	}

	var places []placeData
	if err := chromedp.Run(ctx, chromedp.Evaluate(placesJS, &places)); err != nil {
		return nil, fmt.Errorf("extract places: %w", err)
	}

	items := make([]models.RawItem, 0, len(places))
	for _, p := range places {
		if len(items) >= s.cfg.PropertiesPerPage {
			break
		}
		items = append(items, ToRawItem(p.Name, p.Link, p.Rating, p.Price, p.Address, p.Image, city))
	}
	s.logger.Info("Scraping complete for %q. Total raw places: %d", city, len(items))
	return items, nil
}

// ToRawItem shapes one extracted place card. Rating and price are
// reduced to their numeric parts; coordinates come from the place link.
func ToRawItem(name, link, rating, price, address, image, city string) models.RawItem {
	item := models.RawItem{
		"name": strings.TrimSpace(name),
		"link": link,
		"city": city,
	}
	if m := ratingRegex.FindString(rating); m != "" {
		item["rating"] = m
	}
	if m := rupeePriceRegex.FindStringSubmatch(price); m != nil {
		item["price"] = "₹" + m[1]
	} else if strings.TrimSpace(price) != "" {
		item["price"] = strings.TrimSpace(price)
	}
	if a := strings.TrimSpace(address); a != "" {
		item["address"] = a
	}
	if image != "" {
		item["images"] = []any{image}
	}
	if lat, lng, ok := ParsePlaceCoordinates(link); ok {
		item["coordinates"] = map[string]any{"lat": lat, "lng": lng}
	}
	return item
}

// ParsePlaceCoordinates extracts the "!3d<lat>!4d<lng>" pair embedded in
// Maps place links.
func ParsePlaceCoordinates(link string) (lat, lng float64, ok bool) {
	m := placeCoordsRegex.FindStringSubmatch(link)
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

const scrollFeedJS = `
(function() {
	var feed = document.querySelector('div[role="feed"]');
	if (feed) feed.scrollBy(0, feed.scrollHeight);
	return true;
})()
`

const placesJS = `
(function() {
	var out = [];
	document.querySelectorAll('div[role="feed"] > div').forEach(function(card) {
		var a = card.querySelector('a[href*="/maps/place/"]');
		if (!a) return;
		var nameEl = card.querySelector('.fontHeadlineSmall') || card.querySelector('.qBF1Pd');
		var ratingEl = card.querySelector('span[role="img"][aria-label]');
		var text = card.innerText || '';
		var priceMatch = text.match(/₹\s?[0-9,]+/);
		var lines = text.split('\n');
		var address = '';
		for (var i = 0; i < lines.length; i++) {
			if (lines[i].indexOf('·') !== -1 && !/₹/.test(lines[i])) {
				address = lines[i].split('·').pop().trim();
			}
		}
		var img = card.querySelector('img');
		out.push({
			name: nameEl ? nameEl.innerText.trim() : (a.getAttribute('aria-label') || ''),
			link: a.href,
			rating: ratingEl ? ratingEl.getAttribute('aria-label') : '',
			price: priceMatch ? priceMatch[0] : '',
			address: address,
			image: img ? img.src : ''
		});
	});
	return out;
})()
`
