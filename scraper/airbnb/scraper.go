// Package airbnb acquires short-term rentals from Airbnb search pages.
package airbnb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"stays-service/config"
	"stays-service/models"
	"stays-service/scraper"
	"stays-service/utils"

	"github.com/chromedp/chromedp"
)

// cardData is one search result card as extracted in the page
type cardData struct {
	Title  string `json:"title"`
	Price  string `json:"price"`
	Rating string `json:"rating"`
	URL    string `json:"url"`
	Image  string `json:"image"`
}

// AirbnbScraper handles all Airbnb scraping operations
type AirbnbScraper struct {
	cfg         *config.Config
	logger      *utils.Logger
	rateLimiter *utils.RateLimiter
}

// NewAirbnbScraper creates a new AirbnbScraper
func NewAirbnbScraper(cfg *config.Config, logger *utils.Logger) *AirbnbScraper {
	return &AirbnbScraper{
		cfg:         cfg,
		logger:      logger.Named("airbnb"),
		rateLimiter: utils.NewRateLimiter(cfg.RateLimitDelay),
	}
}

func (s *AirbnbScraper) Kind() models.SourceKind { return models.SourceAirbnb }

// SearchURL is the homes search page for city. Searches are scoped to
// India, matching the default .co.in storefront.
func SearchURL(base, city string) string {
	return strings.TrimRight(base, "/") + "/s/" + url.PathEscape(strings.TrimSpace(city)+"--India") + "/homes"
}

// Fetch collects up to PropertiesPerPage listings for city, following
// pagination while more are needed.
func (s *AirbnbScraper) Fetch(ctx context.Context, city string) ([]models.RawItem, error) {
	ctx, cancel := scraper.NewBrowserContext(ctx)
	defer cancel()

	seen := utils.NewKeyTracker()
	var items []models.RawItem
	currentURL := SearchURL(s.cfg.AirbnbURL, city)
	page := 1

	for len(items) < s.cfg.PropertiesPerPage {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		s.logger.Info("  [%s] page %d (have %d/%d)...", city, page, len(items), s.cfg.PropertiesPerPage)

		cards, nextURL, err := s.scrapePage(ctx, currentURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.Warn("  Page %d error: %v", page, err)
			break
		}
		if len(cards) == 0 {
			s.logger.Warn("  No listings found on page %d", page)
			break
		}

		for _, c := range cards {
			if len(items) >= s.cfg.PropertiesPerPage {
				break
			}
			link := canonicalRoomURL(c.URL)
			if link != "" && !seen.Add(link) {
				continue
			}
			items = append(items, toRawItem(c, link, city))
		}

		if nextURL == "" {
			break
		}
		currentURL = nextURL
		page++
	}

	s.logger.Info("Scraping complete for %q. Total raw listings: %d", city, len(items))
	return items, nil
}

func toRawItem(c cardData, link, city string) models.RawItem {
	item := models.RawItem{
		"title":  strings.TrimSpace(c.Title),
		"price":  c.Price,
		"rating": c.Rating,
		"city":   city,
	}
	if link != "" {
		item["link"] = link
	}
	if c.Image != "" {
		item["images"] = []any{c.Image}
	}
	// Titles read "Condo in Rajpur"; the part after " in " is the locality.
	if _, locality, ok := strings.Cut(c.Title, " in "); ok && strings.TrimSpace(locality) != "" {
		item["address"] = strings.TrimSpace(locality) + ", " + city
	}
	return item
}

// canonicalRoomURL drops the query string so the same room keeps one identity.
func canonicalRoomURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// scrapePage navigates to a search results page and extracts listing cards
func (s *AirbnbScraper) scrapePage(ctx context.Context, pageURL string) ([]cardData, string, error) {
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(4*time.Second), // wait for JS render
	)
	if err != nil {
		return nil, "", fmt.Errorf("navigate failed: %w", err)
	}

	// Try to wait for any listing card
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	waitErr := chromedp.Run(waitCtx, chromedp.WaitVisible(`[itemprop="itemListElement"]`, chromedp.ByQuery))
	cancel()
	if waitErr != nil {
		// fallback: just wait a bit more
		_ = chromedp.Run(ctx, chromedp.Sleep(3*time.Second))
	}

	var cards []cardData
	if err := chromedp.Run(ctx, chromedp.Evaluate(cardsJS, &cards)); err != nil {
		return nil, "", fmt.Errorf("card JS failed: %w", err)
	}

	var next string
	_ = chromedp.Run(ctx, chromedp.Evaluate(nextPageJS, &next))
	return cards, next, nil
}

const cardsJS = `
(function() {
	var cards = [];
	var containers = document.querySelectorAll('[data-testid="card-container"]');
	if (containers.length === 0) {
		containers = document.querySelectorAll('[itemprop="itemListElement"]');
	}
	containers.forEach(function(card) {
		var titleEl = card.querySelector('[data-testid="listing-card-title"]') ||
		              card.querySelector('[id^="title_"]') ||
		              card.querySelector('[itemprop="name"]');
		var title = titleEl ? titleEl.innerText.trim() : '';

		var price = '';
		var spans = card.querySelectorAll('span');
		for (var i = 0; i < spans.length; i++) {
			var t = spans[i].innerText.trim();
			if (/^[₹$€£]/.test(t) && t.length < 40) { price = t; break; }
		}

		var rating = '';
		var ratingEl = card.querySelector('[aria-label*="out of 5"]');
		if (ratingEl) rating = ratingEl.getAttribute('aria-label') || '';

		var linkEl = card.querySelector('a[href*="/rooms/"]');
		var imgEl = card.querySelector('img');

		if (title || linkEl) {
			cards.push({
				title: title,
				price: price,
				rating: rating,
				url: linkEl ? linkEl.href : '',
				image: imgEl ? imgEl.src : ''
			});
		}
	});
	return cards;
})()
`

const nextPageJS = `
(function() {
	var btn = document.querySelector('a[aria-label="Next"]') ||
	          document.querySelector('[data-testid="pagination-next-btn"]');
	return btn ? btn.href : '';
})()
`
