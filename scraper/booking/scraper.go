// Package booking acquires hotels from Booking.com search result pages.
// The result list is server rendered, so a plain HTML collector is enough.
package booking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stays-service/config"
	"stays-service/models"
	"stays-service/scraper"
	"stays-service/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const pageSize = 25

// Scraper collects property cards with colly.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	timeout time.Duration
}

func NewScraper(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		logger:  logger.Named("booking"),
		timeout: 30 * time.Second,
	}
}

func (s *Scraper) Kind() models.SourceKind { return models.SourceBooking }

// SearchURL is the results page for city at the given offset.
func SearchURL(base, city string, offset int) string {
	q := url.Values{}
	q.Set("ss", strings.TrimSpace(city))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return strings.TrimRight(base, "/") + "/searchresults.html?" + q.Encode()
}

func (s *Scraper) Fetch(ctx context.Context, city string) ([]models.RawItem, error) {
	c := colly.NewCollector(colly.UserAgent(scraper.UserAgent()))
	c.SetRequestTimeout(s.timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      time.Duration(s.cfg.RateLimitDelay) * time.Millisecond,
	}); err != nil {
		return nil, err
	}

	var (
		items   []models.RawItem
		pageLen int
		reqErr  error
	)
	seen := utils.NewKeyTracker()

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnHTML("body", func(e *colly.HTMLElement) {
		cards := parseCards(e.DOM, e.Request.URL, city)
		pageLen = len(cards)
		for _, item := range cards {
			if len(items) >= s.cfg.PropertiesPerPage {
				return
			}
			if link, _ := item["link"].(string); link != "" && !seen.Add(link) {
				continue
			}
			items = append(items, item)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		reqErr = fmt.Errorf("request %v failed with status %d: %w", r.Request.URL, r.StatusCode, err)
	})

	for offset := 0; len(items) < s.cfg.PropertiesPerPage; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageLen, reqErr = 0, nil
		if err := c.Visit(SearchURL(s.cfg.BookingURL, city, offset)); err != nil && reqErr == nil {
			reqErr = err
		}
		if reqErr != nil {
			if offset == 0 {
				return nil, reqErr
			}
			s.logger.Warn("  Offset %d error: %v", offset, reqErr)
			break
		}
		s.logger.Debug("  [%s] offset %d: %d cards", city, offset, pageLen)
		if pageLen < pageSize {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("Scraping complete for %q. Total raw properties: %d", city, len(items))
	return items, nil
}

// parseCards extracts every property card under sel. Relative links are
// resolved against base.
func parseCards(sel *goquery.Selection, base *url.URL, city string) []models.RawItem {
	var out []models.RawItem
	sel.Find(`[data-testid="property-card"]`).Each(func(_ int, card *goquery.Selection) {
		name := strings.TrimSpace(card.Find(`[data-testid="title"]`).First().Text())
		if name == "" {
			return
		}
		item := models.RawItem{"name": name, "city": city}

		if href, ok := card.Find(`a[data-testid="title-link"]`).First().Attr("href"); ok {
			item["link"] = absolute(base, href)
		}
		if price := strings.TrimSpace(card.Find(`[data-testid="price-and-discounted-price"]`).First().Text()); price != "" {
			item["price"] = price
		}
		// The score block reads "Scored 8.4 8.4 Very good"; the normalizer takes the first number.
		score := card.Find(`[data-testid="review-score"]`).First()
		if s := strings.TrimSpace(score.Find(`div[aria-hidden="true"]`).First().Text()); s != "" {
			item["rating"] = s
		} else if s := strings.TrimSpace(score.Text()); s != "" {
			item["rating"] = s
		}
		if addr := strings.TrimSpace(card.Find(`[data-testid="address"]`).First().Text()); addr != "" {
			item["address"] = addr
		}
		if src, ok := card.Find(`img[data-testid="image"]`).First().Attr("src"); ok && src != "" {
			item["images"] = []any{absolute(base, src)}
		}
		out = append(out, item)
	})
	return out
}

func absolute(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}
