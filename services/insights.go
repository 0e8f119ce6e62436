package services

import (
	"sort"
	"strconv"
	"strings"

	"stays-service/models"
	"stays-service/utils"
)

const topRatedCount = 5

// InsightService computes analytics from stored listings
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates a new InsightService
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes all insights for one city's listings
func (s *InsightService) Generate(city string, listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		City:               city,
		TopRated:           []*models.Listing{},
		ListingsByLocation: make(map[string]int),
	}

	if len(listings) == 0 {
		s.logger.Warn("No listings to generate insights from")
		return report
	}

	var totalPrice float64
	currencies := make(map[string]int)

	for _, l := range listings {
		// Counts
		report.TotalListings++
		switch l.Type {
		case models.TypeAirbnb:
			report.AirbnbListings++
		case models.TypeHotel:
			report.HotelListings++
		}

		// Price stats
		if cur, amount, ok := ParsePriceTag(l.Price); ok {
			currencies[cur]++
			report.PricedListings++
			totalPrice += amount
			if report.PricedListings == 1 || amount < report.MinPrice {
				report.MinPrice = amount
			}
			if amount > report.MaxPrice || report.MostExpensive == nil {
				report.MaxPrice = amount
				report.MostExpensive = l
			}
		}

		// Location count
		if l.Address != "" && l.Address != AddressNotAvailable {
			report.ListingsByLocation[l.Address]++
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = totalPrice / float64(report.PricedListings)
	}
	best := 0
	for cur, n := range currencies {
		if n > best || (n == best && cur < report.Currency) {
			report.Currency, best = cur, n
		}
	}

	// Top highest-rated
	rated := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Rating != nil {
			rated = append(rated, l)
		}
	}
	sort.SliceStable(rated, func(i, j int) bool {
		return *rated[i].Rating > *rated[j].Rating
	})
	if len(rated) > topRatedCount {
		rated = rated[:topRatedCount]
	}
	report.TopRated = rated

	return report
}

// ParsePriceTag splits a stored "INR 2499" price into currency and amount.
func ParsePriceTag(price string) (string, float64, bool) {
	cur, amount, ok := strings.Cut(strings.TrimSpace(price), " ")
	if !ok {
		return "", 0, false
	}
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil || v <= 0 {
		return "", 0, false
	}
	return cur, v, true
}
