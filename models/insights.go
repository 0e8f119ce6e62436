package models

// InsightReport holds analytics computed over the stored listings of a city
type InsightReport struct {
	City               string         `json:"city"`
	TotalListings      int            `json:"totalListings"`
	AirbnbListings     int            `json:"airbnbListings"`
	HotelListings      int            `json:"hotelListings"`
	PricedListings     int            `json:"pricedListings"`
	Currency           string         `json:"currency,omitempty"`
	AveragePrice       float64        `json:"averagePrice"`
	MinPrice           float64        `json:"minPrice"`
	MaxPrice           float64        `json:"maxPrice"`
	MostExpensive      *Listing       `json:"mostExpensive,omitempty"`
	TopRated           []*Listing     `json:"topRated"`
	ListingsByLocation map[string]int `json:"listingsByLocation"`
}
