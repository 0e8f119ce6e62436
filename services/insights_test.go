package services_test

import (
	"bytes"
	"strings"
	"testing"

	"stays-service/models"
	"stays-service/services"
)

func TestInsights_Generate(t *testing.T) {
	listings := []*models.Listing{
		{Name: "A", Type: models.TypeAirbnb, Price: "INR 2000", Rating: ptr(4.1), Address: "Rajpur Road"},
		{Name: "B", Type: models.TypeAirbnb, Price: "INR 6000", Rating: ptr(4.9), Address: "Rajpur Road"},
		{Name: "C", Type: models.TypeHotel, Price: "N/A", Address: services.AddressNotAvailable},
		{Name: "D", Type: models.TypeHotel, Price: "USD 100", Rating: ptr(3.0), Address: "Clock Tower"},
	}
	r := services.NewInsightService(quietLogger()).Generate("Dehradun", listings)

	if r.TotalListings != 4 || r.AirbnbListings != 2 || r.HotelListings != 2 || r.PricedListings != 3 {
		t.Errorf("counts = %+v", r)
	}
	if r.Currency != "INR" {
		t.Errorf("currency = %q", r.Currency)
	}
	if r.MinPrice != 100 || r.MaxPrice != 6000 || r.MostExpensive.Name != "B" {
		t.Errorf("min=%v max=%v most=%s", r.MinPrice, r.MaxPrice, r.MostExpensive.Name)
	}
	if r.AveragePrice != 2700 {
		t.Errorf("avg = %v", r.AveragePrice)
	}
	if len(r.TopRated) != 3 || r.TopRated[0].Name != "B" || r.TopRated[2].Name != "D" {
		t.Errorf("top rated = %v", r.TopRated)
	}
	if r.ListingsByLocation["Rajpur Road"] != 2 || len(r.ListingsByLocation) != 2 {
		t.Errorf("by location = %v", r.ListingsByLocation)
	}

	var buf bytes.Buffer
	services.PrintInsightReport(&buf, r)
	if !strings.Contains(buf.String(), "DEHRADUN") || !strings.Contains(buf.String(), "Rajpur Road") {
		t.Errorf("report output missing content:\n%s", buf.String())
	}
}

func TestInsights_Empty(t *testing.T) {
	r := services.NewInsightService(quietLogger()).Generate("Nowhere", nil)
	if r.TotalListings != 0 || r.MostExpensive != nil || r.TopRated == nil {
		t.Errorf("report = %+v", r)
	}
}

func TestParsePriceTag(t *testing.T) {
	if cur, v, ok := services.ParsePriceTag("INR 2499"); !ok || cur != "INR" || v != 2499 {
		t.Errorf("got %q %v %v", cur, v, ok)
	}
	for _, in := range []string{"N/A", "", "INR abc", "INR 0"} {
		if _, _, ok := services.ParsePriceTag(in); ok {
			t.Errorf("ParsePriceTag(%q) should fail", in)
		}
	}
}
