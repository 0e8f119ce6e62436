package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"stays-service/models"
)

// PrintInsightReport formats the insight report for a terminal
func PrintInsightReport(w io.Writer, report *models.InsightReport) {
	border := strings.Repeat("═", 55)
	thin := strings.Repeat("─", 55)
	cur := report.Currency
	if cur == "" {
		cur = "-"
	}

	fmt.Fprintf(w, "\n╔%s╗\n", border)
	fmt.Fprintf(w, "║%s║\n", center("STAY MARKET INSIGHTS: "+strings.ToUpper(report.City), 55))
	fmt.Fprintf(w, "╚%s╝\n", border)

	fmt.Fprintf(w, "\n OVERVIEW\n%s\n", thin)
	fmt.Fprintf(w, "  Total Listings          : %d\n", report.TotalListings)
	fmt.Fprintf(w, "  Airbnb / Hotel          : %d / %d\n", report.AirbnbListings, report.HotelListings)
	fmt.Fprintf(w, "  Listings With Price     : %d\n", report.PricedListings)
	fmt.Fprintf(w, "  Average Price/Night     : %s %.2f\n", cur, report.AveragePrice)
	fmt.Fprintf(w, "  Minimum Price/Night     : %s %.2f\n", cur, report.MinPrice)
	fmt.Fprintf(w, "  Maximum Price/Night     : %s %.2f\n", cur, report.MaxPrice)

	if report.MostExpensive != nil {
		fmt.Fprintf(w, "\n MOST EXPENSIVE PROPERTY\n%s\n", thin)
		fmt.Fprintf(w, "  Name     : %s\n", report.MostExpensive.Name)
		fmt.Fprintf(w, "  Price    : %s\n", report.MostExpensive.Price)
		fmt.Fprintf(w, "  Address  : %s\n", report.MostExpensive.Address)
		if report.MostExpensive.SourceURL != "" {
			fmt.Fprintf(w, "  URL      : %s\n", report.MostExpensive.SourceURL)
		}
	}

	if len(report.ListingsByLocation) > 0 {
		fmt.Fprintf(w, "\n LISTINGS PER LOCATION\n%s\n", thin)
		// Sort by count descending
		type locCount struct {
			loc   string
			count int
		}
		var locs []locCount
		for loc, cnt := range report.ListingsByLocation {
			locs = append(locs, locCount{loc, cnt})
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].count == locs[j].count {
				return locs[i].loc < locs[j].loc
			}
			return locs[i].count > locs[j].count
		})
		for _, lc := range locs {
			bar := strings.Repeat("▓", lc.count)
			fmt.Fprintf(w, "  %-25s %3d  %s\n", truncate(lc.loc, 24)+":", lc.count, bar)
		}
	}

	if len(report.TopRated) > 0 {
		fmt.Fprintf(w, "\n TOP %d HIGHEST RATED PROPERTIES\n%s\n", len(report.TopRated), thin)
		for i, l := range report.TopRated {
			fmt.Fprintf(w, "  %d. %-35s %.2f \n", i+1, truncate(l.Name, 35), *l.Rating)
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", border)
}

func center(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	pad := (width - len(runes)) / 2
	return strings.Repeat(" ", pad) + s + strings.Repeat(" ", width-len(runes)-pad)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
