package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"stays-service/models"
	"stays-service/utils"
)

// AddressNotAvailable is stored when neither the item nor the query gives an address.
const AddressNotAvailable = "Address not available"

// ErrUnknownSource is returned for a SourceKind with no normalization profile.
var ErrUnknownSource = errors.New("unknown source kind")

var (
	numberRegex    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	commaDecimal   = regexp.MustCompile(`^\s*-?\d+,\d+\s*$`)
	digitRunRegex  = regexp.MustCompile(`\d+`)
	thousandsRegex = regexp.MustCompile(`(\d),(\d)`)
)

// GeocodeFunc resolves a city name to coordinates.
type GeocodeFunc func(ctx context.Context, city string) (models.Location, error)

// NormalizeContext carries the per-batch inputs the raw items do not.
type NormalizeContext struct {
	City            string
	DefaultLocation *models.Location
	DefaultCurrency string
	Geocode         GeocodeFunc
}

// sourceProfile is the per-source part of normalization.
type sourceProfile struct {
	listingType     models.ListingType
	namePlaceholder string
	honourItemType  bool
}

var sourceProfiles = map[models.SourceKind]sourceProfile{
	models.SourceGoogleMaps: {listingType: models.TypeHotel, namePlaceholder: "Unnamed Stay"},
	models.SourceAirbnb:     {listingType: models.TypeAirbnb, namePlaceholder: "Unnamed Property"},
	models.SourceBooking:    {listingType: models.TypeHotel},
	models.SourceGeneric:    {listingType: models.TypeAirbnb, honourItemType: true},
}

// KnownSource reports whether kind has a normalization profile
func KnownSource(kind models.SourceKind) bool {
	_, ok := sourceProfiles[kind]
	return ok
}

var builtinCities = map[string]models.Location{
	"dehradun":  {Lat: 30.3165, Lon: 78.0322},
	"mussoorie": {Lat: 30.4595, Lon: 78.0960},
}

// Normalizer converts raw scraped items into canonical listings
type Normalizer struct {
	logger *utils.Logger
	cities map[string]models.Location
}

// NewNormalizer creates a Normalizer. extraCities extends the built-in
// city table, keyed by lowercase name.
func NewNormalizer(logger *utils.Logger, extraCities map[string][2]float64) *Normalizer {
	cities := make(map[string]models.Location, len(builtinCities)+len(extraCities))
	for k, v := range builtinCities {
		cities[k] = v
	}
	for k, v := range extraCities {
		cities[strings.ToLower(strings.TrimSpace(k))] = models.Location{Lat: v[0], Lon: v[1]}
	}
	return &Normalizer{logger: logger, cities: cities}
}

// BatchResult is the outcome of normalizing one batch.
type BatchResult struct {
	Listings []*models.Listing
	Skipped  []models.Skipped
}

// NormalizeBatch normalizes every item, drops in-batch duplicates (first wins)
// and resolves each geocode lookup at most once.
func (n *Normalizer) NormalizeBatch(ctx context.Context, kind models.SourceKind, items []models.RawItem, nctx NormalizeContext) (BatchResult, error) {
	var out BatchResult
	if !KnownSource(kind) {
		return out, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}
	nctx.Geocode = cachedGeocode(nctx.Geocode)

	seen := utils.NewKeyTracker()
	for _, item := range items {
		l, skip := n.Normalize(ctx, item, kind, nctx)
		if skip != nil {
			out.Skipped = append(out.Skipped, *skip)
			continue
		}
		if !seen.Add(l.IdentityKey) {
			out.Skipped = append(out.Skipped, models.Skipped{Reason: models.SkipDuplicate, Item: item})
			continue
		}
		out.Listings = append(out.Listings, l)
	}
	n.logger.Debug("Normalized %d/%d %s items (%d skipped)", len(out.Listings), len(items), kind, len(out.Skipped))
	return out, nil
}

// Normalize builds one Listing, or reports why the item was skipped.
// Timestamps are left zero; the store stamps them.
func (n *Normalizer) Normalize(ctx context.Context, item models.RawItem, kind models.SourceKind, nctx NormalizeContext) (l *models.Listing, skip *models.Skipped) {
	profile, ok := sourceProfiles[kind]
	if !ok {
		return nil, &models.Skipped{Reason: models.SkipBuildError, Error: ErrUnknownSource.Error(), Item: item}
	}

	defer func() {
		if r := recover(); r != nil {
			l = nil
			skip = &models.Skipped{Reason: models.SkipBuildError, Error: fmt.Sprint(r), Item: item}
		}
	}()

	name := firstText(item, "name", "title", "id")
	if name == "" {
		name = profile.namePlaceholder
	}
	if name == "" {
		return nil, &models.Skipped{Reason: models.SkipMissingName, Item: item}
	}

	loc, ok := n.resolveLocation(ctx, item, nctx)
	if !ok {
		return nil, &models.Skipped{Reason: models.SkipMissingLocation, Item: item}
	}

	listingType := profile.listingType
	if profile.honourItemType {
		switch t := models.ListingType(strings.ToLower(firstText(item, "type"))); t {
		case models.TypeHotel, models.TypeAirbnb:
			listingType = t
		}
	}

	sourceURL := firstText(item, "sourceUrl", "link", "url")
	city := strings.TrimSpace(nctx.City)
	if city == "" {
		city = firstText(item, "city")
	}

	l = &models.Listing{
		Source:      kind,
		Name:        name,
		Description: firstText(item, "description"),
		Type:        listingType,
		Address:     resolveAddress(item, nctx.City),
		City:        city,
		Location:    loc,
		Rating:      ParseRating(item["rating"]),
		Price:       FormatPrice(item["price"], nctx.DefaultCurrency),
		Amenities:   stringList(item["amenities"]),
		Images:      stringList(item["images"]),
		SourceURL:   sourceURL,
	}
	l.IdentityKey = models.BuildIdentityKey(sourceURL, name, loc)
	return l, nil
}

func (n *Normalizer) resolveLocation(ctx context.Context, item models.RawItem, nctx NormalizeContext) (models.Location, bool) {
	for _, key := range []string{"location", "coordinates"} {
		if m, ok := item[key].(map[string]any); ok {
			if loc, ok := pointFrom(m, "lat", "lon", "lng"); ok {
				return loc, true
			}
			if loc, ok := pointFrom(m, "latitude", "longitude"); ok {
				return loc, true
			}
		}
	}
	if loc, ok := pointFrom(item, "latitude", "longitude"); ok {
		return loc, true
	}
	if d := nctx.DefaultLocation; d != nil && usable(*d) {
		return *d, true
	}

	city := firstText(item, "city")
	if city == "" {
		city = strings.TrimSpace(nctx.City)
	}
	if city == "" {
		return models.Location{}, false
	}
	if loc, ok := n.cities[strings.ToLower(city)]; ok {
		return loc, true
	}
	if nctx.Geocode != nil {
		loc, err := nctx.Geocode(ctx, city)
		if err != nil {
			n.logger.Debug("Geocode %q failed: %v", city, err)
			return models.Location{}, false
		}
		if usable(loc) {
			return loc, true
		}
	}
	return models.Location{}, false
}

// pointFrom reads lat and the first present lon alias from m.
func pointFrom(m map[string]any, latKey string, lonKeys ...string) (models.Location, bool) {
	lat, ok := toFloat(m[latKey])
	if !ok {
		return models.Location{}, false
	}
	for _, k := range lonKeys {
		if lon, ok := toFloat(m[k]); ok {
			loc := models.Location{Lat: lat, Lon: lon}
			return loc, usable(loc)
		}
	}
	return models.Location{}, false
}

func usable(loc models.Location) bool {
	return !(loc.Lat == 0 && loc.Lon == 0)
}

func resolveAddress(item models.RawItem, queryCity string) string {
	if a := firstText(item, "address", "city"); a != "" {
		return a
	}
	if c := strings.TrimSpace(queryCity); c != "" {
		return c
	}
	return AddressNotAvailable
}

// ParseRating accepts numbers and text such as "4,5" or "4.82 out of 5".
// Anything that yields no finite number is nil.
func ParseRating(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if commaDecimal.MatchString(s) {
			s = strings.Replace(s, ",", ".", 1)
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			m := numberRegex.FindString(strings.Replace(s, ",", ".", 1))
			if m == "" {
				return nil
			}
			if parsed, err = strconv.ParseFloat(m, 64); err != nil {
				return nil
			}
		}
		f = parsed
	default:
		parsed, ok := toFloat(t)
		if !ok {
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FormatPrice renders a currency-tagged price such as "INR 2499", or "N/A".
func FormatPrice(v any, defaultCurrency string) string {
	var text string
	switch t := v.(type) {
	case nil:
		return models.PriceNotAvailable
	case string:
		text = t
	default:
		f, ok := toFloat(t)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return models.PriceNotAvailable
		}
		text = strconv.FormatFloat(math.Round(f), 'f', 0, 64)
	}

	cleaned := thousandsRegex.ReplaceAllString(text, "$1$2")
	cleaned = thousandsRegex.ReplaceAllString(cleaned, "$1$2")
	digits := digitRunRegex.FindString(cleaned)
	if digits == "" {
		return models.PriceNotAvailable
	}
	return detectCurrency(text, defaultCurrency) + " " + digits
}

var currencyMarkers = []struct {
	marker string
	code   string
}{
	{"₹", "INR"}, {"INR", "INR"},
	{"€", "EUR"}, {"EUR", "EUR"},
	{"£", "GBP"}, {"GBP", "GBP"},
	{"$", "USD"}, {"USD", "USD"},
}

func detectCurrency(text, defaultCurrency string) string {
	upper := strings.ToUpper(text)
	for _, c := range currencyMarkers {
		if strings.Contains(upper, c.marker) {
			return c.code
		}
	}
	if defaultCurrency = strings.ToUpper(strings.TrimSpace(defaultCurrency)); defaultCurrency != "" {
		return defaultCurrency
	}
	return "INR"
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return toFloat(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return toFloat(f)
	}
	return 0, false
}

// firstText returns the first non-blank value among keys, trimmed.
func firstText(item models.RawItem, keys ...string) string {
	for _, k := range keys {
		switch t := item[k].(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		case int64:
			return strconv.FormatInt(t, 10)
		}
	}
	return ""
}

// stringList accepts a single string or a list and returns unique trimmed values.
func stringList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = []string{t}
	case []string:
		raw = t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// cachedGeocode memoizes lookups, failures included, for one batch.
func cachedGeocode(fn GeocodeFunc) GeocodeFunc {
	if fn == nil {
		return nil
	}
	type result struct {
		loc models.Location
		err error
	}
	cache := make(map[string]result)
	return func(ctx context.Context, city string) (models.Location, error) {
		key := strings.ToLower(strings.TrimSpace(city))
		if r, ok := cache[key]; ok {
			return r.loc, r.err
		}
		loc, err := fn(ctx, city)
		cache[key] = result{loc, err}
		return loc, err
	}
}
