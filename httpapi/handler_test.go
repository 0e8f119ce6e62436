package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stays-service/geocode"
	"stays-service/httpapi"
	"stays-service/models"
	"stays-service/services"
	"stays-service/utils"
)

func quietLogger() *utils.Logger {
	return utils.NewLoggerWithOutput(io.Discard, io.Discard)
}

func ptr(f float64) *float64 { return &f }

type fakeStays struct {
	resp     services.StayResponse
	err      error
	lastCity string
	lastKind models.SourceKind
}

func (f *fakeStays) Resolve(_ context.Context, city string, kind models.SourceKind) (services.StayResponse, error) {
	f.lastCity, f.lastKind = city, kind
	return f.resp, f.err
}

type fakeWeather struct {
	resp services.WeatherResponse
	err  error
}

func (f *fakeWeather) Resolve(_ context.Context, _ string) (services.WeatherResponse, error) {
	return f.resp, f.err
}

func newServer(stays *fakeStays, weather *fakeWeather) *httptest.Server {
	h := httpapi.NewHandler(stays, weather, services.NewInsightService(quietLogger()), models.SourceAirbnb, quietLogger())
	return httptest.NewServer(h.Router())
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return res.StatusCode, body
}

func TestStayStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing city", services.ErrMissingCity, http.StatusBadRequest},
		{"unknown source", fmt.Errorf("%w: %q", services.ErrUnknownSource, "generic"), http.StatusBadRequest},
		{"no listings", services.ErrNoListings, http.StatusNotFound},
		{"acquisition failed", &services.AcquisitionError{Kind: models.SourceAirbnb, City: "X", Err: errors.New("timeout")}, http.StatusNotFound},
		{"merge failed", &services.MergeError{Summary: models.MergeSummary{Error: "db down"}}, http.StatusInternalServerError},
		{"store read", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(&fakeStays{err: tt.err}, &fakeWeather{})
			defer srv.Close()

			status, body := getJSON(t, srv.URL+"/api/stay?city=Dehradun")
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if body["message"] == "" || body["message"] == nil {
				t.Errorf("error body has no message: %v", body)
			}
			if body["error"] != tt.err.Error() {
				t.Errorf("error = %v, want %q", body["error"], tt.err.Error())
			}
		})
	}
}

func TestStayDefaultsAndSourceParsing(t *testing.T) {
	stays := &fakeStays{resp: services.StayResponse{Source: services.SourceCache, Data: []*models.Listing{}}}
	srv := newServer(stays, &fakeWeather{})
	defer srv.Close()

	status, body := getJSON(t, srv.URL+"/api/stay?city=Dehradun")
	if status != http.StatusOK || body["source"] != "cache" {
		t.Fatalf("got %d %v", status, body)
	}
	if stays.lastKind != models.SourceAirbnb || stays.lastCity != "Dehradun" {
		t.Errorf("resolved %s %q, want airbnb Dehradun", stays.lastKind, stays.lastCity)
	}

	getJSON(t, srv.URL+"/api/stay?city=Dehradun&source=Booking")
	if stays.lastKind != models.SourceBooking {
		t.Errorf("source=Booking resolved as %s", stays.lastKind)
	}

	status, _ = getJSON(t, srv.URL+"/api/stay?city=Dehradun&source=tripadvisor")
	if status != http.StatusBadRequest {
		t.Errorf("invalid source status = %d, want 400", status)
	}
}

func TestStayNotFoundCarriesSaveSummary(t *testing.T) {
	summary := &models.MergeSummary{Processed: 2, Skipped: []models.Skipped{{Reason: models.SkipMissingLocation}, {Reason: models.SkipMissingLocation}}}
	srv := newServer(&fakeStays{
		resp: services.StayResponse{Data: []*models.Listing{}, SaveSummary: summary},
		err:  services.ErrNoListings,
	}, &fakeWeather{})
	defer srv.Close()

	status, body := getJSON(t, srv.URL+"/api/stay?city=Nowhere")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	saved, ok := body["saveSummary"].(map[string]any)
	if !ok || saved["processed"] != float64(2) {
		t.Errorf("saveSummary = %v", body["saveSummary"])
	}
}

func TestInsights(t *testing.T) {
	srv := newServer(&fakeStays{resp: services.StayResponse{
		Source: services.SourceCache,
		Data: []*models.Listing{
			{Name: "A", Type: models.TypeAirbnb, Price: "INR 2000", Rating: ptr(4.5), Address: "Rajpur"},
			{Name: "B", Type: models.TypeAirbnb, Price: "INR 4000", Rating: ptr(4.9), Address: "Rajpur"},
		},
	}}, &fakeWeather{})
	defer srv.Close()

	status, body := getJSON(t, srv.URL+"/api/stay/insights?city=Dehradun")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	report, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v", body["data"])
	}
	if report["totalListings"] != float64(2) || report["averagePrice"] != float64(3000) {
		t.Errorf("report = %v", report)
	}
}

func TestWeather(t *testing.T) {
	tests := []struct {
		name string
		fw   *fakeWeather
		want int
	}{
		{"served", &fakeWeather{resp: services.WeatherResponse{Source: services.SourceAPI, Data: &models.WeatherSnapshot{City: "dehradun", LastUpdated: time.Now()}}}, http.StatusOK},
		{"missing city", &fakeWeather{err: services.ErrMissingCity}, http.StatusBadRequest},
		{"unknown city", &fakeWeather{err: fmt.Errorf("resolve: %w", geocode.ErrCityNotFound)}, http.StatusNotFound},
		{"upstream down", &fakeWeather{err: &services.UpstreamError{City: "dehradun", Err: errors.New("503")}}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(&fakeStays{}, tt.fw)
			defer srv.Close()
			status, _ := getJSON(t, srv.URL+"/api/weather?city=Dehradun")
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestHealthAndRequestID(t *testing.T) {
	srv := newServer(&fakeStays{}, &fakeWeather{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") != "abc" {
		t.Errorf("request id not echoed: %q", res.Header.Get("X-Request-ID"))
	}

	res, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.Header.Get("X-Request-ID") == "" {
		t.Error("request id should be generated when absent")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newServer(&fakeStays{}, &fakeWeather{})
	defer srv.Close()

	status, body := getJSON(t, srv.URL+"/api/nope")
	if status != http.StatusNotFound || body["message"] != "route not found" {
		t.Errorf("got %d %v", status, body)
	}

	res, err := http.Post(srv.URL+"/api/stay?city=Dehradun", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", res.StatusCode)
	}
}
