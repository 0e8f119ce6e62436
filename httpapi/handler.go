// Package httpapi implements the HTTP handlers of the stays service.
//
// Routes:
//
//	GET /api/stay?city=&source=           → stored or freshly acquired listings
//	GET /api/stay/insights?city=&source=  → price and rating analytics over the same listings
//	GET /api/weather?city=                → current conditions and short-range forecast
//	GET /health                           → liveness
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"stays-service/geocode"
	"stays-service/models"
	"stays-service/services"
	"stays-service/utils"

	"github.com/gorilla/mux"
)

// StayResolver answers lodging queries.
type StayResolver interface {
	Resolve(ctx context.Context, city string, kind models.SourceKind) (services.StayResponse, error)
}

// WeatherResolver answers weather queries.
type WeatherResolver interface {
	Resolve(ctx context.Context, city string) (services.WeatherResponse, error)
}

// Handler holds shared dependencies.
type Handler struct {
	stays         StayResolver
	weather       WeatherResolver
	insights      *services.InsightService
	defaultSource models.SourceKind
	logger        *utils.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(stays StayResolver, weather WeatherResolver, insights *services.InsightService, defaultSource models.SourceKind, logger *utils.Logger) *Handler {
	if defaultSource == "" {
		defaultSource = models.SourceAirbnb
	}
	return &Handler{
		stays:         stays,
		weather:       weather,
		insights:      insights,
		defaultSource: defaultSource,
		logger:        logger.Named("http"),
	}
}

// Router mounts all routes on a gorilla/mux router with access logging.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.accessLog)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stay", h.getStays).Methods(http.MethodGet)
	api.HandleFunc("/stay/insights", h.getInsights).Methods(http.MethodGet)
	api.HandleFunc("/weather", h.getWeather).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonError(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{"status": "ok", "service": "stays-service"})
}

func (h *Handler) getStays(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.resolveStays(w, r)
	if ok {
		jsonOK(w, resp)
	}
}

func (h *Handler) getInsights(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.resolveStays(w, r)
	if !ok {
		return
	}
	report := h.insights.Generate(r.URL.Query().Get("city"), resp.Data)
	jsonOK(w, map[string]any{"source": resp.Source, "data": report})
}

// resolveStays runs the shared stay lookup and writes the error response
// itself when there is nothing to serve.
func (h *Handler) resolveStays(w http.ResponseWriter, r *http.Request) (services.StayResponse, bool) {
	q := r.URL.Query()
	kind := h.defaultSource
	if s := q.Get("source"); s != "" {
		k, err := models.ParseSourceKind(s)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error(), nil)
			return services.StayResponse{}, false
		}
		kind = k
	}

	resp, err := h.stays.Resolve(r.Context(), q.Get("city"), kind)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Stay query %s %q failed: %v", kind, q.Get("city"), err)
		}
		var extra map[string]any
		if resp.SaveSummary != nil {
			extra = map[string]any{"saveSummary": resp.SaveSummary}
		}
		jsonError(w, status, messageFor(err), extra, err)
		return services.StayResponse{}, false
	}
	return resp, true
}

func (h *Handler) getWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	resp, err := h.weather.Resolve(r.Context(), city)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Weather query %q failed: %v", city, err)
		}
		jsonError(w, status, messageFor(err), nil, err)
		return
	}
	jsonOK(w, resp)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		acqErr      *services.AcquisitionError
		upstreamErr *services.UpstreamError
	)
	switch {
	case errors.Is(err, services.ErrMissingCity), errors.Is(err, services.ErrUnknownSource):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoListings), errors.Is(err, geocode.ErrCityNotFound):
		return http.StatusNotFound
	case errors.As(err, &acqErr):
		return http.StatusNotFound
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	var acqErr *services.AcquisitionError
	switch {
	case errors.Is(err, services.ErrMissingCity):
		return "city query param required"
	case errors.Is(err, services.ErrUnknownSource):
		return "unsupported source"
	case errors.Is(err, services.ErrNoListings), errors.As(err, &acqErr):
		return "no stays found"
	case errors.Is(err, geocode.ErrCityNotFound):
		return "city not found"
	case statusFor(err) == http.StatusBadGateway:
		return "weather provider unavailable"
	default:
		return "internal error"
	}
}

// ─── JSON helpers ────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// jsonError writes {message, error?} plus any extra fields.
func jsonError(w http.ResponseWriter, code int, msg string, extra map[string]any, cause ...error) {
	body := map[string]any{"message": msg}
	for k, v := range extra {
		body[k] = v
	}
	if len(cause) > 0 && cause[0] != nil {
		body["error"] = cause[0].Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
