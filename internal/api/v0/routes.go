// Package v0 provides the REST API handlers for the country snapshot service.
package v0

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/worldsnap/country-snapshot-server/internal/refresh"
	"github.com/worldsnap/country-snapshot-server/internal/service"
	"github.com/worldsnap/country-snapshot-server/internal/sources"
	"github.com/worldsnap/country-snapshot-server/internal/versions"
)

// Refresher triggers a snapshot refresh cycle
type Refresher interface {
	Refresh(ctx context.Context) (*refresh.Result, error)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// RefreshResponse represents a successful refresh outcome
type RefreshResponse struct {
	Message         string `json:"message"`
	TotalCountries  int64  `json:"total_countries"`
	LastRefreshedAt string `json:"last_refreshed_at"`
}

// Routes defines the routes for the snapshot API with dependency injection
type Routes struct {
	service      service.CountryService
	refresher    Refresher
	artifactPath string
}

// NewRoutes creates a new Routes instance with the provided dependencies
func NewRoutes(svc service.CountryService, refresher Refresher, artifactPath string) *Routes {
	return &Routes{
		service:      svc,
		refresher:    refresher,
		artifactPath: artifactPath,
	}
}

// Router creates a new router for the /countries API
func Router(svc service.CountryService, refresher Refresher, artifactPath string) http.Handler {
	routes := NewRoutes(svc, refresher, artifactPath)

	r := chi.NewRouter()

	r.Post("/refresh", routes.refreshCountries)
	r.Get("/", routes.listCountries)

	// Static segment before the name wildcard
	r.Get("/image", routes.getSummaryImage)

	r.Get("/{name}", routes.getCountry)
	r.Delete("/{name}", routes.deleteCountry)

	return r
}

// StatusHandler handles GET /status
func StatusHandler(svc service.CountryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Status(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to get snapshot status", "error", err)
			writeErrorResponse(w, "Failed to get snapshot status", nil, http.StatusInternalServerError)
			return
		}
		writeJSONResponse(w, http.StatusOK, status)
	}
}

// refreshCountries handles POST /countries/refresh
func (rr *Routes) refreshCountries(w http.ResponseWriter, r *http.Request) {
	result, err := rr.refresher.Refresh(r.Context())
	if err != nil {
		var srcErr *sources.SourceError
		switch {
		case errors.Is(err, refresh.ErrRefreshInProgress):
			writeErrorResponse(w, "Refresh already in progress", nil, http.StatusConflict)
		case errors.As(err, &srcErr):
			slog.ErrorContext(r.Context(), "Refresh failed fetching external source",
				"source", srcErr.Source, "error", err)
			writeErrorResponse(w, "External data source unavailable",
				map[string]string{"source": srcErr.Source}, http.StatusServiceUnavailable)
		default:
			slog.ErrorContext(r.Context(), "Refresh failed", "error", err)
			writeErrorResponse(w, "Failed to refresh countries", nil, http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, RefreshResponse{
		Message:         "Refresh complete",
		TotalCountries:  result.TotalCountries,
		LastRefreshedAt: result.LastRefreshedAt.Format(time.RFC3339),
	})
}

// listCountries handles GET /countries
func (rr *Routes) listCountries(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptionsFromQuery(r.URL.Query())
	if err != nil {
		writeErrorResponse(w, err.Error(), nil, http.StatusBadRequest)
		return
	}

	countries, err := rr.service.ListCountries(r.Context(), opts...)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list countries", "error", err)
		writeErrorResponse(w, "Failed to list countries", nil, http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, countries)
}

// listOptionsFromQuery translates query parameters into listing options
func listOptionsFromQuery(query url.Values) ([]service.ListOption, error) {
	var opts []service.ListOption

	if region := query.Get("region"); region != "" {
		opts = append(opts, service.WithRegion(region))
	}
	if currency := query.Get("currency"); currency != "" {
		opts = append(opts, service.WithCurrencyCode(currency))
	}

	switch sort := query.Get("sort"); sort {
	case "":
	case service.SortGDPDesc, service.SortGDPAsc:
		opts = append(opts, service.WithSort(sort))
	default:
		return nil, errors.New("invalid sort: must be gdp_desc or gdp_asc")
	}

	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("invalid limit: must be a positive integer")
		}
		limit = n
	}
	offset := 0
	if v := query.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.New("invalid offset: must be a non-negative integer")
		}
		offset = n
	}
	if limit != 0 || offset != 0 {
		opts = append(opts, service.WithPage(limit, offset))
	}

	return opts, nil
}

// getCountry handles GET /countries/{name}
func (rr *Routes) getCountry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	country, err := rr.service.GetCountry(r.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrCountryNotFound) {
			writeErrorResponse(w, "Country not found", nil, http.StatusNotFound)
			return
		}
		slog.ErrorContext(r.Context(), "Failed to get country", "name", name, "error", err)
		writeErrorResponse(w, "Failed to get country", nil, http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, country)
}

// deleteCountry handles DELETE /countries/{name}
func (rr *Routes) deleteCountry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := rr.service.DeleteCountry(r.Context(), name); err != nil {
		if errors.Is(err, service.ErrCountryNotFound) {
			writeErrorResponse(w, "Country not found", nil, http.StatusNotFound)
			return
		}
		slog.ErrorContext(r.Context(), "Failed to delete country", "name", name, "error", err)
		writeErrorResponse(w, "Failed to delete country", nil, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getSummaryImage handles GET /countries/image
func (rr *Routes) getSummaryImage(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(rr.artifactPath)
	if err != nil {
		writeErrorResponse(w, "Summary image not generated yet", nil, http.StatusNotFound)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to stat summary image", "error", err)
		writeErrorResponse(w, "Failed to serve summary image", nil, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "summary.png", info.ModTime(), f)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.CountryService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(svc service.CountryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			writeErrorResponse(w, "Service not ready: "+err.Error(), nil, http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, versions.GetVersionInfo())
}

// writeJSONResponse writes a JSON response with proper headers
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes the standard error shape
func writeErrorResponse(w http.ResponseWriter, message string, details any, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message, Details: details})
}
