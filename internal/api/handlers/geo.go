package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/core"
	"tripwise/internal/types"
)

// GeoService exposes forward and reverse geocoding.
type GeoService interface {
	Forward(ctx context.Context, place, country string) (*types.Coordinates, error)
	Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error)
}

// GeoHandler maps HTTP requests to the geocoding service.
type GeoHandler struct {
	service GeoService
	logger  *slog.Logger
}

// NewGeoHandler creates a new GeoHandler with the provided dependencies.
func NewGeoHandler(svc GeoService, l *slog.Logger) *GeoHandler {
	if l == nil {
		l = slog.Default()
	}
	return &GeoHandler{service: svc, logger: l}
}

// RegisterRoutes mounts geocoding routes onto the provided router.
//
//   - GET /geo/forward - Place name to coordinates
//   - GET /geo/reverse - Coordinates to structured address
func (h *GeoHandler) RegisterRoutes(r chi.Router) {
	r.Route("/geo", func(r chi.Router) {
		r.Get("/forward", h.HandleForward)
		r.Get("/reverse", h.HandleReverse)
	})
}

// HandleForward handles GET /v1/geo/forward?place=...&country=...
func (h *GeoHandler) HandleForward(w http.ResponseWriter, r *http.Request) {
	place := r.URL.Query().Get("place")
	if place == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"place query parameter is required",
			nil,
		))
		return
	}
	country := r.URL.Query().Get("country")

	coords, err := h.service.Forward(r.Context(), place, country)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: coords})
}

// HandleReverse handles GET /v1/geo/reverse?lat=...&lon=...
func (h *GeoHandler) HandleReverse(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoordinates(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	addr, err := h.service.Reverse(r.Context(), coords)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: addr})
}

// parseCoordinates validates the lat/lon query pair. Both must be present,
// numeric and within WGS84 range.
func parseCoordinates(latRaw, lonRaw string) (types.Coordinates, error) {
	if latRaw == "" || lonRaw == "" {
		return types.Coordinates{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"lat and lon query parameters are required",
			nil,
		)
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return types.Coordinates{}, types.NewAppError(
			types.ErrCodeValidationInvalidCoords,
			"lat must be a number",
			err,
		)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return types.Coordinates{}, types.NewAppError(
			types.ErrCodeValidationInvalidCoords,
			"lon must be a number",
			err,
		)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return types.Coordinates{}, types.NewAppError(
			types.ErrCodeValidationInvalidCoords,
			"coordinates out of range",
			nil,
		)
	}

	return types.Coordinates{Lat: lat, Lon: lon}, nil
}
