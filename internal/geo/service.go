package geo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tripwise/internal/types"
)

// Service is the geocode proxy facade behind the /v1/geo endpoints: input
// validation in front of the locator's cached oracle path.
type Service struct {
	locator *Locator
	logger  *slog.Logger
}

// NewService creates a new geo Service.
func NewService(locator *Locator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{locator: locator, logger: logger}
}

// Forward resolves a free-text place name, optionally biased by a country,
// to coordinates.
func (s *Service) Forward(ctx context.Context, place, country string) (*types.Coordinates, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"place is required", nil)
	}

	coords, err := s.locator.Forward(ctx, place, strings.TrimSpace(country))
	if err != nil {
		return nil, err
	}
	if coords == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundCity,
			fmt.Sprintf("no place named %q could be located", place), nil)
	}
	return coords, nil
}

// Reverse attributes coordinates to a locality and country.
func (s *Service) Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error) {
	if coords.Lat < -90 || coords.Lat > 90 || coords.Lon < -180 || coords.Lon > 180 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCoords,
			"coordinates are out of range", nil,
			map[string]any{"lat": coords.Lat, "lon": coords.Lon})
	}

	addr, err := s.locator.Reverse(ctx, coords)
	if err != nil {
		return nil, err
	}
	if addr == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundCountry,
			"no address at these coordinates", nil)
	}
	return addr, nil
}
