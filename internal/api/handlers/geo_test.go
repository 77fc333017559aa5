package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tripwise/internal/types"
)

// mockGeoService implements the GeoService interface for testing.
type mockGeoService struct {
	forwardFn func(ctx context.Context, place, country string) (*types.Coordinates, error)
	reverseFn func(ctx context.Context, coords types.Coordinates) (*types.Address, error)
}

func (m *mockGeoService) Forward(ctx context.Context, place, country string) (*types.Coordinates, error) {
	if m.forwardFn != nil {
		return m.forwardFn(ctx, place, country)
	}
	return nil, errors.New("Forward not mocked")
}

func (m *mockGeoService) Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error) {
	if m.reverseFn != nil {
		return m.reverseFn(ctx, coords)
	}
	return nil, errors.New("Reverse not mocked")
}

// =============================================================================
// HandleForward Tests
// =============================================================================

func TestHandleForward_Success(t *testing.T) {
	svc := &mockGeoService{
		forwardFn: func(_ context.Context, place, country string) (*types.Coordinates, error) {
			if place != "Lyon" {
				t.Errorf("expected place 'Lyon', got %q", place)
			}
			if country != "France" {
				t.Errorf("expected country 'France', got %q", country)
			}
			return &types.Coordinates{Lat: 45.76, Lon: 4.83}, nil
		},
	}
	handler := NewGeoHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/geo/forward?place=Lyon&country=France", nil)
	w := httptest.NewRecorder()

	handler.HandleForward(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data types.Coordinates `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Lat != 45.76 || resp.Data.Lon != 4.83 {
		t.Errorf("unexpected coordinates: %+v", resp.Data)
	}
}

func TestHandleForward_MissingPlace(t *testing.T) {
	handler := NewGeoHandler(&mockGeoService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/geo/forward", nil)
	w := httptest.NewRecorder()

	handler.HandleForward(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "validation_missing_required_field" {
		t.Errorf("expected error code validation_missing_required_field, got %q", code)
	}
}

func TestHandleForward_UpstreamFailure(t *testing.T) {
	handler := NewGeoHandler(&mockGeoService{
		forwardFn: func(_ context.Context, _, _ string) (*types.Coordinates, error) {
			return nil, types.NewAppError(types.ErrCodeUpstreamGeocoder, "geocoder unavailable", nil)
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/geo/forward?place=Lyon", nil)
	w := httptest.NewRecorder()

	handler.HandleForward(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d; body: %s", w.Code, w.Body.String())
	}
}

// =============================================================================
// HandleReverse Tests
// =============================================================================

func TestHandleReverse_Success(t *testing.T) {
	handler := NewGeoHandler(&mockGeoService{
		reverseFn: func(_ context.Context, coords types.Coordinates) (*types.Address, error) {
			if coords.Lat != 45.76 || coords.Lon != 4.83 {
				t.Errorf("unexpected coordinates: %+v", coords)
			}
			return &types.Address{Locality: "Lyon", Country: "France"}, nil
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/geo/reverse?lat=45.76&lon=4.83", nil)
	w := httptest.NewRecorder()

	handler.HandleReverse(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data types.Address `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Locality != "Lyon" || resp.Data.Country != "France" {
		t.Errorf("unexpected address: %+v", resp.Data)
	}
}

func TestHandleReverse_BadCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"missing both", "", "validation_missing_required_field"},
		{"missing lon", "?lat=45.76", "validation_missing_required_field"},
		{"non-numeric lat", "?lat=north&lon=4.83", "validation_invalid_coordinates"},
		{"non-numeric lon", "?lat=45.76&lon=east", "validation_invalid_coordinates"},
		{"lat out of range", "?lat=91&lon=4.83", "validation_invalid_coordinates"},
		{"lon out of range", "?lat=45.76&lon=181", "validation_invalid_coordinates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewGeoHandler(&mockGeoService{
				reverseFn: func(_ context.Context, _ types.Coordinates) (*types.Address, error) {
					t.Fatal("service must not be called with invalid coordinates")
					return nil, nil
				},
			}, nil)

			req := httptest.NewRequest(http.MethodGet, "/geo/reverse"+tt.query, nil)
			w := httptest.NewRecorder()

			handler.HandleReverse(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d; body: %s", w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, code)
			}
		})
	}
}
