package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tripwise/internal/types"
)

// NominatimClientConfig holds the configuration for creating a NominatimClient.
type NominatimClientConfig struct {
	BaseURL string
	// UserAgent is mandatory: the public Nominatim instance rejects clients
	// without an identifying agent string.
	UserAgent string
	Logger    *slog.Logger
}

// NominatimClient implements Geocoder against a Nominatim-style search API
// through BaseClient. Forward and reverse lookups are single-result queries;
// "no match" is reported as a nil result, never as an error.
type NominatimClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewNominatimClient creates a new NominatimClient. The httpClient timeout
// should match the geocoding oracle budget configured for the platform.
func NewNominatimClient(httpClient *http.Client, cfg NominatimClientConfig) *NominatimClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"nominatim",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		cfg.UserAgent,
	)

	return &NominatimClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewNominatimClientWithBase creates a NominatimClient with a pre-configured
// BaseClient, for tests that control the BaseClient configuration.
func NewNominatimClientWithBase(base *BaseClient, cfg NominatimClientConfig) *NominatimClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &NominatimClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// Compile-time check that NominatimClient satisfies Geocoder.
var _ Geocoder = (*NominatimClient)(nil)

// ---------------------------------------------------------------------------
// Geocoder Implementation
// ---------------------------------------------------------------------------

// Forward resolves a free-text place name to coordinates. Returns (nil, nil)
// when the oracle has no match.
func (n *NominatimClient) Forward(ctx context.Context, query string) (*types.Coordinates, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	params.Set("addressdetails", "1")

	resp, err := n.doGet(ctx, "/search", params)
	if err != nil {
		return nil, n.wrapGeocoderError("Forward", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, n.handleErrorResponse(resp, "Forward")
	}

	var results []nominatimSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode forward geocode response",
			err,
		)
	}

	if len(results) == 0 {
		return nil, nil // place not resolvable
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeocoder,
			fmt.Sprintf("Forward: geocoder returned unparseable coordinates %q/%q", results[0].Lat, results[0].Lon),
			nil,
		)
	}

	return &types.Coordinates{Lat: lat, Lon: lon}, nil
}

// Reverse resolves coordinates to address components. Returns (nil, nil)
// when the oracle cannot attribute the point to any address.
func (n *NominatimClient) Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	params.Set("format", "jsonv2")

	resp, err := n.doGet(ctx, "/reverse", params)
	if err != nil {
		return nil, n.wrapGeocoderError("Reverse", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, n.handleErrorResponse(resp, "Reverse")
	}

	var result nominatimReverseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode reverse geocode response",
			err,
		)
	}

	// Nominatim reports "nothing here" (open ocean, poles) as a 200 with an
	// error field in the body.
	if result.Error != "" || result.Address.Country == "" {
		return nil, nil
	}

	return &types.Address{
		Locality: result.Address.locality(),
		Country:  result.Address.Country,
	}, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs a GET request against the geocoding API.
func (n *NominatimClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := n.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	return n.base.Do(req)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// handleErrorResponse maps a non-200 geocoder response to a types.AppError.
func (n *NominatimClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: geocoding oracle rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: geocoding oracle server error (%d)", operation, resp.StatusCode),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamGeocoder,
			fmt.Sprintf("%s: geocoding oracle error (%d): %s", operation, resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
		)
	}
}

// wrapGeocoderError wraps a BaseClient transport error with context.
func (n *NominatimClient) wrapGeocoderError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamGeocoder,
		fmt.Sprintf("%s: geocoding oracle request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Nominatim Wire Types
// ---------------------------------------------------------------------------

type nominatimSearchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type nominatimReverseResult struct {
	Error   string           `json:"error"`
	Address nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	County       string `json:"county"`
	Country      string `json:"country"`
}

// locality returns the most specific populated-place component, falling back
// through town, village, municipality and county when city is absent.
func (a nominatimAddress) locality() string {
	for _, candidate := range []string{a.City, a.Town, a.Village, a.Municipality, a.County} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
