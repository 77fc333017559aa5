package external

import (
	"context"
	"encoding/json"

	"tripwise/internal/types"
)

// ---------------------------------------------------------------------------
// Payment Integration
// ---------------------------------------------------------------------------

// PaymentProvider abstracts the payment oracle (a PayPal-style orders API).
// Implementations translate between domain types and vendor-specific REST
// endpoints. Amounts cross this boundary as already-formatted two-decimal
// strings, matching the wire format of the oracle.
type PaymentProvider interface {
	// CreateOrder registers an order for the given amount and currency with
	// the payment oracle and returns its opaque order identifier.
	CreateOrder(ctx context.Context, value string, currency string) (orderID string, err error)

	// CaptureOrder asks the oracle to capture a previously created order and
	// returns the settlement details of the first capture of the first
	// purchase unit. Capturing an already-captured order yields an AppError
	// with code ErrCodeConflictOrderCaptured.
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// CaptureResult carries the settlement fields the reconciliation gates
// inspect. Value and Currency describe the captured amount; PayeeMerchantID
// identifies the receiving account when the oracle reports one.
type CaptureResult struct {
	OrderID         string
	Status          string
	Value           string
	Currency        string
	PayeeMerchantID string
}

// ---------------------------------------------------------------------------
// Email Integration
// ---------------------------------------------------------------------------

// EmailProvider abstracts interactions with the email delivery service.
// Implementations transmit pre-rendered email content (Subject, BodyHTML, BodyText).
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}

// ---------------------------------------------------------------------------
// Geocoding Integration
// ---------------------------------------------------------------------------

// Geocoder abstracts the geocoding oracle (a Nominatim-style search API).
//
// "Not resolvable" is an answer, not a failure: both methods return a nil
// result with a nil error when the oracle has no match for the input.
// Errors are reserved for transport and upstream failures.
type Geocoder interface {
	// Forward resolves a free-text place name to coordinates.
	Forward(ctx context.Context, query string) (*types.Coordinates, error)

	// Reverse resolves coordinates to address components. The Locality field
	// is populated from the most specific component available.
	Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error)
}

// ---------------------------------------------------------------------------
// Content Generation Integration
// ---------------------------------------------------------------------------

// GuideOracle abstracts the content generation model behind city guides and
// itineraries. Implementations return the oracle's raw JSON output; callers
// own schema validation, because the oracle's output is untrusted (see the
// guides package).
type GuideOracle interface {
	// GenerateCityGuide produces a city guide document for the named city.
	// countryHint steers the oracle toward the right city when names collide.
	GenerateCityGuide(ctx context.Context, cityName string, countryHint string) (json.RawMessage, error)

	// GenerateItinerary produces a day-by-day itinerary document.
	GenerateItinerary(ctx context.Context, prompt types.ItineraryPrompt) (json.RawMessage, error)
}
