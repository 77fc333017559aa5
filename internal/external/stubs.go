package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"tripwise/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the application to boot in local/test mode
// without requiring real external service credentials. They log all
// actions and return predictable, safe default values.
// ---------------------------------------------------------------------------

// StubPaymentProvider implements PaymentProvider in-memory. Orders created
// through it capture successfully with the exact amount they were created
// for, so the reconciliation gates pass in local mode.
type StubPaymentProvider struct {
	logger *slog.Logger

	mu     sync.Mutex
	seq    int
	orders map[string]paypalAmount
}

// NewStubPaymentProvider creates a new StubPaymentProvider.
func NewStubPaymentProvider(logger *slog.Logger) *StubPaymentProvider {
	return &StubPaymentProvider{
		logger: logger,
		orders: make(map[string]paypalAmount),
	}
}

func (s *StubPaymentProvider) CreateOrder(ctx context.Context, value string, currency string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	orderID := fmt.Sprintf("ord_stub_%04d", s.seq)
	s.orders[orderID] = paypalAmount{CurrencyCode: currency, Value: value}

	s.logger.InfoContext(ctx, "stub: CreateOrder called",
		"order_id", orderID,
		"value", value,
		"currency", currency,
	)
	return orderID, nil
}

func (s *StubPaymentProvider) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount, ok := s.orders[orderID]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundOrder,
			fmt.Sprintf("stub: unknown order %s", orderID),
			nil,
		)
	}

	s.logger.InfoContext(ctx, "stub: CaptureOrder called",
		"order_id", orderID,
		"value", amount.Value,
	)
	return &CaptureResult{
		OrderID:  orderID,
		Status:   "COMPLETED",
		Value:    amount.Value,
		Currency: amount.CurrencyCode,
	}, nil
}

// StubEmailProvider implements EmailProvider by logging calls and returning
// a fake message ID. Used when config.IsTestMode is true or APP_ENV=local.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", input.To,
		"subject", input.Subject,
		"from", input.From.Address,
	)
	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}

// StubGeocoder implements Geocoder with a fixed location. Every forward
// lookup lands in central Paris and every reverse lookup attributes the
// point to France, which keeps the city resolution flow navigable in
// local mode.
type StubGeocoder struct {
	logger *slog.Logger
}

// NewStubGeocoder creates a new StubGeocoder.
func NewStubGeocoder(logger *slog.Logger) *StubGeocoder {
	return &StubGeocoder{logger: logger}
}

func (s *StubGeocoder) Forward(ctx context.Context, query string) (*types.Coordinates, error) {
	s.logger.InfoContext(ctx, "stub: Forward geocode called",
		"query", query,
	)
	return &types.Coordinates{Lat: 48.8566, Lon: 2.3522}, nil
}

func (s *StubGeocoder) Reverse(ctx context.Context, coords types.Coordinates) (*types.Address, error) {
	s.logger.InfoContext(ctx, "stub: Reverse geocode called",
		"lat", coords.Lat,
		"lon", coords.Lon,
	)
	return &types.Address{Locality: "Paris", Country: "France"}, nil
}

// StubGuideOracle implements GuideOracle with canned documents that satisfy
// the persisted guide schema. Used when config.IsTestMode is true or
// APP_ENV=local.
type StubGuideOracle struct {
	logger *slog.Logger
}

// NewStubGuideOracle creates a new StubGuideOracle.
func NewStubGuideOracle(logger *slog.Logger) *StubGuideOracle {
	return &StubGuideOracle{logger: logger}
}

func (s *StubGuideOracle) GenerateCityGuide(ctx context.Context, cityName string, countryHint string) (json.RawMessage, error) {
	s.logger.InfoContext(ctx, "stub: GenerateCityGuide called",
		"city", cityName,
		"country_hint", countryHint,
	)

	doc := map[string]any{
		"name":                  cityName,
		"interests":             map[string]string{"culture": "Visit the old town."},
		"local_food_tip":        "Try whatever the locals queue for.",
		"full_day":              "Morning museum, afternoon walk, evening riverside dinner.",
		"seasons":               map[string]string{"summer": "Busy but lively."},
		"public_transport_tips": "Buy a day pass.",
		"city_events":           []string{"Annual street festival"},
		"places": []map[string]string{
			{"name": "Main Square", "description": "The city's living room."},
		},
		"hidden_gems": []map[string]string{
			{"name": "Quiet Courtyard", "description": "Rarely found by visitors."},
		},
	}
	return json.Marshal(doc)
}

func (s *StubGuideOracle) GenerateItinerary(ctx context.Context, prompt types.ItineraryPrompt) (json.RawMessage, error) {
	s.logger.InfoContext(ctx, "stub: GenerateItinerary called",
		"city", prompt.City,
		"days", prompt.Days,
	)

	days := make([]map[string]any, 0, prompt.Days)
	for i := 1; i <= prompt.Days; i++ {
		days = append(days, map[string]any{
			"day":       i,
			"morning":   "Coffee and a stroll.",
			"afternoon": "A museum or a park.",
			"evening":   "Dinner in the old town.",
		})
	}

	doc := map[string]any{
		"city":    prompt.City,
		"country": prompt.Country,
		"days":    days,
	}
	return json.Marshal(doc)
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ PaymentProvider = (*StubPaymentProvider)(nil)
var _ EmailProvider = (*StubEmailProvider)(nil)
var _ Geocoder = (*StubGeocoder)(nil)
var _ GuideOracle = (*StubGuideOracle)(nil)
