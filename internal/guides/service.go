// Package guides implements the city-guide catalog for the TripWise
// platform: lazy guide generation against the country records, personalized
// itinerary generation, and the catalog listings both are read from.
package guides

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"tripwise/internal/billing"
	"tripwise/internal/external"
	"tripwise/internal/store"
	"tripwise/internal/types"
)

// CountryStore is the slice of the record store the guides service uses.
type CountryStore interface {
	Read(ctx context.Context, name string, out any) (found bool, err error)
	Update(ctx context.Context, name string, doc any, fn func(found bool) error) error
	List(ctx context.Context, dir string) ([]string, error)
}

// ResolveResult is the outcome of a city lookup or generation. Created
// reports whether this call wrote the guide; a concurrent duplicate request
// observes Created=false with the same stored record.
type ResolveResult struct {
	Created bool       `json:"created"`
	Country string     `json:"country"`
	City    types.City `json:"city"`
}

// ItineraryInput carries a personalized itinerary request.
type ItineraryInput struct {
	City      string
	Country   string
	Days      int
	Interests []string
}

// ItineraryResult pairs the generated document with the caller's remaining
// guide token balance after the cost of this generation settled.
type ItineraryResult struct {
	Itinerary  json.RawMessage `json:"itinerary"`
	TokensLeft int             `json:"tokensLeft"`
}

// Service coordinates the store, the generation oracle, and usage
// enforcement.
type Service struct {
	store     CountryStore
	oracle    external.GuideOracle
	usage     billing.UsageEnforcer
	maxCities int
	logger    *slog.Logger

	// flight collapses concurrent generations of the same city into one
	// oracle call and one write.
	flight singleflight.Group
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Store  CountryStore
	Oracle external.GuideOracle
	Usage  billing.UsageEnforcer
	Logger *slog.Logger

	// MaxCities caps how many city guides one country record may accumulate
	// through lazy generation. Zero means no cap. Stored guides stay readable
	// at the cap; only new generations are refused.
	MaxCities int
}

// NewService creates a guides Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     cfg.Store,
		oracle:    cfg.Oracle,
		usage:     cfg.Usage,
		maxCities: cfg.MaxCities,
		logger:    logger,
	}
}

// Lookup returns the stored guide for a city without ever contacting the
// oracle. The second return value reports whether the guide exists; callers
// gate generation entitlements on it.
func (s *Service) Lookup(ctx context.Context, countryResource, cityName string) (*ResolveResult, bool, error) {
	trimmed := strings.TrimSpace(cityName)
	if trimmed == "" {
		return nil, false, types.NewAppError(types.ErrCodeValidationMissingField,
			"city name is required", nil)
	}

	var country types.Country
	if _, err := s.store.Read(ctx, countryResource, &country); err != nil {
		return nil, false, err
	}

	city, ok := findCity(country.Cities, types.FoldName(trimmed))
	if !ok {
		return nil, false, nil
	}
	return &ResolveResult{Country: country.Name, City: city}, true, nil
}

// ResolveOrGenerate returns the guide for a city, generating and persisting
// it on first request:
//  1. Reject an empty city name.
//  2. Re-check the country record for a stored guide (idempotent fast path).
//  3. Ask the generation oracle for the guide, steering it with the country
//     record's own name over the caller's hint.
//  4. Validate the oracle output; a bad document writes nothing.
//  5. If the oracle renamed the city, force the name back to the requested
//     one, since the requested name is the record's identity.
//  6. Insert, restore the folded-name ordering, and persist the whole
//     country record.
//
// Concurrent requests for the same city share one generation: calls collapse
// on the country resource plus the folded city name, and the insertion
// re-checks under the record lock, so a duplicate arriving after the flight
// completed still resolves to the stored guide instead of inserting twice.
// countryHint also names the country record when it does not exist yet.
func (s *Service) ResolveOrGenerate(ctx context.Context, countryResource, cityName, countryHint string) (*ResolveResult, error) {
	trimmed := strings.TrimSpace(cityName)
	if trimmed == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"city name is required", nil)
	}
	folded := types.FoldName(trimmed)

	// The flight leader's context would otherwise cancel for every collapsed
	// caller when that one client disconnects. Detach cancellation but keep
	// request-scoped values for logging.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do(countryResource+"|"+folded, func() (any, error) {
		return s.resolveOrGenerate(flightCtx, countryResource, trimmed, folded, strings.TrimSpace(countryHint))
	})
	if err != nil {
		return nil, err
	}
	return v.(*ResolveResult), nil
}

func (s *Service) resolveOrGenerate(ctx context.Context, countryResource, cityName, folded, countryHint string) (*ResolveResult, error) {
	var country types.Country
	found, err := s.store.Read(ctx, countryResource, &country)
	if err != nil {
		return nil, err
	}
	if !found {
		country = types.Country{Name: countryHint}
	}

	if city, ok := findCity(country.Cities, folded); ok {
		return &ResolveResult{Country: country.Name, City: city}, nil
	}
	// Refuse before the oracle spends anything; the write path re-checks
	// under the record lock.
	if s.atCityCap(country.Cities) {
		return nil, s.cityCapError(country.Name)
	}

	raw, err := s.oracle.GenerateCityGuide(ctx, cityName, country.Name)
	if err != nil {
		return nil, err
	}

	city, err := ParseCityDocument(raw)
	if err != nil {
		return nil, err
	}
	if types.FoldName(city.Name) != folded {
		s.logger.WarnContext(ctx, "generation oracle renamed the city, keeping the requested name",
			"requested", cityName,
			"generated", city.Name,
		)
		city.Name = cityName
	}

	recordName := country.Name
	result := &ResolveResult{Created: true, City: city}

	var current types.Country
	err = s.store.Update(ctx, countryResource, &current, func(found bool) error {
		if !found {
			current = types.Country{Name: recordName}
		}
		// The record may have changed since the read above; a racing writer
		// that inserted this city first wins.
		if existing, ok := findCity(current.Cities, folded); ok {
			result.Created = false
			result.City = existing
			result.Country = current.Name
			return store.ErrUnchanged
		}
		if s.atCityCap(current.Cities) {
			return s.cityCapError(current.Name)
		}
		current.Cities = append(current.Cities, city)
		sortCities(current.Cities)
		result.Country = current.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.logger.InfoContext(ctx, "city guide generated",
			"country", result.Country,
			"city", city.Name,
		)
	}
	return result, nil
}

// GenerateItinerary produces a personalized day-by-day itinerary:
//  1. Validate the request and the day count against the plan allowance.
//  2. Refuse a zero token balance before the oracle is contacted.
//  3. Generate and validate the document.
//  4. Settle the one-token cost under the users lock. Two racing spends of a
//     single remaining token settle as one success and one refusal.
func (s *Service) GenerateItinerary(ctx context.Context, actor types.Actor, in ItineraryInput) (*ItineraryResult, error) {
	city := strings.TrimSpace(in.City)
	if city == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"city is required", nil)
	}
	if in.Days < 1 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"an itinerary needs at least one day", nil)
	}
	if err := s.usage.CheckItineraryDays(actor.Plan, in.Days); err != nil {
		return nil, err
	}

	balance, err := s.usage.GuideBalance(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	if balance <= 0 {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeLimitGuideTokens,
			"guide token balance is exhausted",
			nil,
			map[string]any{"balance": 0, "plan": string(actor.Plan)},
		)
	}

	raw, err := s.oracle.GenerateItinerary(ctx, types.ItineraryPrompt{
		City:      city,
		Country:   strings.TrimSpace(in.Country),
		Days:      in.Days,
		Interests: in.Interests,
	})
	if err != nil {
		return nil, err
	}
	doc, err := ParseItineraryDocument(raw)
	if err != nil {
		return nil, err
	}

	remaining, err := s.usage.SpendGuideToken(ctx, actor.Email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "itinerary generated",
		"city", city,
		"days", in.Days,
		"tokens_left", remaining,
	)
	return &ItineraryResult{Itinerary: doc, TokensLeft: remaining}, nil
}

// CountryNames lists the names of all stored country records, sorted by
// folded name. Records deleted between the listing and the read are skipped.
func (s *Service) CountryNames(ctx context.Context) ([]string, error) {
	resources, err := s.store.List(ctx, types.ResourceCountriesDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resources))
	for _, resource := range resources {
		var country types.Country
		found, err := s.store.Read(ctx, resource, &country)
		if err != nil {
			return nil, err
		}
		if !found || country.Name == "" {
			continue
		}
		names = append(names, country.Name)
	}

	sort.Slice(names, func(i, j int) bool {
		return types.FoldName(names[i]) < types.FoldName(names[j])
	})
	return names, nil
}

// CityNames lists the city names in a country record, in stored (folded
// ascending) order.
func (s *Service) CityNames(ctx context.Context, countryResource string) ([]string, error) {
	var country types.Country
	found, err := s.store.Read(ctx, countryResource, &country)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewAppError(types.ErrCodeNotFoundCountry,
			"country is not in the catalog", nil)
	}

	names := make([]string, 0, len(country.Cities))
	for _, city := range country.Cities {
		names = append(names, city.Name)
	}
	return names, nil
}

// atCityCap reports whether a country record is full. A zero cap disables
// the check.
func (s *Service) atCityCap(cities []types.City) bool {
	return s.maxCities > 0 && len(cities) >= s.maxCities
}

func (s *Service) cityCapError(country string) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeLimitCountryCities,
		"this country's guide catalog is full",
		nil,
		map[string]any{"country": country, "max_cities": s.maxCities},
	)
}

// findCity scans for the city whose folded name matches.
func findCity(cities []types.City, folded string) (types.City, bool) {
	for i := range cities {
		if types.FoldName(cities[i].Name) == folded {
			return cities[i], true
		}
	}
	return types.City{}, false
}

// sortCities restores the catalog ordering: ascending by folded name.
func sortCities(cities []types.City) {
	sort.Slice(cities, func(i, j int) bool {
		return types.FoldName(cities[i].Name) < types.FoldName(cities[j].Name)
	})
}
