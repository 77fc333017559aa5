package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/billing"
	"tripwise/internal/core"
	"tripwise/internal/geo"
	"tripwise/internal/guides"
	"tripwise/internal/types"
)

// generationPlans lists the tiers entitled to trigger lazy guide generation
// and personalized itineraries. Stored guides remain readable by every tier.
var generationPlans = []types.Plan{types.PlanBasic, types.PlanPremium, types.PlanPremiumPlus}

// --- DTOs ---

// ItineraryRequest is the request body for POST /guides.
type ItineraryRequest struct {
	City      string   `json:"city" validate:"required,max=100"`
	Country   string   `json:"country" validate:"required,max=100"`
	Days      int      `json:"days" validate:"required,gte=1"`
	Interests []string `json:"interests" validate:"omitempty,dive,max=50"`
}

// CityGuideResponse wraps a resolved city guide with its country context.
type CityGuideResponse struct {
	Country string     `json:"country"`
	City    types.City `json:"city"`
}

// --- Service Interfaces ---

// GuideService exposes the guide catalog and generation pipeline.
type GuideService interface {
	// Lookup returns the stored guide without contacting the oracle.
	Lookup(ctx context.Context, countryResource, cityName string) (*guides.ResolveResult, bool, error)

	// ResolveOrGenerate returns the stored guide or generates and persists
	// one, collapsing concurrent duplicates.
	ResolveOrGenerate(ctx context.Context, countryResource, cityName, countryHint string) (*guides.ResolveResult, error)

	// GenerateItinerary produces a personalized itinerary, spending one
	// guide token.
	GenerateItinerary(ctx context.Context, actor types.Actor, in guides.ItineraryInput) (*guides.ItineraryResult, error)

	// CountryNames lists the display names of all stored countries.
	CountryNames(ctx context.Context) ([]string, error)

	// CityNames lists the display names of a country's stored cities.
	CityNames(ctx context.Context, countryResource string) ([]string, error)

	// SampleItinerary returns the canned itinerary served to free accounts.
	SampleItinerary() json.RawMessage
}

// CountryLocator resolves free-text country and city input to catalog
// resources.
type CountryLocator interface {
	// FindCountryResource matches free text against the stored catalog.
	FindCountryResource(ctx context.Context, freeText string) (resource string, name string, ok bool, err error)

	// CountryForCity geocodes a city to its English country name.
	CountryForCity(ctx context.Context, city string) (string, error)
}

// PlanGuard builds middleware admitting only the listed plans. The server
// chassis provides the canonical implementation; tests may leave it nil to
// bypass gating.
type PlanGuard func(plans ...types.Plan) func(http.Handler) http.Handler

// --- Handler ---

// GuideHandler maps HTTP requests to the guide catalog.
type GuideHandler struct {
	service   GuideService
	locator   CountryLocator
	guard     PlanGuard
	logger    *slog.Logger
	validator *core.Validator
}

// NewGuideHandler creates a new GuideHandler with the provided dependencies.
func NewGuideHandler(svc GuideService, locator CountryLocator, guard PlanGuard, l *slog.Logger, v *core.Validator) *GuideHandler {
	if l == nil {
		l = slog.Default()
	}
	return &GuideHandler{
		service:   svc,
		locator:   locator,
		guard:     guard,
		logger:    l,
		validator: v,
	}
}

// RegisterRoutes mounts guide catalog routes onto the provided router.
//
//   - GET  /countries                  - List stored countries
//   - GET  /countries/{country}/cities - List a country's stored cities
//   - GET  /cities/{city}              - Resolve (and lazily generate) a city guide
//   - POST /guides                     - Personalized itinerary ({basic and up})
//   - GET  /guides/sample              - Canned itinerary (free accounts only)
func (h *GuideHandler) RegisterRoutes(r chi.Router) {
	r.Get("/countries", h.HandleListCountries)
	r.Get("/countries/{country}/cities", h.HandleListCities)
	r.Get("/cities/{city}", h.HandleCityGuide)

	r.Route("/guides", func(r chi.Router) {
		r.With(h.guardFor(generationPlans...)).Post("/", h.HandleItinerary)
		r.With(h.guardFor(types.PlanFree)).Get("/sample", h.HandleSample)
	})
}

// guardFor returns the injected plan guard, or a no-op when none is set.
func (h *GuideHandler) guardFor(plans ...types.Plan) func(http.Handler) http.Handler {
	if h.guard == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.guard(plans...)
}

// --- Handler Methods ---

// HandleListCountries handles GET /v1/countries.
func (h *GuideHandler) HandleListCountries(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.CountryNames(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: names})
}

// HandleListCities handles GET /v1/countries/{country}/cities.
//
// The path segment is free text: it is matched against the stored catalog
// (aliases, case and diacritic folding included) before listing.
func (h *GuideHandler) HandleListCities(w http.ResponseWriter, r *http.Request) {
	countryParam := chi.URLParam(r, "country")

	resource, _, ok, err := h.locator.FindCountryResource(r.Context(), countryParam)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundCountry,
			"country is not in the catalog",
			nil,
		))
		return
	}

	names, err := h.service.CityNames(r.Context(), resource)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: names})
}

// HandleCityGuide handles GET /v1/cities/{city}?country=...
//
// Resolution order:
//  1. Determine the country: the country query parameter when present,
//     otherwise reverse-resolve it by geocoding the city.
//  2. Return the stored guide when it exists (any plan).
//  3. Otherwise gate on the generation entitlement: free accounts get 403
//     before the oracle is ever contacted.
//  4. Generate, persist and return the guide: 201 when this request created
//     it, 200 when a concurrent duplicate won the race.
func (h *GuideHandler) HandleCityGuide(w http.ResponseWriter, r *http.Request) {
	cityParam := chi.URLParam(r, "city")
	countryParam := r.URL.Query().Get("country")

	resource, countryHint, err := h.resolveCountry(r.Context(), cityParam, countryParam)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, found, err := h.service.Lookup(r.Context(), resource, cityParam)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if found {
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CityGuideResponse{
			Country: result.Country,
			City:    result.City,
		}})
		return
	}

	// The guide does not exist yet. Generation is a paid entitlement,
	// checked before any oracle traffic is spent.
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}
	if !billing.PlanAllows(actor.Plan, generationPlans) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodePermissionPlan,
			"guide generation requires a paid plan",
			nil,
		))
		return
	}

	result, err = h.service.ResolveOrGenerate(r.Context(), resource, cityParam, countryHint)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	core.JSON(w, r, status, core.APIResponse{Data: CityGuideResponse{
		Country: result.Country,
		City:    result.City,
	}})
}

// resolveCountry determines the country resource for a city request. When
// the client names a country it is matched against the catalog first and
// slugged as-is when unknown (the country file is created on generation).
// Without a country the city is geocoded to find one.
func (h *GuideHandler) resolveCountry(ctx context.Context, city, country string) (resource, hint string, err error) {
	if country != "" {
		res, name, ok, err := h.locator.FindCountryResource(ctx, country)
		if err != nil {
			return "", "", err
		}
		if ok {
			return res, name, nil
		}
		return geo.CountryResource(country), country, nil
	}

	name, err := h.locator.CountryForCity(ctx, city)
	if err != nil {
		return "", "", err
	}
	res, matched, ok, lookupErr := h.locator.FindCountryResource(ctx, name)
	if lookupErr != nil {
		return "", "", lookupErr
	}
	if ok {
		return res, matched, nil
	}
	return geo.CountryResource(name), name, nil
}

// HandleItinerary handles POST /v1/guides.
//
// The route guard has already admitted only paid plans; day limits and the
// token charge are enforced by the service layer.
func (h *GuideHandler) HandleItinerary(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	var req ItineraryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.GenerateItinerary(r.Context(), actor, guides.ItineraryInput{
		City:      req.City,
		Country:   req.Country,
		Days:      req.Days,
		Interests: req.Interests,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// HandleSample handles GET /v1/guides/sample.
//
// Free accounts only: paid plans are pointed at the personalized endpoint
// by the route guard's 403.
func (h *GuideHandler) HandleSample(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.service.SampleItinerary()})
}
