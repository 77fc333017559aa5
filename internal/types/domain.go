package types

import (
	"encoding/json"
	"time"
)

// Plan identifies a subscription tier. Tiers form a total order
// (free < basic < premium < premium_plus); the ordering itself lives in the
// billing package, this type only names the tiers.
type Plan string

const (
	PlanFree        Plan = "free"
	PlanBasic       Plan = "basic"
	PlanPremium     Plan = "premium"
	PlanPremiumPlus Plan = "premium_plus"
)

// KnownPlans lists every recognized plan identifier. Unknown identifiers are
// tolerated everywhere (they rank as free) but are rejected at signup.
var KnownPlans = []Plan{PlanFree, PlanBasic, PlanPremium, PlanPremiumPlus}

// IsKnownPlan reports whether p names a recognized tier.
func IsKnownPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanBasic, PlanPremium, PlanPremiumPlus:
		return true
	}
	return false
}

// PlanLimits captures the per-plan entitlements enforced by the guides
// pipeline. MaxItineraryDays of 0 means the plan cannot request
// personalized itineraries at all.
type PlanLimits struct {
	MaxItineraryDays int
}

// Store resource names for the shared catalog collections. Country records
// live under ResourceCountriesDir as one document per country.
const (
	ResourceUsers          = "users.json"
	ResourcePendingSignups = "pending_signups.json"
	ResourceCountriesDir   = "countries"
)

// User is a confirmed account. The JSON field names mirror the persisted
// catalog files exactly; changing them breaks existing data roots.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	Plan         Plan   `json:"plan"`
	Tokens       int    `json:"tokens"`
}

// PendingSignup is an account awaiting email confirmation. It is created by
// the signup request, consumed exactly once by confirmation, and turned into
// a User. Token is a 256-bit crypto-random hex value embedded in the
// confirmation link; CreatedAt drives the expiry sweeper.
type PendingSignup struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Plan         Plan      `json:"plan"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"createdAt"`
}

// City is one guide record inside a Country document. Only Name is
// interpreted by the platform; every other field is generator output that
// must round-trip byte-faithfully, so they stay raw.
type City struct {
	Name                string          `json:"name"`
	Interests           json.RawMessage `json:"interests,omitempty"`
	LocalFoodTip        json.RawMessage `json:"local_food_tip,omitempty"`
	FullDay             json.RawMessage `json:"full_day,omitempty"`
	Seasons             json.RawMessage `json:"seasons,omitempty"`
	PublicTransportTips json.RawMessage `json:"public_transport_tips,omitempty"`
	CityEvents          json.RawMessage `json:"city_events,omitempty"`
	Places              json.RawMessage `json:"places,omitempty"`
	HiddenGems          json.RawMessage `json:"hidden_gems,omitempty"`
}

// Country is one persisted country document. Cities is kept sorted ascending
// by case-insensitive, diacritic-folded name; no two entries share a folded
// name. The guides service enforces both invariants on every insertion.
type Country struct {
	Name   string `json:"name"`
	Cities []City `json:"cities"`
}

// Coordinates is a geographic point returned by the forward geocoder.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Address carries the components of a reverse-geocode result. Locality is
// resolved through the fallback chain city -> town -> village ->
// municipality -> county; Country is the English country name.
type Address struct {
	Locality string `json:"locality"`
	Country  string `json:"country"`
}

// ItineraryPrompt carries everything the generation oracle needs to produce
// a day-by-day itinerary. Days is already clamped to the caller's plan limit
// before the prompt reaches the oracle.
type ItineraryPrompt struct {
	City      string
	Country   string
	Days      int
	Interests []string
}

// EmailAddress pairs an address with an optional display name for outbound mail.
type EmailAddress struct {
	Address string
	Name    string
}

// SendInput is the provider-agnostic outbound mail request. Bodies are
// pre-rendered; the provider transmits them as-is.
type SendInput struct {
	To          string
	From        EmailAddress
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
}
