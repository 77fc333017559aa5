// Package billing provides plan entitlement and payment reconciliation
// domain logic.
package billing

import (
	"math"

	"tripwise/internal/types"
)

// planRank orders the tiers: free < basic < premium < premium_plus.
// Unknown plan identifiers rank as free.
var planRank = map[types.Plan]int{
	types.PlanFree:        0,
	types.PlanBasic:       1,
	types.PlanPremium:     2,
	types.PlanPremiumPlus: 3,
}

// rankOf returns the tier rank of p, treating unknown identifiers as free.
func rankOf(p types.Plan) int {
	if r, ok := planRank[p]; ok {
		return r
	}
	return planRank[types.PlanFree]
}

// PlanAllows reports whether a caller on the given plan may perform an
// action open to the required set of plans.
//
// The required set is read against the tier order: the caller passes when
// its rank is at least the minimum rank in the set, so every tier at or
// above the cheapest qualifying tier is admitted. A set whose members all
// rank as free marks a free-tier-only action; then only a free-ranked
// caller passes. An empty set admits nobody.
func PlanAllows(plan types.Plan, required []types.Plan) bool {
	if len(required) == 0 {
		return false
	}

	freeRank := planRank[types.PlanFree]
	minRank := rankOf(required[0])
	allFree := true
	for _, r := range required {
		rank := rankOf(r)
		if rank < minRank {
			minRank = rank
		}
		if rank != freeRank {
			allFree = false
		}
	}

	callerRank := rankOf(plan)
	if allFree {
		return callerRank == freeRank
	}
	return callerRank >= minRank
}

// PlanRegistry defines the authoritative limits for each plan.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// GetLimits returns the feature limits for the given plan. For unknown
	// plans, returns the most restrictive (free) limits to fail safely.
	GetLimits(plan types.Plan) types.PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory
// map. It implements PlanRegistry and is the standard implementation for
// production use.
type staticPlanRegistry struct {
	limits map[types.Plan]types.PlanLimits
}

// planDefaults defines the hardcoded per-plan limits:
//
//	| Plan         | Itinerary days |
//	|--------------|----------------|
//	| free         | 0              |
//	| basic        | 2              |
//	| premium      | 5              |
//	| premium_plus | 14             |
//
// Free uses 0 to mean "no personalized itineraries" -- enforcement code must
// treat 0 as a closed feature, not as unlimited.
var planDefaults = map[types.Plan]types.PlanLimits{
	types.PlanFree:        {MaxItineraryDays: 0},
	types.PlanBasic:       {MaxItineraryDays: 2},
	types.PlanPremium:     {MaxItineraryDays: 5},
	types.PlanPremiumPlus: {MaxItineraryDays: 14},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// limits. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.Plan]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

// GetLimits returns the feature limits for the given plan.
// If the plan is unknown, it returns the free limits as a safe default.
func (r *staticPlanRegistry) GetLimits(plan types.Plan) types.PlanLimits {
	if limits, ok := r.limits[plan]; ok {
		return limits
	}
	return freeLimits
}

// Grant is the entitlement credited by one successful payment capture.
type Grant struct {
	Tokens int
	Plan   types.Plan
}

// amountGrants is the fixed allow-list of purchase amounts, keyed by euro
// cents after rounding:
//
//	| amount (EUR) | tokens | plan         |
//	|--------------|--------|--------------|
//	| 5            | 7      | basic        |
//	| 10           | 20     | premium      |
//	| 20           | 50     | premium_plus |
//
// Any amount absent from the table is rejected outright; there is no
// proration and no partial credit.
var amountGrants = map[int64]Grant{
	500:  {Tokens: 7, Plan: types.PlanBasic},
	1000: {Tokens: 20, Plan: types.PlanPremium},
	2000: {Tokens: 50, Plan: types.PlanPremiumPlus},
}

// Round2 rounds a monetary amount to two decimal places, the resolution the
// payment oracle settles in. Every grant-table comparison happens after this
// rounding.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GrantForAmount looks up the grant purchased by an EUR amount. The amount
// is rounded to two decimals before the lookup.
func GrantForAmount(amount float64) (Grant, bool) {
	g, ok := amountGrants[int64(math.Round(amount*100))]
	return g, ok
}
