package billing

import (
	"context"

	"tripwise/internal/store"
	"tripwise/internal/types"
)

// UsageEnforcer checks plan limits before guide generation and settles the
// token cost of a successful generation.
type UsageEnforcer interface {
	// CheckItineraryDays verifies the requested day count against the
	// plan's itinerary allowance. Returns nil if allowed,
	// ErrCodeLimitItineraryDays if exceeded. A plan with a zero allowance
	// never passes.
	CheckItineraryDays(plan types.Plan, days int) error

	// GuideBalance returns the current guide token balance for the account
	// behind the canonical email. Used as a cheap pre-check so a caller at
	// zero balance is refused before the generation oracle is contacted.
	GuideBalance(ctx context.Context, email string) (int, error)

	// SpendGuideToken deducts one guide token under the users lock and
	// returns the remaining balance. A zero balance is refused with
	// ErrCodeLimitGuideTokens; the balance never goes negative, so two
	// racing spends of a single remaining token settle as one success and
	// one refusal.
	SpendGuideToken(ctx context.Context, email string) (int, error)
}

// usageEnforcerImpl implements UsageEnforcer against the users collection.
type usageEnforcerImpl struct {
	store        UserStore
	planRegistry PlanRegistry
}

// NewUsageEnforcer creates a UsageEnforcer backed by the given store and
// plan registry.
func NewUsageEnforcer(store UserStore, planRegistry PlanRegistry) *usageEnforcerImpl {
	return &usageEnforcerImpl{store: store, planRegistry: planRegistry}
}

// Compile-time interface assertion.
var _ UsageEnforcer = (*usageEnforcerImpl)(nil)

// CheckItineraryDays verifies the requested day count against the plan's
// allowance from the registry. Unknown plans carry the free allowance.
func (e *usageEnforcerImpl) CheckItineraryDays(plan types.Plan, days int) error {
	limits := e.planRegistry.GetLimits(plan)
	if days > limits.MaxItineraryDays {
		return types.NewAppErrorWithDetails(
			types.ErrCodeLimitItineraryDays,
			"requested itinerary length exceeds the plan allowance",
			nil,
			map[string]any{
				"requested": days,
				"limit":     limits.MaxItineraryDays,
				"plan":      string(plan),
			},
		)
	}
	return nil
}

// GuideBalance reads the token balance. The mutation function reports the
// record unchanged, so the collection is never rewritten.
func (e *usageEnforcerImpl) GuideBalance(ctx context.Context, email string) (int, error) {
	balance := 0
	err := e.withUser(ctx, email, func(u *types.User) error {
		balance = u.Tokens
		return store.ErrUnchanged
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// SpendGuideToken deducts one token from the account's balance.
func (e *usageEnforcerImpl) SpendGuideToken(ctx context.Context, email string) (int, error) {
	remaining := 0
	err := e.withUser(ctx, email, func(u *types.User) error {
		if u.Tokens <= 0 {
			return types.NewAppErrorWithDetails(
				types.ErrCodeLimitGuideTokens,
				"guide token balance is exhausted",
				nil,
				map[string]any{"balance": 0, "plan": string(u.Plan)},
			)
		}
		u.Tokens--
		remaining = u.Tokens
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// withUser runs fn against the user matching the canonical email inside the
// users collection's read-modify-write cycle. A missing account is
// ErrCodeNotFoundUser.
func (e *usageEnforcerImpl) withUser(ctx context.Context, email string, fn func(u *types.User) error) error {
	canonical := types.CanonicalizeEmail(email)
	var users []types.User
	return e.store.Update(ctx, types.ResourceUsers, &users, func(found bool) error {
		for i := range users {
			if types.CanonicalizeEmail(users[i].Email) == canonical {
				return fn(&users[i])
			}
		}
		return types.NewAppError(types.ErrCodeNotFoundUser,
			"no account matches the authenticated email", nil)
	})
}
