package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"tripwise/internal/external"
	"tripwise/internal/types"
)

// defaultCurrency is what the grant table is denominated in when the
// deployment does not configure a settlement currency.
const defaultCurrency = "EUR"

// UserStore is the slice of the record store the payment service needs: a
// locked read-modify-write cycle over the users collection.
type UserStore interface {
	Update(ctx context.Context, name string, doc any, fn func(found bool) error) error
}

// SessionMinter issues a session token embedding a user's current identity
// and plan. Implemented by the auth session service; a successful capture
// re-mints so the caller's token carries the purchased plan immediately.
type SessionMinter interface {
	IssueToken(user types.User) (string, error)
}

// CaptureOutcome reports what a successful capture credited.
type CaptureOutcome struct {
	Plan         types.Plan `json:"plan"`
	TokensAdded  int        `json:"tokensAdded"`
	TotalTokens  int        `json:"totalTokens"`
	SessionToken string     `json:"sessionToken"`
}

// PaymentService reconciles payment oracle captures into account credit.
// An order moves CREATED -> CAPTURED -> CREDITED, or is REJECTED at the
// first failed gate; rejection never mutates the user catalog.
type PaymentService struct {
	store    UserStore
	provider external.PaymentProvider
	sessions SessionMinter
	// merchantID, when non-empty, must match the payee merchant reported
	// in the capture settlement.
	merchantID string
	// currency denominates orders and must match the settlement exactly.
	currency string
	logger   *slog.Logger
}

// PaymentServiceConfig holds the dependencies for creating a PaymentService.
type PaymentServiceConfig struct {
	Store    UserStore
	Provider external.PaymentProvider
	Sessions SessionMinter

	// MerchantID is the expected payee account. Empty disables the payee
	// gate (sandbox accounts report generated merchant IDs).
	MerchantID string
	// Currency is the ISO 4217 code orders are created in and settlements
	// must report. Empty defaults to EUR, matching the grant table.
	Currency string
	Logger   *slog.Logger
}

// NewPaymentService creates a PaymentService.
// If Logger is nil, slog.Default() is used.
func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	currency := cfg.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return &PaymentService{
		store:      cfg.Store,
		provider:   cfg.Provider,
		sessions:   cfg.Sessions,
		merchantID: cfg.MerchantID,
		currency:   currency,
		logger:     logger,
	}
}

// CreateOrder registers an order for the given amount with the payment
// oracle and returns the oracle's opaque order ID. The amount is rounded to
// two decimals and must appear in the grant table; anything else is refused
// before the oracle is contacted.
func (s *PaymentService) CreateOrder(ctx context.Context, amount float64) (string, error) {
	rounded := Round2(amount)
	if _, ok := GrantForAmount(rounded); !ok {
		return "", types.NewAppError(types.ErrCodeValidationInvalidAmount,
			fmt.Sprintf("amount %.2f is not a purchasable amount", rounded), nil)
	}

	value := strconv.FormatFloat(rounded, 'f', 2, 64)
	orderID, err := s.provider.CreateOrder(ctx, value, s.currency)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "payment order created",
		"order_id", orderID,
		"amount", value,
		"currency", s.currency)
	return orderID, nil
}

// CaptureOrder captures the order at the oracle and credits the purchased
// grant to the account behind the authenticated email. The settlement must
// pass every reconciliation gate: completed status, the configured currency,
// an allow-listed amount, and the expected payee when one is configured. Any
// mismatch is a
// hard rejection with no state change.
//
// On success the grant's tokens are ADDED to the balance while the plan is
// OVERWRITTEN with the granted plan, so a smaller repeat purchase downgrades
// a previously higher plan. The identity is the session's, never the request
// body's. Re-capturing an order is refused by the oracle itself and surfaces
// as ErrCodeConflictOrderCaptured; nothing is ever credited twice.
func (s *PaymentService) CaptureOrder(ctx context.Context, orderID string, authenticatedEmail string) (*CaptureOutcome, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "order ID is required", nil)
	}

	captured, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	grant, err := s.reconcile(ctx, captured)
	if err != nil {
		return nil, err
	}

	email := types.CanonicalizeEmail(authenticatedEmail)
	var (
		users    []types.User
		credited types.User
	)
	err = s.store.Update(ctx, types.ResourceUsers, &users, func(found bool) error {
		for i := range users {
			if types.CanonicalizeEmail(users[i].Email) == email {
				users[i].Tokens += grant.Tokens
				users[i].Plan = grant.Plan
				credited = users[i]
				return nil
			}
		}
		return types.NewAppError(types.ErrCodeNotFoundUser,
			"no account matches the authenticated email", nil)
	})
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.IssueToken(credited)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment captured and credited",
		"order_id", captured.OrderID,
		"plan", credited.Plan,
		"tokens_added", grant.Tokens,
		"total_tokens", credited.Tokens)

	return &CaptureOutcome{
		Plan:         credited.Plan,
		TokensAdded:  grant.Tokens,
		TotalTokens:  credited.Tokens,
		SessionToken: token,
	}, nil
}

// reconcile runs the validation gates over a settlement and returns the
// grant it purchases. Gate failures log the full settlement server-side and
// hand the caller a generic rejection.
func (s *PaymentService) reconcile(ctx context.Context, captured *external.CaptureResult) (Grant, error) {
	reject := func(reason string) (Grant, error) {
		s.logger.WarnContext(ctx, "payment capture rejected",
			"order_id", captured.OrderID,
			"status", captured.Status,
			"value", captured.Value,
			"currency", captured.Currency,
			"reason", reason)
		return Grant{}, types.NewAppError(types.ErrCodePaymentRejected,
			"payment could not be verified", nil)
	}

	// The oracle reports "COMPLETED"; legacy sandboxes report "completed".
	if !strings.EqualFold(captured.Status, "COMPLETED") {
		return reject("status not completed")
	}
	if captured.Currency != s.currency {
		return reject("unexpected currency")
	}
	amount, err := strconv.ParseFloat(captured.Value, 64)
	if err != nil {
		return reject("unparseable amount")
	}
	grant, ok := GrantForAmount(amount)
	if !ok {
		return reject("amount not purchasable")
	}
	if s.merchantID != "" && captured.PayeeMerchantID != s.merchantID {
		return reject("payee mismatch")
	}
	return grant, nil
}
