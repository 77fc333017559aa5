package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripwise/internal/external"
	"tripwise/internal/store"
	"tripwise/internal/types"
)

// DefaultPendingTTL is how long an unconfirmed signup stays claimable before
// the expiry sweeper drops it.
const DefaultPendingTTL = 48 * time.Hour

// CatalogStore is the slice of the record store the auth service needs:
// point reads plus locked read-modify-write cycles over the user and
// pending-signup collections.
type CatalogStore interface {
	Read(ctx context.Context, name string, out any) (bool, error)
	Update(ctx context.Context, name string, doc any, fn func(found bool) error) error
}

// SignupInput carries a signup request. Password arrives raw and never leaves
// this package unhashed.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Plan     types.Plan
}

// SignupResult reports the pending signup awaiting email confirmation.
type SignupResult struct {
	PendingID string `json:"pendingId"`
	Email     string `json:"email"`
}

// AuthService implements signup, confirmation, login and identity lookup
// over the flat-file catalog.
type AuthService struct {
	store    CatalogStore
	mail     external.EmailProvider
	sessions *SessionService
	hasher   PasswordHasher
	tokenGen TokenGenerator
	clock    types.Clock
	logger   *slog.Logger

	confirmBaseURL string
	from           types.EmailAddress
}

// AuthServiceConfig holds the dependencies for creating an AuthService.
type AuthServiceConfig struct {
	Store    CatalogStore
	Mail     external.EmailProvider
	Sessions *SessionService

	// Hasher defaults to the production bcrypt hasher.
	Hasher PasswordHasher
	// TokenGen defaults to CryptoTokenGenerator.
	TokenGen TokenGenerator
	// Clock defaults to RealClock.
	Clock types.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// ConfirmBaseURL is the public confirmation endpoint; the signup token is
	// appended as a query parameter when building the emailed link.
	ConfirmBaseURL string
	// From is the sender identity on confirmation mail.
	From types.EmailAddress
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	tokenGen := cfg.TokenGen
	if tokenGen == nil {
		tokenGen = &CryptoTokenGenerator{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:          cfg.Store,
		mail:           cfg.Mail,
		sessions:       cfg.Sessions,
		hasher:         hasher,
		tokenGen:       tokenGen,
		clock:          clock,
		logger:         logger,
		confirmBaseURL: cfg.ConfirmBaseURL,
		from:           cfg.From,
	}
}

// Signup registers a pending account and mails its confirmation link.
//
// Flow:
//  1. Validate input; default the plan to free.
//  2. Hash the password and generate the confirmation token up front.
//  3. Under the pending-signups lock, check name and email uniqueness against
//     the union of confirmed users and pending signups, then append.
//  4. Send the confirmation mail. If the provider fails, remove the pending
//     entry again so the name and email are immediately reclaimable.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	name := strings.TrimSpace(input.Name)
	email := types.CanonicalizeEmail(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"name, email and password are required", nil)
	}
	plan := input.Plan
	if plan == "" {
		plan = types.PlanFree
	}
	if !types.IsKnownPlan(plan) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("unknown plan %q", plan), nil)
	}

	passwordHash, err := s.hasher.GenerateFromPassword(input.Password)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}
	token, err := s.tokenGen.GenerateConfirmationToken()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate confirmation token", err)
	}

	record := types.PendingSignup{
		ID:           "pnd_" + uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Plan:         plan,
		Token:        token,
		CreatedAt:    s.clock.Now(),
	}

	foldedName := types.FoldName(name)
	var pending []types.PendingSignup
	err = s.store.Update(ctx, types.ResourcePendingSignups, &pending, func(found bool) error {
		// Read the confirmed users under the pending-signups lock. Confirm
		// promotes users-first, so a signup that lands mid-confirmation sees
		// the claim in at least one of the two collections.
		var users []types.User
		if _, err := s.store.Read(ctx, types.ResourceUsers, &users); err != nil {
			return err
		}
		for i := range users {
			if err := claimConflict(users[i].Email, users[i].Name, email, foldedName); err != nil {
				return err
			}
		}
		for i := range pending {
			if err := claimConflict(pending[i].Email, pending[i].Name, email, foldedName); err != nil {
				return err
			}
		}
		pending = append(pending, record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Mail is sent outside the lock; a slow provider must not stall other
	// signups.
	if err := s.sendConfirmationMail(ctx, record); err != nil {
		s.rollbackPending(ctx, record.ID)
		return nil, err
	}

	s.logger.InfoContext(ctx, "signup pending confirmation",
		"pending_id", record.ID,
		"plan", plan,
	)

	return &SignupResult{PendingID: record.ID, Email: email}, nil
}

// claimConflict reports whether an existing record already holds the
// canonical email or folded display name a signup is claiming.
func claimConflict(heldEmail, heldName, email, foldedName string) error {
	if types.CanonicalizeEmail(heldEmail) == email {
		return types.NewAppError(types.ErrCodeConflictEmail,
			"an account with this email already exists", nil)
	}
	if types.FoldName(heldName) == foldedName {
		return types.NewAppError(types.ErrCodeConflictName,
			"an account with this name already exists", nil)
	}
	return nil
}

// Confirm consumes a confirmation token and promotes its pending signup to a
// confirmed user. Tokens are single-use: the pending entry is removed once
// the user record exists.
func (s *AuthService) Confirm(ctx context.Context, token string) (*types.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"confirmation token is required", nil)
	}

	var pending []types.PendingSignup
	if _, err := s.store.Read(ctx, types.ResourcePendingSignups, &pending); err != nil {
		return nil, err
	}
	match, ok := findPendingByToken(pending, token)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSignupToken,
			"confirmation token is unknown or already used", nil)
	}

	email := types.CanonicalizeEmail(match.Email)
	promoted := types.User{
		ID:           "usr_" + uuid.New().String(),
		Name:         match.Name,
		Email:        email,
		PasswordHash: match.PasswordHash,
		Plan:         match.Plan,
		Tokens:       0,
	}

	// Promote into users first, then drop the pending entry. If the process
	// dies between the two writes, the leftover pending entry resolves on the
	// next confirm attempt through the duplicate branch below.
	var confirmed types.User
	var users []types.User
	err := s.store.Update(ctx, types.ResourceUsers, &users, func(found bool) error {
		for i := range users {
			if types.CanonicalizeEmail(users[i].Email) == email {
				// Lost a race against a concurrent confirmation of the same
				// token. Keep the existing account.
				confirmed = users[i]
				return store.ErrUnchanged
			}
		}
		users = append(users, promoted)
		confirmed = promoted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.removePendingByToken(ctx, token)

	s.logger.InfoContext(ctx, "signup confirmed",
		"user_id", confirmed.ID,
		"plan", confirmed.Plan,
	)

	return &confirmed, nil
}

// Login verifies credentials and mints a session token.
//
// Enumeration protection: unknown email and wrong password return the same
// error, and both paths run a bcrypt compare so they cost the same.
func (s *AuthService) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	canonical := types.CanonicalizeEmail(email)
	if canonical == "" || password == "" {
		return nil, "", invalidCredentials()
	}

	var users []types.User
	if _, err := s.store.Read(ctx, types.ResourceUsers, &users); err != nil {
		return nil, "", err
	}

	var user *types.User
	for i := range users {
		if types.CanonicalizeEmail(users[i].Email) == canonical {
			user = &users[i]
			break
		}
	}
	if user == nil {
		_ = s.hasher.CompareHashAndPassword(decoyPasswordHash, password)
		return nil, "", invalidCredentials()
	}
	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		return nil, "", invalidCredentials()
	}

	sessionToken, err := s.sessions.IssueToken(*user)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)

	return user, sessionToken, nil
}

// Me returns the current record for the authenticated email. Plan and token
// balance come from the file, not the session claims, so a capture on another
// session is visible immediately.
func (s *AuthService) Me(ctx context.Context, email string) (*types.User, error) {
	canonical := types.CanonicalizeEmail(email)
	var users []types.User
	if _, err := s.store.Read(ctx, types.ResourceUsers, &users); err != nil {
		return nil, err
	}
	for i := range users {
		if types.CanonicalizeEmail(users[i].Email) == canonical {
			return &users[i], nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser,
		"no account matches the authenticated email", nil)
}

// PurgeExpiredPending removes pending signups older than ttl and reports how
// many were dropped. The expiry sweeper calls this on a schedule; tokens from
// purged signups stop confirming and their names and emails free up.
func (s *AuthService) PurgeExpiredPending(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	cutoff := s.clock.Now().Add(-ttl)

	removed := 0
	var pending []types.PendingSignup
	err := s.store.Update(ctx, types.ResourcePendingSignups, &pending, func(found bool) error {
		kept := pending[:0]
		for i := range pending {
			if pending[i].CreatedAt.After(cutoff) {
				kept = append(kept, pending[i])
			} else {
				removed++
			}
		}
		if removed == 0 {
			return store.ErrUnchanged
		}
		pending = kept
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "purged expired pending signups", "count", removed)
	}
	return removed, nil
}

const (
	confirmSubject  = "Confirm your TripWise account"
	confirmBodyHTML = `<p>Hi %s,</p><p>Welcome to TripWise! Confirm your account by clicking <a href="%s">this link</a>. The link is valid for 48 hours.</p>`
	confirmBodyText = "Hi %s,\n\nWelcome to TripWise! Confirm your account by opening:\n\n%s\n\nThe link is valid for 48 hours.\n"
)

func (s *AuthService) sendConfirmationMail(ctx context.Context, record types.PendingSignup) error {
	link := s.confirmBaseURL + "?token=" + url.QueryEscape(record.Token)
	input := types.SendInput{
		To:          record.Email,
		From:        s.from,
		Subject:     confirmSubject,
		BodyHTML:    fmt.Sprintf(confirmBodyHTML, template.HTMLEscapeString(record.Name), link),
		BodyText:    fmt.Sprintf(confirmBodyText, record.Name, link),
		ReferenceID: record.ID,
	}
	if _, err := s.mail.Send(ctx, input); err != nil {
		return err
	}
	return nil
}

// rollbackPending removes a pending signup whose confirmation mail never went
// out. Runs on a detached context: the request context may already be dead,
// and an orphaned entry would squat on the name and email until the sweeper.
func (s *AuthService) rollbackPending(ctx context.Context, pendingID string) {
	cleanupCtx := context.WithoutCancel(ctx)
	var pending []types.PendingSignup
	err := s.store.Update(cleanupCtx, types.ResourcePendingSignups, &pending, func(found bool) error {
		for i := range pending {
			if pending[i].ID == pendingID {
				pending = append(pending[:i], pending[i+1:]...)
				return nil
			}
		}
		return store.ErrUnchanged
	})
	if err != nil {
		s.logger.ErrorContext(cleanupCtx, "failed to roll back pending signup",
			"pending_id", pendingID,
			"error", err,
		)
	}
}

// removePendingByToken drops a consumed pending entry. Failure is logged, not
// returned: the user record already exists, and a leftover entry is resolved
// by the duplicate branch in Confirm or by the expiry sweeper.
func (s *AuthService) removePendingByToken(ctx context.Context, token string) {
	var pending []types.PendingSignup
	err := s.store.Update(ctx, types.ResourcePendingSignups, &pending, func(found bool) error {
		for i := range pending {
			if tokenEqual(pending[i].Token, token) {
				pending = append(pending[:i], pending[i+1:]...)
				return nil
			}
		}
		return store.ErrUnchanged
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to remove consumed pending signup", "error", err)
	}
}

func findPendingByToken(pending []types.PendingSignup, token string) (types.PendingSignup, bool) {
	for i := range pending {
		if tokenEqual(pending[i].Token, token) {
			return pending[i], true
		}
	}
	return types.PendingSignup{}, false
}

// tokenEqual compares confirmation tokens in constant time.
func tokenEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func invalidCredentials() error {
	// One error for both unknown email and wrong password.
	return types.NewAppError(types.ErrCodeAuthInvalidCreds, "email or password is incorrect", nil)
}

// decoyPasswordHash is a bcrypt hash of a throwaway value, compared against
// when no account matches the login email so both failure paths do the same
// amount of work.
const decoyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"
