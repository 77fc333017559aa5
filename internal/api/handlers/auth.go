// Package handlers contains the HTTP handler implementations for the TripWise API.
//
// Each handler is responsible for:
//   - Decoding and validating HTTP requests
//   - Delegating to service-layer logic
//   - Encoding responses and managing HTTP-specific concerns
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/auth"
	"tripwise/internal/core"
	"tripwise/internal/types"
)

// --- DTOs ---

// SignupRequest is the request body for POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Plan     string `json:"plan" validate:"omitempty,plan_name"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the session token alongside the account snapshot.
type LoginResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// UserView is the client-facing projection of a user account. The password
// hash never crosses the API boundary.
type UserView struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Plan   types.Plan `json:"plan"`
	Tokens int        `json:"tokens"`
}

func newUserView(u *types.User) UserView {
	return UserView{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Plan:   u.Plan,
		Tokens: u.Tokens,
	}
}

// --- Service Interfaces ---
//
// These interfaces allow the handler to depend on abstractions rather than
// concrete service implementations, enabling testability via mocks.

// AuthService orchestrates account lifecycle flows.
type AuthService interface {
	// Signup stages a pending account and sends the confirmation mail.
	Signup(ctx context.Context, input auth.SignupInput) (*auth.SignupResult, error)

	// Confirm consumes a confirmation token and promotes the pending
	// signup into a live account.
	Confirm(ctx context.Context, token string) (*types.User, error)

	// Login verifies credentials and returns the user plus a session token.
	Login(ctx context.Context, email, password string) (*types.User, string, error)

	// Me returns the account behind an authenticated email.
	Me(ctx context.Context, email string) (*types.User, error)
}

// --- Handler ---

// AuthHandler maps HTTP requests to the auth service layer.
type AuthHandler struct {
	service   AuthService
	logger    *slog.Logger
	validator *core.Validator
}

// NewAuthHandler creates a new AuthHandler with the provided dependencies.
func NewAuthHandler(svc AuthService, l *slog.Logger, v *core.Validator) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{
		service:   svc,
		logger:    l,
		validator: v,
	}
}

// RegisterRoutes mounts all auth routes onto the provided router.
//
// Public Routes (no session required):
//   - POST /auth/signup  - Stage a pending account
//   - GET  /auth/confirm - Consume a confirmation token
//   - POST /auth/login   - Credential login
//
// Protected Routes (requires valid session):
//   - GET /auth/me - Current account snapshot
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.HandleSignup)
		r.Get("/confirm", h.HandleConfirm)
		r.Post("/login", h.HandleLogin)
		r.Get("/me", h.HandleMe)
	})
}

// --- Handler Methods ---

// HandleSignup processes POST /auth/signup requests.
//
//  1. Decode and validate the SignupRequest.
//  2. Default an absent plan to free.
//  3. Call AuthService.Signup, which claims the email, stages the pending
//     record and sends the confirmation mail.
//  4. Return 202 Accepted: the account does not exist until confirmed.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan := types.Plan(req.Plan)
	if plan == "" {
		plan = types.PlanFree
	}

	result, err := h.service.Signup(r.Context(), auth.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Plan:     plan,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: result})
}

// HandleConfirm processes GET /auth/confirm?token=... requests.
//
// The token arrives as a query parameter because it is embedded in the
// confirmation link the user clicks from their mail client.
func (h *AuthHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"token query parameter is required",
			nil,
		))
		return
	}

	user, err := h.service.Confirm(r.Context(), token)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newUserView(user)})
}

// HandleLogin processes POST /auth/login requests.
//
// Login failures surface as auth_invalid_credentials regardless of whether
// the email exists, preventing account enumeration.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := LoginResponse{
		Token: token,
		User:  newUserView(user),
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// HandleMe processes GET /auth/me requests.
//
// The account is re-read from the catalog rather than echoed from the token
// claims, so the response reflects plan or token changes that postdate the
// session mint.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	user, err := h.service.Me(r.Context(), actor.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newUserView(user)})
}
