package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/billing"
	"tripwise/internal/core"
	"tripwise/internal/types"
)

// --- DTOs ---

// CreateOrderRequest is the request body for POST /payments/orders.
type CreateOrderRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// CreateOrderResponse returns the provider order the client must approve.
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
}

// --- Service Interfaces ---

// PaymentService creates provider orders and reconciles their captures
// into account credit.
type PaymentService interface {
	CreateOrder(ctx context.Context, amount float64) (string, error)
	CaptureOrder(ctx context.Context, orderID, authenticatedEmail string) (*billing.CaptureOutcome, error)
}

// --- Handler ---

// PaymentHandler maps HTTP requests to the payment service.
type PaymentHandler struct {
	service   PaymentService
	logger    *slog.Logger
	validator *core.Validator
}

// NewPaymentHandler creates a new PaymentHandler with the provided
// dependencies.
func NewPaymentHandler(svc PaymentService, l *slog.Logger, v *core.Validator) *PaymentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PaymentHandler{service: svc, logger: l, validator: v}
}

// RegisterRoutes mounts payment routes onto the provided router.
//
//   - POST /payments/orders                   - Create a provider order
//   - POST /payments/orders/{orderID}/capture - Capture and reconcile it
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/payments/orders", func(r chi.Router) {
		r.Post("/", h.HandleCreateOrder)
		r.Post("/{orderID}/capture", h.HandleCaptureOrder)
	})
}

// --- Handler Methods ---

// HandleCreateOrder handles POST /v1/payments/orders.
func (h *PaymentHandler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	orderID, err := h.service.CreateOrder(r.Context(), req.Amount)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: CreateOrderResponse{OrderID: orderID}})
}

// HandleCaptureOrder handles POST /v1/payments/orders/{orderID}/capture.
//
// The authenticated account always receives the credit: the payer identity
// reported by the provider is recorded but never trusted for attribution.
func (h *PaymentHandler) HandleCaptureOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	orderID := chi.URLParam(r, "orderID")

	outcome, err := h.service.CaptureOrder(r.Context(), orderID, actor.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: outcome})
}
