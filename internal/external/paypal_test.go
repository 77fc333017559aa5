package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tripwise/internal/types"
)

// ---------------------------------------------------------------------------
// Helper: Create test PayPal client pointed at httptest server
// ---------------------------------------------------------------------------

func newTestPayPalClient(t *testing.T, serverURL string) *PayPalClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-paypal",
		RetryPolicy{
			MaxRetries: 0, // No retries in tests for deterministic behavior
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"TripWise-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewPayPalClientWithBase(base, PayPalClientConfig{
		ClientID:     "client_test",
		ClientSecret: "secret_test",
		BaseURL:      serverURL,
	})
}

// writeTestToken responds with a standard client-credentials token.
func writeTestToken(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "token_abc",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

// ---------------------------------------------------------------------------
// CreateOrder Tests
// ---------------------------------------------------------------------------

func TestPayPalCreateOrder_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			// Verify the client-credentials grant.
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client_test" || pass != "secret_test" {
				t.Errorf("expected basic auth client_test:secret_test, got %s:%s", user, pass)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "grant_type=client_credentials") {
				t.Errorf("expected client_credentials grant, got %s", body)
			}
			writeTestToken(w)

		case "/v2/checkout/orders":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer token_abc" {
				t.Errorf("expected Bearer token_abc, got %s", auth)
			}

			var req paypalCreateOrderRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode order request: %v", err)
			}
			if req.Intent != "CAPTURE" {
				t.Errorf("expected intent CAPTURE, got %s", req.Intent)
			}
			if len(req.PurchaseUnits) != 1 {
				t.Fatalf("expected 1 purchase unit, got %d", len(req.PurchaseUnits))
			}
			if req.PurchaseUnits[0].Amount.Value != "10.00" {
				t.Errorf("expected amount value 10.00, got %s", req.PurchaseUnits[0].Amount.Value)
			}
			if req.PurchaseUnits[0].Amount.CurrencyCode != "EUR" {
				t.Errorf("expected currency EUR, got %s", req.PurchaseUnits[0].Amount.CurrencyCode)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ord_abc123",
				"status": "CREATED",
			})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	orderID, err := client.CreateOrder(context.Background(), "10.00", "EUR")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if orderID != "ord_abc123" {
		t.Errorf("expected order ID ord_abc123, got %s", orderID)
	}
}

func TestPayPalCreateOrder_EmptyOrderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			writeTestToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "CREATED",
		})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CreateOrder(context.Background(), "5.00", "EUR")
	if err == nil {
		t.Fatal("expected error for order without identifier, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamPayment {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamPayment, appErr.Code)
	}
}

func TestPayPalCreateOrder_TokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/oauth2/token" {
			t.Errorf("should not reach the orders API when the token grant fails")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":             "invalid_client",
			"error_description": "Client Authentication failed",
		})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CreateOrder(context.Background(), "10.00", "EUR")
	if err == nil {
		t.Fatal("expected error when token grant is rejected, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamPayment {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamPayment, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// Token Caching Tests
// ---------------------------------------------------------------------------

func TestPayPalTokenCachedAcrossCalls(t *testing.T) {
	var tokenCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			tokenCalls.Add(1)
			writeTestToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "ord_reuse", "status": "CREATED"})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	for i := 0; i < 3; i++ {
		if _, err := client.CreateOrder(context.Background(), "10.00", "EUR"); err != nil {
			t.Fatalf("call %d: expected no error, got: %v", i, err)
		}
	}

	if calls := tokenCalls.Load(); calls != 1 {
		t.Errorf("expected 1 token grant across 3 orders, got %d", calls)
	}
}

func TestPayPalTokenRefreshedNearExpiry(t *testing.T) {
	var tokenCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			tokenCalls.Add(1)
			writeTestToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "ord_fresh", "status": "CREATED"})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	// First call fetches a token valid for 3600s.
	now := time.Now()
	client.nowFn = func() time.Time { return now }
	if _, err := client.CreateOrder(context.Background(), "10.00", "EUR"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Jump the clock into the refresh margin; the cached token is now stale.
	client.nowFn = func() time.Time { return now.Add(3600*time.Second - 30*time.Second) }
	if _, err := client.CreateOrder(context.Background(), "10.00", "EUR"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if calls := tokenCalls.Load(); calls != 2 {
		t.Errorf("expected 2 token grants (initial + refresh), got %d", calls)
	}
}

// ---------------------------------------------------------------------------
// CaptureOrder Tests
// ---------------------------------------------------------------------------

func TestPayPalCaptureOrder_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			writeTestToken(w)

		case "/v2/checkout/orders/ord_abc123/capture":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "ord_abc123",
				"status": "COMPLETED",
				"purchase_units": []map[string]interface{}{
					{
						"payee": map[string]interface{}{
							"merchant_id": "MERCHANT99",
						},
						"payments": map[string]interface{}{
							"captures": []map[string]interface{}{
								{
									"id":     "cap_001",
									"status": "COMPLETED",
									"amount": map[string]interface{}{
										"currency_code": "EUR",
										"value":         "10.00",
									},
								},
							},
						},
					},
				},
			})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	result, err := client.CaptureOrder(context.Background(), "ord_abc123")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.OrderID != "ord_abc123" {
		t.Errorf("expected order ID ord_abc123, got %s", result.OrderID)
	}
	if result.Status != "COMPLETED" {
		t.Errorf("expected status COMPLETED, got %s", result.Status)
	}
	if result.Value != "10.00" {
		t.Errorf("expected value 10.00, got %s", result.Value)
	}
	if result.Currency != "EUR" {
		t.Errorf("expected currency EUR, got %s", result.Currency)
	}
	if result.PayeeMerchantID != "MERCHANT99" {
		t.Errorf("expected payee MERCHANT99, got %s", result.PayeeMerchantID)
	}
}

func TestPayPalCaptureOrder_AlreadyCaptured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			writeTestToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":     "UNPROCESSABLE_ENTITY",
			"message":  "The requested action could not be performed.",
			"debug_id": "debug-777",
			"details": []map[string]interface{}{
				{
					"issue":       "ORDER_ALREADY_CAPTURED",
					"description": "Order already captured.",
				},
			},
		})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CaptureOrder(context.Background(), "ord_dup")
	if err == nil {
		t.Fatal("expected error for re-capture, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeConflictOrderCaptured {
		t.Errorf("expected error code %s, got %s", types.ErrCodeConflictOrderCaptured, appErr.Code)
	}

	if appErr.Details == nil {
		t.Fatal("expected error details")
	}
	if dbg, ok := appErr.Details["debug_id"]; !ok || dbg != "debug-777" {
		t.Errorf("expected debug_id debug-777, got %v", dbg)
	}
}

func TestPayPalCaptureOrder_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			writeTestToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    "RESOURCE_NOT_FOUND",
			"message": "The specified resource does not exist.",
		})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CaptureOrder(context.Background(), "ord_missing")
	if err == nil {
		t.Fatal("expected error for unknown order, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeNotFoundOrder {
		t.Errorf("expected error code %s, got %s", types.ErrCodeNotFoundOrder, appErr.Code)
	}
}

func TestPayPalCaptureOrder_NoSettlementDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			writeTestToken(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "ord_empty",
			"status":         "COMPLETED",
			"purchase_units": []interface{}{},
		})
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CaptureOrder(context.Background(), "ord_empty")
	if err == nil {
		t.Fatal("expected error for capture without settlement details, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamPayment {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamPayment, appErr.Code)
	}
	if !strings.Contains(appErr.Message, "settlement") {
		t.Errorf("expected message to mention settlement, got: %s", appErr.Message)
	}
}

func TestPayPalCaptureOrder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			writeTestToken(w)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CaptureOrder(context.Background(), "ord_down")
	if err == nil {
		t.Fatal("expected error for upstream 500, got nil")
	}

	// BaseClient converts 5xx to ErrCodeUpstreamUnavailable once retries are
	// exhausted (MaxRetries: 0), and the client passes it through unchanged.
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// Error Body Parsing
// ---------------------------------------------------------------------------

func TestPayPalError_NonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			writeTestToken(w)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("Bad Request - not JSON"))
	}))
	defer server.Close()

	client := newTestPayPalClient(t, server.URL)

	_, err := client.CreateOrder(context.Background(), "10.00", "EUR")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamPayment {
		t.Errorf("expected error code %s, got %s", types.ErrCodeUpstreamPayment, appErr.Code)
	}
}
