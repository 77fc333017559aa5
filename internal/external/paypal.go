package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tripwise/internal/types"
)

// tokenRefreshMargin is how long before expiry a cached OAuth token is
// considered stale. Refreshing early avoids racing the oracle's clock.
const tokenRefreshMargin = 60 * time.Second

// PayPalClientConfig holds the configuration for creating a PayPalClient.
type PayPalClientConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // e.g., https://api-m.paypal.com
	Logger       *slog.Logger
}

// PayPalClient implements PaymentProvider by making direct HTTP calls to a
// PayPal-style orders REST API through BaseClient. This routes all requests
// through the platform's resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
//
// The client authenticates with the OAuth2 client-credentials grant and
// caches the bearer token until shortly before expiry.
type PayPalClient struct {
	base         *BaseClient
	clientID     string
	clientSecret string
	baseURL      string
	logger       *slog.Logger

	nowFn func() time.Time // for testability; defaults to time.Now

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient creates a new PayPalClient. The httpClient timeout should
// match the payment oracle budget configured for the platform.
func NewPayPalClient(httpClient *http.Client, cfg PayPalClientConfig) *PayPalClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"paypal",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"TripWise/1.0",
	)

	return &PayPalClient{
		base:         base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:       logger,
		nowFn:        time.Now,
	}
}

// NewPayPalClientWithBase creates a PayPalClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewPayPalClientWithBase(base *BaseClient, cfg PayPalClientConfig) *PayPalClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PayPalClient{
		base:         base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:       logger,
		nowFn:        time.Now,
	}
}

// Compile-time check that PayPalClient satisfies PaymentProvider.
var _ PaymentProvider = (*PayPalClient)(nil)

// ---------------------------------------------------------------------------
// PaymentProvider Implementation
// ---------------------------------------------------------------------------

// CreateOrder registers a capture-intent order for the given amount and
// returns the oracle's opaque order identifier.
func (p *PayPalClient) CreateOrder(ctx context.Context, value string, currency string) (string, error) {
	reqBody := paypalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalNewPurchaseUnit{
			{Amount: paypalAmount{CurrencyCode: currency, Value: value}},
		},
	}

	resp, err := p.doPost(ctx, "/v2/checkout/orders", reqBody)
	if err != nil {
		return "", p.wrapPayPalError("CreateOrder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", p.handleErrorResponse(resp, "CreateOrder")
	}

	var order paypalOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode order creation response",
			err,
		)
	}

	if order.ID == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"payment oracle returned an order without an identifier",
			nil,
		)
	}

	return order.ID, nil
}

// CaptureOrder captures the order and extracts the first purchase unit's
// first capture. The reconciliation gates (status, currency, amount, payee)
// are the caller's concern; this method only translates the wire format.
func (p *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID)

	resp, err := p.doPost(ctx, path, struct{}{})
	if err != nil {
		return nil, p.wrapPayPalError("CaptureOrder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp, "CaptureOrder")
	}

	var captured paypalCaptureResponse
	if err := json.NewDecoder(resp.Body).Decode(&captured); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode order capture response",
			err,
		)
	}

	if len(captured.PurchaseUnits) == 0 || len(captured.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"capture response carries no settlement details",
			nil,
		)
	}

	unit := captured.PurchaseUnits[0]
	settlement := unit.Payments.Captures[0]

	return &CaptureResult{
		OrderID:         captured.ID,
		Status:          settlement.Status,
		Value:           settlement.Amount.Value,
		Currency:        settlement.Amount.CurrencyCode,
		PayeeMerchantID: unit.Payee.MerchantID,
	}, nil
}

// ---------------------------------------------------------------------------
// OAuth2 Client-Credentials Token
// ---------------------------------------------------------------------------

// getAccessToken returns a valid bearer token, fetching a fresh one via the
// client-credentials grant when the cached token is missing or near expiry.
func (p *PayPalClient) getAccessToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.accessToken != "" && p.nowFn().Before(p.tokenExpiry.Add(-tokenRefreshMargin)) {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"),
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.base.Do(req)
	if err != nil {
		return "", p.wrapPayPalError("Token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.logger.ErrorContext(ctx, "payment oracle rejected token request",
			"status", resp.StatusCode,
		)
		return "", types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("Token: payment oracle returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			nil,
		)
	}

	var token paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode token response",
			err,
		)
	}

	if token.AccessToken == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPayment,
			"payment oracle returned an empty access token",
			nil,
		)
	}

	p.accessToken = token.AccessToken
	p.tokenExpiry = p.nowFn().Add(time.Duration(token.ExpiresIn) * time.Second)

	return p.accessToken, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doPost performs an authenticated POST request with a JSON body.
func (p *PayPalClient) doPost(ctx context.Context, path string, body any) (*http.Response, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return p.base.Do(req)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// paypalErrorResponse represents the JSON error body returned by the orders API.
type paypalErrorResponse struct {
	Name    string              `json:"name"`
	Message string              `json:"message"`
	DebugID string              `json:"debug_id"`
	Details []paypalErrorDetail `json:"details"`
}

type paypalErrorDetail struct {
	Issue       string `json:"issue"`
	Description string `json:"description"`
}

// handleErrorResponse reads an oracle error response and maps it to a types.AppError.
func (p *PayPalClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: payment oracle returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var oracleErr paypalErrorResponse
	if jsonErr := json.Unmarshal(body, &oracleErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: payment oracle returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return p.mapPayPalError(operation, resp.StatusCode, &oracleErr)
}

// mapPayPalError translates an orders API error into a types.AppError.
func (p *PayPalClient) mapPayPalError(operation string, statusCode int, oracleErr *paypalErrorResponse) error {
	// A re-capture attempt is a conflict, not an upstream failure: the order
	// has already settled and must not be credited twice.
	for _, detail := range oracleErr.Details {
		if detail.Issue == "ORDER_ALREADY_CAPTURED" {
			return types.NewAppErrorWithDetails(
				types.ErrCodeConflictOrderCaptured,
				fmt.Sprintf("%s: order has already been captured", operation),
				nil,
				map[string]any{
					"issue":    detail.Issue,
					"debug_id": oracleErr.DebugID,
				},
			)
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: payment oracle rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: payment oracle server error: %s", operation, oracleErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundOrder,
			fmt.Sprintf("%s: order not found: %s", operation, oracleErr.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamPayment,
			fmt.Sprintf("%s: payment oracle error %s (%d): %s", operation, oracleErr.Name, statusCode, oracleErr.Message),
			nil,
		)
	}
}

// wrapPayPalError wraps a BaseClient transport error with context.
func (p *PayPalClient) wrapPayPalError(operation string, err error) error {
	// If it's already an AppError from BaseClient (circuit breaker, retries
	// exhausted), return it as-is since it already has the right error code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamPayment,
		fmt.Sprintf("%s: payment oracle request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Orders API Wire Types (for JSON serialization)
// ---------------------------------------------------------------------------

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalCreateOrderRequest struct {
	Intent        string                  `json:"intent"`
	PurchaseUnits []paypalNewPurchaseUnit `json:"purchase_units"`
}

type paypalNewPurchaseUnit struct {
	Amount paypalAmount `json:"amount"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paypalCaptureResponse struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalPurchaseUnit struct {
	ReferenceID string         `json:"reference_id"`
	Payee       paypalPayee    `json:"payee"`
	Payments    paypalPayments `json:"payments"`
}

type paypalPayee struct {
	MerchantID   string `json:"merchant_id"`
	EmailAddress string `json:"email_address"`
}

type paypalPayments struct {
	Captures []paypalCapture `json:"captures"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}
