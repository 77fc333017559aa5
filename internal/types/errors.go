package types

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// ErrorCode names a failure class. Codes are part of the API contract:
// clients branch on them, so renaming one is a breaking change.
type ErrorCode string

// The full code catalog. Handlers use these constants, never ad-hoc strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail    ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidPlan     ErrorCode = "validation_invalid_plan"
	ErrCodeValidationInvalidAmount   ErrorCode = "validation_invalid_amount"
	ErrCodeValidationInvalidResource ErrorCode = "validation_invalid_resource_name"
	ErrCodeValidationInvalidCoords   ErrorCode = "validation_invalid_coordinates"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired ErrorCode = "auth_token_expired"
	ErrCodeAuthInvalidCreds ErrorCode = "auth_invalid_credentials"

	// Permission (403)
	ErrCodePermissionPlan ErrorCode = "permission_plan_insufficient"

	// Limits (402/403/429)
	ErrCodeLimitGuideTokens   ErrorCode = "limit_guide_tokens_exhausted"
	ErrCodeLimitItineraryDays ErrorCode = "limit_itinerary_days_exceeded"
	ErrCodeLimitCountryCities ErrorCode = "limit_country_cities_exceeded"
	ErrCodeRateLimit          ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundCountry     ErrorCode = "not_found_country"
	ErrCodeNotFoundCity        ErrorCode = "not_found_city"
	ErrCodeNotFoundUser        ErrorCode = "not_found_user"
	ErrCodeNotFoundOrder       ErrorCode = "not_found_order"
	ErrCodeNotFoundSignupToken ErrorCode = "not_found_signup_token"

	// Conflict (409)
	ErrCodeConflictEmail         ErrorCode = "conflict_email_exists"
	ErrCodeConflictName          ErrorCode = "conflict_name_exists"
	ErrCodeConflictOrderCaptured ErrorCode = "conflict_order_captured"

	// Upstream (502)
	ErrCodeUpstreamUnavailable  ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited  ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamGeocoder     ErrorCode = "upstream_geocoder_unavailable"
	ErrCodeUpstreamPayment      ErrorCode = "upstream_payment_unavailable"
	ErrCodeUpstreamMailProvider ErrorCode = "upstream_mail_provider_unavailable"
	ErrCodeUpstreamGeneration   ErrorCode = "upstream_generation_unavailable"

	// Generation (502): the oracle answered but the content is unusable.
	ErrCodeGenerationInvalid ErrorCode = "generation_invalid_output"

	// Payment-specific (402)
	ErrCodePaymentRejected ErrorCode = "payment_capture_rejected"

	// Configuration (500, fatal at startup)
	ErrCodeConfigMissingSecret ErrorCode = "config_missing_secret"
	ErrCodeConfigInvalid       ErrorCode = "config_invalid"

	// Internal (500)
	ErrCodeInternalStore      ErrorCode = "internal_store_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps a code to the status the API layer writes. The mapping
// keys off the code's family prefix, with a handful of exact-match
// exceptions. Unknown codes fall through to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case s == string(ErrCodeLimitGuideTokens):
		return http.StatusPaymentRequired // 402
	case s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "limit_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodePaymentRejected):
		return http.StatusPaymentRequired // 402
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "generation_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "config_"):
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError carries an ErrorCode through the call stack so the HTTP layer can
// map any failure to a status and a stable client-facing code. Domain and
// handler code wrap every error in one of these.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status mapped from the error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy with the given details merged over any existing
// ones. The receiver is not mutated.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	clone := *e
	clone.Details = merged
	return &clone
}

// NewAppError is the standard constructor for domain errors. err may be nil
// when there is no underlying cause worth preserving.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails additionally attaches structured details that
// surface in the API error envelope.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
