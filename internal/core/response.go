package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tripwise/internal/types"
)

// Request bodies larger than this are rejected before decoding.
const maxRequestBodySize = 1 << 20 // 1 MB

// APIResponse is the envelope every successful endpoint writes. Meta carries
// non-blocking notices (deprecations and the like) and is omitted when empty.
type APIResponse struct {
	Data interface{}         `json:"data,omitempty"`
	Meta *types.ResponseMeta `json:"meta,omitempty"`
}

// APIErrorResponse is the envelope every failed endpoint writes.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing shape of an error.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// errCodeValidationInvalidJSON covers every way a request body can fail to
// decode. It lives here rather than in types because only the chassis parses
// bodies; domain packages never see raw JSON input.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// JSON marshals data and writes it with the given status. Marshalling is done
// up front so a failure can still produce a well-formed 500 envelope instead
// of a half-written body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fallback := APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to marshal response",
			RequestID: types.GetRequestID(r.Context()),
		}}
		// Best effort; nothing left to do if encoding the fallback fails too.
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err to the client. An AppError anywhere in the chain supplies
// the code, message, details and status; anything else collapses to a plain
// 500 so wrapped internals (file paths, oracle payloads) never reach the
// client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		JSON(w, r, http.StatusInternalServerError, APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		}})
		return
	}

	JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{Error: ErrorDetail{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: requestID,
	}})
}

// DecodeJSON reads the request body into dst under a strict contract: at most
// 1 MB, no unknown fields, exactly one JSON value, non-empty. Any violation
// returns a validation_invalid_json AppError; the caller only has to pass it
// to Error.
//
// w is handed to MaxBytesReader so the connection is torn down correctly when
// the limit trips mid-read.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return types.NewAppError(errCodeValidationInvalidJSON,
			"request body must contain a single JSON object", nil)
	}
	return nil
}

// decodeError translates the json.Decoder error zoo into one AppError code
// with a message precise enough to act on.
func decodeError(err error) *types.AppError {
	var (
		maxBytesErr *http.MaxBytesError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppError(errCodeValidationInvalidJSON,
			"request body must not exceed 1MB", err)

	case errors.As(err, &syntaxErr):
		return types.NewAppError(errCodeValidationInvalidJSON,
			"malformed JSON in request body", err)

	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(errCodeValidationInvalidJSON,
			"invalid value for field", err, map[string]any{
				"field":    typeErr.Field,
				"expected": typeErr.Type.String(),
			})

	// DisallowUnknownFields has no typed error; the prefix is the contract.
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return types.NewAppError(errCodeValidationInvalidJSON,
			"unknown field in request body: "+field, err)

	case errors.Is(err, io.EOF):
		return types.NewAppError(errCodeValidationInvalidJSON,
			"request body must not be empty", err)
	}

	return types.NewAppError(errCodeValidationInvalidJSON,
		"invalid JSON in request body", err)
}
