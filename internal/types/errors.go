package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidPlan   ErrorCode = "validation_invalid_plan_type"
	ErrCodeValidationInvalidPeriod ErrorCode = "validation_invalid_billing_period"

	// Auth (401)
	ErrCodeAuthSignatureMissing ErrorCode = "auth_webhook_signature_missing"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_webhook_signature_invalid"
	ErrCodeAuthAdminKeyInvalid  ErrorCode = "auth_admin_key_invalid"

	// Not Found (404)
	ErrCodeNotFoundPlan         ErrorCode = "not_found_plan"
	ErrCodeNotFoundPayment      ErrorCode = "not_found_payment"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"

	// Conflict (409)
	ErrCodeConflictDuplicateActive ErrorCode = "conflict_duplicate_active_subscription"
	ErrCodeConflictPaymentState    ErrorCode = "conflict_payment_state"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamGateway     ErrorCode = "upstream_gateway_unavailable"
	ErrCodeUpstreamGatewayAPI  ErrorCode = "upstream_gateway_rejected"
	ErrCodeUpstreamNotifier    ErrorCode = "upstream_notifier_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether an operation failing with this code may safely
// be retried as a whole. Only transient storage errors qualify: every
// mutation behind them is transactional, so the retry observes a consistent
// state. Gateway and validation failures are never retried automatically.
func (c ErrorCode) Retryable() bool {
	return c == ErrCodeInternalDB
}

// AppError is the standard application error type used throughout the engine.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
