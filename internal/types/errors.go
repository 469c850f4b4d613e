package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidSource       ErrorCode = "validation_invalid_data_source"
	ErrCodeValidationDuplicateReadiness  ErrorCode = "validation_duplicate_readiness_level"
	ErrCodeValidationDuplicateActivation ErrorCode = "validation_duplicate_activation_level"
	ErrCodeValidationManualOnly          ErrorCode = "validation_manual_activation_only"
	ErrCodeValidationAlreadyTriggered    ErrorCode = "validation_already_triggered"
	ErrCodeValidationMissingField        ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidInterval     ErrorCode = "validation_invalid_repeat_interval"
	ErrCodeValidationInvalidJSON         ErrorCode = "validation_invalid_json"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	// Not Found (404)
	ErrCodeNotFoundTrigger ErrorCode = "not_found_trigger"
	ErrCodeNotFoundPhase   ErrorCode = "not_found_phase"

	// Conflict (409)
	ErrCodeConflictRepeatKey ErrorCode = "conflict_repeat_key_exists"

	// Transient infrastructure (502). These are retried by the scheduler's
	// backoff machinery and never surfaced from inside a tick.
	ErrCodeUpstreamFeed    ErrorCode = "upstream_feed_unavailable"
	ErrCodeUpstreamQueue   ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamWebhook ErrorCode = "upstream_webhook_unavailable"

	// Internal (500)
	ErrCodeInternalDB                 ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected         ErrorCode = "internal_unexpected_error"
	ErrCodeInternalUnregisteredSource ErrorCode = "internal_unregistered_data_source"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
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

// IsTransient reports whether an error code represents a transient
// infrastructure failure that should consume a scheduler retry attempt.
// Business outcomes (empty feed window, still-safe readings) never map to
// these codes and therefore never trigger retries.
func (c ErrorCode) IsTransient() bool {
	return strings.HasPrefix(string(c), "upstream_")
}

// AppError is the standard application error type used throughout the platform.
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
