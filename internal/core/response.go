package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"floodline/internal/types"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// APIResponse is the envelope every successful response is wrapped in. Meta
// carries pagination info on list endpoints.
type APIResponse struct {
	Data any             `json:"data,omitempty"`
	Meta *types.PageInfo `json:"meta,omitempty"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error body returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes data as a JSON response with the given status. A marshal
// failure degrades to a 500 error envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fallback := APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		}
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. When the error chain carries a
// *types.AppError its code decides the status; anything else becomes a 500
// with a safe generic message, never leaking internal details.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		resp := APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		}
		JSON(w, r, appErr.HTTPStatus(), resp)
		return
	}

	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	}
	JSON(w, r, http.StatusInternalServerError, resp)
}

// DecodeJSON reads the request body into dst, enforcing a 1 MB size cap,
// DisallowUnknownFields, and a single JSON value per body. Failures map to
// validation_invalid_json (400).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	if dec.More() {
		return types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON object",
			nil,
		)
	}

	return nil
}

// mapDecodeError translates a json.Decoder error into a structured AppError.
func mapDecodeError(err error) *types.AppError {
	invalid := func(msg string) *types.AppError {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, msg, err)
	}

	var maxBytesErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &maxBytesErr):
		return invalid("request body must not exceed 1MB")
	case errors.As(err, &syntaxErr):
		return invalid("malformed JSON in request body")
	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidJSON,
			"invalid value for field",
			err,
			map[string]any{
				"field":    typeErr.Field,
				"expected": typeErr.Type.String(),
			},
		)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return invalid("unknown field in request body: " +
			strings.TrimPrefix(err.Error(), "json: unknown field "))
	case errors.Is(err, io.EOF):
		return invalid("request body must not be empty")
	default:
		return invalid("invalid JSON in request body")
	}
}
