package openaiadapter

import (
	"errors"
	"net/http"

	"github.com/florianilch/switchboard/internal/backend"
)

// Error is the OpenAI error object.
type Error struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// ErrorResponse wraps Error in the envelope OpenAI clients expect: {"error": {...}}.
// It implements error so it can be returned directly from the adapter.
type ErrorResponse struct {
	// Err is the underlying error detail. JSON tag ensures it serializes as "error".
	Err Error `json:"error"`

	cause error
}

func (e *ErrorResponse) Error() string {
	return e.Err.Message
}

// Unwrap exposes the backend error the response was built from.
func (e *ErrorResponse) Unwrap() error {
	return e.cause
}

// StatusCode maps the error type to an HTTP status according to OpenAI API conventions.
func (e *ErrorResponse) StatusCode() int {
	if e.Err.Code != nil {
		switch *e.Err.Code {
		case CodeBackendUnavailable:
			return http.StatusServiceUnavailable
		case CodeRequestTooLarge:
			return http.StatusRequestEntityTooLarge
		}
	}

	switch e.Err.Type {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_denied":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "rate_limit_error", "insufficient_quota":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error codes that override the status derived from the error type.
const (
	CodeBackendUnavailable = "backend_unavailable"
	CodeRequestTooLarge    = "request_too_large"
)

// NewError builds an ErrorResponse with the given type and message.
func NewError(errorType, message string) *ErrorResponse {
	return &ErrorResponse{Err: Error{Message: message, Type: errorType}}
}

// toErrorResponse converts a backend failure into the OpenAI error shape.
// Only the classified message string reaches the client.
func toErrorResponse(err error) *ErrorResponse {
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}

	backendErr := backend.Classify(err)
	resp := &ErrorResponse{
		Err:   Error{Message: backendErr.Message},
		cause: err,
	}

	switch {
	case errors.Is(backendErr, backend.ErrCancelled):
		resp.Err.Type = "api_error"
	case errors.Is(backendErr, backend.ErrProtocol):
		if backendErr.Status == http.StatusBadRequest {
			resp.Err.Type = "invalid_request_error"
		} else {
			resp.Err.Type = "api_error"
		}
	default:
		resp.Err.Type = unavailableType(backendErr.Status)
		if resp.Err.Type == "server_error" {
			code := CodeBackendUnavailable
			resp.Err.Code = &code
		}
	}

	return resp
}

// unavailableType picks the OpenAI error type for an unavailable backend by upstream status.
func unavailableType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusPaymentRequired:
		return "insufficient_quota"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "server_error"
	}
}
