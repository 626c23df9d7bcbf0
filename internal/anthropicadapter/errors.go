package anthropicadapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/florianilch/switchboard/internal/backend"
)

// statusOverloaded is Anthropic's non-standard "overloaded" status.
const statusOverloaded = 529

// ErrorDetail is the Anthropic error object.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the Anthropic error envelope: {"type":"error","error":{...}}.
type ErrorResponse struct {
	Type string      `json:"type"`
	Err  ErrorDetail `json:"error"`

	cause error
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Type, e.Err.Message)
}

// Unwrap exposes the backend error the response was built from.
func (e *ErrorResponse) Unwrap() error {
	return e.cause
}

// StatusCode maps the error type to its HTTP status.
func (e *ErrorResponse) StatusCode() int {
	switch e.Err.Type {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "request_too_large":
		return http.StatusRequestEntityTooLarge
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "overloaded_error":
		return statusOverloaded
	default:
		return http.StatusInternalServerError
	}
}

// NewError builds an ErrorResponse with the given type and message.
func NewError(errorType, message string) *ErrorResponse {
	return &ErrorResponse{Type: "error", Err: ErrorDetail{Type: errorType, Message: message}}
}

// toErrorResponse converts a backend failure into the Anthropic error shape.
// Only the classified message string reaches the client.
func toErrorResponse(err error) *ErrorResponse {
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}

	backendErr := backend.Classify(err)

	var errorType string
	switch {
	case errors.Is(backendErr, backend.ErrCancelled):
		errorType = "api_error"
	case errors.Is(backendErr, backend.ErrProtocol):
		if backendErr.Status == http.StatusBadRequest {
			errorType = "invalid_request_error"
		} else {
			errorType = "api_error"
		}
	default:
		errorType = unavailableType(backendErr.Status)
	}

	resp := NewError(errorType, backendErr.Message)
	resp.cause = err
	return resp
}

func unavailableType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusPaymentRequired, http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "overloaded_error"
	}
}
