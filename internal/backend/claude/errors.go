package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/switchboard/internal/backend"
)

// streamingErrorPrefix is the prefix used by the Anthropic SDK when wrapping streaming errors.
const streamingErrorPrefix = "received error while streaming: "

// toBackendError classifies an Anthropic SDK error into the backend taxonomy.
// Only the upstream message string is carried to clients.
func toBackendError(err error) *backend.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backend.Cancelled(err)
	}

	// Non-streaming: *anthropic.Error provides structured error via RawJSON()
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		message := http.StatusText(apiErr.StatusCode)
		errorType := ""
		if errorResp, parseErr := parseErrorResponseJSON(apiErr.RawJSON()); parseErr == nil {
			message = errorResp.Error.Message
			errorType = errorResp.Error.Type
		}
		return classify(apiErr.StatusCode, errorType, message, err)
	}

	// Streaming: SDK embeds JSON in error string with known prefix
	if jsonStr, ok := strings.CutPrefix(err.Error(), streamingErrorPrefix); ok {
		if errorResp, parseErr := parseErrorResponseJSON(jsonStr); parseErr == nil {
			return classify(statusForType(errorResp.Error.Type), errorResp.Error.Type, errorResp.Error.Message, err)
		}
	}

	return backend.Unavailable("backend request failed", 0, err)
}

func classify(status int, errorType, message string, err error) *backend.Error {
	if errorType == "invalid_request_error" || status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		return &backend.Error{Kind: backend.ErrProtocol, Message: message, Status: status, Err: err}
	}
	return backend.Unavailable(message, status, err)
}

// statusForType recovers the HTTP status of an error delivered inside an SSE stream.
func statusForType(errorType string) int {
	switch errorType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "billing_error":
		return http.StatusPaymentRequired
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "timeout_error":
		return http.StatusGatewayTimeout
	case "overloaded_error":
		return 529
	default:
		return http.StatusInternalServerError
	}
}

// parseErrorResponseJSON parses Anthropic error JSON into structured ErrorResponse.
// Shared by both non-streaming (RawJSON) and streaming (error string) error paths.
func parseErrorResponseJSON(jsonStr string) (*anthropic.ErrorResponse, error) {
	var errorResp anthropic.ErrorResponse
	if err := json.Unmarshal([]byte(jsonStr), &errorResp); err != nil {
		return nil, fmt.Errorf("failed to parse Anthropic error JSON: %w", err)
	}
	return &errorResp, nil
}
