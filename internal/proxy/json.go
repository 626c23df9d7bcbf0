package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/florianilch/switchboard/internal/anthropicadapter"
	"github.com/florianilch/switchboard/internal/openaiadapter"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeOpenAIError writes err in the OpenAI error shape. Errors that are not
// already wire errors become a generic api_error so no internal text leaks.
func writeOpenAIError(ctx context.Context, w http.ResponseWriter, err error) {
	var errResp *openaiadapter.ErrorResponse
	if !errors.As(err, &errResp) {
		errResp = openaiadapter.NewError("api_error", http.StatusText(http.StatusInternalServerError))
	}
	writeJSON(ctx, w, errResp, errResp.StatusCode())
}

// writeAnthropicError writes err in the Anthropic error shape.
func writeAnthropicError(ctx context.Context, w http.ResponseWriter, err error) {
	var errResp *anthropicadapter.ErrorResponse
	if !errors.As(err, &errResp) {
		errResp = anthropicadapter.NewError("api_error", http.StatusText(http.StatusInternalServerError))
	}
	writeJSON(ctx, w, errResp, errResp.StatusCode())
}
