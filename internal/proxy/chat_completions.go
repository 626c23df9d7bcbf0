package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/openaiadapter"
)

// CreateChatCompletionsHandler handles OpenAI-compatible chat completion requests.
type CreateChatCompletionsHandler struct {
	Adapter  openaiadapter.CreateChatCompletionAdapter
	Validate *validator.Validate
}

// Compile-time check to ensure CreateChatCompletionsHandler implements http.Handler
var _ http.Handler = (*CreateChatCompletionsHandler)(nil)

// ServeHTTP implements http.Handler interface for streaming or non-streaming requests.
func (h *CreateChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openaiadapter.CreateChatCompletionRequest
	if err := decodeRequest(r, h.Validate, &req); err != nil {
		slog.WarnContext(ctx, "rejected chat completion request", "error", err)
		writeOpenAIError(ctx, w, openAIRequestError(err))
		return
	}

	if req.IsStreaming() {
		h.streamResponse(ctx, w, req)
	} else {
		h.writeResponse(ctx, w, req)
	}
}

// writeResponse handles non-streaming chat completion requests.
func (h *CreateChatCompletionsHandler) writeResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req openaiadapter.CreateChatCompletionRequest,
) {
	response, err := h.Adapter.ProcessRequest(ctx, req)
	if err != nil {
		if isCancelled(ctx, err) {
			slog.DebugContext(ctx, "client disconnected before completion")
			return
		}
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeOpenAIError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse streams chat completion chunks using SSE.
//
// A failure before the first chunk is answered with a JSON error. Once a chunk
// has been written the status is committed, so later failures only end the
// stream without the [DONE] marker.
func (h *CreateChatCompletionsHandler) streamResponse(
	ctx context.Context,
	w http.ResponseWriter,
	req openaiadapter.CreateChatCompletionRequest,
) {
	stream, err := h.Adapter.ProcessStreamingRequest(ctx, req)
	if err != nil {
		if isCancelled(ctx, err) {
			return
		}
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeOpenAIError(ctx, w, err)
		return
	}

	sse := NewSSEWriter(w)
	for chunk, err := range stream {
		if err != nil {
			if isCancelled(ctx, err) {
				slog.DebugContext(ctx, "client disconnected during stream")
				return
			}
			if !sse.Started() {
				slog.ErrorContext(ctx, "stream failed before first chunk", "error", err)
				writeOpenAIError(ctx, w, err)
				return
			}
			slog.ErrorContext(ctx, "stream failed", "error", err)
			return
		}

		if err := sse.WriteData(chunk); err != nil {
			slog.WarnContext(ctx, "failed to write chunk", "error", err)
			return
		}
	}

	// OpenAI streaming protocol requires [DONE] marker
	if err := sse.WriteRaw("[DONE]"); err != nil {
		slog.WarnContext(ctx, "failed to write stream termination marker", "error", err)
	}
}

// openAIRequestError maps a decode or validation failure to the OpenAI shape.
func openAIRequestError(err error) *openaiadapter.ErrorResponse {
	resp := openaiadapter.NewError("invalid_request_error", err.Error())
	if errors.Is(err, errBodyTooLarge) {
		code := openaiadapter.CodeRequestTooLarge
		resp.Err.Code = &code
	}
	return resp
}

// isCancelled reports whether err stems from the client going away.
func isCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, backend.ErrCancelled) || ctx.Err() != nil
}
