package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/switchboard/internal/anthropicadapter"
)

// TokenCounter counts the input tokens of an Anthropic request.
type TokenCounter interface {
	CountTokens(ctx context.Context, req anthropicadapter.CountTokensRequest) (*anthropicadapter.CountTokensResponse, error)
}

// CreateMessageHandler handles Anthropic Messages requests.
type CreateMessageHandler struct {
	Adapter  anthropicadapter.CreateMessageAdapter
	Validate *validator.Validate
}

var _ http.Handler = (*CreateMessageHandler)(nil)

func (h *CreateMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropicadapter.CreateMessageRequest
	if err := decodeRequest(r, h.Validate, &req); err != nil {
		slog.WarnContext(ctx, "rejected message request", "error", err)
		writeAnthropicError(ctx, w, anthropicRequestError(err))
		return
	}

	if req.Stream {
		h.streamResponse(ctx, w, req)
	} else {
		h.writeResponse(ctx, w, req)
	}
}

func (h *CreateMessageHandler) writeResponse(ctx context.Context, w http.ResponseWriter, req anthropicadapter.CreateMessageRequest) {
	msg, err := h.Adapter.ProcessRequest(ctx, req)
	if err != nil {
		if isCancelled(ctx, err) {
			slog.DebugContext(ctx, "client disconnected before completion")
			return
		}
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeAnthropicError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, msg, http.StatusOK)
}

// streamResponse writes each stream event as a named SSE frame. The stream
// ends after message_stop; a mid-stream failure closes it without one.
func (h *CreateMessageHandler) streamResponse(ctx context.Context, w http.ResponseWriter, req anthropicadapter.CreateMessageRequest) {
	stream, err := h.Adapter.ProcessStreamingRequest(ctx, req)
	if err != nil {
		if isCancelled(ctx, err) {
			return
		}
		slog.ErrorContext(ctx, "streaming request failed", "error", err)
		writeAnthropicError(ctx, w, err)
		return
	}

	sse := NewSSEWriter(w)
	for ev, err := range stream {
		if err != nil {
			if isCancelled(ctx, err) {
				slog.DebugContext(ctx, "client disconnected during stream")
				return
			}
			if !sse.Started() {
				writeAnthropicError(ctx, w, err)
				return
			}
			slog.ErrorContext(ctx, "stream failed", "error", err)
			return
		}

		if err := sse.WriteEvent(ev.Name, ev.Payload); err != nil {
			slog.WarnContext(ctx, "failed to write event", "event", ev.Name, "error", err)
			return
		}
	}
}

// CountTokensHandler serves /v1/messages/count_tokens.
type CountTokensHandler struct {
	Counter  TokenCounter
	Validate *validator.Validate
}

var _ http.Handler = (*CountTokensHandler)(nil)

func (h *CountTokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropicadapter.CountTokensRequest
	if err := decodeRequest(r, h.Validate, &req); err != nil {
		writeAnthropicError(ctx, w, anthropicRequestError(err))
		return
	}

	resp, err := h.Counter.CountTokens(ctx, req)
	if err != nil {
		if isCancelled(ctx, err) {
			return
		}
		slog.ErrorContext(ctx, "token count failed", "error", err)
		writeAnthropicError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, resp, http.StatusOK)
}

// anthropicRequestError maps a decode or validation failure to the Anthropic shape.
func anthropicRequestError(err error) *anthropicadapter.ErrorResponse {
	if errors.Is(err, errBodyTooLarge) {
		return anthropicadapter.NewError("request_too_large", err.Error())
	}
	return anthropicadapter.NewError("invalid_request_error", err.Error())
}
