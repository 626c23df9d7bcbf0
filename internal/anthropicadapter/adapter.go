// Package anthropicadapter serves the Anthropic Messages protocol from the
// unified backend.
//
// A system prompt travels to the backend as a leading assistant turn. Streaming
// responses follow the Messages event grammar with explicit content block
// bookkeeping; tool input is sent as a single input_json_delta.
package anthropicadapter

import (
	"context"
	"iter"

	"github.com/florianilch/switchboard/internal/adapter"
	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/unified"
)

// CreateMessageAdapter is the adapter contract for this operation.
type CreateMessageAdapter = adapter.Adapter[
	CreateMessageRequest,
	Message,
	StreamEvent,
]

// Adapter implements CreateMessageAdapter on a backend.Model.
// It holds no per-request state and is safe for concurrent use.
type Adapter struct {
	model backend.Model
	opts  adapter.Options
}

var _ CreateMessageAdapter = (*Adapter)(nil)

// New returns an adapter serving model.
func New(model backend.Model, opts ...adapter.Option) *Adapter {
	return &Adapter{model: model, opts: adapter.NewOptions(opts...)}
}

func (a *Adapter) ProcessRequest(ctx context.Context, clientReq CreateMessageRequest) (*Message, error) {
	run, err := a.start(ctx, clientReq)
	if err != nil {
		return nil, err
	}

	completion, err := unified.Collect(run.Events(ctx))
	if err != nil {
		return nil, toErrorResponse(err)
	}

	a.logUsage(ctx, false, completion.Usage)
	return newMessage(newMessageID(), clientReq.Model, completion), nil
}

// ProcessStreamingRequest yields message_start before pulling the first
// backend event, so only setup failures can still become a JSON error.
func (a *Adapter) ProcessStreamingRequest(ctx context.Context, clientReq CreateMessageRequest) (iter.Seq2[*StreamEvent, error], error) {
	run, err := a.start(ctx, clientReq)
	if err != nil {
		return nil, err
	}

	return func(yield func(*StreamEvent, error) bool) {
		stream := newEventStream(newMessageID(), clientReq.Model, run.InputTokens())

		start := stream.start()
		if !yield(&start, nil) {
			return
		}

		for ev, err := range run.Events(ctx) {
			if err != nil {
				yield(nil, toErrorResponse(err))
				return
			}

			for _, out := range stream.next(ev) {
				if !yield(&out, nil) {
					return
				}
			}
		}

		if stream.done {
			a.logUsage(ctx, true, stream.usage)
		}
	}, nil
}

// CountTokens computes the input token count the way a run would.
func (a *Adapter) CountTokens(ctx context.Context, clientReq CountTokensRequest) (*CountTokensResponse, error) {
	msgs := toUnifiedMessages(ctx, a.opts.Logger, clientReq.System, clientReq.Messages)

	n, err := backend.CountMessages(ctx, a.model, msgs)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return &CountTokensResponse{InputTokens: n}, nil
}

func (a *Adapter) start(ctx context.Context, clientReq CreateMessageRequest) (*backend.Run, error) {
	req := toUnifiedRequest(ctx, a.opts.Logger, clientReq)
	if len(req.Messages) == 0 {
		return nil, NewError("invalid_request_error", "messages: no message has any content")
	}

	run, err := backend.Start(ctx, a.model, req)
	if err != nil {
		return nil, toErrorResponse(err)
	}
	return run, nil
}

func (a *Adapter) logUsage(ctx context.Context, stream bool, usage *unified.Usage) {
	a.opts.Logger.InfoContext(ctx, "completion usage",
		"protocol", "anthropic",
		"stream", stream,
		"backend", a.model.Name(),
		"input_tokens", usage.InputTokens(),
		"output_tokens", usage.OutputTokens(),
	)
}
