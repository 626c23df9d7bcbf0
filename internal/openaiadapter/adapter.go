// Package openaiadapter serves the OpenAI Chat Completions protocol from the
// unified backend.
//
// Requests are converted into unified messages, run through the backend and
// folded back into either a single chat completion or a sequence of
// chat.completion.chunk frames. Tool call arguments are always sent whole,
// never fragmented across chunks.
package openaiadapter

import (
	"context"
	"iter"

	"github.com/florianilch/switchboard/internal/adapter"
	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/unified"
)

// CreateChatCompletionAdapter is the adapter contract for this operation.
type CreateChatCompletionAdapter = adapter.Adapter[
	CreateChatCompletionRequest,
	CreateChatCompletionResponse,
	CreateChatCompletionChunk,
]

// Adapter implements CreateChatCompletionAdapter on a backend.Model.
// It holds no per-request state and is safe for concurrent use.
type Adapter struct {
	model backend.Model
	opts  adapter.Options
}

var _ CreateChatCompletionAdapter = (*Adapter)(nil)

// New returns an adapter serving model.
func New(model backend.Model, opts ...adapter.Option) *Adapter {
	return &Adapter{model: model, opts: adapter.NewOptions(opts...)}
}

func (a *Adapter) ProcessRequest(ctx context.Context, clientReq CreateChatCompletionRequest) (*CreateChatCompletionResponse, error) {
	run, err := a.start(ctx, clientReq)
	if err != nil {
		return nil, err
	}

	completion, err := unified.Collect(run.Events(ctx))
	if err != nil {
		return nil, toErrorResponse(err)
	}

	a.logUsage(ctx, false, completion.Usage)
	return newResponse(newResponseID(), clientReq.Model, a.opts.Now().Unix(), completion), nil
}

func (a *Adapter) ProcessStreamingRequest(ctx context.Context, clientReq CreateChatCompletionRequest) (iter.Seq2[*CreateChatCompletionChunk, error], error) {
	run, err := a.start(ctx, clientReq)
	if err != nil {
		return nil, err
	}

	return func(yield func(*CreateChatCompletionChunk, error) bool) {
		stream := newChunkStream(newResponseID(), clientReq.Model, a.opts.Now().Unix(), run.InputTokens())

		for ev, err := range run.Events(ctx) {
			if err != nil {
				yield(nil, toErrorResponse(err))
				return
			}

			chunk := stream.next(ev)
			if chunk == nil {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}

		if stream.done() {
			a.logUsage(ctx, true, stream.usage)
		}
	}, nil
}

// start converts the request and precomputes input usage.
func (a *Adapter) start(ctx context.Context, clientReq CreateChatCompletionRequest) (*backend.Run, error) {
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
		"protocol", "openai",
		"stream", stream,
		"backend", a.model.Name(),
		"input_tokens", usage.InputTokens(),
		"output_tokens", usage.OutputTokens(),
	)
}
