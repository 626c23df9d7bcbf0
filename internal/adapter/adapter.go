// Package adapter defines the contract shared by the protocol adapters.
package adapter

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"time"
)

// Adapter defines the contract for serving one wire protocol from the unified backend.
//
// Type parameters allow the interface to express transformation contracts for different
// request/response shapes while maintaining compile-time type safety.
//
// Type parameters:
//   - TRequest:  Client-specific request structure
//   - TResponse: Client-specific response structure
//   - TChunk:    Client-specific streaming frame
type Adapter[TRequest, TResponse, TChunk any] interface {
	// ProcessRequest converts the client request, runs the backend to completion and
	// returns the folded response. No partial output is ever returned.
	ProcessRequest(ctx context.Context, clientReq TRequest) (*TResponse, error)

	// ProcessStreamingRequest converts the client request, precomputes input usage and
	// returns an iterator of protocol frames. Setup failures are returned directly;
	// failures after that are yielded by the iterator.
	ProcessStreamingRequest(ctx context.Context, clientReq TRequest) (iter.Seq2[*TChunk, error], error)
}

// Options carries the per-adapter collaborators.
type Options struct {
	// Logger receives tool argument decode failures and usage records.
	Logger *slog.Logger
	// Now stamps response creation times.
	Now func() time.Time
}

// Option configures Options.
type Option func(*Options)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithClock sets the clock used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// NewOptions applies opts over defaults: a discarding logger and time.Now.
func NewOptions(opts ...Option) Options {
	o := Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
