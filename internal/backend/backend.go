package backend

import (
	"context"
	"iter"

	"github.com/florianilch/switchboard/internal/unified"
)

// Model is a language-model backend.
type Model interface {
	// Name identifies the backend model in logs and in the model catalog.
	Name() string

	// CountTokens returns the token count of text. Failures are ErrUnavailable.
	CountTokens(ctx context.Context, text string) (int, error)

	// Stream produces the events of one run. The sequence is lazy, finite and
	// not restartable; it stops producing once ctx is cancelled or the consumer
	// stops pulling. A backend that knows its own output token count reports it
	// with a trailing unified.UsageEvent; Run replaces it with the canonical one.
	Stream(ctx context.Context, req *unified.Request) iter.Seq2[unified.Event, error]
}
