// Package backendtest provides a scripted backend.Model for tests.
package backendtest

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/unified"
)

// Model replays a fixed event script. Tokens are counted as whitespace separated
// words so tests can predict usage numbers.
type Model struct {
	// Events is replayed by every Stream call.
	Events []unified.Event
	// Err, when set, is yielded after Events.
	Err error
	// CountErr, when set, fails every CountTokens call.
	CountErr error
	// Block, when set, makes Stream wait for ctx cancellation after Events.
	Block bool

	mu       sync.Mutex
	requests []*unified.Request
	counts   atomic.Int64
	// Started is closed when Stream is first pulled, if non-nil.
	Started chan struct{}
	// Stopped is closed when Stream returns, if non-nil.
	Stopped chan struct{}
}

var _ backend.Model = (*Model)(nil)

// New returns a Model replaying events.
func New(events ...unified.Event) *Model {
	return &Model{Events: events}
}

func (m *Model) Name() string { return "scripted" }

func (m *Model) CountTokens(ctx context.Context, text string) (int, error) {
	m.counts.Add(1)
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(strings.Fields(text)), nil
}

// CountCalls returns how many times CountTokens was called.
func (m *Model) CountCalls() int {
	return int(m.counts.Load())
}

// Requests returns the requests received by Stream, in order.
func (m *Model) Requests() []*unified.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*unified.Request(nil), m.requests...)
}

func (m *Model) Stream(ctx context.Context, req *unified.Request) iter.Seq2[unified.Event, error] {
	return func(yield func(unified.Event, error) bool) {
		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()

		if m.Started != nil {
			close(m.Started)
		}
		if m.Stopped != nil {
			defer close(m.Stopped)
		}

		for _, ev := range m.Events {
			if ctx.Err() != nil {
				return
			}
			if !yield(ev, nil) {
				return
			}
		}

		if m.Block {
			<-ctx.Done()
			return
		}

		if m.Err != nil {
			yield(nil, m.Err)
		}
	}
}
