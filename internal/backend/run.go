package backend

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/switchboard/internal/unified"
)

// maxConcurrentCounts bounds the per-message token counting fan-out.
const maxConcurrentCounts = 8

var errRunConsumed = errors.New("run events already consumed")

// Run is a single backend invocation with its input token count precomputed.
type Run struct {
	model       Model
	req         *unified.Request
	inputTokens int
	consumed    atomic.Bool
}

// Start counts the input tokens of req and prepares a run. It blocks until
// counting is done; no event is produced before that.
func Start(ctx context.Context, model Model, req *unified.Request) (*Run, error) {
	inputTokens, err := CountMessages(ctx, model, req.Messages)
	if err != nil {
		return nil, err
	}

	return &Run{
		model:       model,
		req:         req,
		inputTokens: inputTokens,
	}, nil
}

// InputTokens returns the precomputed prompt token count.
func (r *Run) InputTokens() int {
	return r.inputTokens
}

// Events streams the run. It may be ranged over once; a second iteration
// yields a protocol error. The last event of a successful run is the single
// unified.UsageEvent carrying InputTokens.
func (r *Run) Events(ctx context.Context) iter.Seq2[unified.Event, error] {
	return func(yield func(unified.Event, error) bool) {
		if !r.consumed.CompareAndSwap(false, true) {
			yield(nil, Protocol("run is not restartable", errRunConsumed))
			return
		}

		var (
			output         strings.Builder
			reportedOutput = -1
		)

		for ev, err := range r.model.Stream(ctx, r.req) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(nil, Cancelled(ctxErr))
				return
			}
			if err != nil {
				yield(nil, Classify(err))
				return
			}

			switch e := ev.(type) {
			case unified.TextDelta:
				output.WriteString(e.Text)
			case unified.ToolCallEvent:
				output.WriteString(unified.EncodeArguments(e.Arguments))
			case unified.UsageEvent:
				reportedOutput = e.OutputTokens
				continue
			case nil:
				yield(nil, Protocol("backend produced an empty event", nil))
				return
			}

			if !yield(ev, nil) {
				return
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(nil, Cancelled(ctxErr))
			return
		}

		outputTokens := reportedOutput
		if outputTokens < 0 {
			n, err := r.model.CountTokens(ctx, output.String())
			if err != nil {
				yield(nil, Classify(err))
				return
			}
			outputTokens = n
		}

		yield(unified.UsageEvent{
			InputTokens:  r.inputTokens,
			OutputTokens: outputTokens,
		}, nil)
	}
}

// CountMessages sums the token counts of msgs, counting each message
// concurrently. Identical payloads are counted once per call; nothing is
// cached across calls.
func CountMessages(ctx context.Context, model Model, msgs []unified.Message) (int, error) {
	memo := newCountMemo()

	counts := make([]int, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCounts)

	for i, msg := range msgs {
		payload := msg.Render()
		g.Go(func() error {
			n, err := memo.count(gctx, model, payload)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, Cancelled(ctxErr)
		}
		return 0, Classify(err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

type countMemo struct {
	mu      sync.Mutex
	entries map[string]*countEntry
}

type countEntry struct {
	once sync.Once
	n    int
	err  error
}

func newCountMemo() *countMemo {
	return &countMemo{entries: make(map[string]*countEntry)}
}

func (m *countMemo) count(ctx context.Context, model Model, payload string) (int, error) {
	m.mu.Lock()
	entry, ok := m.entries[payload]
	if !ok {
		entry = &countEntry{}
		m.entries[payload] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.n, entry.err = model.CountTokens(ctx, payload)
	})
	return entry.n, entry.err
}
