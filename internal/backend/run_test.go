package backend_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/backend/backendtest"
	"github.com/florianilch/switchboard/internal/unified"
)

func request(texts ...string) *unified.Request {
	req := &unified.Request{Model: "test"}
	for _, text := range texts {
		req.Messages = append(req.Messages, unified.NewMessage(unified.RoleUser, unified.Text{Value: text}))
	}
	return req
}

func TestStart_CountsEveryMessage(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	run, err := backend.Start(t.Context(), model, request("one two", "three", "four five six"))
	require.NoError(t, err)

	assert.Equal(t, 6, run.InputTokens())
}

func TestStart_MemoizesIdenticalPayloadsWithinRun(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	_, err := backend.Start(t.Context(), model, request("same text", "same text", "other"))
	require.NoError(t, err)
	assert.Equal(t, 2, model.CountCalls())

	// No cache across runs.
	_, err = backend.Start(t.Context(), model, request("same text"))
	require.NoError(t, err)
	assert.Equal(t, 3, model.CountCalls())
}

func TestStart_CountFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	model := backendtest.New()
	model.CountErr = errors.New("tokenizer offline")

	_, err := backend.Start(t.Context(), model, request("hi"))
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestRun_EventsEndWithSingleUsage(t *testing.T) {
	t.Parallel()

	model := backendtest.New(
		unified.TextDelta{Text: "Hello"},
		unified.TextDelta{Text: " there"},
	)
	run, err := backend.Start(t.Context(), model, request("Hi"))
	require.NoError(t, err)

	var events []unified.Event
	for ev, err := range run.Events(t.Context()) {
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, unified.UsageEvent{InputTokens: 1, OutputTokens: 2}, events[2])
}

func TestRun_BackendReportedOutputWins(t *testing.T) {
	t.Parallel()

	model := backendtest.New(
		unified.TextDelta{Text: "Hello"},
		unified.UsageEvent{InputTokens: 99, OutputTokens: 7},
	)
	run, err := backend.Start(t.Context(), model, request("Hi there"))
	require.NoError(t, err)

	completion, err := unified.Collect(run.Events(t.Context()))
	require.NoError(t, err)

	assert.Equal(t, 2, completion.Usage.InputTokens())
	assert.Equal(t, 7, completion.Usage.OutputTokens())
}

func TestRun_NotRestartable(t *testing.T) {
	t.Parallel()

	run, err := backend.Start(t.Context(), backendtest.New(), request("Hi"))
	require.NoError(t, err)

	_, err = unified.Collect(run.Events(t.Context()))
	require.NoError(t, err)

	_, err = unified.Collect(run.Events(t.Context()))
	assert.ErrorIs(t, err, backend.ErrProtocol)
}

func TestRun_BackendErrorIsClassified(t *testing.T) {
	t.Parallel()

	model := backendtest.New(unified.TextDelta{Text: "partial"})
	model.Err = backend.Protocol("truncated stream", nil)

	run, err := backend.Start(t.Context(), model, request("Hi"))
	require.NoError(t, err)

	_, err = unified.Collect(run.Events(t.Context()))
	assert.ErrorIs(t, err, backend.ErrProtocol)
}

func TestRun_CancellationStopsBackend(t *testing.T) {
	t.Parallel()

	model := backendtest.New(unified.TextDelta{Text: "first"})
	model.Block = true
	model.Stopped = make(chan struct{})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	run, err := backend.Start(ctx, model, request("Hi"))
	require.NoError(t, err)

	var gotErr error
	for ev, err := range run.Events(ctx) {
		if err != nil {
			gotErr = err
			break
		}
		if _, ok := ev.(unified.TextDelta); ok {
			cancel()
		}
	}

	assert.ErrorIs(t, gotErr, backend.ErrCancelled)
	<-model.Stopped
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "canceled", err: context.Canceled, want: backend.ErrCancelled},
		{name: "deadline", err: fmt.Errorf("wrapped: %w", context.DeadlineExceeded), want: backend.ErrCancelled},
		{name: "unknown", err: errors.New("connection refused"), want: backend.ErrUnavailable},
		{name: "classified", err: fmt.Errorf("ctx: %w", backend.Protocol("bad", nil)), want: backend.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, backend.Classify(tt.err), tt.want)
		})
	}

	assert.Nil(t, backend.Classify(nil))
}
