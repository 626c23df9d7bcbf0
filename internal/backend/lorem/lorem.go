// Package lorem implements an offline backend that streams lorem ipsum text.
// It needs no credentials and is used for local development and demos.
package lorem

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/tokenizer"
	"github.com/florianilch/switchboard/internal/unified"
)

const (
	// defaultMaxWords caps a response when the request sets no max_tokens.
	defaultMaxWords = 40
	defaultDelay    = 50 * time.Millisecond
)

// Model generates lorem ipsum responses word by word.
//
// When the request declares tools and the conversation does not end with a
// tool result, the response finishes with one call to a declared tool, rotating
// through the declared tools by conversation length.
type Model struct {
	name    string
	delay   time.Duration
	counter *tokenizer.Counter

	mu        sync.Mutex
	generator *loremgen.Lorem
}

var _ backend.Model = (*Model)(nil)

// Option configures a Model.
type Option func(*Model)

// WithDelay sets the pause between streamed words. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(m *Model) { m.delay = d }
}

// WithCounter sets the token counter.
func WithCounter(counter *tokenizer.Counter) Option {
	return func(m *Model) { m.counter = counter }
}

// New returns a lorem backend registered under name.
func New(name string, opts ...Option) *Model {
	m := &Model{
		name:      name,
		delay:     defaultDelay,
		counter:   tokenizer.New(tokenizer.DefaultEncoding),
		generator: loremgen.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) CountTokens(ctx context.Context, text string) (int, error) {
	return m.counter.Count(ctx, text), nil
}

func (m *Model) Stream(ctx context.Context, req *unified.Request) iter.Seq2[unified.Event, error] {
	return func(yield func(unified.Event, error) bool) {
		maxWords := defaultMaxWords
		if req.MaxTokens > 0 && req.MaxTokens < maxWords {
			maxWords = req.MaxTokens
		}

		words := strings.Fields(m.generateWords(maxWords))
		if len(words) > maxWords {
			words = words[:maxWords]
		}

		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			if !m.pause(ctx) {
				return
			}
			if !yield(unified.TextDelta{Text: word}, nil) {
				return
			}
		}

		if call, ok := toolCall(req); ok {
			if !m.pause(ctx) {
				return
			}
			yield(call, nil)
		}
	}
}

// pause waits for the configured delay. It reports false if ctx ended first.
func (m *Model) pause(ctx context.Context) bool {
	if m.delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(m.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// generateWords returns at least targetWords words of lorem ipsum.
func (m *Model) generateWords(targetWords int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	wordCount := 0
	for wordCount < targetWords {
		sentence := m.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}
	return strings.TrimSpace(sb.String())
}

func toolCall(req *unified.Request) (unified.ToolCallEvent, bool) {
	if len(req.Tools) == 0 || endsWithToolResult(req.Messages) {
		return unified.ToolCallEvent{}, false
	}

	tool := req.Tools[len(req.Messages)%len(req.Tools)]
	return unified.ToolCallEvent{
		ID:        fmt.Sprintf("toolu_lorem_%d", len(req.Messages)),
		Name:      tool.Name,
		Arguments: mockArguments(tool.InputSchema),
	}, true
}

func endsWithToolResult(msgs []unified.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	for _, part := range msgs[len(msgs)-1].Parts {
		if _, ok := part.(unified.ToolResult); ok {
			return true
		}
	}
	return false
}

// mockArguments fills every declared property of a JSON schema with a placeholder
// value of the declared type.
func mockArguments(schema map[string]any) map[string]any {
	args := map[string]any{}
	properties, _ := schema["properties"].(map[string]any)
	for name, raw := range properties {
		prop, _ := raw.(map[string]any)
		switch prop["type"] {
		case "integer", "number":
			args[name] = 1
		case "boolean":
			args[name] = true
		case "array":
			args[name] = []any{"lorem"}
		case "object":
			args[name] = map[string]any{}
		default:
			args[name] = "lorem"
		}
	}
	return args
}
