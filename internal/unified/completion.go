package unified

import (
	"errors"
	"iter"
	"strings"
)

// ErrMissingUsage is returned by Collect when a run ends without a UsageEvent.
var ErrMissingUsage = errors.New("run ended without usage event")

// Completion is a fully folded run, the input of the non-streaming formatters.
type Completion struct {
	Text      string
	ToolCalls []ToolCallEvent
	Usage     *Usage
}

// HasToolCalls reports whether the run produced at least one tool call.
func (c *Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

// Collect drains events into a Completion. No partial result is returned on error.
func Collect(events iter.Seq2[Event, error]) (*Completion, error) {
	var text strings.Builder
	completion := &Completion{Usage: NewUsage(0)}

	for ev, err := range events {
		if err != nil {
			return nil, err
		}
		switch e := ev.(type) {
		case TextDelta:
			text.WriteString(e.Text)
		case ToolCallEvent:
			completion.ToolCalls = append(completion.ToolCalls, e)
		case UsageEvent:
			completion.Usage.Record(e)
		}
	}

	if !completion.Usage.Final() {
		return nil, ErrMissingUsage
	}

	completion.Text = text.String()
	return completion, nil
}
