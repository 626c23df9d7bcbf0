package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/unified"
)

// CountTokens counts text as a single user turn with the count_tokens endpoint.
func (m *Model) CountTokens(ctx context.Context, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	count, err := m.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(m.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return 0, toBackendError(err)
	}
	return int(count.InputTokens), nil
}

// pendingToolUse accumulates input_json_delta fragments of one tool_use block.
type pendingToolUse struct {
	id    string
	name  string
	input strings.Builder
}

func (p *pendingToolUse) event() (unified.ToolCallEvent, error) {
	args := map[string]any{}
	if raw := p.input.String(); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return unified.ToolCallEvent{}, fmt.Errorf("failed to decode input of tool_use %s: %w", p.id, err)
		}
	}
	return unified.ToolCallEvent{ID: p.id, Name: p.name, Arguments: args}, nil
}

// Stream runs the request through the streaming Messages endpoint. Text deltas
// are forwarded as they arrive; tool_use blocks are emitted once complete.
func (m *Model) Stream(ctx context.Context, req *unified.Request) iter.Seq2[unified.Event, error] {
	return func(yield func(unified.Event, error) bool) {
		params, err := m.toMessageParams(req)
		if err != nil {
			yield(nil, backend.InvalidRequest("invalid request: "+err.Error(), err))
			return
		}

		stream := m.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var (
			tool         *pendingToolUse
			outputTokens int64 = -1
		)

		for stream.Next() {
			event := stream.Current()

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					tool = &pendingToolUse{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !yield(unified.TextDelta{Text: delta.Text}, nil) {
						return
					}
				case anthropic.InputJSONDelta:
					if tool == nil {
						yield(nil, backend.Protocol("input_json_delta outside tool_use block", nil))
						return
					}
					tool.input.WriteString(delta.PartialJSON)
				}

			case anthropic.ContentBlockStopEvent:
				if tool == nil {
					continue
				}
				call, err := tool.event()
				tool = nil
				if err != nil {
					yield(nil, backend.Protocol("backend sent malformed tool input", err))
					return
				}
				if !yield(call, nil) {
					return
				}

			case anthropic.MessageDeltaEvent:
				outputTokens = ev.Usage.OutputTokens
			}
		}

		if err := stream.Err(); err != nil {
			yield(nil, toBackendError(err))
			return
		}

		if outputTokens >= 0 {
			yield(unified.UsageEvent{OutputTokens: int(outputTokens)}, nil)
		}
	}
}
