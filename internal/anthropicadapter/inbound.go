package anthropicadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/florianilch/switchboard/internal/unified"
)

// toUnifiedMessages converts the system prompt and messages into unified messages.
//
// A system prompt becomes a leading assistant turn holding one text part.
// Content blocks map one to one; image blocks and unknown block types are
// dropped. Messages that end up without parts are omitted.
func toUnifiedMessages(ctx context.Context, logger *slog.Logger, system json.RawMessage, msgs []InputMessage) []unified.Message {
	result := make([]unified.Message, 0, len(msgs)+1)

	if prompt := unified.FlattenContent(system); prompt != "" {
		result = append(result, unified.NewMessage(unified.RoleAssistant, unified.Text{Value: prompt}))
	}

	for i, msg := range msgs {
		role := unified.RoleUser
		if msg.Role == "assistant" {
			role = unified.RoleAssistant
		}
		parts := contentParts(ctx, logger, i, msg.Content)
		result = unified.AppendNonEmpty(result, unified.NewMessage(role, parts...))
	}
	return result
}

func contentParts(ctx context.Context, logger *slog.Logger, msgIndex int, content json.RawMessage) []unified.Part {
	if len(content) == 0 {
		return nil
	}

	value := gjson.ParseBytes(content)
	if value.Type == gjson.String {
		if value.String() == "" {
			return nil
		}
		return []unified.Part{unified.Text{Value: value.String()}}
	}
	if !value.IsArray() {
		return nil
	}

	var parts []unified.Part
	value.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			if text := block.Get("text").String(); text != "" {
				parts = append(parts, unified.Text{Value: text})
			}

		case "tool_use":
			call, err := toToolCall(block)
			if err != nil {
				logger.WarnContext(ctx, "skipping tool_use block with undecodable input",
					"message_index", msgIndex, "error", err)
				return true
			}
			parts = append(parts, call)

		case "tool_result":
			parts = append(parts, unified.ToolResult{
				ToolCallID: block.Get("tool_use_id").String(),
				Content:    unified.FlattenContent(json.RawMessage(block.Get("content").Raw)),
			})
		}
		return true
	})
	return parts
}

func toToolCall(block gjson.Result) (unified.ToolCall, error) {
	call := unified.ToolCall{
		ID:   block.Get("id").String(),
		Name: block.Get("name").String(),
	}

	input := block.Get("input")
	if input.Exists() && input.Type != gjson.Null {
		if err := json.Unmarshal([]byte(input.Raw), &call.Arguments); err != nil {
			return unified.ToolCall{}, &unified.ToolArgumentError{ToolCallID: call.ID, Name: call.Name, Err: err}
		}
	}
	return call, nil
}

func toToolDefinitions(tools []Tool) []unified.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]unified.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, unified.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return defs
}

func toUnifiedRequest(ctx context.Context, logger *slog.Logger, req CreateMessageRequest) *unified.Request {
	return &unified.Request{
		Model:       req.Model,
		Messages:    toUnifiedMessages(ctx, logger, req.System, req.Messages),
		Tools:       toToolDefinitions(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}
