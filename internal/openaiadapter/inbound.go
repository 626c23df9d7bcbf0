package openaiadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/florianilch/switchboard/internal/unified"
)

// toUnifiedMessages converts OpenAI messages into unified messages.
//
// system, developer and assistant turns become assistant turns; user and tool
// turns become user turns. Messages that end up without parts are omitted.
// Tool calls whose arguments do not decode are logged and skipped.
func toUnifiedMessages(ctx context.Context, logger *slog.Logger, msgs []ChatCompletionRequestMessage) []unified.Message {
	result := make([]unified.Message, 0, len(msgs))
	for i, msg := range msgs {
		switch msg.Role {
		case "tool":
			result = unified.AppendNonEmpty(result, toolMessage(msg))

		case "user":
			result = unified.AppendNonEmpty(result, unified.NewMessage(unified.RoleUser, textParts(msg.Content)...))

		case "system", "developer":
			result = unified.AppendNonEmpty(result, unified.NewMessage(unified.RoleAssistant, textParts(msg.Content)...))

		case "assistant":
			parts := textParts(msg.Content)
			for _, call := range msg.ToolCalls {
				toolCall, err := toToolCall(call)
				if err != nil {
					logger.WarnContext(ctx, "skipping tool call with undecodable arguments",
						"message_index", i, "error", err)
					continue
				}
				parts = append(parts, toolCall)
			}
			result = unified.AppendNonEmpty(result, unified.NewMessage(unified.RoleAssistant, parts...))

		default:
			logger.WarnContext(ctx, "skipping message with unknown role", "message_index", i, "role", msg.Role)
		}
	}
	return result
}

// toolMessage maps a tool turn to a single ToolResult. Without a tool_call_id
// there is nothing to correlate, so the content is kept as plain user text.
func toolMessage(msg ChatCompletionRequestMessage) unified.Message {
	if msg.ToolCallID == "" {
		return unified.NewMessage(unified.RoleUser, textParts(msg.Content)...)
	}
	return unified.NewMessage(unified.RoleUser, unified.ToolResult{
		ToolCallID: msg.ToolCallID,
		Content:    unified.FlattenContent(msg.Content),
	})
}

func textParts(content json.RawMessage) []unified.Part {
	text := unified.FlattenContent(content)
	if text == "" {
		return nil
	}
	return []unified.Part{unified.Text{Value: text}}
}

func toToolCall(call ChatCompletionMessageToolCall) (unified.ToolCall, error) {
	var args map[string]any
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return unified.ToolCall{}, &unified.ToolArgumentError{
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Err:        err,
			}
		}
	}
	return unified.ToolCall{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: args,
	}, nil
}

// toToolDefinitions keeps function tools; other tool types have no unified equivalent.
func toToolDefinitions(ctx context.Context, logger *slog.Logger, tools []ChatCompletionTool) []unified.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	defs := make([]unified.ToolDefinition, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != toolTypeFunction {
			logger.WarnContext(ctx, "skipping unsupported tool type", "tool_index", i, "type", tool.Type)
			continue
		}
		defs = append(defs, unified.ToolDefinition{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	return defs
}

// toUnifiedRequest converts the whole request.
func toUnifiedRequest(ctx context.Context, logger *slog.Logger, req CreateChatCompletionRequest) *unified.Request {
	unifiedReq := &unified.Request{
		Model:       req.Model,
		Messages:    toUnifiedMessages(ctx, logger, req.Messages),
		Tools:       toToolDefinitions(ctx, logger, req.Tools),
		Temperature: req.Temperature,
	}
	switch {
	case req.MaxCompletionTokens != nil:
		unifiedReq.MaxTokens = *req.MaxCompletionTokens
	case req.MaxTokens != nil:
		unifiedReq.MaxTokens = *req.MaxTokens
	}
	return unifiedReq
}
