package openaiadapter

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/florianilch/switchboard/internal/unified"
)

// newResponse folds a completed run into a chat completion response.
func newResponse(id, model string, created int64, completion *unified.Completion) *CreateChatCompletionResponse {
	message := ChatCompletionResponseMessage{
		Role:      roleAssistant,
		ToolCalls: toMessageToolCalls(completion.ToolCalls),
	}

	// content is null when the model only called tools, "" when it produced nothing.
	if completion.Text != "" || !completion.HasToolCalls() {
		text := completion.Text
		message.Content = &text
	}

	return &CreateChatCompletionResponse{
		ID:      id,
		Object:  objectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      message,
			FinishReason: finishReason(completion.HasToolCalls()),
		}},
		Usage: toCompletionUsage(completion.Usage),
	}
}

func toMessageToolCalls(calls []unified.ToolCallEvent) []ChatCompletionMessageToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]ChatCompletionMessageToolCall, 0, len(calls))
	for _, call := range calls {
		result = append(result, toMessageToolCall(call))
	}
	return result
}

func toMessageToolCall(call unified.ToolCallEvent) ChatCompletionMessageToolCall {
	// OpenAI requires a tool call id; generate one if the backend omitted it.
	id := call.ID
	if id == "" {
		id = newToolCallID()
	}
	return ChatCompletionMessageToolCall{
		ID:   id,
		Type: toolTypeFunction,
		Function: FunctionCall{
			Name:      call.Name,
			Arguments: unified.EncodeArguments(call.Arguments),
		},
	}
}

func toCompletionUsage(usage *unified.Usage) CompletionUsage {
	return CompletionUsage{
		PromptTokens:     usage.InputTokens(),
		CompletionTokens: usage.OutputTokens(),
		TotalTokens:      usage.TotalTokens(),
	}
}

func finishReason(sawToolCall bool) string {
	if sawToolCall {
		return finishReasonToolCalls
	}
	return finishReasonStop
}

// newResponseID generates an OpenAI-compatible response ID (chatcmpl-<token>).
func newResponseID() string {
	b := make([]byte, 24) // 24 bytes yields 32 URL-safe base64 characters
	// crypto/rand.Read never returns an error.
	_, _ = rand.Read(b)
	// Use RawURLEncoding to avoid '+', '/' and trailing '='
	return "chatcmpl-" + base64.RawURLEncoding.EncodeToString(b)
}

// newToolCallID generates an OpenAI-style tool call ID (format: call_<8-char-uuid>).
func newToolCallID() string {
	return fmt.Sprintf("call_%s", uuid.New().String()[:8])
}
