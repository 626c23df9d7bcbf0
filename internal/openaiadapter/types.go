package openaiadapter

import "encoding/json"

// CreateChatCompletionRequest is the body of POST /v1/chat/completions.
// Validation tags describe the shape checked before the adapter runs.
type CreateChatCompletionRequest struct {
	Model               string                         `json:"model" validate:"required"`
	Messages            []ChatCompletionRequestMessage `json:"messages" validate:"required,min=1,dive"`
	Stream              *bool                          `json:"stream,omitempty"`
	Temperature         *float64                       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens           *int                           `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
	MaxCompletionTokens *int                           `json:"max_completion_tokens,omitempty" validate:"omitempty,gte=1"`
	Tools               []ChatCompletionTool           `json:"tools,omitempty" validate:"dive"`
	User                string                         `json:"user,omitempty"`
}

// IsStreaming reports whether the client asked for SSE.
func (r *CreateChatCompletionRequest) IsStreaming() bool {
	return r.Stream != nil && *r.Stream
}

// ChatCompletionRequestMessage is one input message. Content is either a
// string or an array of typed content parts, so it is kept raw.
type ChatCompletionRequestMessage struct {
	Role       string                          `json:"role" validate:"required"`
	Content    json.RawMessage                 `json:"content,omitempty"`
	Name       string                          `json:"name,omitempty"`
	ToolCalls  []ChatCompletionMessageToolCall `json:"tool_calls,omitempty"`
	ToolCallID string                          `json:"tool_call_id,omitempty"`
}

// ChatCompletionMessageToolCall is a function call. Index is only set in streaming deltas.
type ChatCompletionMessageToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionTool declares a tool the model may call.
type ChatCompletionTool struct {
	Type     string             `json:"type" validate:"required"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function with a JSON schema for its parameters.
type FunctionDefinition struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// CreateChatCompletionResponse is the non-streaming response body.
type CreateChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   CompletionUsage        `json:"usage"`
}

type ChatCompletionChoice struct {
	Index        int                           `json:"index"`
	Message      ChatCompletionResponseMessage `json:"message"`
	FinishReason string                        `json:"finish_reason"`
	Logprobs     *json.RawMessage              `json:"logprobs"`
}

// ChatCompletionResponseMessage is the assistant message of a choice.
// Content is null when the model only called tools.
type ChatCompletionResponseMessage struct {
	Role      string                          `json:"role"`
	Content   *string                         `json:"content"`
	ToolCalls []ChatCompletionMessageToolCall `json:"tool_calls,omitempty"`
}

type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletionChunk is one SSE frame of a streaming response.
type CreateChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
}

type ChatCompletionChunkChoice struct {
	Index        int                      `json:"index"`
	Delta        ChatCompletionChunkDelta `json:"delta"`
	FinishReason *string                  `json:"finish_reason"`
}

type ChatCompletionChunkDelta struct {
	Role      string                          `json:"role,omitempty"`
	Content   *string                         `json:"content,omitempty"`
	ToolCalls []ChatCompletionMessageToolCall `json:"tool_calls,omitempty"`
}

const (
	objectChatCompletion      = "chat.completion"
	objectChatCompletionChunk = "chat.completion.chunk"

	roleAssistant    = "assistant"
	toolTypeFunction = "function"

	finishReasonStop      = "stop"
	finishReasonToolCalls = "tool_calls"
)
