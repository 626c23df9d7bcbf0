package anthropicadapter

import "encoding/json"

// CreateMessageRequest is the body of POST /v1/messages.
// Validation tags describe the shape checked before the adapter runs.
type CreateMessageRequest struct {
	Model       string          `json:"model" validate:"required"`
	Messages    []InputMessage  `json:"messages" validate:"required,min=1,dive"`
	MaxTokens   int             `json:"max_tokens" validate:"required,gte=1,lte=4096"`
	System      json.RawMessage `json:"system,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
	Tools       []Tool          `json:"tools,omitempty" validate:"dive"`
}

// CountTokensRequest is the body of POST /v1/messages/count_tokens.
type CountTokensRequest struct {
	Model    string          `json:"model" validate:"required"`
	Messages []InputMessage  `json:"messages" validate:"required,min=1,dive"`
	System   json.RawMessage `json:"system,omitempty"`
	Tools    []Tool          `json:"tools,omitempty" validate:"dive"`
}

// CountTokensResponse is the count_tokens response body.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// InputMessage is one conversation turn. Content is a string or an array of
// content blocks, so it is kept raw.
type InputMessage struct {
	Role    string          `json:"role" validate:"required,oneof=user assistant"`
	Content json.RawMessage `json:"content" validate:"required"`
}

// Tool declares a tool the model may call.
type Tool struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Message is the non-streaming response body, and the message payload of message_start.
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ContentBlock is a response content block: TextBlock or ToolUseBlock.
type ContentBlock interface {
	isContentBlock()
}

type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolUseBlock is a tool call. Input is always an object, never null.
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (TextBlock) isContentBlock()    {}
func (ToolUseBlock) isContentBlock() {}

func newTextBlock(text string) TextBlock {
	return TextBlock{Type: blockTypeText, Text: text}
}

func newToolUseBlock(id, name string, input map[string]any) ToolUseBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ToolUseBlock{Type: blockTypeToolUse, ID: id, Name: name, Input: input}
}

// StreamEvent is one SSE frame: the event name and its JSON payload.
type StreamEvent struct {
	Name    string
	Payload any
}

type MessageStartEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type ContentBlockDeltaEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta any    `json:"delta"`
}

type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type InputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage DeltaUsage   `json:"usage"`
}

type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type DeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

type MessageStopEvent struct {
	Type string `json:"type"`
}

const (
	typeMessage   = "message"
	roleAssistant = "assistant"

	blockTypeText    = "text"
	blockTypeToolUse = "tool_use"

	deltaTypeText      = "text_delta"
	deltaTypeInputJSON = "input_json_delta"

	stopReasonEndTurn = "end_turn"
	stopReasonToolUse = "tool_use"

	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
)
