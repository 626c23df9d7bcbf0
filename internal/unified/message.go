package unified

import (
	"encoding/json"
	"strings"
)

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one typed fragment of a Message: Text, ToolCall or ToolResult.
type Part interface {
	isPart()
}

// Text is plain text content.
type Text struct {
	Value string
}

// ToolCall is a function invocation requested by the assistant.
// ID is caller supplied and unique within a run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult carries the output of a tool call back to the model.
// Content is always a single string; structured results are flattened by the adapters.
type ToolResult struct {
	ToolCallID string
	Content    string
}

func (Text) isPart()       {}
func (ToolCall) isPart()   {}
func (ToolResult) isPart() {}

// Message is one conversation turn.
type Message struct {
	Role  Role
	Parts []Part
}

// NewMessage returns a message with the given role and parts.
func NewMessage(role Role, parts ...Part) Message {
	return Message{Role: role, Parts: parts}
}

// IsEmpty reports whether the message carries no parts.
func (m Message) IsEmpty() bool {
	return len(m.Parts) == 0
}

// Render flattens the message to the text the backend will see. It is the
// payload used for token counting.
func (m Message) Render() string {
	var b strings.Builder
	for _, part := range m.Parts {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		switch p := part.(type) {
		case Text:
			b.WriteString(p.Value)
		case ToolCall:
			b.WriteString(p.Name)
			b.WriteByte(' ')
			b.WriteString(EncodeArguments(p.Arguments))
		case ToolResult:
			b.WriteString(p.Content)
		}
	}
	return b.String()
}

// AppendNonEmpty appends msg to msgs unless it has no parts.
// Both protocols silently skip empty turns.
func AppendNonEmpty(msgs []Message, msg Message) []Message {
	if msg.IsEmpty() {
		return msgs
	}
	return append(msgs, msg)
}

// EncodeArguments serializes tool arguments to a JSON object string.
// Nil arguments encode as "{}" so every wire format receives a valid object.
func EncodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is everything a backend needs for one run.
type Request struct {
	// Model is the model name requested by the client. Backends serve a single
	// configured model and only echo this value.
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}
