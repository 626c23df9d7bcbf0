package anthropicadapter

import (
	"strings"

	"github.com/google/uuid"

	"github.com/florianilch/switchboard/internal/unified"
)

// newMessage folds a completed run into a message response: one text block if
// any text was produced, then one tool_use block per call in call order.
func newMessage(id, model string, completion *unified.Completion) *Message {
	content := make([]ContentBlock, 0, len(completion.ToolCalls)+1)
	if completion.Text != "" {
		content = append(content, newTextBlock(completion.Text))
	}
	for _, call := range completion.ToolCalls {
		content = append(content, newToolUseBlock(call.ID, call.Name, call.Arguments))
	}

	stopReason := stopReason(completion.HasToolCalls())
	return &Message{
		ID:         id,
		Type:       typeMessage,
		Role:       roleAssistant,
		Model:      model,
		Content:    content,
		StopReason: &stopReason,
		Usage: Usage{
			InputTokens:  completion.Usage.InputTokens(),
			OutputTokens: completion.Usage.OutputTokens(),
		},
	}
}

func stopReason(sawToolUse bool) string {
	if sawToolUse {
		return stopReasonToolUse
	}
	return stopReasonEndTurn
}

// newMessageID generates an Anthropic-style message ID (msg_<uuid hex>).
func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
