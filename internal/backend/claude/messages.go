package claude

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/switchboard/internal/unified"
)

// toMessageParams translates a unified request into Anthropic message params.
func (m *Model) toMessageParams(req *unified.Request) (anthropic.MessageNewParams, error) {
	system, msgs := hoistSystem(req.Messages)

	messages, err := toMessages(msgs)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("conversation has no user or assistant turns")
	}

	tools, err := toTools(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := m.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	for _, text := range system {
		params.System = append(params.System, anthropic.TextBlockParam{Text: text})
	}
	if req.Temperature != nil {
		// Anthropic accepts 0-1, OpenAI clients may send up to 2.
		params.Temperature = anthropic.Float(min(*req.Temperature, 1))
	}

	return params, nil
}

// hoistSystem moves leading assistant turns that hold only text into the
// system prompt. This is where system prompts from both protocols land.
func hoistSystem(msgs []unified.Message) ([]string, []unified.Message) {
	var system []string
	for len(msgs) > 0 && msgs[0].Role == unified.RoleAssistant {
		texts, ok := textOnly(msgs[0])
		if !ok {
			break
		}
		system = append(system, texts...)
		msgs = msgs[1:]
	}
	return system, msgs
}

func textOnly(msg unified.Message) ([]string, bool) {
	texts := make([]string, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		text, ok := part.(unified.Text)
		if !ok {
			return nil, false
		}
		texts = append(texts, text.Value)
	}
	return texts, true
}

// toMessages converts unified messages, merging consecutive turns of the same
// role since the Messages API requires strict alternation.
func toMessages(msgs []unified.Message) ([]anthropic.MessageParam, error) {
	var params []anthropic.MessageParam
	for i, msg := range msgs {
		blocks, err := toContentBlocks(msg.Parts)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == unified.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		if n := len(params); n > 0 && params[n-1].Role == role {
			params[n-1].Content = append(params[n-1].Content, blocks...)
			continue
		}
		params = append(params, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return params, nil
}

func toContentBlocks(parts []unified.Part) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case unified.Text:
			if p.Value == "" {
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(p.Value))
		case unified.ToolCall:
			input := p.Arguments
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(p.ID, input, p.Name))
		case unified.ToolResult:
			blocks = append(blocks, anthropic.NewToolResultBlock(p.ToolCallID, p.Content, false))
		default:
			return nil, fmt.Errorf("unsupported content part %T", part)
		}
	}
	return blocks, nil
}
