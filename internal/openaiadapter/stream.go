package openaiadapter

import (
	"github.com/florianilch/switchboard/internal/unified"
)

type streamState int

const (
	stateBeforeFirstChunk streamState = iota
	stateStreaming
	stateDone
)

// chunkStream turns unified events into chat completion chunks.
//
// The first chunk carries delta.role; later chunks omit it. Every text delta
// and every tool call becomes exactly one chunk, tool calls indexed from 0 in
// stream order with their whole arguments in a single delta. The usage event
// closes the stream with an empty delta and the finish reason. Usage numbers
// are never put on the wire.
type chunkStream struct {
	id      string
	model   string
	created int64

	state         streamState
	toolCallIndex int
	usage         *unified.Usage
}

func newChunkStream(id, model string, created int64, inputTokens int) *chunkStream {
	return &chunkStream{
		id:      id,
		model:   model,
		created: created,
		usage:   unified.NewUsage(inputTokens),
	}
}

// next returns the chunk for ev, or nil if ev produces none.
func (s *chunkStream) next(ev unified.Event) *CreateChatCompletionChunk {
	if s.state == stateDone {
		return nil
	}

	switch e := ev.(type) {
	case unified.TextDelta:
		if e.Text == "" {
			return nil
		}
		text := e.Text
		return s.chunk(ChatCompletionChunkDelta{Content: &text}, nil)

	case unified.ToolCallEvent:
		index := s.toolCallIndex
		s.toolCallIndex++

		call := toMessageToolCall(e)
		call.Index = &index
		return s.chunk(ChatCompletionChunkDelta{ToolCalls: []ChatCompletionMessageToolCall{call}}, nil)

	case unified.UsageEvent:
		s.usage.Record(e)
		reason := finishReason(s.toolCallIndex > 0)
		chunk := s.chunk(ChatCompletionChunkDelta{}, &reason)
		s.state = stateDone
		return chunk

	default:
		return nil
	}
}

// done reports whether the terminal chunk has been produced.
func (s *chunkStream) done() bool {
	return s.state == stateDone
}

func (s *chunkStream) chunk(delta ChatCompletionChunkDelta, finishReason *string) *CreateChatCompletionChunk {
	if s.state == stateBeforeFirstChunk {
		delta.Role = roleAssistant
		s.state = stateStreaming
	}

	return &CreateChatCompletionChunk{
		ID:      s.id,
		Object:  objectChatCompletionChunk,
		Created: s.created,
		Model:   s.model,
		Choices: []ChatCompletionChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
}
