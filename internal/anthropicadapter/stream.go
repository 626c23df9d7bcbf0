package anthropicadapter

import (
	"github.com/florianilch/switchboard/internal/unified"
)

// eventStream turns unified events into Anthropic stream events while tracking
// the content block lifecycle.
//
// At most one text block is open at a time. A tool call closes an open text
// block before emitting its own start/delta/stop triple, so text and tool use
// never share an index. Indices increase strictly across the stream and every
// started block is stopped exactly once.
type eventStream struct {
	id    string
	model string

	index      int
	textOpen   bool
	sawToolUse bool
	done       bool
	usage      *unified.Usage
}

func newEventStream(id, model string, inputTokens int) *eventStream {
	return &eventStream{
		id:    id,
		model: model,
		usage: unified.NewUsage(inputTokens),
	}
}

// start returns message_start. Usage is zeroed; the real numbers arrive with message_delta.
func (s *eventStream) start() StreamEvent {
	return StreamEvent{
		Name: EventMessageStart,
		Payload: MessageStartEvent{
			Type: EventMessageStart,
			Message: Message{
				ID:      s.id,
				Type:    typeMessage,
				Role:    roleAssistant,
				Model:   s.model,
				Content: []ContentBlock{},
			},
		},
	}
}

// next returns the events produced by ev, in emission order.
func (s *eventStream) next(ev unified.Event) []StreamEvent {
	if s.done {
		return nil
	}

	switch e := ev.(type) {
	case unified.TextDelta:
		if e.Text == "" {
			return nil
		}
		var events []StreamEvent
		if !s.textOpen {
			events = append(events, s.blockStart(newTextBlock("")))
			s.textOpen = true
		}
		return append(events, s.blockDelta(TextDelta{Type: deltaTypeText, Text: e.Text}))

	case unified.ToolCallEvent:
		events := s.closeText()
		s.sawToolUse = true
		events = append(events,
			s.blockStart(newToolUseBlock(e.ID, e.Name, nil)),
			s.blockDelta(InputJSONDelta{Type: deltaTypeInputJSON, PartialJSON: unified.EncodeArguments(e.Arguments)}),
			s.blockStop(),
		)
		s.index++
		return events

	case unified.UsageEvent:
		s.usage.Record(e)
		events := s.closeText()
		events = append(events,
			StreamEvent{
				Name: EventMessageDelta,
				Payload: MessageDeltaEvent{
					Type:  EventMessageDelta,
					Delta: MessageDelta{StopReason: stopReason(s.sawToolUse)},
					Usage: DeltaUsage{OutputTokens: s.usage.OutputTokens()},
				},
			},
			StreamEvent{Name: EventMessageStop, Payload: MessageStopEvent{Type: EventMessageStop}},
		)
		s.done = true
		return events

	default:
		return nil
	}
}

// closeText stops the open text block, if any, and advances the index.
func (s *eventStream) closeText() []StreamEvent {
	if !s.textOpen {
		return nil
	}
	stop := s.blockStop()
	s.textOpen = false
	s.index++
	return []StreamEvent{stop}
}

func (s *eventStream) blockStart(block ContentBlock) StreamEvent {
	return StreamEvent{
		Name:    EventContentBlockStart,
		Payload: ContentBlockStartEvent{Type: EventContentBlockStart, Index: s.index, ContentBlock: block},
	}
}

func (s *eventStream) blockDelta(delta any) StreamEvent {
	return StreamEvent{
		Name:    EventContentBlockDelta,
		Payload: ContentBlockDeltaEvent{Type: EventContentBlockDelta, Index: s.index, Delta: delta},
	}
}

func (s *eventStream) blockStop() StreamEvent {
	return StreamEvent{
		Name:    EventContentBlockStop,
		Payload: ContentBlockStopEvent{Type: EventContentBlockStop, Index: s.index},
	}
}
