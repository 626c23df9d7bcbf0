package unified

// Event is one element of a backend run: TextDelta, ToolCallEvent or UsageEvent.
type Event interface {
	isEvent()
}

// TextDelta is an incremental piece of assistant text.
type TextDelta struct {
	Text string
}

// ToolCallEvent is a complete tool call. Arguments arrive whole, never fragmented.
type ToolCallEvent struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// UsageEvent is the terminal event of every run.
type UsageEvent struct {
	InputTokens  int
	OutputTokens int
}

func (TextDelta) isEvent()     {}
func (ToolCallEvent) isEvent() {}
func (UsageEvent) isEvent()    {}
