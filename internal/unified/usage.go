package unified

// Usage accumulates token counts for one run. It starts from the precomputed
// input count and is finalized exactly once by the terminal UsageEvent.
type Usage struct {
	inputTokens  int
	outputTokens int
	final        bool
}

// NewUsage returns an accumulator seeded with the precomputed input token count.
func NewUsage(inputTokens int) *Usage {
	return &Usage{inputTokens: inputTokens}
}

// Record folds the terminal UsageEvent into the accumulator.
// It reports false and changes nothing if usage was already recorded.
func (u *Usage) Record(ev UsageEvent) bool {
	if u.final {
		return false
	}
	u.inputTokens = ev.InputTokens
	u.outputTokens = ev.OutputTokens
	u.final = true
	return true
}

// Final reports whether the terminal UsageEvent has been recorded.
func (u *Usage) Final() bool { return u.final }

// InputTokens returns the prompt token count.
func (u *Usage) InputTokens() int { return u.inputTokens }

// OutputTokens returns the completion token count.
func (u *Usage) OutputTokens() int { return u.outputTokens }

// TotalTokens returns input plus output tokens.
func (u *Usage) TotalTokens() int { return u.inputTokens + u.outputTokens }
