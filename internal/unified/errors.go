package unified

import "fmt"

// ToolArgumentError reports a tool call whose JSON arguments could not be decoded.
// Adapters log it and drop the call; it never aborts a request.
type ToolArgumentError struct {
	ToolCallID string
	Name       string
	Err        error
}

func (e *ToolArgumentError) Error() string {
	return fmt.Sprintf("failed to decode arguments of tool call %q (%s): %v", e.ToolCallID, e.Name, e.Err)
}

func (e *ToolArgumentError) Unwrap() error {
	return e.Err
}
