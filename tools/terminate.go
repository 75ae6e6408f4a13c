package tools

import (
	"encoding/json"
	"sync"
)

// Tool keys for the distinguished built-in tools
const (
	TerminateToolName         = "terminate"
	ErrorReportToolName       = "error_report"
	SystemErrorReportToolName = "system_error_report"
)

// TerminateTool ends the current step. Calling it marks the step completed
// and carries the final message as the step result.
type TerminateTool struct {
	mu          sync.Mutex
	terminated  bool
	lastMessage string
}

// NewTerminateTool creates a terminate tool
func NewTerminateTool() *TerminateTool {
	return &TerminateTool{}
}

// GetDefinition returns the tool definition for the AI
func (t *TerminateTool) GetDefinition() Tool {
	return Tool{
		Name:        TerminateToolName,
		Description: "Terminate the current step when its requirements are fully met. The message becomes the step result.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The final result or answer for the current step",
				},
			},
			"required": []string{"message"},
		},
	}
}

// Execute records the termination message
func (t *TerminateTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	message, _ := GetString(input, "message")

	t.mu.Lock()
	t.terminated = true
	t.lastMessage = message
	t.mu.Unlock()

	out, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return message, nil
	}
	return string(out), nil
}

// CanTerminate reports whether the tool has been invoked this step
func (t *TerminateTool) CanTerminate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

// CurrentStateString reports the last termination message
func (t *TerminateTool) CurrentStateString() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.terminated {
		return ""
	}
	return "terminated: " + t.lastMessage
}

// Cleanup resets termination state for the next step
func (t *TerminateTool) Cleanup(planID string) error {
	t.mu.Lock()
	t.terminated = false
	t.lastMessage = ""
	t.mu.Unlock()
	return nil
}
