package tools

import (
	"encoding/json"

	"github.com/rohanthewiz/logger"
)

// ErrorReportTool lets the model surface a business-level error to the user.
// The reported message is attached to the step so the UI can show it, and
// the step ends.
type ErrorReportTool struct {
	reported bool
}

// NewErrorReportTool creates an error report tool
func NewErrorReportTool() *ErrorReportTool {
	return &ErrorReportTool{}
}

// GetDefinition returns the tool definition for the AI
func (t *ErrorReportTool) GetDefinition() Tool {
	return Tool{
		Name:        ErrorReportToolName,
		Description: "Report an error that prevents completing the current step. The error message is shown to the user.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"errorMessage": map[string]interface{}{
					"type":        "string",
					"description": "Description of the error encountered",
				},
			},
			"required": []string{"errorMessage"},
		},
	}
}

// Execute records the error and echoes it back as JSON
func (t *ErrorReportTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	errorMessage, _ := GetString(input, "errorMessage")
	t.reported = true
	logger.Warn("Error reported by agent", "error_message", errorMessage, "plan_id", ctx.CurrentPlanID)

	out, err := json.Marshal(map[string]string{"errorMessage": errorMessage})
	if err != nil {
		return errorMessage, nil
	}
	return string(out), nil
}

// CanTerminate reports whether an error has been reported this step
func (t *ErrorReportTool) CanTerminate() bool {
	return t.reported
}

// Cleanup resets state for the next step
func (t *ErrorReportTool) Cleanup(planID string) error {
	t.reported = false
	return nil
}

// SystemErrorReportTool wraps internal failures (LLM errors, panics) into a
// synthetic tool response so they surface through the normal result flow.
// Unlike ErrorReportTool it is invoked by the runtime, not the model, and it
// does not end the step by itself.
type SystemErrorReportTool struct{}

// NewSystemErrorReportTool creates a system error report tool
func NewSystemErrorReportTool() *SystemErrorReportTool {
	return &SystemErrorReportTool{}
}

// GetDefinition returns the tool definition for the AI
func (t *SystemErrorReportTool) GetDefinition() Tool {
	return Tool{
		Name:        SystemErrorReportToolName,
		Description: "Internal tool used by the system to report execution errors.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"errorMessage": map[string]interface{}{
					"type":        "string",
					"description": "The system error message",
				},
			},
			"required": []string{"errorMessage"},
		},
	}
}

// Execute echoes the system error as JSON
func (t *SystemErrorReportTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	errorMessage, _ := GetString(input, "errorMessage")
	logger.Warn("System error reported", "error_message", errorMessage, "plan_id", ctx.CurrentPlanID)

	out, err := json.Marshal(map[string]string{"errorMessage": errorMessage})
	if err != nil {
		return errorMessage, nil
	}
	return string(out), nil
}

// ExtractErrorMessage pulls the errorMessage field out of a report-tool
// result, falling back to the whole result when parsing fails
func ExtractErrorMessage(result string) string {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(result), &data); err == nil {
		if msg, ok := data["errorMessage"].(string); ok && msg != "" {
			return msg
		}
	}
	return result
}
