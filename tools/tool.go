package tools

import (
	"encoding/json"
)

// Tool represents a tool that can be used by the AI
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolUse represents a tool use request from the AI
type ToolUse struct {
	Type  string                 `json:"type"`
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// ToolResult represents the result of executing a tool
type ToolResult struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// CallContext carries per-call correlation data into a tool execution.
// Sub-plans spawned by a tool inherit the ToolCallID for lineage.
type CallContext struct {
	ToolCallID    string
	Depth         int
	CurrentPlanID string
	RootPlanID    string
}

// Executor is the interface for synchronous tool execution
type Executor interface {
	Execute(input map[string]interface{}, ctx CallContext) (string, error)
}

// AsyncResult is the outcome delivered by an asynchronous tool
type AsyncResult struct {
	Output string
	Err    error
}

// AsyncExecutor is implemented by tools that manage their own concurrency.
// The dispatcher invokes them directly instead of submitting to a pool.
type AsyncExecutor interface {
	ExecuteAsync(input map[string]interface{}, ctx CallContext) <-chan AsyncResult
}

// Terminable is implemented by tools whose post-call state can signal that
// the agent should end the current step
type Terminable interface {
	CanTerminate() bool
}

// StateReporter exposes a tool's current state string for the per-round
// environment snapshot
type StateReporter interface {
	CurrentStateString() string
}

// Cleaner is implemented by tools holding plan-scoped resources
type Cleaner interface {
	Cleanup(planID string) error
}

// ToolError represents a tool execution error
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

// Helper function to get string from interface{}
func GetString(input map[string]interface{}, key string) (string, bool) {
	val, exists := input[key]
	if !exists {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// Helper function to get int from interface{}
func GetInt(input map[string]interface{}, key string) (int, bool) {
	val, exists := input[key]
	if !exists {
		return 0, false
	}

	// Handle both int and float64 (JSON numbers are float64)
	switch v := val.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Helper function to get bool from interface{}
func GetBool(input map[string]interface{}, key string) (bool, bool) {
	val, exists := input[key]
	if !exists {
		return false, false
	}
	boolVal, ok := val.(bool)
	return boolVal, ok
}

// MarshalJSON for proper JSON encoding
func (t Tool) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		InputSchema map[string]interface{} `json:"input_schema"`
	}{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	})
}
