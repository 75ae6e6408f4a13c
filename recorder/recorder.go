// Package recorder defines the plan-execution progress contract the core
// reports through.
package recorder

import (
	"taskflow/plan"
)

// ActToolParam records one tool invocation inside a think/act cycle
type ActToolParam struct {
	Name       string `json:"name"`
	Parameters string `json:"parameters"`
	Result     string `json:"result,omitempty"`
	ToolCallID string `json:"tool_call_id"`
}

// ThinkActParams records one complete think/act cycle
type ThinkActParams struct {
	ThinkActID   string         `json:"think_act_id"`
	StepID       string         `json:"step_id"`
	ThinkInput   string         `json:"think_input"`
	ThinkOutput  string         `json:"think_output"`
	ErrorMessage string         `json:"error_message,omitempty"`
	InputChars   int            `json:"input_chars"`
	OutputChars  int            `json:"output_chars"`
	ToolParams   []ActToolParam `json:"tool_params"`
}

// Recorder receives plan lifecycle events. Implementations must tolerate
// being called from multiple plans concurrently; recording failures are the
// recorder's problem and never stop execution.
type Recorder interface {
	RecordPlanStart(ctx *plan.ExecutionContext)
	RecordStepStart(step *plan.Step, planID string)
	RecordStepEnd(step *plan.Step, planID string)
	RecordThinkingAndAction(step *plan.Step, params ThinkActParams)
	RecordActionResult(params []ActToolParam)
	RecordPlanCompletion(planID string, result *plan.ExecutionResult)
}

// Noop is a recorder that discards everything. Useful in tests and for
// sub-plans that should not emit duplicate lifecycle events.
type Noop struct{}

func (Noop) RecordPlanStart(ctx *plan.ExecutionContext)                        {}
func (Noop) RecordStepStart(step *plan.Step, planID string)                    {}
func (Noop) RecordStepEnd(step *plan.Step, planID string)                      {}
func (Noop) RecordThinkingAndAction(step *plan.Step, params ThinkActParams)    {}
func (Noop) RecordActionResult(params []ActToolParam)                          {}
func (Noop) RecordPlanCompletion(planID string, result *plan.ExecutionResult)  {}
