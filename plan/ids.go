package plan

import (
	"strings"

	"github.com/google/uuid"
)

// Dispatcher generates the identifiers used across plan execution.
// Sub-plans, tool calls and think/act records each get their own prefix so
// a log line or DB row is self-describing.
type Dispatcher struct{}

// NewDispatcher creates an id dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GeneratePlanID returns a new plan identifier
func (d *Dispatcher) GeneratePlanID() string {
	return "plan-" + shortID()
}

// GenerateSubPlanID returns an identifier for a spawned sub-plan
func (d *Dispatcher) GenerateSubPlanID() string {
	return "subplan-" + shortID()
}

// GenerateStepID returns a new step identifier
func (d *Dispatcher) GenerateStepID() string {
	return "step-" + shortID()
}

// GenerateToolCallID returns a new tool call identifier
func (d *Dispatcher) GenerateToolCallID() string {
	return "toolcall-" + shortID()
}

// GenerateThinkActID returns a new think/act record identifier
func (d *Dispatcher) GenerateThinkActID() string {
	return "thinkact-" + shortID()
}
