package tools

import (
	"github.com/rohanthewiz/serr"
)

// SubPlanToolName is the registry key for the sub-plan tool
const SubPlanToolName = "subplan_exec"

// SpawnFunc runs a sub-plan to completion and returns its final result.
// The call context supplies parentage: the sub-plan runs at Depth+1 and
// inherits the tool call id for lineage.
type SpawnFunc func(title string, steps []string, parent CallContext) (string, error)

// SubPlanTool spawns a nested plan from a list of step requirements.
// The spawner is injected at wiring time to keep the tool decoupled from
// the executor.
type SubPlanTool struct {
	Spawner SpawnFunc
}

// GetDefinition returns the tool definition for the AI
func (t *SubPlanTool) GetDefinition() Tool {
	return Tool{
		Name:        SubPlanToolName,
		Description: "Execute a nested plan of steps and return its final result. Use for work that needs its own multi-step breakdown.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Short title for the sub-plan",
				},
				"steps": map[string]interface{}{
					"type":        "array",
					"description": "Ordered step requirements, each optionally prefixed with an [AGENT_TAG]",
					"items":       map[string]interface{}{"type": "string"},
				},
			},
			"required": []string{"title", "steps"},
		},
	}
}

// Execute spawns the sub-plan and blocks until it completes
func (t *SubPlanTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	if t.Spawner == nil {
		return "", serr.New("sub-plan spawner not configured")
	}

	title, _ := GetString(input, "title")

	rawSteps, ok := input["steps"].([]interface{})
	if !ok || len(rawSteps) == 0 {
		return "", serr.New("steps is required and must be a non-empty array")
	}
	steps := make([]string, 0, len(rawSteps))
	for _, s := range rawSteps {
		if str, ok := s.(string); ok && str != "" {
			steps = append(steps, str)
		}
	}
	if len(steps) == 0 {
		return "", serr.New("steps contained no usable requirements")
	}

	result, err := t.Spawner(title, steps, ctx)
	if err != nil {
		return "", serr.Wrap(err, "sub-plan execution failed", "title", title)
	}
	return result, nil
}
