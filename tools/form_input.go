package tools

import (
	"encoding/json"
	"sync"

	"github.com/rohanthewiz/logger"
)

// FormInputToolName is the registry key for the form input tool
const FormInputToolName = "form_input"

// InputState tracks where a form stands in the user rendezvous
type InputState string

const (
	InputStateAwaiting InputState = "AWAITING_USER_INPUT"
	InputStateReceived InputState = "INPUT_RECEIVED"
	InputStateTimeout  InputState = "INPUT_TIMEOUT"
	InputStateIdle     InputState = "IDLE"
)

// FormItem is one field in a form definition
type FormItem struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type,omitempty"`
	Value       string   `json:"value,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// FormDefinition is what the model asks the user to fill in
type FormDefinition struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Items       []FormItem `json:"inputs"`
}

// FormInputTool presents a form to the user and waits for submitted values.
// One instance serves one agent; the exclusive forms store arbitrates which
// instance is visible per root plan.
type FormInputTool struct {
	mu         sync.Mutex
	state      InputState
	definition *FormDefinition
}

// NewFormInputTool creates a form input tool
func NewFormInputTool() *FormInputTool {
	return &FormInputTool{state: InputStateIdle}
}

// GetDefinition returns the tool definition for the AI
func (t *FormInputTool) GetDefinition() Tool {
	return Tool{
		Name:        FormInputToolName,
		Description: "Ask the user to fill in a form. Use when required information can only come from the user.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Form title",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "What the user is being asked for",
				},
				"inputs": map[string]interface{}{
					"type":        "array",
					"description": "Form fields",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"name":  map[string]interface{}{"type": "string"},
							"label": map[string]interface{}{"type": "string"},
							"type":  map[string]interface{}{"type": "string"},
						},
					},
				},
			},
			"required": []string{"inputs"},
		},
	}
}

// Execute stores the form definition and flips the tool into the awaiting
// state; the agent then enters the rendezvous wait
func (t *FormInputTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	def := &FormDefinition{}

	data, err := json.Marshal(input)
	if err == nil {
		if err = json.Unmarshal(data, def); err != nil {
			logger.Warn("Failed to decode form definition, presenting empty form")
		}
	}

	t.mu.Lock()
	t.definition = def
	t.state = InputStateAwaiting
	t.mu.Unlock()

	logger.Info("Form presented, awaiting user input", "plan_id", ctx.CurrentPlanID, "fields", len(def.Items))
	return "Form presented to user. Waiting for input.", nil
}

// InputState returns the current rendezvous state
func (t *FormInputTool) InputState() InputState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Definition returns the active form definition, nil when none is pending
func (t *FormInputTool) Definition() *FormDefinition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.definition
}

// SubmitInputs records the user's values and transitions to INPUT_RECEIVED.
// Returns false when no form is awaiting input.
func (t *FormInputTool) SubmitInputs(values map[string]string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != InputStateAwaiting || t.definition == nil {
		return false
	}
	for i := range t.definition.Items {
		if v, ok := values[t.definition.Items[i].Name]; ok {
			t.definition.Items[i].Value = v
		}
	}
	t.state = InputStateReceived
	return true
}

// HandleTimeout transitions to INPUT_TIMEOUT and clears the definition
func (t *FormInputTool) HandleTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == InputStateAwaiting {
		t.state = InputStateTimeout
		t.definition = nil
	}
}

// CurrentStateString reports the form state and any submitted values
func (t *FormInputTool) CurrentStateString() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := struct {
		State InputState      `json:"state"`
		Form  *FormDefinition `json:"form,omitempty"`
	}{State: t.state, Form: t.definition}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return string(t.state)
	}
	return string(data)
}

// Cleanup resets the form for the next plan
func (t *FormInputTool) Cleanup(planID string) error {
	t.mu.Lock()
	t.state = InputStateIdle
	t.definition = nil
	t.mu.Unlock()
	return nil
}
