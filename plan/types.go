package plan

import (
	"time"
)

// StepStatus represents the status of a single step
type StepStatus string

const (
	StepStatusPending     StepStatus = "pending"
	StepStatusInProgress  StepStatus = "in_progress"
	StepStatusCompleted   StepStatus = "completed"
	StepStatusFailed      StepStatus = "failed"
	StepStatusInterrupted StepStatus = "interrupted"
)

// InterruptedMarker is the canonical prefix a step result carries when the
// user cancelled the run. The executor stops the step loop when it sees it.
const InterruptedMarker = "Execution interrupted by user"

// DefaultAgentTag is used when a step requirement carries no [TAG] prefix.
const DefaultAgentTag = "DEFAULT_AGENT"

// Step represents a single step in a plan
type Step struct {
	StepID       string     `json:"step_id"`
	StepIndex    int        `json:"step_index"`
	Requirement  string     `json:"requirement"`
	AgentTag     string     `json:"agent_tag,omitempty"`
	Status       StepStatus `json:"status"`
	Result       string     `json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// Plan is an ordered sequence of steps owned by one executor
type Plan struct {
	ID           string  `json:"id"`
	RootPlanID   string  `json:"root_plan_id"`
	ParentPlanID string  `json:"parent_plan_id,omitempty"`
	Title        string  `json:"title"`
	Depth        int     `json:"depth"`
	Steps        []*Step `json:"steps"`
	Result       string  `json:"result,omitempty"`

	// Agents are the variants steps of this plan may bind to; empty falls
	// back to the executor's defaults
	Agents []AgentSpec `json:"agents,omitempty"`
}

// IsRoot reports whether the plan is top-level
func (p *Plan) IsRoot() bool {
	return p.RootPlanID == p.ID
}

// UpdateStepIndices renumbers steps to match their position in the plan
func (p *Plan) UpdateStepIndices() {
	for i, step := range p.Steps {
		step.StepIndex = i
	}
}

// ExecutionContext carries everything the executor needs for one plan run
type ExecutionContext struct {
	CurrentPlanID  string
	RootPlanID     string
	ParentPlanID   string
	Depth          int
	ConversationID string
	UploadKey      string
	ToolCallID     string
	UserRequest    string
	Success        bool
	Plan           *Plan
}

// StepResult is the per-step outcome collected into an ExecutionResult
type StepResult struct {
	StepIndex   int        `json:"step_index"`
	Requirement string     `json:"requirement"`
	Result      string     `json:"result"`
	Status      StepStatus `json:"status"`
	AgentName   string     `json:"agent_name"`
}

// ErrorKind classifies plan-level failures
type ErrorKind string

const (
	ErrKindNone        ErrorKind = ""
	ErrKindInterrupted ErrorKind = "INTERRUPTED"
	ErrKindNoExecutor  ErrorKind = "NO_EXECUTOR"
	ErrKindStepFailed  ErrorKind = "STEP_FAILED"
	ErrKindPlanFatal   ErrorKind = "PLAN_FATAL"
)

// ExecutionResult is the terminal outcome of a plan run.
// The async executor never fails its channel; failure lives here.
type ExecutionResult struct {
	Success      bool         `json:"success"`
	FinalResult  string       `json:"final_result,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	StepResults  []StepResult `json:"step_results"`
}

// AddStepResult appends one step outcome
func (r *ExecutionResult) AddStepResult(sr StepResult) {
	r.StepResults = append(r.StepResults, sr)
}

// AgentSpec describes one agent variant a plan template may bind a step to
type AgentSpec struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	NextStepPrompt string   `json:"next_step_prompt"`
	ToolKeys       []string `json:"tool_keys"`
	Model          string   `json:"model,omitempty"`
	MaxSteps       int      `json:"max_steps,omitempty"`
}

// Template is a stored, reusable plan definition
type Template struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Steps       []string    `json:"steps"` // requirement text, optionally [TAG]-prefixed
	Agents      []AgentSpec `json:"agents"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Instantiate builds a fresh Plan from the template
func (t *Template) Instantiate(dispatcher *Dispatcher) *Plan {
	planID := dispatcher.GeneratePlanID()
	p := &Plan{
		ID:         planID,
		RootPlanID: planID,
		Title:      t.Title,
		Depth:      0,
		Agents:     t.Agents,
	}
	for i, req := range t.Steps {
		p.Steps = append(p.Steps, &Step{
			StepID:      dispatcher.GenerateStepID(),
			StepIndex:   i,
			Requirement: req,
			Status:      StepStatusPending,
		})
	}
	return p
}
