// Package agent implements the per-step think/act runtime that drives an
// LLM against a permitted tool subset.
package agent

import (
	"context"
	"fmt"

	"github.com/rohanthewiz/logger"

	"taskflow/config"
	"taskflow/forms"
	"taskflow/interrupt"
	"taskflow/memory"
	"taskflow/plan"
	"taskflow/providers"
	"taskflow/recorder"
	"taskflow/tools"
)

// ExecState is the terminal disposition of one agent round or run
type ExecState string

const (
	StateInProgress  ExecState = "in_progress"
	StateCompleted   ExecState = "completed"
	StateFailed      ExecState = "failed"
	StateInterrupted ExecState = "interrupted"
)

// ExecResult pairs a result string with the state it ended in
type ExecResult struct {
	Result string
	State  ExecState
}

// Services bundles the collaborators an agent needs. Passed in at
// construction; the agent holds no global state.
type Services struct {
	LLM           *providers.Service
	Registry      *tools.Registry
	Parallel      *tools.ParallelService
	Compressor    *memory.Compressor
	Conversations *memory.ConversationStore
	Recorder      recorder.Recorder
	Interrupts    *interrupt.Service
	Forms         *forms.Store
	Dispatcher    *plan.Dispatcher
	Config        *config.Config
}

// DynamicAgent executes one plan step as a sequence of think/act rounds.
// It terminates when the model invokes a terminator tool, when the step
// budget runs out, on interruption, or on a final failure.
type DynamicAgent struct {
	name           string
	description    string
	nextStepPrompt string
	toolKeys       []string
	modelName      string
	maxSteps       int
	currentStep    int

	step    *plan.Step
	execCtx *plan.ExecutionContext
	svc     Services

	envData       map[string]string
	agentMessages []providers.Message

	// Rolling window for repeat-result loop detection
	recentToolResults []string

	// Per-round think state
	lastStream    *providers.StreamResult
	promptHistory []providers.Message
	actToolParams []recorder.ActToolParam

	llmErrs      []error
	latestLLMErr error
}

// New creates an agent for one step from its spec
func New(spec plan.AgentSpec, step *plan.Step, execCtx *plan.ExecutionContext, svc Services) *DynamicAgent {
	maxSteps := spec.MaxSteps
	if maxSteps <= 0 {
		maxSteps = svc.Config.MaxSteps
	}
	return &DynamicAgent{
		name:           spec.Name,
		description:    spec.Description,
		nextStepPrompt: spec.NextStepPrompt,
		toolKeys:       spec.ToolKeys,
		modelName:      spec.Model,
		maxSteps:       maxSteps,
		step:           step,
		execCtx:        execCtx,
		svc:            svc,
		envData:        make(map[string]string),
	}
}

// Name returns the agent's name
func (a *DynamicAgent) Name() string {
	return a.name
}

// AgentMessages exposes the current agent memory (copy)
func (a *DynamicAgent) AgentMessages() []providers.Message {
	out := make([]providers.Message, len(a.agentMessages))
	copy(out, a.agentMessages)
	return out
}

// Run drives the think/act loop for this step to a terminal state.
// It never returns an error: failures are materialized in the result.
func (a *DynamicAgent) Run(ctx context.Context) ExecResult {
	a.currentStep = 0
	var last *ExecResult

	defer func() {
		if a.execCtx.CurrentPlanID != "" && a.svc.Recorder != nil {
			a.svc.Recorder.RecordStepEnd(a.step, a.execCtx.CurrentPlanID)
		}
	}()

	for a.currentStep < a.maxSteps {
		a.currentStep++
		logger.Info("Executing round", "agent", a.name, "round", a.currentStep, "max", a.maxSteps,
			"plan_id", a.execCtx.CurrentPlanID)

		result := a.round(ctx)
		last = &result

		if result.State != StateInProgress {
			logger.Info("Agent round reached terminal state", "agent", a.name,
				"state", string(result.State), "round", a.currentStep)
			if result.State == StateCompleted {
				// Transient errors that were recovered from should not linger
				a.step.ErrorMessage = ""
			}
			return result
		}
	}

	// Step budget exhausted without termination: summarize and terminate
	if last == nil || last.State == StateInProgress {
		logger.Info("Agent reached max rounds, generating final summary", "agent", a.name, "max", a.maxSteps)
		return a.terminateWithSummary(ctx)
	}
	return *last
}

// round runs one think/act cycle, converting panics into the system error
// report flow so a bad tool cannot take the plan down
func (a *DynamicAgent) round(ctx context.Context) (result ExecResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogErr(nil, "panic during agent round", "agent", a.name, "panic", r)
			result = a.reportSystemError(fmt.Sprintf("System execution error at step %d: %v", a.currentStep, r))
			result.State = StateInProgress
		}
	}()

	thinkOutcome := a.think(ctx)
	switch thinkOutcome {
	case thinkInterrupted:
		return ExecResult{Result: "Agent execution interrupted", State: StateInterrupted}

	case thinkFailed:
		if a.latestLLMErr != nil {
			if isToollessFailure(a.latestLLMErr) {
				logger.LogErr(a.latestLLMErr, "agent failed on early-termination threshold", "agent", a.name)
				return ExecResult{
					Result: "Agent failed: LLM repeatedly returned thinking-only responses without tool calls. " +
						a.latestLLMErr.Error(),
					State: StateFailed,
				}
			}
			return a.reportLLMFailure()
		}
		// No tools selected after all retries; nudge the model
		return ExecResult{
			Result: "No tools were selected. You must select and call at least one tool to proceed. Please retry with tool calls.",
			State:  StateInProgress,
		}
	}

	return a.act(ctx)
}

// terminateWithSummary handles the max-steps path: summarize memory with a
// tool-free LLM call, then invoke the terminate tool with the summary
func (a *DynamicAgent) terminateWithSummary(ctx context.Context) ExecResult {
	summary := a.generateFinalSummary(ctx)

	message := "Agent execution terminated due to max rounds reached. Summary: " + summary
	toolUse := tools.ToolUse{
		Type:  "tool_use",
		ID:    a.svc.Dispatcher.GenerateToolCallID(),
		Name:  tools.TerminateToolName,
		Input: map[string]interface{}{"message": message},
	}
	callCtx := a.callContext(toolUse.ID)

	result, err := a.svc.Registry.Execute(toolUse, callCtx)
	if err != nil {
		logger.LogErr(err, "failed to terminate with summary", "agent", a.name)
		return ExecResult{Result: "Terminate failed: " + err.Error(), State: StateCompleted}
	}
	return ExecResult{Result: result.Content, State: StateCompleted}
}

// generateFinalSummary asks the model to answer the original request from
// the accumulated memory
func (a *DynamicAgent) generateFinalSummary(ctx context.Context) string {
	if len(a.agentMessages) == 0 {
		return "No memory entries found for final summary"
	}

	summaryPrompt := "Based on the completed steps, try to answer the user's original request.\n" +
		"If the current steps are insufficient to support answering the original request,\n" +
		"simply describe that the step limit has been reached and please try again.\n\n" +
		"Execution history:\n" + renderMessages(a.agentMessages)

	summary, err := a.svc.LLM.Chat(ctx, a.modelName, a.systemPreamble(), summaryPrompt)
	if err != nil {
		logger.LogErr(err, "failed to generate final summary", "agent", a.name)
		return "Summary generation failed: " + err.Error()
	}
	return summary
}

// Cleanup releases plan-scoped resources held by the agent's tools
func (a *DynamicAgent) Cleanup(planID string) {
	a.svc.Registry.CleanupAll(planID)
	if a.svc.Forms != nil && a.execCtx.RootPlanID != "" {
		a.svc.Forms.Remove(a.execCtx.RootPlanID)
	}
}

// callContext builds the per-call tool context for this agent
func (a *DynamicAgent) callContext(toolCallID string) tools.CallContext {
	return tools.CallContext{
		ToolCallID:    toolCallID,
		Depth:         a.execCtx.Depth,
		CurrentPlanID: a.execCtx.CurrentPlanID,
		RootPlanID:    a.execCtx.RootPlanID,
	}
}

// renderMessages flattens messages into readable text for summary prompts
func renderMessages(messages []providers.Message) string {
	out := ""
	for _, m := range messages {
		switch m.Role {
		case providers.RoleAssistant:
			out += "Assistant: " + m.Content + "\n"
			for _, tc := range m.ToolCalls {
				out += "  tool call " + tc.Name + "(" + tc.Arguments + ")\n"
			}
		case providers.RoleTool:
			for _, tr := range m.ToolResults {
				content := tr.Content
				if len(content) > 500 {
					content = content[:500] + "..."
				}
				out += "Tool result (" + tr.Name + "): " + content + "\n"
			}
		default:
			out += string(m.Role) + ": " + m.Content + "\n"
		}
	}
	return out
}
