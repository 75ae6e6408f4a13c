// Package executor drives plans to completion on depth-indexed pools.
package executor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rohanthewiz/logger"

	"taskflow/agent"
	"taskflow/plan"
	"taskflow/pool"
	"taskflow/tools"
	"taskflow/workspace"
)

// stepTagPattern matches a leading [TAG] on a step requirement
var stepTagPattern = regexp.MustCompile(`^\s*\[([^\]]+)\]`)

// PlanExecutor realizes a plan end to end: it iterates steps, runs one
// agent per step, records lifecycle, and owns plan-scoped resources.
type PlanExecutor struct {
	agents    []plan.AgentSpec
	svc       agent.Services
	pools     *pool.LevelPools
	workspace *workspace.Manager
}

// New creates a plan executor over a set of agent variants
func New(agents []plan.AgentSpec, svc agent.Services, pools *pool.LevelPools, ws *workspace.Manager) *PlanExecutor {
	return &PlanExecutor{agents: agents, svc: svc, pools: pools, workspace: ws}
}

// ExecuteAllAsync runs the plan on the pool selected by the context depth.
// The returned channel yields exactly one result; the result is never an
// error value — failure is conveyed inside it.
func (e *PlanExecutor) ExecuteAllAsync(ctx context.Context, execCtx *plan.ExecutionContext) <-chan *plan.ExecutionResult {
	out := make(chan *plan.ExecutionResult, 1)

	resultCh := e.pools.Submit(execCtx.Depth, func() (any, error) {
		return e.executeAll(ctx, execCtx), nil
	})

	go func() {
		res := <-resultCh
		if res.Err != nil {
			// A panic escaped the step loop; cleanup already best-effort
			logger.LogErr(res.Err, "plan execution task failed", "plan_id", execCtx.CurrentPlanID)
			e.performCleanup(execCtx, nil)
			out <- &plan.ExecutionResult{
				Success:      false,
				ErrorKind:    plan.ErrKindPlanFatal,
				ErrorMessage: res.Err.Error(),
			}
			return
		}
		out <- res.Value.(*plan.ExecutionResult)
	}()

	return out
}

// executeAll is the synchronous body of a plan run
func (e *PlanExecutor) executeAll(ctx context.Context, execCtx *plan.ExecutionContext) (result *plan.ExecutionResult) {
	result = &plan.ExecutionResult{}
	var lastAgent *agent.DynamicAgent

	defer func() {
		if r := recover(); r != nil {
			logger.LogErr(nil, "unexpected panic during plan execution",
				"plan_id", execCtx.CurrentPlanID, "panic", r)
			result.Success = false
			result.ErrorKind = plan.ErrKindPlanFatal
			result.ErrorMessage = "unexpected error during plan execution"
		}
		e.performCleanup(execCtx, lastAgent)
	}()

	p := execCtx.Plan
	if p == nil {
		result.Success = false
		result.ErrorKind = plan.ErrKindPlanFatal
		result.ErrorMessage = "plan is nil in execution context"
		return result
	}
	p.ID = execCtx.CurrentPlanID
	p.RootPlanID = execCtx.RootPlanID
	p.UpdateStepIndices()

	if execCtx.RootPlanID == execCtx.CurrentPlanID {
		e.svc.Interrupts.MarkActive(execCtx.RootPlanID)
		defer e.svc.Interrupts.MarkDone(execCtx.RootPlanID)
	}

	e.initializePlanExecution(execCtx)
	e.syncUploadedFiles(execCtx)

	if e.svc.Recorder != nil {
		e.svc.Recorder.RecordPlanStart(execCtx)
	}

	failed := false
	for i, step := range p.Steps {
		if !e.svc.Interrupts.CheckAndContinue(execCtx.RootPlanID) {
			logger.Info("Plan execution interrupted", "step", i+1, "total", len(p.Steps),
				"root_plan_id", execCtx.RootPlanID)
			execCtx.Success = false
			result.Success = false
			result.ErrorKind = plan.ErrKindInterrupted
			result.ErrorMessage = "Plan execution interrupted by user"
			failed = true
			break
		}

		stepAgent := e.executeStep(ctx, step, execCtx, p.Agents)
		if stepAgent == nil {
			// No executor or a fatal step error; the step carries the detail
			result.Success = false
			if result.ErrorKind == "" {
				result.ErrorKind = plan.ErrKindNoExecutor
			}
			result.ErrorMessage = step.ErrorMessage
			result.AddStepResult(stepResultOf(step, ""))
			failed = true
			break
		}
		lastAgent = stepAgent

		result.AddStepResult(stepResultOf(step, stepAgent.Name()))

		if strings.Contains(step.Result, plan.InterruptedMarker) || step.Status == plan.StepStatusInterrupted {
			logger.Info("Step was interrupted, stopping plan", "plan_id", execCtx.CurrentPlanID)
			execCtx.Success = false
			result.Success = false
			result.ErrorKind = plan.ErrKindInterrupted
			result.ErrorMessage = "Plan execution interrupted by user"
			failed = true
			break
		}

		if step.Status == plan.StepStatusFailed {
			logger.LogErr(nil, "step execution failed, stopping plan",
				"plan_id", execCtx.CurrentPlanID, "step_index", step.StepIndex)
			execCtx.Success = false
			result.Success = false
			result.ErrorKind = plan.ErrKindStepFailed
			if step.ErrorMessage != "" {
				result.ErrorMessage = step.ErrorMessage
			} else {
				result.ErrorMessage = "Agent execution failed: " + step.Result
			}
			failed = true
			break
		}
	}

	if !failed {
		execCtx.Success = true
		result.Success = true
		if n := len(p.Steps); n > 0 {
			p.Result = p.Steps[n-1].Result
		}
		result.FinalResult = p.Result
	}

	if e.svc.Recorder != nil {
		e.svc.Recorder.RecordPlanCompletion(execCtx.CurrentPlanID, result)
	}
	return result
}

// executeStep runs one step through its resolved agent. A nil return means
// the step could not be executed; details are on the step.
func (e *PlanExecutor) executeStep(ctx context.Context, step *plan.Step, execCtx *plan.ExecutionContext, planAgents []plan.AgentSpec) *agent.DynamicAgent {
	tag := TagFromRequirement(step.Requirement)
	step.AgentTag = tag

	spec, found := e.specForTag(tag, planAgents)
	if !found {
		msg := "No executor found for step type: " + tag
		logger.LogErr(nil, "no executor for step", "tag", tag, "plan_id", execCtx.CurrentPlanID)
		step.Result = msg
		step.Status = plan.StepStatusFailed
		step.ErrorMessage = msg
		return nil
	}

	stepAgent := agent.New(spec, step, execCtx, e.svc)

	now := time.Now()
	step.StartTime = &now
	step.Status = plan.StepStatusInProgress

	if e.svc.Recorder != nil {
		e.svc.Recorder.RecordStepStart(step, execCtx.CurrentPlanID)
	}

	execResult := stepAgent.Run(ctx)

	end := time.Now()
	step.EndTime = &end
	step.Result = execResult.Result
	step.Status = stepStatusFromState(execResult.State)

	switch execResult.State {
	case agent.StateInterrupted:
		logger.Info("Agent was interrupted during step execution", "agent", stepAgent.Name())
	case agent.StateCompleted:
		logger.Info("Agent completed step execution", "agent", stepAgent.Name())
	case agent.StateFailed:
		logger.LogErr(nil, "agent failed during step execution", "agent", stepAgent.Name())
		execCtx.Success = false
	}

	return stepAgent
}

// specForTag resolves an agent spec by tag: the plan's own variants first,
// then the executor defaults, then any variant for the default tag
func (e *PlanExecutor) specForTag(tag string, planAgents []plan.AgentSpec) (plan.AgentSpec, bool) {
	for _, set := range [][]plan.AgentSpec{planAgents, e.agents} {
		for _, spec := range set {
			if strings.EqualFold(spec.Name, tag) {
				return spec, true
			}
		}
	}
	if tag == plan.DefaultAgentTag {
		if len(planAgents) > 0 {
			return planAgents[0], true
		}
		if len(e.agents) > 0 {
			return e.agents[0], true
		}
	}
	return plan.AgentSpec{}, false
}

// TagFromRequirement extracts the uppercased [TAG] prefix from a step
// requirement, defaulting to DEFAULT_AGENT
func TagFromRequirement(requirement string) string {
	if m := stepTagPattern.FindStringSubmatch(requirement); m != nil {
		return strings.ToUpper(strings.TrimSpace(m[1]))
	}
	return plan.DefaultAgentTag
}

// initializePlanExecution prepares the environment for a root plan
func (e *PlanExecutor) initializePlanExecution(execCtx *plan.ExecutionContext) {
	if e.workspace == nil || execCtx.RootPlanID == "" || execCtx.RootPlanID != execCtx.CurrentPlanID {
		return
	}
	if err := e.workspace.EnsureExternalFolderLink(execCtx.RootPlanID); err != nil {
		// Execution continues even when link creation fails
		logger.LogErr(err, "failed to initialize external folder link",
			"root_plan_id", execCtx.RootPlanID)
	}
}

// syncUploadedFiles pulls staged uploads into the plan directory
func (e *PlanExecutor) syncUploadedFiles(execCtx *plan.ExecutionContext) {
	if e.workspace == nil || execCtx.UploadKey == "" || execCtx.RootPlanID == "" {
		return
	}
	if err := e.workspace.SyncUploadedFiles(execCtx.UploadKey, execCtx.RootPlanID); err != nil {
		logger.LogErr(err, "failed to synchronize uploaded files, continuing without them",
			"upload_key", execCtx.UploadKey, "root_plan_id", execCtx.RootPlanID)
	}
}

// performCleanup always runs on terminal transitions. Errors are logged,
// never propagated.
func (e *PlanExecutor) performCleanup(execCtx *plan.ExecutionContext, lastAgent *agent.DynamicAgent) {
	if lastAgent != nil {
		lastAgent.Cleanup(execCtx.CurrentPlanID)
	}

	if e.workspace != nil && execCtx.RootPlanID != "" && execCtx.RootPlanID == execCtx.CurrentPlanID {
		if err := e.workspace.RemoveExternalFolderLink(execCtx.RootPlanID); err != nil {
			logger.LogErr(err, "failed to remove external folder link", "root_plan_id", execCtx.RootPlanID)
		}
	}
}

// SpawnSubPlan builds and runs a nested plan at depth+1, blocking until it
// completes. Used as the spawner behind the sub-plan tool; the parent tool
// call id is inherited for lineage.
func (e *PlanExecutor) SpawnSubPlan(ctx context.Context, title string, steps []string, parent tools.CallContext) (string, error) {
	dispatcher := e.svc.Dispatcher
	subPlanID := dispatcher.GenerateSubPlanID()

	p := &plan.Plan{
		ID:           subPlanID,
		RootPlanID:   parent.RootPlanID,
		ParentPlanID: parent.CurrentPlanID,
		Title:        title,
		Depth:        parent.Depth + 1,
	}
	for i, req := range steps {
		p.Steps = append(p.Steps, &plan.Step{
			StepID:      dispatcher.GenerateStepID(),
			StepIndex:   i,
			Requirement: req,
			Status:      plan.StepStatusPending,
		})
	}

	execCtx := &plan.ExecutionContext{
		CurrentPlanID: subPlanID,
		RootPlanID:    parent.RootPlanID,
		ParentPlanID:  parent.CurrentPlanID,
		Depth:         parent.Depth + 1,
		ToolCallID:    parent.ToolCallID,
		Plan:          p,
	}

	logger.Info("Spawning sub-plan", "sub_plan_id", subPlanID, "depth", execCtx.Depth,
		"parent_plan_id", parent.CurrentPlanID, "steps", len(steps))

	result := <-e.ExecuteAllAsync(ctx, execCtx)
	if !result.Success {
		return "", &tools.ToolError{Message: "sub-plan failed: " + result.ErrorMessage}
	}
	return result.FinalResult, nil
}

func stepResultOf(step *plan.Step, agentName string) plan.StepResult {
	return plan.StepResult{
		StepIndex:   step.StepIndex,
		Requirement: step.Requirement,
		Result:      step.Result,
		Status:      step.Status,
		AgentName:   agentName,
	}
}

func stepStatusFromState(state agent.ExecState) plan.StepStatus {
	switch state {
	case agent.StateCompleted:
		return plan.StepStatusCompleted
	case agent.StateFailed:
		return plan.StepStatusFailed
	case agent.StateInterrupted:
		return plan.StepStatusInterrupted
	default:
		return plan.StepStatusInProgress
	}
}
