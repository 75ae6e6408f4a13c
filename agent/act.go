package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rohanthewiz/logger"

	"taskflow/providers"
	"taskflow/recorder"
	"taskflow/tools"
)

// act executes the tool calls the model chose in this round
func (a *DynamicAgent) act(ctx context.Context) ExecResult {
	if !a.svc.Interrupts.CheckAndContinue(a.execCtx.RootPlanID) {
		logger.Info("Agent action interrupted", "agent", a.name, "root_plan_id", a.execCtx.RootPlanID)
		return ExecResult{Result: "Action interrupted by user", State: StateInterrupted}
	}

	if a.lastStream == nil || len(a.lastStream.ToolCalls) == 0 {
		return ExecResult{Result: "tool call is empty, please retry", State: StateInProgress}
	}

	toolCalls := a.lastStream.ToolCalls
	if len(toolCalls) == 1 {
		return a.processSingleTool(ctx, toolCalls[0])
	}
	return a.processMultipleTools(ctx, toolCalls)
}

// processSingleTool is the core single-call path with capability-specific
// handling for the distinguished tools
func (a *DynamicAgent) processSingleTool(ctx context.Context, toolCall providers.ToolCall) ExecResult {
	if !a.svc.Interrupts.CheckAndContinue(a.execCtx.RootPlanID) {
		return ExecResult{Result: "Tool execution interrupted by user", State: StateInterrupted}
	}

	param := &a.actToolParams[0]
	callCtx := a.callContext(param.ToolCallID)

	params := tools.ParseArguments(toolCall.Arguments)
	tool, executor, found := a.svc.Registry.Resolve(toolCall.Name)
	if !found {
		// Tool misses continue the step rather than failing it
		result := "Tool not found: " + toolCall.Name
		param.Result = result
		a.updateMemoryAfterAct(toolCall, result)
		a.recordActionResult()
		return ExecResult{Result: result, State: StateInProgress}
	}

	input := tools.FillRequired(params, tools.RequiredFields(tool.InputSchema)).ToMap()

	// Form input enters the user rendezvous instead of a plain execution
	if form, ok := executor.(*tools.FormInputTool); ok {
		if _, err := executor.Execute(input, callCtx); err != nil {
			logger.LogErr(err, "form presentation failed", "agent", a.name)
		}
		return a.handleFormInput(ctx, form, toolCall, param)
	}

	rawResult, execErr := a.executeResolved(executor, input, callCtx)
	if execErr != nil {
		// Errors become results; the step continues
		rawResult = "Error: " + execErr.Error()
	}

	result := tools.ProcessToolResult(rawResult)
	param.Result = result

	a.updateMemoryAfterAct(toolCall, result)

	shouldTerminate := false
	state := StateInProgress

	switch inst := executor.(type) {
	case *tools.TerminateTool:
		logger.Info("Terminate tool called", "plan_id", a.execCtx.CurrentPlanID)
		shouldTerminate = true

	case *tools.ErrorReportTool:
		errorMessage := tools.ExtractErrorMessage(result)
		a.step.ErrorMessage = errorMessage
		a.recordErrorToolThinkAct(*param, "Error occurred during execution",
			"error_report called to report error", errorMessage)
		if inst.CanTerminate() {
			shouldTerminate = true
		}

	case *tools.SystemErrorReportTool:
		errorMessage := tools.ExtractErrorMessage(result)
		a.step.ErrorMessage = errorMessage
		a.recordErrorToolThinkAct(*param, "System error occurred during execution",
			"system_error_report called to report system error", errorMessage)

	default:
		if terminable, ok := executor.(tools.Terminable); ok && terminable.CanTerminate() {
			logger.Info("Terminable tool signalled termination", "tool", toolCall.Name,
				"plan_id", a.execCtx.CurrentPlanID)
			a.svc.Forms.Remove(a.execCtx.RootPlanID)
			shouldTerminate = true
		}
	}

	if shouldTerminate {
		state = StateCompleted
	}

	a.recordActionResult()
	a.checkAndHandleRepeatedResult(ctx, result)

	return ExecResult{Result: result, State: state}
}

// executeResolved runs a resolved executor, waiting on async tools
func (a *DynamicAgent) executeResolved(executor tools.Executor, input map[string]interface{}, callCtx tools.CallContext) (string, error) {
	if asyncExec, ok := executor.(tools.AsyncExecutor); ok {
		res := <-asyncExec.ExecuteAsync(input, callCtx)
		return res.Output, res.Err
	}
	return executor.Execute(input, callCtx)
}

// processMultipleTools runs a multi-call turn through the parallel service
func (a *DynamicAgent) processMultipleTools(ctx context.Context, toolCalls []providers.ToolCall) ExecResult {
	if !a.svc.Interrupts.CheckAndContinue(a.execCtx.RootPlanID) {
		return ExecResult{Result: "Tool execution interrupted by user", State: StateInterrupted}
	}

	// Form input needs user interaction and cannot run inside a batch
	var restricted []string
	for _, tc := range toolCalls {
		if _, executor, found := a.svc.Registry.Resolve(tc.Name); found {
			if _, isForm := executor.(*tools.FormInputTool); isForm {
				restricted = append(restricted, tc.Name)
			}
		}
	}
	if len(restricted) > 0 {
		msg := fmt.Sprintf("Multiple tools execution does not support form input (requires user interaction). "+
			"Found restricted tools: %s. Please retry by calling tools separately, "+
			"excluding form input from multiple tool calls.", strings.Join(restricted, ", "))
		logger.Warn("Multiple tools execution rejected", "restricted", strings.Join(restricted, ", "))
		return ExecResult{Result: msg, State: StateInProgress}
	}

	if len(a.actToolParams) != len(toolCalls) {
		msg := fmt.Sprintf("Size mismatch: recorded %d tool params for %d tool calls",
			len(a.actToolParams), len(toolCalls))
		logger.Warn(msg)
		return ExecResult{Result: msg, State: StateInProgress}
	}

	requests := make([]tools.Request, 0, len(toolCalls))
	for i, tc := range toolCalls {
		requests = append(requests, tools.Request{
			ToolName:   tc.Name,
			Params:     tools.ParseArguments(tc.Arguments),
			ToolCallID: a.actToolParams[i].ToolCallID,
		})
	}

	outcomes := a.svc.Parallel.ExecuteAll(requests, a.callContext(""))
	logger.Info("Executed tools in parallel", "count", len(outcomes), "agent", a.name)

	if len(outcomes) != len(toolCalls) {
		msg := fmt.Sprintf("Size mismatch: %d results for %d tool calls", len(outcomes), len(toolCalls))
		logger.Warn(msg)
		return ExecResult{Result: msg, State: StateInProgress}
	}

	results := make([]string, len(outcomes))
	responses := make([]providers.ToolResponse, len(outcomes))
	for i, outcome := range outcomes {
		var processed string
		if outcome.Status == tools.StatusSuccess {
			processed = tools.ProcessToolResult(outcome.Output)
		} else {
			processed = "Error: " + outcome.Error
		}
		a.actToolParams[outcome.Index].Result = processed
		results[i] = processed
		responses[i] = providers.ToolResponse{
			ToolCallID: toolCalls[outcome.Index].ID,
			Name:       toolCalls[outcome.Index].Name,
			Content:    processed,
		}
	}

	a.recordActionResult()

	// Synthetic tool response keeps memory consistent with the model's view
	postCall := append(append([]providers.Message{}, a.promptHistory...),
		a.lastStream.AssistantMessage(),
		providers.ToolResponseMessage(responses...))
	a.processMemory(postCall)

	combined, err := json.Marshal(results)
	if err != nil {
		return ExecResult{Result: strings.Join(results, "\n"), State: StateInProgress}
	}
	return ExecResult{Result: string(combined), State: StateInProgress}
}

// updateMemoryAfterAct applies the memory filter to the post-call
// conversation of a single tool execution
func (a *DynamicAgent) updateMemoryAfterAct(toolCall providers.ToolCall, result string) {
	postCall := append(append([]providers.Message{}, a.promptHistory...),
		a.lastStream.AssistantMessage(),
		providers.ToolResponseMessage(providers.ToolResponse{
			ToolCallID: toolCall.ID,
			Name:       toolCall.Name,
			Content:    result,
		}))
	a.processMemory(postCall)
}

// processMemory implements the memory filtering rule: drop messages already
// in conversation memory, drop system and user messages, and replace agent
// memory with what remains — the step's reasoning trail.
func (a *DynamicAgent) processMemory(postCall []providers.Message) {
	if len(postCall) == 0 {
		return
	}

	remaining := postCall
	if convID := a.conversationID(); convID != "" {
		conversationHistory := a.svc.Conversations.Get(convID)
		remaining = removeDuplicates(postCall, conversationHistory)
	}

	var filtered []providers.Message
	for _, msg := range remaining {
		if msg.Role == providers.RoleSystem || msg.Role == providers.RoleUser {
			continue
		}
		filtered = append(filtered, msg)
	}

	a.agentMessages = filtered
}

// removeDuplicates drops any message that already exists in the reference
// list
func removeDuplicates(messages, reference []providers.Message) []providers.Message {
	if len(reference) == 0 {
		return messages
	}
	var out []providers.Message
	for _, msg := range messages {
		dup := false
		for _, ref := range reference {
			if providers.MessagesEqual(msg, ref) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, msg)
		}
	}
	return out
}

// checkAndHandleRepeatedResult feeds the rolling window and forces an
// agent-memory compression when the same result repeats enough times
func (a *DynamicAgent) checkAndHandleRepeatedResult(ctx context.Context, result string) {
	if strings.TrimSpace(result) == "" {
		return
	}

	threshold := a.svc.Config.RepeatedResultThreshold
	a.recentToolResults = append(a.recentToolResults, result)
	if len(a.recentToolResults) > threshold {
		a.recentToolResults = a.recentToolResults[1:]
	}

	if len(a.recentToolResults) < threshold {
		return
	}

	first := a.recentToolResults[0]
	for _, r := range a.recentToolResults[1:] {
		if r != first {
			return
		}
	}

	logger.Warn("Detected repeated tool result, forcing memory compression to break loop",
		"times", threshold, "plan_id", a.execCtx.CurrentPlanID)
	a.agentMessages = a.svc.Compressor.ForceCompressAgentMemory(ctx, a.agentMessages)
	a.recentToolResults = nil
}

// handleFormInput runs the user rendezvous: claim the exclusive slot, poll
// for input with periodic interruption checks, and fold the outcome back
// into memory
func (a *DynamicAgent) handleFormInput(ctx context.Context, form *tools.FormInputTool, toolCall providers.ToolCall, param *recorder.ActToolParam) ExecResult {
	rootPlanID := a.execCtx.RootPlanID

	if form.InputState() != tools.InputStateAwaiting {
		result := "Form input tool is not awaiting input"
		param.Result = result
		return ExecResult{Result: result, State: StateInProgress}
	}

	if err := a.svc.Forms.StoreExclusive(rootPlanID, form); err != nil {
		logger.LogErr(err, "failed to store form exclusively", "root_plan_id", rootPlanID)
		param.Result = "Failed to store form due to system timeout"
		return ExecResult{Result: param.Result, State: StateCompleted}
	}

	a.waitForUserInputOrTimeout(form)

	switch form.InputState() {
	case tools.InputStateReceived:
		logger.Info("User input received", "root_plan_id", rootPlanID)
		stateStr := form.CurrentStateString()
		a.appendUserInputToMemory("User input received for form: " + stateStr)
		param.Result = stateStr
		a.updateMemoryAfterAct(toolCall, stateStr)
		a.recordActionResult()
		return ExecResult{Result: stateStr, State: StateInProgress}

	case tools.InputStateTimeout:
		logger.Warn("Form input timed out", "root_plan_id", rootPlanID)
		a.appendUserInputToMemory("Input timeout occurred for form")
		a.svc.Forms.Remove(rootPlanID)
		param.Result = "Input timeout occurred"
		a.recordActionResult()
		return ExecResult{Result: "Input timeout occurred.", State: StateInProgress}

	default:
		result := "Form input ended in unexpected state"
		param.Result = result
		return ExecResult{Result: result, State: StateInProgress}
	}
}

// waitForUserInputOrTimeout polls the form state on the configured interval
// with a slower periodic interruption check. Interruption counts as a
// timeout.
func (a *DynamicAgent) waitForUserInputOrTimeout(form *tools.FormInputTool) {
	pollInterval := time.Duration(a.svc.Config.FormPollIntervalMs) * time.Millisecond
	interruptInterval := time.Duration(a.svc.Config.InterruptRecheckMs) * time.Millisecond
	timeout := time.Duration(a.svc.Config.UserInputTimeout) * time.Second

	start := time.Now()
	lastInterruptCheck := start

	for form.InputState() == tools.InputStateAwaiting {
		now := time.Now()

		if now.Sub(lastInterruptCheck) >= interruptInterval {
			if !a.svc.Interrupts.CheckAndContinue(a.execCtx.RootPlanID) {
				logger.Info("Form wait interrupted", "root_plan_id", a.execCtx.RootPlanID)
				form.HandleTimeout()
				return
			}
			lastInterruptCheck = now
		}

		if now.Sub(start) > timeout {
			logger.Warn("Timeout waiting for user input", "plan_id", a.execCtx.CurrentPlanID)
			form.HandleTimeout()
			return
		}

		time.Sleep(pollInterval)
	}
}

// appendUserInputToMemory adds a synthetic user message reflecting the form
// outcome to agent memory
func (a *DynamicAgent) appendUserInputToMemory(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	a.agentMessages = append(a.agentMessages, providers.UserMessage(text))
}

// recordActionResult reports the updated tool params
func (a *DynamicAgent) recordActionResult() {
	if a.svc.Recorder == nil {
		return
	}
	a.svc.Recorder.RecordActionResult(a.actToolParams)
}

// recordErrorToolThinkAct makes reporting tools visible as a think/act
// record so the failure shows up in the UI
func (a *DynamicAgent) recordErrorToolThinkAct(param recorder.ActToolParam, thinkInput, thinkOutput, errorMessage string) {
	if a.svc.Recorder == nil {
		return
	}
	finalError := a.step.ErrorMessage
	if finalError == "" {
		finalError = errorMessage
	}
	a.svc.Recorder.RecordThinkingAndAction(a.step, recorder.ThinkActParams{
		ThinkActID:   a.svc.Dispatcher.GenerateThinkActID(),
		StepID:       a.step.StepID,
		ThinkInput:   thinkInput,
		ThinkOutput:  thinkOutput,
		ErrorMessage: finalError,
		ToolParams:   []recorder.ActToolParam{param},
	})
}

// reportLLMFailure wraps an exhausted retry cycle into the system error
// report flow and fails the step
func (a *DynamicAgent) reportLLMFailure() ExecResult {
	errorMessage := a.buildErrorMessageFromLatest()
	result := a.reportSystemError(errorMessage)
	result.State = StateFailed
	return result
}

// reportSystemError runs the system error report tool and simulates the
// normal post-tool flow so the error is observable
func (a *DynamicAgent) reportSystemError(errorMessage string) ExecResult {
	toolCallID := a.svc.Dispatcher.GenerateToolCallID()
	input := map[string]interface{}{"errorMessage": errorMessage}

	toolUse := tools.ToolUse{
		Type:  "tool_use",
		ID:    toolCallID,
		Name:  tools.SystemErrorReportToolName,
		Input: input,
	}
	result, err := a.svc.Registry.Execute(toolUse, a.callContext(toolCallID))
	output := errorMessage
	if err == nil && result != nil {
		output = result.Content
	}

	a.step.ErrorMessage = tools.ExtractErrorMessage(output)

	paramsJSON, _ := json.Marshal(input)
	param := recorder.ActToolParam{
		Name:       tools.SystemErrorReportToolName,
		Parameters: string(paramsJSON),
		Result:     output,
		ToolCallID: toolCallID,
	}
	a.recordErrorToolThinkAct(param, "LLM call failed after retries",
		"system_error_report called to report LLM error", errorMessage)

	return ExecResult{Result: output, State: StateInProgress}
}

// buildErrorMessageFromLatest formats the final retry failure for the user
func (a *DynamicAgent) buildErrorMessageFromLatest() string {
	if a.latestLLMErr == nil {
		return "Unknown error occurred during LLM call"
	}
	msg := "LLM call failed after all retry attempts. Latest error: " + a.latestLLMErr.Error()
	if len(a.llmErrs) > 0 {
		msg += fmt.Sprintf(" (Total attempts: %d)", len(a.llmErrs))
	}
	return msg
}
