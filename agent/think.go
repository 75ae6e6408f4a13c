package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohanthewiz/logger"

	"taskflow/providers"
	"taskflow/recorder"
	"taskflow/tools"
)

// thinkOutcome routes the step after the thinking phase
type thinkOutcome int

const (
	thinkOK thinkOutcome = iota
	thinkFailed
	thinkInterrupted
)

// toollessMarker tags the error produced when the model keeps answering
// without tool calls
const toollessMarker = "Early termination threshold reached"

func isToollessFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), toollessMarker)
}

// think runs one LLM call with retry, producing the merged stream result
// and the recorded tool parameters for the act phase
func (a *DynamicAgent) think(ctx context.Context) thinkOutcome {
	if !a.svc.Interrupts.CheckAndContinue(a.execCtx.RootPlanID) {
		logger.Info("Agent thinking interrupted", "agent", a.name, "root_plan_id", a.execCtx.RootPlanID)
		return thinkInterrupted
	}

	a.collectEnvData()

	return a.executeWithRetry(ctx, a.svc.Config.LLMMaxRetries)
}

// collectEnvData refreshes the round-scoped environment snapshot from every
// permitted tool
func (a *DynamicAgent) collectEnvData() {
	states := a.svc.Registry.CollectStateStrings(a.toolKeys)
	for key, state := range states {
		a.envData[key] = state
	}
}

// executeWithRetry issues the streaming LLM call with the retry and
// early-termination policy
func (a *DynamicAgent) executeWithRetry(ctx context.Context, maxRetries int) thinkOutcome {
	a.llmErrs = nil
	a.latestLLMErr = nil
	earlyTerminations := 0

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if !a.svc.Interrupts.CheckAndContinue(a.execCtx.RootPlanID) {
			logger.Info("Agent retry interrupted", "agent", a.name, "attempt", attempt)
			return thinkInterrupted
		}

		logger.Debug("Executing agent thinking", "agent", a.name, "attempt", attempt, "max", maxRetries)

		// Compress memory before building the prompt so what we send stays
		// under the limit
		a.agentMessages = a.svc.Compressor.CheckAndCompressIfNeeded(ctx, a.conversationID(), a.agentMessages)

		messages := a.buildPromptMessages(earlyTerminations)
		toolCatalog := a.svc.Registry.ToolsForKeys(a.permittedToolKeys())

		toolCallID := a.svc.Dispatcher.GenerateToolCallID()

		req := providers.ChatRequest{
			Model:    a.modelName,
			System:   a.systemPreamble(),
			Messages: messages,
			Tools:    toolCatalog,
		}

		client, cfg, err := a.svc.LLM.ClientFor(a.modelName)
		if err != nil {
			a.latestLLMErr = err
			a.llmErrs = append(a.llmErrs, err)
			logger.LogErr(err, "failed to resolve chat client", "agent", a.name)
			return thinkFailed
		}
		req.Model = cfg.Name

		streamResult, err := providers.ProcessStream(ctx, client, req,
			fmt.Sprintf("Agent %s thinking", a.name))
		if err != nil {
			lastErr = err
			a.latestLLMErr = err
			a.llmErrs = append(a.llmErrs, err)
			logger.Warn("Thinking attempt failed", "agent", a.name, "attempt", attempt, "error", err.Error())

			if tools.IsRetryableError(err) {
				if attempt < maxRetries {
					delay := a.backoffDelay(attempt)
					logger.Info("Retrying after transient LLM error", "agent", a.name, "delay", delay.String())
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return thinkInterrupted
					}
					continue
				}
			} else {
				logger.LogErr(err, "non-retryable LLM error", "agent", a.name, "attempt", attempt)
				return thinkFailed
			}
			continue
		}

		a.lastStream = streamResult
		a.promptHistory = messages

		if streamResult.EarlyTerminated {
			earlyTerminations++
			logger.Warn("Early termination detected: text-only response without tool calls",
				"agent", a.name, "attempt", attempt, "count", earlyTerminations,
				"threshold", a.svc.Config.EarlyTerminationLimit)

			if earlyTerminations >= a.svc.Config.EarlyTerminationLimit {
				a.latestLLMErr = errors.New(toollessMarker + ": LLM returned thinking-only responses without tool calls " +
					fmt.Sprintf("%d times. The model must call tools to proceed.", earlyTerminations))
				return thinkFailed
			}
		}

		if len(streamResult.ToolCalls) > 0 {
			earlyTerminations = 0
			a.prepareActToolParams(streamResult, toolCallID)
			a.recordThinkAct(messages, streamResult)
			return thinkOK
		}

		logger.Warn("No tools selected, retrying", "agent", a.name, "attempt", attempt)
	}

	if lastErr != nil {
		logger.LogErr(lastErr, "all thinking retries exhausted", "agent", a.name,
			"attempts", len(a.llmErrs))
	}
	return thinkFailed
}

// backoffDelay computes the exponential retry delay: base·2^(n-1), capped
func (a *DynamicAgent) backoffDelay(attempt int) time.Duration {
	base := int64(a.svc.Config.RetryBaseDelayMs)
	max := int64(a.svc.Config.RetryMaxDelayMs)
	delay := base << (attempt - 1)
	if delay > max || delay <= 0 {
		delay = max
	}
	return time.Duration(delay) * time.Millisecond
}

// prepareActToolParams records one ActToolParam per tool call. With more
// than one call each tool gets a fresh toolCallID so sub-plans can link to
// their spawning call.
func (a *DynamicAgent) prepareActToolParams(stream *providers.StreamResult, baseToolCallID string) {
	a.actToolParams = nil
	multiple := len(stream.ToolCalls) > 1
	for _, tc := range stream.ToolCalls {
		id := baseToolCallID
		if multiple {
			id = a.svc.Dispatcher.GenerateToolCallID()
		}
		a.actToolParams = append(a.actToolParams, recorder.ActToolParam{
			Name:       tc.Name,
			Parameters: tc.Arguments,
			ToolCallID: id,
		})
	}
}

// recordThinkAct emits the think/act record for this round
func (a *DynamicAgent) recordThinkAct(messages []providers.Message, stream *providers.StreamResult) {
	if a.svc.Recorder == nil {
		return
	}
	a.svc.Recorder.RecordThinkingAndAction(a.step, recorder.ThinkActParams{
		ThinkActID:  a.svc.Dispatcher.GenerateThinkActID(),
		StepID:      a.step.StepID,
		ThinkInput:  renderMessages(messages),
		ThinkOutput: stream.Text,
		InputChars:  stream.InputChars,
		OutputChars: stream.OutputChars,
		ToolParams:  a.actToolParams,
	})
}

// conversationID returns the conversation id when conversation memory is
// enabled, empty otherwise
func (a *DynamicAgent) conversationID() string {
	if !a.svc.Config.EnableConversationMemory {
		return ""
	}
	return a.execCtx.ConversationID
}

// permittedToolKeys always includes the terminate tool so the model can end
// the step
func (a *DynamicAgent) permittedToolKeys() []string {
	for _, key := range a.toolKeys {
		if key == tools.TerminateToolName {
			return a.toolKeys
		}
	}
	return append(append([]string{}, a.toolKeys...), tools.TerminateToolName)
}

// buildPromptMessages assembles the turn in order: conversation history,
// agent memory, then the current-step environment message (with the
// explicit tool directive after early terminations)
func (a *DynamicAgent) buildPromptMessages(earlyTerminations int) []providers.Message {
	var messages []providers.Message

	if convID := a.conversationID(); convID != "" {
		history := a.svc.Conversations.Get(convID)
		if len(history) > 0 {
			logger.Debug("Adding conversation history", "conversation_id", convID, "messages", len(history))
			messages = append(messages, history...)
		}
	}

	messages = append(messages, a.agentMessages...)

	envMessage := a.currentStepEnvMessage()
	if earlyTerminations > 0 {
		envMessage.Content += fmt.Sprintf("\n\nIMPORTANT: You must call at least one tool to proceed. "+
			"Previous attempt returned only text without tool calls (early termination detected %d time(s)). "+
			"Do not provide explanations or reasoning - call a tool immediately.", earlyTerminations)
	}
	messages = append(messages, envMessage)

	return messages
}
