package agent

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"taskflow/providers"
)

// systemPreamble builds the system prompt: platform context, the current
// step requirement, the agent's own prompt, and the response rules derived
// from configuration
func (a *DynamicAgent) systemPreamble() string {
	var detailOutput string
	if a.svc.Config.DebugDetail {
		detailOutput = "1. When using tool calls, you must provide explanations describing the reason for using this tool and the thinking behind it\n" +
			"2. Briefly describe what all previous steps have accomplished"
	} else {
		detailOutput = "1. When using tool calls, no additional explanations are needed!\n" +
			"2. Do not provide reasoning or descriptions before tool calls!"
	}

	var parallelRules string
	if a.svc.Config.ParallelToolCalls {
		parallelRules = `# Response Rules:
- You must select and call from the provided tools. You can make repeated calls to a single tool, call multiple tools simultaneously, or use a mixed calling approach to improve problem-solving efficiency and accuracy.
- In your response, you must call at least one tool, which is an indispensable operation step.
- To maximize the advantages of tools, when you have the ability to call tools multiple times simultaneously, you should actively do so. Pay attention to the inherent relationships between multiple tool calls so the calls cooperate toward the solution.`
	} else {
		parallelRules = `# Response Rules:
- You must call exactly ONE tool at a time. Multiple simultaneous tool calls are not allowed.
- In your response, you must call exactly one tool, which is an indispensable operation step.`
	}

	var sb strings.Builder
	sb.WriteString("<SystemInfo>\n")
	sb.WriteString(fmt.Sprintf("- SYSTEM INFORMATION:\nOS: %s (%s)\n\n", runtime.GOOS, runtime.GOARCH))
	sb.WriteString("- Current Date:\n" + time.Now().Format("2006-01-02") + "\n\n")
	if a.execCtx.UserRequest != "" {
		sb.WriteString("- User request:\n" + a.execCtx.UserRequest + "\n\n")
	}
	sb.WriteString("- Current step requirements:\n" + a.step.Requirement + "\n\n")
	sb.WriteString("Important Notes:\n" + detailOutput + "\n")
	sb.WriteString("3. Do only and exactly what is required in the current step requirements\n")
	sb.WriteString("4. If the current step requirements have been completed, call the terminate tool to finish the current step.\n\n")
	sb.WriteString(parallelRules + "\n")
	sb.WriteString("</SystemInfo>\n\n")

	if a.nextStepPrompt != "" {
		sb.WriteString("<AgentInfo>\n" + a.nextStepPrompt + "\n</AgentInfo>\n")
	}

	return sb.String()
}

// currentStepEnvMessage renders the per-round tool state snapshot as the
// final user message of the prompt
func (a *DynamicAgent) currentStepEnvMessage() providers.Message {
	var sb strings.Builder
	sb.WriteString("- Current step environment information:\n")

	keys := make([]string, 0, len(a.envData))
	for key := range a.envData {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := a.envData[key]
		if value == "" {
			continue
		}
		sb.WriteString(key + " context information:\n")
		sb.WriteString("    " + value + "\n")
	}

	return providers.UserMessage(sb.String())
}
