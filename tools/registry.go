package tools

import (
	"sort"
	"strings"
	"sync"

	"github.com/rohanthewiz/logger"
)

// Registry holds all available tools keyed by their qualified key
// (serviceGroup_toolName, or a bare name for the built-in tools)
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	executors map[string]Executor
	groups    *GroupIndex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		executors: make(map[string]Executor),
		groups:    NewGroupIndex(),
	}
}

// Register adds a tool to the registry under its qualified key
func (r *Registry) Register(tool Tool, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	r.executors[tool.Name] = executor
	r.groups.RegisterKey(tool.Name)
}

// GetTools returns all registered tools sorted by key for determinism
func (r *Registry) GetTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// ToolsForKeys returns definitions for the given keys, skipping unknown ones
func (r *Registry) ToolsForKeys(keys []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(keys))
	for _, key := range keys {
		if tool, ok := r.tools[key]; ok {
			out = append(out, tool)
		} else {
			logger.Warn("Tool key not found in registry", "key", key)
		}
	}
	return out
}

// Resolve finds a tool by any of the key forms an LLM may emit:
// the exact qualified key, the dot form serviceGroup.toolName, or the bare
// tool name matched as a suffix after the last underscore.
func (r *Registry) Resolve(key string) (Tool, Executor, bool) {
	if key == "" {
		return Tool{}, nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Direct lookup
	if exec, ok := r.executors[key]; ok {
		return r.tools[key], exec, true
	}

	// Dot form conversion through the group index
	if converted := r.groups.FrontendKey(key); converted != "" && converted != key {
		if exec, ok := r.executors[converted]; ok {
			logger.Debug("Resolved tool via dot-form conversion", "key", key, "converted", converted)
			return r.tools[converted], exec, true
		}
	}

	// Suffix match by the part after the last underscore
	if idx := strings.LastIndex(key, "_"); idx > 0 && idx < len(key)-1 {
		suffix := key[idx+1:]
		if exec, ok := r.executors[suffix]; ok {
			logger.Debug("Resolved tool via suffix match", "key", key, "suffix", suffix)
			return r.tools[suffix], exec, true
		}
	}

	return Tool{}, nil, false
}

// Executor returns the raw executor registered for a qualified key
func (r *Registry) Executor(key string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[key]
	return exec, ok
}

// Execute resolves and runs a tool, returning a result envelope.
// A resolution miss is reported in the result, not as an error.
func (r *Registry) Execute(toolUse ToolUse, ctx CallContext) (*ToolResult, error) {
	_, executor, found := r.Resolve(toolUse.Name)
	if !found {
		return &ToolResult{
			Type:      "tool_result",
			ToolUseID: toolUse.ID,
			Content:   "Tool not found: " + toolUse.Name,
		}, &ToolError{Message: "Unknown tool: " + toolUse.Name}
	}

	result, err := executor.Execute(toolUse.Input, ctx)
	if err != nil {
		// Return both the error result and the error itself so callers can
		// decide whether to surface or continue
		return &ToolResult{
			Type:      "tool_result",
			ToolUseID: toolUse.ID,
			Content:   "Error: " + err.Error(),
		}, err
	}

	return &ToolResult{
		Type:      "tool_result",
		ToolUseID: toolUse.ID,
		Content:   result,
	}, nil
}

// CollectStateStrings queries each listed tool for its current state string,
// skipping tools that are unknown or report nothing
func (r *Registry) CollectStateStrings(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		_, executor, found := r.Resolve(key)
		if !found {
			logger.Warn("No tool context found for state collection", "key", key)
			continue
		}
		if reporter, ok := executor.(StateReporter); ok {
			out[key] = reporter.CurrentStateString()
		} else {
			out[key] = ""
		}
	}
	return out
}

// CleanupAll invokes Cleanup on every tool that holds plan-scoped state.
// Errors are logged and swallowed; cleanup never fails the plan.
func (r *Registry) CleanupAll(planID string) {
	r.mu.RLock()
	executors := make([]Executor, 0, len(r.executors))
	for _, exec := range r.executors {
		executors = append(executors, exec)
	}
	r.mu.RUnlock()

	for _, exec := range executors {
		if cleaner, ok := exec.(Cleaner); ok {
			if err := cleaner.Cleanup(planID); err != nil {
				logger.LogErr(err, "tool cleanup failed", "plan_id", planID)
			}
		}
	}
}
