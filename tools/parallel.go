package tools

import (
	"sort"

	"github.com/rohanthewiz/logger"

	"taskflow/pool"
)

// Execution statuses for parallel tool outcomes
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Request is one tool invocation inside a multi-tool batch
type Request struct {
	ToolName   string
	Params     *OrderedMap
	ToolCallID string
}

// Outcome is the envelope returned for every request in a batch.
// Errors never propagate as Go errors out of the batch; they land here.
type Outcome struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ParallelService runs batches of tools concurrently. Terminate tools are
// scheduled strictly after every other tool in the batch has completed.
type ParallelService struct {
	registry *Registry
	pools    *pool.LevelPools
}

// NewParallelService creates a parallel execution service
func NewParallelService(registry *Registry, pools *pool.LevelPools) *ParallelService {
	return &ParallelService{registry: registry, pools: pools}
}

// ExecuteTool runs a single tool and delivers its outcome on the returned
// channel. Synchronous tools are submitted to the pool at the caller's
// depth; async-capable tools are invoked through their own interface.
func (s *ParallelService) ExecuteTool(name string, params *OrderedMap, ctx CallContext, index int) <-chan Outcome {
	out := make(chan Outcome, 1)

	tool, executor, found := s.registry.Resolve(name)
	if !found {
		out <- Outcome{Index: index, Status: StatusError, Error: "Tool not found: " + name}
		return out
	}

	// Fill required fields the model omitted so strict decoders don't choke
	filled := FillRequired(params, RequiredFields(tool.InputSchema))
	input := filled.ToMap()

	if asyncExec, ok := executor.(AsyncExecutor); ok {
		go func() {
			res := <-asyncExec.ExecuteAsync(input, ctx)
			if res.Err != nil {
				logger.LogErr(res.Err, "async tool execution failed", "tool", name)
				out <- Outcome{Index: index, Status: StatusError, Error: res.Err.Error()}
				return
			}
			out <- Outcome{Index: index, Status: StatusSuccess, Output: res.Output}
		}()
		return out
	}

	resultCh := s.pools.Submit(ctx.Depth, func() (any, error) {
		return executor.Execute(input, ctx)
	})

	go func() {
		res := <-resultCh
		if res.Err != nil {
			logger.LogErr(res.Err, "tool execution failed", "tool", name)
			out <- Outcome{Index: index, Status: StatusError, Error: res.Err.Error()}
			return
		}
		output, _ := res.Value.(string)
		out <- Outcome{Index: index, Status: StatusSuccess, Output: output}
	}()
	return out
}

// ExecuteAll runs a batch of requests. Non-terminators run concurrently;
// all of them complete before any terminator starts; results come back
// sorted by the original request index.
func (s *ParallelService) ExecuteAll(requests []Request, ctx CallContext) []Outcome {
	var terminators, others []int
	for i, req := range requests {
		if s.isTerminator(req.ToolName) {
			terminators = append(terminators, i)
		} else {
			others = append(others, i)
		}
	}

	results := make([]Outcome, 0, len(requests))

	runBatch := func(indices []int) {
		channels := make([]<-chan Outcome, len(indices))
		for n, i := range indices {
			req := requests[i]
			callCtx := ctx
			if req.ToolCallID != "" {
				callCtx.ToolCallID = req.ToolCallID
			}
			channels[n] = s.ExecuteTool(req.ToolName, req.Params, callCtx, i)
		}
		for _, ch := range channels {
			results = append(results, <-ch)
		}
	}

	runBatch(others)
	if len(terminators) > 0 {
		logger.Info("Executing terminator tool(s) after all other parallel operations completed",
			"count", len(terminators))
		runBatch(terminators)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// isTerminator reports whether the key resolves to the terminate tool
func (s *ParallelService) isTerminator(name string) bool {
	_, executor, found := s.registry.Resolve(name)
	if !found {
		return false
	}
	_, ok := executor.(*TerminateTool)
	return ok
}
