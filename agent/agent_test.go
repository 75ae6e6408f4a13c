package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"taskflow/config"
	"taskflow/forms"
	"taskflow/interrupt"
	"taskflow/memory"
	"taskflow/models"
	"taskflow/plan"
	"taskflow/pool"
	"taskflow/providers"
	"taskflow/recorder"
	"taskflow/tools"
)

// --- test doubles ---

type fakeModelRegistry struct{}

func (fakeModelRegistry) FindDefault() (models.Config, error) {
	return models.Config{Name: "test-model", IsDefault: true}, nil
}
func (fakeModelRegistry) FindByName(name string) (models.Config, error) {
	return models.Config{Name: name}, nil
}

// scriptedTurn is either a set of stream events or an error
type scriptedTurn struct {
	events []providers.StreamEvent
	err    error
}

// scriptedClient replays turns in order; the last turn repeats
type scriptedClient struct {
	mu    sync.Mutex
	turns []scriptedTurn
	calls int
}

func (c *scriptedClient) Stream(ctx context.Context, req providers.ChatRequest, onEvent func(providers.StreamEvent) error) error {
	c.mu.Lock()
	idx := c.calls
	c.calls++
	if idx >= len(c.turns) {
		idx = len(c.turns) - 1
	}
	turn := c.turns[idx]
	c.mu.Unlock()

	if turn.err != nil {
		return turn.err
	}
	for _, ev := range turn.events {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func textTurn(text string) scriptedTurn {
	return scriptedTurn{events: []providers.StreamEvent{
		{Type: "content_block_start", Index: 0, Block: json.RawMessage(`{"type":"text"}`)},
		{Type: "content_block_delta", Index: 0, Delta: json.RawMessage(`{"type":"text_delta","text":` + quote(text) + `}`)},
		{Type: "message_stop"},
	}}
}

func toolTurn(id, name, args string) scriptedTurn {
	return scriptedTurn{events: []providers.StreamEvent{
		{Type: "content_block_start", Index: 0,
			Block: json.RawMessage(`{"type":"tool_use","id":` + quote(id) + `,"name":` + quote(name) + `}`)},
		{Type: "content_block_delta", Index: 0,
			Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":` + quote(args) + `}`)},
		{Type: "message_stop"},
	}}
}

func multiToolTurn(calls ...[3]string) scriptedTurn {
	var events []providers.StreamEvent
	for i, c := range calls {
		events = append(events,
			providers.StreamEvent{Type: "content_block_start", Index: i,
				Block: json.RawMessage(`{"type":"tool_use","id":` + quote(c[0]) + `,"name":` + quote(c[1]) + `}`)},
			providers.StreamEvent{Type: "content_block_delta", Index: i,
				Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":` + quote(c[2]) + `}`)})
	}
	events = append(events, providers.StreamEvent{Type: "message_stop"})
	return scriptedTurn{events: events}
}

type countingSummarizer struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSummarizer) Summarize(ctx context.Context, system, user string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return "<state_snapshot>compressed</state_snapshot>", nil
}

func (s *countingSummarizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fixedReplyTool always returns the same string
type fixedReplyTool struct {
	name  string
	reply string
}

func (f *fixedReplyTool) definition() tools.Tool {
	return tools.Tool{Name: f.name, Description: "test tool",
		InputSchema: map[string]interface{}{"type": "object"}}
}

func (f *fixedReplyTool) Execute(input map[string]interface{}, ctx tools.CallContext) (string, error) {
	return f.reply, nil
}

type fixture struct {
	client     *scriptedClient
	registry   *tools.Registry
	summarizer *countingSummarizer
	services   Services
	interrupts *interrupt.Service
}

func newFixture(t *testing.T, turns ...scriptedTurn) *fixture {
	t.Helper()

	client := &scriptedClient{turns: turns}
	llm := providers.NewService(fakeModelRegistry{}, func(cfg models.Config) providers.ChatClient {
		return client
	})

	registry := tools.NewRegistry()
	terminate := tools.NewTerminateTool()
	registry.Register(terminate.GetDefinition(), terminate)
	errorReport := tools.NewErrorReportTool()
	registry.Register(errorReport.GetDefinition(), errorReport)
	systemErrorReport := tools.NewSystemErrorReportTool()
	registry.Register(systemErrorReport.GetDefinition(), systemErrorReport)

	pools := pool.NewLevelPools(2, 4)
	interrupts := interrupt.NewService()
	conversations := memory.NewConversationStore(0)
	summarizer := &countingSummarizer{}
	compressor := memory.NewCompressor(conversations, summarizer, memory.CompressorConfig{MaxChars: 30000})

	cfg := &config.Config{
		MaxSteps:                 5,
		ParallelToolCalls:        true,
		ConversationMemoryMaxChars: 30000,
		EnableConversationMemory: false,
		UserInputTimeout:         1,
		FormPollIntervalMs:       10,
		InterruptRecheckMs:       20,
		FormLockTimeoutMs:        100,
		LLMMaxRetries:            3,
		RetryBaseDelayMs:         1,
		RetryMaxDelayMs:          5,
		EarlyTerminationLimit:    3,
		RepeatedResultThreshold:  3,
	}

	return &fixture{
		client:     client,
		registry:   registry,
		summarizer: summarizer,
		interrupts: interrupts,
		services: Services{
			LLM:           llm,
			Registry:      registry,
			Parallel:      tools.NewParallelService(registry, pools),
			Compressor:    compressor,
			Conversations: conversations,
			Recorder:      recorder.Noop{},
			Interrupts:    interrupts,
			Forms:         forms.NewStore(100 * time.Millisecond),
			Dispatcher:    plan.NewDispatcher(),
			Config:        cfg,
		},
	}
}

func (f *fixture) newAgent(toolKeys []string, maxSteps int) (*DynamicAgent, *plan.Step) {
	step := &plan.Step{StepID: "step-1", Requirement: "do the work", Status: plan.StepStatusPending}
	execCtx := &plan.ExecutionContext{
		CurrentPlanID: "plan-1",
		RootPlanID:    "plan-1",
		Plan:          &plan.Plan{ID: "plan-1", RootPlanID: "plan-1"},
	}
	spec := plan.AgentSpec{
		Name:     "DEFAULT_AGENT",
		ToolKeys: toolKeys,
		MaxSteps: maxSteps,
	}
	return New(spec, step, execCtx, f.services), step
}

// --- tests ---

// TestAgentCompletesOnTerminate verifies a terminate call ends the step as
// completed with the final message
func TestAgentCompletesOnTerminate(t *testing.T) {
	f := newFixture(t, toolTurn("tc1", "terminate", `{"message":"answer is 42"}`))
	a, _ := f.newAgent([]string{"terminate"}, 3)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.State, result.Result)
	}
	if !strings.Contains(result.Result, "answer is 42") {
		t.Errorf("expected final message in result, got %q", result.Result)
	}
	if f.client.callCount() != 1 {
		t.Errorf("expected 1 LLM call, got %d", f.client.callCount())
	}
}

// TestToollessResponsesFailStep covers the early-termination policy: three
// consecutive text-only responses fail the step without endless retries
func TestToollessResponsesFailStep(t *testing.T) {
	f := newFixture(t, textTurn("let me think about this"))
	a, _ := f.newAgent([]string{"terminate"}, 3)

	result := a.Run(context.Background())
	if result.State != StateFailed {
		t.Fatalf("expected failed, got %s (%s)", result.State, result.Result)
	}
	if !strings.Contains(result.Result, "thinking-only") {
		t.Errorf("expected toolless explanation in result, got %q", result.Result)
	}
	if f.client.callCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", f.client.callCount())
	}
}

// TestTransientErrorRetries verifies retryable network failures get retried
// and the step still completes
func TestTransientErrorRetries(t *testing.T) {
	f := newFixture(t,
		scriptedTurn{err: errors.New("dial tcp: connection refused")},
		toolTurn("tc1", "terminate", `{"message":"recovered"}`),
	)
	a, _ := f.newAgent([]string{"terminate"}, 3)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed after retry, got %s (%s)", result.State, result.Result)
	}
	if f.client.callCount() != 2 {
		t.Errorf("expected 2 LLM calls, got %d", f.client.callCount())
	}
}

// TestNonRetryableErrorFails verifies permanent LLM errors fail the step
// through the system error report flow
func TestNonRetryableErrorFails(t *testing.T) {
	f := newFixture(t, scriptedTurn{err: errors.New("400 bad request: malformed payload")})
	a, step := f.newAgent([]string{"terminate"}, 3)

	result := a.Run(context.Background())
	if result.State != StateFailed {
		t.Fatalf("expected failed, got %s (%s)", result.State, result.Result)
	}
	if f.client.callCount() != 1 {
		t.Errorf("non-retryable error should not retry, got %d calls", f.client.callCount())
	}
	if step.ErrorMessage == "" {
		t.Error("expected errorMessage attached to the step")
	}
}

// TestRepeatedResultForcesCompression covers loop breaking: three identical
// tool results trigger exactly one forced agent-memory compression
func TestRepeatedResultForcesCompression(t *testing.T) {
	f := newFixture(t,
		toolTurn("e1", "echo_fixed", `{}`),
		toolTurn("e2", "echo_fixed", `{}`),
		toolTurn("e3", "echo_fixed", `{}`),
		toolTurn("t1", "terminate", `{"message":"loop broken"}`),
	)
	echo := &fixedReplyTool{name: "echo_fixed", reply: `{"output":"loop"}`}
	f.registry.Register(echo.definition(), echo)

	a, _ := f.newAgent([]string{"echo_fixed", "terminate"}, 5)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.State, result.Result)
	}
	if f.summarizer.count() != 1 {
		t.Errorf("expected exactly one forced compression, got %d", f.summarizer.count())
	}
}

// TestWindowNotFullNoCompression verifies two identical results do not
// trigger compression
func TestWindowNotFullNoCompression(t *testing.T) {
	f := newFixture(t,
		toolTurn("e1", "echo_fixed", `{}`),
		toolTurn("e2", "echo_fixed", `{}`),
		toolTurn("t1", "terminate", `{"message":"done"}`),
	)
	echo := &fixedReplyTool{name: "echo_fixed", reply: `{"output":"same"}`}
	f.registry.Register(echo.definition(), echo)

	a, _ := f.newAgent([]string{"echo_fixed", "terminate"}, 5)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed, got %s", result.State)
	}
	if f.summarizer.count() != 0 {
		t.Errorf("expected no compression with a non-full window, got %d", f.summarizer.count())
	}
}

// TestMaxStepsTriggersFinalSummary verifies the budget path: summary call
// plus terminate, ending completed
func TestMaxStepsTriggersFinalSummary(t *testing.T) {
	f := newFixture(t,
		toolTurn("e1", "echo_a", `{}`),
		toolTurn("e2", "echo_b", `{}`),
		textTurn("summary of everything accomplished"),
	)
	echoA := &fixedReplyTool{name: "echo_a", reply: "ra"}
	f.registry.Register(echoA.definition(), echoA)
	echoB := &fixedReplyTool{name: "echo_b", reply: "rb"}
	f.registry.Register(echoB.definition(), echoB)

	a, _ := f.newAgent([]string{"echo_a", "echo_b", "terminate"}, 2)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed at max steps, got %s (%s)", result.State, result.Result)
	}
	if !strings.Contains(result.Result, "max rounds reached") {
		t.Errorf("expected max-rounds termination message, got %q", result.Result)
	}
	if !strings.Contains(result.Result, "summary of everything accomplished") {
		t.Errorf("expected generated summary in result, got %q", result.Result)
	}
}

// capturingRecorder stores action-result reports for assertions
type capturingRecorder struct {
	recorder.Noop
	mu            sync.Mutex
	actionResults [][]recorder.ActToolParam
}

func (c *capturingRecorder) RecordActionResult(params []recorder.ActToolParam) {
	cp := make([]recorder.ActToolParam, len(params))
	copy(cp, params)
	c.mu.Lock()
	c.actionResults = append(c.actionResults, cp)
	c.mu.Unlock()
}

// TestMultiToolTurnKeepsOrder verifies a multi-call turn returns results in
// the model's original order with the terminator scheduled last
func TestMultiToolTurnKeepsOrder(t *testing.T) {
	f := newFixture(t,
		multiToolTurn(
			[3]string{"a1", "slow_tool", `{}`},
			[3]string{"b1", "fast_tool", `{}`},
			[3]string{"t1", "terminate", `{"message":"batch done"}`},
		),
		toolTurn("t2", "terminate", `{"message":"finishing"}`),
	)
	slow := &fixedReplyTool{name: "slow_tool", reply: "slow result"}
	f.registry.Register(slow.definition(), slow)
	fast := &fixedReplyTool{name: "fast_tool", reply: "fast result"}
	f.registry.Register(fast.definition(), fast)

	capture := &capturingRecorder{}
	f.services.Recorder = capture

	a, _ := f.newAgent([]string{"slow_tool", "fast_tool", "terminate"}, 3)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.State, result.Result)
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	if len(capture.actionResults) == 0 {
		t.Fatal("no action results recorded")
	}
	batch := capture.actionResults[0]
	if len(batch) != 3 {
		t.Fatalf("expected 3 tool params in first batch, got %d", len(batch))
	}
	if batch[0].Result != "slow result" || batch[1].Result != "fast result" {
		t.Errorf("batch results out of order: %+v", batch)
	}
	if !strings.Contains(batch[2].Result, "batch done") {
		t.Errorf("terminator result missing at original index: %+v", batch[2])
	}
}

// TestInterruptedBeforeRun verifies interruption short-circuits the loop
func TestInterruptedBeforeRun(t *testing.T) {
	f := newFixture(t, toolTurn("tc1", "terminate", `{"message":"should not run"}`))
	a, _ := f.newAgent([]string{"terminate"}, 3)

	f.interrupts.Interrupt("plan-1")

	result := a.Run(context.Background())
	if result.State != StateInterrupted {
		t.Fatalf("expected interrupted, got %s", result.State)
	}
	if f.client.callCount() != 0 {
		t.Errorf("no LLM call should happen after interruption, got %d", f.client.callCount())
	}
}

// TestFormInputTimeout verifies the rendezvous times out, clears the form,
// and the step continues with the timeout message
func TestFormInputTimeout(t *testing.T) {
	f := newFixture(t,
		toolTurn("f1", "form_input", `{"title":"Need info","inputs":[{"name":"city","label":"City"}]}`),
		toolTurn("t1", "terminate", `{"message":"proceeding without input"}`),
	)
	formTool := tools.NewFormInputTool()
	f.registry.Register(formTool.GetDefinition(), formTool)

	a, _ := f.newAgent([]string{"form_input", "terminate"}, 3)

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.State, result.Result)
	}
	if f.services.Forms.Get("plan-1") != nil {
		t.Error("form slot should be cleared after timeout")
	}
}

// TestFormInputReceived verifies submitted values resume the agent with a
// synthetic user message in memory
func TestFormInputReceived(t *testing.T) {
	f := newFixture(t,
		toolTurn("f1", "form_input", `{"title":"Need info","inputs":[{"name":"city","label":"City"}]}`),
		toolTurn("t1", "terminate", `{"message":"got the city"}`),
	)
	formTool := tools.NewFormInputTool()
	f.registry.Register(formTool.GetDefinition(), formTool)

	a, _ := f.newAgent([]string{"form_input", "terminate"}, 3)

	go func() {
		// Submit once the form shows up in the exclusive store
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if form := f.services.Forms.Get("plan-1"); form != nil {
				_ = f.services.Forms.Submit("plan-1", map[string]string{"city": "Oslo"})
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result := a.Run(context.Background())
	if result.State != StateCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.State, result.Result)
	}
}
