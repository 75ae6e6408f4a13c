package providers

import (
	"context"
	"encoding/json"
	"testing"
)

// scriptedClient replays canned stream events per call
type scriptedClient struct {
	turns [][]StreamEvent
	calls int
}

func (c *scriptedClient) Stream(ctx context.Context, req ChatRequest, onEvent func(StreamEvent) error) error {
	idx := c.calls
	if idx >= len(c.turns) {
		idx = len(c.turns) - 1
	}
	c.calls++
	for _, ev := range c.turns[idx] {
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func textEvents(text string) []StreamEvent {
	return []StreamEvent{
		{Type: "content_block_start", Index: 0, Block: json.RawMessage(`{"type":"text"}`)},
		{Type: "content_block_delta", Index: 0, Delta: json.RawMessage(`{"type":"text_delta","text":` + mustQuote(text) + `}`)},
		{Type: "message_stop"},
	}
}

func toolUseEvents(id, name, args string) []StreamEvent {
	return []StreamEvent{
		{Type: "content_block_start", Index: 0,
			Block: json.RawMessage(`{"type":"tool_use","id":` + mustQuote(id) + `,"name":` + mustQuote(name) + `}`)},
		{Type: "content_block_delta", Index: 0,
			Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":` + mustQuote(args) + `}`)},
		{Type: "message_stop"},
	}
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// TestProcessStreamMergesTextDeltas verifies split text chunks merge into
// one assistant turn
func TestProcessStreamMergesTextDeltas(t *testing.T) {
	client := &scriptedClient{turns: [][]StreamEvent{{
		{Type: "content_block_start", Index: 0, Block: json.RawMessage(`{"type":"text"}`)},
		{Type: "content_block_delta", Index: 0, Delta: json.RawMessage(`{"type":"text_delta","text":"Hello, "}`)},
		{Type: "content_block_delta", Index: 0, Delta: json.RawMessage(`{"type":"text_delta","text":"world"}`)},
		{Type: "message_stop"},
	}}}

	result, err := ProcessStream(context.Background(), client, ChatRequest{}, "test")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if result.Text != "Hello, world" {
		t.Errorf("expected merged text, got %q", result.Text)
	}
	if !result.EarlyTerminated {
		t.Error("text-only response should be flagged as early terminated")
	}
}

// TestProcessStreamMergesToolCall verifies partial argument JSON merges
// into one tool call
func TestProcessStreamMergesToolCall(t *testing.T) {
	client := &scriptedClient{turns: [][]StreamEvent{{
		{Type: "content_block_start", Index: 0,
			Block: json.RawMessage(`{"type":"tool_use","id":"tc1","name":"search"}`)},
		{Type: "content_block_delta", Index: 0,
			Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":"{\"query\":"}`)},
		{Type: "content_block_delta", Index: 0,
			Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":"\"golang\"}"}`)},
		{Type: "message_stop"},
	}}}

	result, err := ProcessStream(context.Background(), client, ChatRequest{}, "test")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(result.ToolCalls))
	}
	tc := result.ToolCalls[0]
	if tc.ID != "tc1" || tc.Name != "search" || tc.Arguments != `{"query":"golang"}` {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if result.EarlyTerminated {
		t.Error("response with tool calls must not be early terminated")
	}
}

// TestProcessStreamMixedBlocks verifies text and multiple tool calls merge
// in block order
func TestProcessStreamMixedBlocks(t *testing.T) {
	client := &scriptedClient{turns: [][]StreamEvent{{
		{Type: "content_block_start", Index: 0, Block: json.RawMessage(`{"type":"text"}`)},
		{Type: "content_block_delta", Index: 0, Delta: json.RawMessage(`{"type":"text_delta","text":"using two tools"}`)},
		{Type: "content_block_start", Index: 1, Block: json.RawMessage(`{"type":"tool_use","id":"a1","name":"alpha"}`)},
		{Type: "content_block_delta", Index: 1, Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":"{}"}`)},
		{Type: "content_block_start", Index: 2, Block: json.RawMessage(`{"type":"tool_use","id":"b1","name":"beta"}`)},
		{Type: "message_stop"},
	}}}

	result, err := ProcessStream(context.Background(), client, ChatRequest{}, "test")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if result.Text != "using two tools" {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if len(result.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(result.ToolCalls))
	}
	if result.ToolCalls[0].Name != "alpha" || result.ToolCalls[1].Name != "beta" {
		t.Errorf("tool call order lost: %+v", result.ToolCalls)
	}
	// Empty partial json defaults to an empty object
	if result.ToolCalls[1].Arguments != "{}" {
		t.Errorf("expected empty-object default args, got %q", result.ToolCalls[1].Arguments)
	}
}

// TestMessagesEqual verifies the duplicate filter's equality
func TestMessagesEqual(t *testing.T) {
	a := AssistantMessage("same")
	b := AssistantMessage("same")
	if !MessagesEqual(a, b) {
		t.Error("identical messages must compare equal")
	}

	c := AssistantMessage("different")
	if MessagesEqual(a, c) {
		t.Error("different messages must not compare equal")
	}
}
