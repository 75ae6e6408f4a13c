package memory

import (
	"testing"

	"taskflow/providers"
)

// TestGroupRoundsShapes verifies the three round shapes come out of a mixed
// message stream
func TestGroupRoundsShapes(t *testing.T) {
	messages := []providers.Message{
		providers.UserMessage("find the report"),
		providers.AssistantMessage("searching"),
		providers.ToolResponseMessage(providers.ToolResponse{Name: "search", Content: "found"}),

		providers.UserMessage("thanks"),
		providers.AssistantMessage("welcome"),

		providers.AssistantMessage("continuing work"),
		providers.ToolResponseMessage(providers.ToolResponse{Name: "file_read", Content: "data"}),
	}

	rounds := GroupMessagesIntoRounds(messages)
	if len(rounds) != 3 {
		t.Fatalf("expected 3 rounds, got %d", len(rounds))
	}

	if n := len(rounds[0].Messages); n != 3 {
		t.Errorf("round 0: expected user-assistant-toolresponse, got %d messages", n)
	}
	if n := len(rounds[1].Messages); n != 2 {
		t.Errorf("round 1: expected user-assistant, got %d messages", n)
	}
	if n := len(rounds[2].Messages); n != 2 {
		t.Errorf("round 2: expected assistant-toolresponse, got %d messages", n)
	}
}

// TestGroupRoundsFlattenRoundTrip verifies grouping a flattened round list
// reproduces the same rounds
func TestGroupRoundsFlattenRoundTrip(t *testing.T) {
	messages := []providers.Message{
		providers.UserMessage("one"),
		providers.AssistantMessage("ack one"),
		providers.ToolResponseMessage(providers.ToolResponse{Name: "a", Content: "r1"}),
		providers.UserMessage("two"),
		providers.AssistantMessage("ack two"),
	}

	rounds := GroupMessagesIntoRounds(messages)
	again := GroupMessagesIntoRounds(FlattenRounds(rounds))

	if len(rounds) != len(again) {
		t.Fatalf("round trip changed round count: %d vs %d", len(rounds), len(again))
	}
	for i := range rounds {
		if len(rounds[i].Messages) != len(again[i].Messages) {
			t.Errorf("round %d size changed: %d vs %d", i, len(rounds[i].Messages), len(again[i].Messages))
		}
	}
}

// TestGroupRoundsUnknownAttaches verifies unknown message kinds attach to
// the open round
func TestGroupRoundsUnknownAttaches(t *testing.T) {
	messages := []providers.Message{
		providers.UserMessage("start"),
		{Role: "annotation", Content: "meta"},
		providers.AssistantMessage("done"),
	}

	rounds := GroupMessagesIntoRounds(messages)
	if len(rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(rounds))
	}
	if len(rounds[0].Messages) != 3 {
		t.Errorf("expected annotation attached to open round, got %d messages", len(rounds[0].Messages))
	}
}

// TestRoundTotalChars verifies char counting covers tool payloads
func TestRoundTotalChars(t *testing.T) {
	round := Round{Messages: []providers.Message{
		{Role: providers.RoleAssistant, Content: "abcd",
			ToolCalls: []providers.ToolCall{{Name: "x", Arguments: "12345"}}},
		providers.ToolResponseMessage(providers.ToolResponse{Name: "x", Content: "123"}),
	}}
	if got := round.TotalChars(); got != 4+5+3 {
		t.Errorf("expected 12 chars, got %d", got)
	}
}
