package memory

import (
	"testing"

	"taskflow/providers"
)

// TestStoreIsolation verifies conversations do not leak into each other
func TestStoreIsolation(t *testing.T) {
	s := NewConversationStore(0)
	s.Add("a", providers.UserMessage("for a"))
	s.Add("b", providers.UserMessage("for b"))

	if got := s.Get("a"); len(got) != 1 || got[0].Content != "for a" {
		t.Errorf("unexpected messages for a: %+v", got)
	}
	if s.Len("b") != 1 {
		t.Errorf("unexpected count for b: %d", s.Len("b"))
	}
}

// TestStoreWindowTrims verifies the window drops the oldest messages
func TestStoreWindowTrims(t *testing.T) {
	s := NewConversationStore(3)
	for i := 0; i < 5; i++ {
		s.Add("conv", providers.UserMessage(string(rune('a'+i))))
	}

	msgs := s.Get("conv")
	if len(msgs) != 3 {
		t.Fatalf("expected window of 3, got %d", len(msgs))
	}
	if msgs[0].Content != "c" {
		t.Errorf("oldest kept message should be c, got %s", msgs[0].Content)
	}
}

// TestReplaceIsAtomicSwap verifies Replace installs the exact new list
func TestReplaceIsAtomicSwap(t *testing.T) {
	s := NewConversationStore(0)
	s.Add("conv", providers.UserMessage("old"))

	s.Replace("conv", []providers.Message{
		providers.UserMessage("snapshot"),
		providers.AssistantMessage("ack"),
	})

	msgs := s.Get("conv")
	if len(msgs) != 2 || msgs[0].Content != "snapshot" {
		t.Errorf("replace did not install new list: %+v", msgs)
	}
}

// TestGetReturnsCopy verifies callers cannot mutate stored messages
func TestGetReturnsCopy(t *testing.T) {
	s := NewConversationStore(0)
	s.Add("conv", providers.UserMessage("original"))

	got := s.Get("conv")
	got[0].Content = "mutated"

	if s.Get("conv")[0].Content != "original" {
		t.Error("Get must return a copy")
	}
}
