// Package memory bounds conversation growth through round grouping and
// LLM summarization.
package memory

import (
	"sync"

	"github.com/rohanthewiz/logger"

	"taskflow/providers"
)

// ConversationStore holds the cross-plan, user-visible dialog per
// conversation id. All writes go through its mutex: compression performs a
// clear-and-rewrite of one conversation as a single critical section.
type ConversationStore struct {
	mu           sync.Mutex
	conversations map[string][]providers.Message
	maxMessages  int
}

// NewConversationStore creates a store. maxMessages bounds the window kept
// per conversation before compression kicks in; zero means unbounded.
func NewConversationStore(maxMessages int) *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string][]providers.Message),
		maxMessages:   maxMessages,
	}
}

// Get returns a copy of the messages for a conversation
func (s *ConversationStore) Get(conversationID string) []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.conversations[conversationID]
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Add appends messages to a conversation, trimming the oldest beyond the
// window size
func (s *ConversationStore) Add(conversationID string, messages ...providers.Message) {
	if conversationID == "" || len(messages) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.conversations[conversationID], messages...)
	if s.maxMessages > 0 && len(msgs) > s.maxMessages {
		dropped := len(msgs) - s.maxMessages
		msgs = msgs[dropped:]
		logger.Debug("Trimmed conversation window", "conversation_id", conversationID, "dropped", dropped)
	}
	s.conversations[conversationID] = msgs
}

// Replace atomically swaps the full message list of one conversation.
// This is the compressor's clear-and-rewrite operation.
func (s *ConversationStore) Replace(conversationID string, messages []providers.Message) {
	if conversationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]providers.Message, len(messages))
	copy(out, messages)
	s.conversations[conversationID] = out
}

// Clear removes a conversation entirely
func (s *ConversationStore) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}

// Len returns the message count for a conversation
func (s *ConversationStore) Len(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations[conversationID])
}
