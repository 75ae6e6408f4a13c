// Package models defines dynamic model configuration and change notification.
package models

import (
	"sync"

	"github.com/rohanthewiz/logger"
)

// Config describes one LLM model endpoint
type Config struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	IsDefault bool   `json:"is_default"`
}

// Registry resolves model configurations by name
type Registry interface {
	FindDefault() (Config, error)
	FindByName(name string) (Config, error)
}

// Notifier fans model-change events out to subscribers.
// The LLM client cache subscribes to purge stale clients.
type Notifier struct {
	mu   sync.Mutex
	subs []chan Config
}

// NewNotifier creates a model-change notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe returns a channel receiving every subsequent model change
func (n *Notifier) Subscribe() <-chan Config {
	ch := make(chan Config, 8)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

// Publish delivers a changed config to all subscribers without blocking
func (n *Notifier) Publish(cfg Config) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- cfg:
		default:
			logger.Warn("Model change subscriber is slow, dropping event", "model", cfg.Name)
		}
	}
}
