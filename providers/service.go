package providers

import (
	"context"
	"sync"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"taskflow/models"
)

// ClientFactory builds a chat client from a model config
type ClientFactory func(cfg models.Config) ChatClient

// Service resolves chat clients by model name, caching one immutable client
// per model. Model-change events purge the cache so the next call rebuilds
// from fresh config.
type Service struct {
	registry models.Registry
	factory  ClientFactory

	mu    sync.Mutex
	cache map[string]ChatClient
}

// NewService creates an LLM client service
func NewService(registry models.Registry, factory ClientFactory) *Service {
	if factory == nil {
		factory = func(cfg models.Config) ChatClient { return NewAnthropicClient(cfg) }
	}
	return &Service{
		registry: registry,
		factory:  factory,
		cache:    make(map[string]ChatClient),
	}
}

// ClientFor returns the cached client for a model name, building it on the
// first request. An empty name selects the default model.
func (s *Service) ClientFor(modelName string) (ChatClient, models.Config, error) {
	var cfg models.Config
	var err error
	if modelName == "" {
		cfg, err = s.registry.FindDefault()
	} else {
		cfg, err = s.registry.FindByName(modelName)
	}
	if err != nil {
		return nil, models.Config{}, serr.Wrap(err, "failed to resolve model config", "model", modelName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.cache[cfg.Name]; ok {
		return client, cfg, nil
	}

	client := s.factory(cfg)
	s.cache[cfg.Name] = client
	logger.Info("Built and cached chat client", "model", cfg.Name)
	return client, cfg, nil
}

// WatchModelChanges purges cached clients when their config changes.
// Runs until the channel closes.
func (s *Service) WatchModelChanges(events <-chan models.Config) {
	go func() {
		for cfg := range events {
			s.mu.Lock()
			delete(s.cache, cfg.Name)
			if cfg.IsDefault {
				// The default alias may point at the changed model too
				s.cache = make(map[string]ChatClient)
			}
			s.mu.Unlock()
			logger.Info("Purged chat client cache on model change", "model", cfg.Name)
		}
	}()
}

// Chat issues a plain, tool-free call and returns the merged text.
// Used for summary generation.
func (s *Service) Chat(ctx context.Context, modelName, system, user string) (string, error) {
	client, cfg, err := s.ClientFor(modelName)
	if err != nil {
		return "", err
	}

	req := ChatRequest{
		Model:    cfg.Name,
		System:   system,
		Messages: []Message{UserMessage(user)},
	}
	result, err := ProcessStream(ctx, client, req, "chat "+cfg.Name)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Summarize satisfies the memory compressor's summarizer contract
func (s *Service) Summarize(ctx context.Context, system, user string) (string, error) {
	return s.Chat(ctx, "", system, user)
}
