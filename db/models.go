package db

import (
	"database/sql"
	"time"

	"github.com/rohanthewiz/serr"

	"taskflow/models"
)

// ModelStore persists dynamic model configurations and implements
// models.Registry. Saves publish change events through the notifier so the
// LLM client cache can purge stale clients.
type ModelStore struct {
	db       *DB
	notifier *models.Notifier
}

// NewModelStore creates a model store over the shared connection
func NewModelStore(db *DB, notifier *models.Notifier) *ModelStore {
	return &ModelStore{db: db, notifier: notifier}
}

// Save inserts or replaces a model config and publishes the change
func (s *ModelStore) Save(cfg models.Config) error {
	err := s.db.Transaction(func(tx *sql.Tx) error {
		if cfg.IsDefault {
			// Only one default at a time
			if _, err := tx.Exec("UPDATE model_configs SET is_default = FALSE WHERE is_default"); err != nil {
				return serr.Wrap(err, "failed to clear previous default model")
			}
		}
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO model_configs (name, base_url, api_key, max_tokens, is_default, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			cfg.Name, cfg.BaseURL, cfg.APIKey, cfg.MaxTokens, cfg.IsDefault, time.Now(),
		)
		if err != nil {
			return serr.Wrap(err, "failed to save model config", "model", cfg.Name)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.Publish(cfg)
	}
	return nil
}

// FindDefault returns the default model config, falling back to any model
// when no default is flagged
func (s *ModelStore) FindDefault() (models.Config, error) {
	cfg, err := s.scanOne("SELECT name, base_url, api_key, max_tokens, is_default FROM model_configs WHERE is_default LIMIT 1")
	if err == nil {
		return cfg, nil
	}

	cfg, err = s.scanOne("SELECT name, base_url, api_key, max_tokens, is_default FROM model_configs ORDER BY updated_at DESC LIMIT 1")
	if err != nil {
		return models.Config{}, serr.Wrap(err, "no model configs available")
	}
	return cfg, nil
}

// FindByName returns the config for a model name
func (s *ModelStore) FindByName(name string) (models.Config, error) {
	cfg, err := s.scanOne(
		"SELECT name, base_url, api_key, max_tokens, is_default FROM model_configs WHERE name = ?", name)
	if err != nil {
		return models.Config{}, serr.Wrap(err, "model config not found", "model", name)
	}
	return cfg, nil
}

func (s *ModelStore) scanOne(query string, args ...interface{}) (models.Config, error) {
	var cfg models.Config
	var baseURL, apiKey sql.NullString
	var maxTokens sql.NullInt64

	err := s.db.QueryRow(query, args...).Scan(&cfg.Name, &baseURL, &apiKey, &maxTokens, &cfg.IsDefault)
	if err != nil {
		return models.Config{}, err
	}
	cfg.BaseURL = baseURL.String
	cfg.APIKey = apiKey.String
	cfg.MaxTokens = int(maxTokens.Int64)
	return cfg, nil
}
