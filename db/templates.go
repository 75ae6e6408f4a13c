package db

import (
	"encoding/json"
	"time"

	"github.com/rohanthewiz/serr"

	"taskflow/plan"
)

// TemplateStore persists plan templates
type TemplateStore struct {
	db *DB
}

// NewTemplateStore creates a template store over the shared connection
func NewTemplateStore(db *DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// SaveTemplate inserts or replaces a template
func (s *TemplateStore) SaveTemplate(t *plan.Template) error {
	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return serr.Wrap(err, "failed to marshal template steps")
	}
	agentsJSON, err := json.Marshal(t.Agents)
	if err != nil {
		return serr.Wrap(err, "failed to marshal template agents")
	}

	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO plan_templates (id, title, steps, agents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(stepsJSON), string(agentsJSON), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return serr.Wrap(err, "failed to save plan template", "template_id", t.ID)
	}
	return nil
}

// LoadTemplate fetches a template by id
func (s *TemplateStore) LoadTemplate(id string) (*plan.Template, error) {
	row := s.db.QueryRow(
		"SELECT id, title, steps, agents, created_at, updated_at FROM plan_templates WHERE id = ?", id)

	var t plan.Template
	var stepsJSON, agentsJSON string
	if err := row.Scan(&t.ID, &t.Title, &stepsJSON, &agentsJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, serr.Wrap(err, "failed to load plan template", "template_id", id)
	}

	if err := json.Unmarshal([]byte(stepsJSON), &t.Steps); err != nil {
		return nil, serr.Wrap(err, "failed to unmarshal template steps", "template_id", id)
	}
	if err := json.Unmarshal([]byte(agentsJSON), &t.Agents); err != nil {
		return nil, serr.Wrap(err, "failed to unmarshal template agents", "template_id", id)
	}
	return &t, nil
}

// ListTemplates returns all templates ordered by last update
func (s *TemplateStore) ListTemplates() ([]*plan.Template, error) {
	rows, err := s.db.Query(
		"SELECT id, title, steps, agents, created_at, updated_at FROM plan_templates ORDER BY updated_at DESC")
	if err != nil {
		return nil, serr.Wrap(err, "failed to list plan templates")
	}
	defer rows.Close()

	var templates []*plan.Template
	for rows.Next() {
		var t plan.Template
		var stepsJSON, agentsJSON string
		if err := rows.Scan(&t.ID, &t.Title, &stepsJSON, &agentsJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, serr.Wrap(err, "failed to scan plan template row")
		}
		if err := json.Unmarshal([]byte(stepsJSON), &t.Steps); err != nil {
			return nil, serr.Wrap(err, "failed to unmarshal template steps", "template_id", t.ID)
		}
		if err := json.Unmarshal([]byte(agentsJSON), &t.Agents); err != nil {
			return nil, serr.Wrap(err, "failed to unmarshal template agents", "template_id", t.ID)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}
