package db

import (
	"database/sql"
	"fmt"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations list all database migrations in order
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create initial schema",
		SQL: `
			-- Plan templates: reusable step sequences with their agent variants
			CREATE TABLE IF NOT EXISTS plan_templates (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				steps JSON NOT NULL,
				agents JSON NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			-- Dynamic model configurations
			CREATE TABLE IF NOT EXISTS model_configs (
				name TEXT PRIMARY KEY,
				base_url TEXT,
				api_key TEXT,
				max_tokens INTEGER,
				is_default BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			-- Plan lifecycle records
			CREATE TABLE IF NOT EXISTS plan_records (
				id INTEGER PRIMARY KEY,
				plan_id TEXT NOT NULL,
				root_plan_id TEXT,
				record_type TEXT NOT NULL,
				step_id TEXT,
				payload JSON,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_plan_records_plan ON plan_records(plan_id);

			-- Sequence for plan record ids
			CREATE SEQUENCE IF NOT EXISTS plan_records_seq START 1;
		`,
	},
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	// Create migrations tracking table
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return serr.Wrap(err, "failed to create migrations table")
	}

	for _, migration := range migrations {
		applied, err := db.isMigrationApplied(migration.Version)
		if err != nil {
			return serr.Wrap(err, fmt.Sprintf("failed to check migration %d", migration.Version))
		}
		if applied {
			continue
		}

		logger.Info("Applying migration", "version", migration.Version, "description", migration.Description)

		err = db.Transaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.SQL); err != nil {
				return serr.Wrap(err, fmt.Sprintf("migration %d failed", migration.Version))
			}
			if _, err := tx.Exec(
				"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
				migration.Version, migration.Description,
			); err != nil {
				return serr.Wrap(err, "failed to record migration")
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) isMigrationApplied(version int) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
