package postgres

import (
	"context"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "create cms_record",
		Statements: []string{`
			CREATE TABLE IF NOT EXISTS cms_record (
				id UUID PRIMARY KEY,
				resource VARCHAR(64) NOT NULL,
				fields JSONB NOT NULL DEFAULT '{}'::jsonb,
				attachment_path VARCHAR(1024),
				attachment_file_name VARCHAR(1024),
				attachment_mime_type VARCHAR(255),
				attachment_size_bytes BIGINT,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				CONSTRAINT unique_attachment_path UNIQUE (attachment_path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cms_record_resource_created
				ON cms_record (resource, created_at DESC, id DESC)`,
		},
	},
	{
		Version:     2,
		Description: "index record fields",
		Statements:  []string{`CREATE INDEX IF NOT EXISTS idx_cms_record_fields ON cms_record USING GIN (fields)`},
	},
}

// Migrations returns the schema migrations in order.
func Migrations() []Migration {
	return append([]Migration(nil), migrations...)
}

// Migrate applies pending migrations and records them in cms_schema_migrations.
// It returns the number of migrations applied.
func Migrate(ctx context.Context, db DBTX) (int, error) {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cms_schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM cms_schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		for _, stmt := range m.Statements {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
			}
		}
		if _, err := db.Exec(ctx,
			`INSERT INTO cms_schema_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description); err != nil {
			return applied, fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		applied++
	}
	return applied, nil
}
