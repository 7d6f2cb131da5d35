package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "records table and listing index",
		SQL: `
CREATE TABLE IF NOT EXISTS cms_record (
  id TEXT PRIMARY KEY,
  resource TEXT NOT NULL,
  fields TEXT NOT NULL DEFAULT '{}',
  attachment_path TEXT UNIQUE,
  attachment_file_name TEXT,
  attachment_mime_type TEXT,
  attachment_size_bytes INTEGER,
  version INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cms_record_resource_created ON cms_record(resource, created_at DESC, id DESC);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS cms_schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// CurrentVersion returns the highest applied migration version, or 0 if none.
func CurrentVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(migrationsTableSQL); err != nil {
		return 0, err
	}
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM cms_schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// LatestVersion is the version the schema reaches once all migrations apply.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

func runMigrations(db *sql.DB) error {
	current, err := CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec("INSERT INTO cms_schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
