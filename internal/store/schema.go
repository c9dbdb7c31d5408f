package store

import (
	"database/sql"
	"fmt"
)

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v < 1 {
		if err := migrateV1(tx); err != nil {
			return err
		}
	}
	if v < 2 {
		if err := migrateV2(tx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func migrateV1(tx *sql.Tx) error {
	// ---- Schema v1: tables ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS boards (
  slug TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  pin_hash TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  board_slug TEXT NOT NULL REFERENCES boards(slug) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  title TEXT NOT NULL,
  company TEXT NOT NULL,
  link TEXT NOT NULL,
  location TEXT NOT NULL,
  employment_type TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'Saved',
  due_date TEXT NOT NULL DEFAULT '',
  parsed_on TEXT NOT NULL,
  verified INTEGER NOT NULL DEFAULT 0
);
`); err != nil {
		return err
	}

	// ---- Schema v1: indexes ----

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_jobs_board_position
ON jobs(board_slug, position);
`); err != nil {
		return err
	}

	// dev DBs created before PINs existed
	if !columnExists(tx, "boards", "pin_hash") {
		if _, err := tx.Exec(`ALTER TABLE boards ADD COLUMN pin_hash TEXT NOT NULL DEFAULT '';`); err != nil {
			return err
		}
	}

	_, err := tx.Exec(`PRAGMA user_version = 1;`)
	return err
}

// migrateV2 adds custom columns: their definitions, the board's column order
// and the per-job values.
func migrateV2(tx *sql.Tx) error {
	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS board_columns (
  board_slug TEXT NOT NULL REFERENCES boards(slug) ON DELETE CASCADE,
  name TEXT NOT NULL COLLATE NOCASE,
  type TEXT NOT NULL,
  options TEXT NOT NULL DEFAULT '[]',
  position INTEGER NOT NULL,
  PRIMARY KEY (board_slug, name)
);
`); err != nil {
		return err
	}

	if !columnExists(tx, "boards", "column_order") {
		if _, err := tx.Exec(`ALTER TABLE boards ADD COLUMN column_order TEXT NOT NULL DEFAULT '[]';`); err != nil {
			return err
		}
	}
	if !columnExists(tx, "jobs", "custom_fields") {
		if _, err := tx.Exec(`ALTER TABLE jobs ADD COLUMN custom_fields TEXT NOT NULL DEFAULT '{}';`); err != nil {
			return err
		}
	}

	_, err := tx.Exec(`PRAGMA user_version = 2;`)
	return err
}

func columnExists(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, table, col string) bool {
	query := fmt.Sprintf(`
SELECT 1
FROM pragma_table_info('%s')
WHERE name = ?
LIMIT 1;
`, table)

	var one int
	err := q.QueryRow(query, col).Scan(&one)
	return err == nil
}
