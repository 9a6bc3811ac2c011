package store

import (
	"database/sql"
	"fmt"

	"github.com/jwilger/dagex/internal/logging"
)

// Schema versions:
// v1: dag_nodes (node_type, ext_id unique) + dag_paths (seq unique)
// v2: added created_at to dag_nodes
const CurrentSchemaVersion = 2

// Migration defines a column addition applied to databases created before
// the column existed.
type Migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []Migration{
	{"dag_nodes", "created_at", "DATETIME DEFAULT CURRENT_TIMESTAMP"},
}

// RunMigrations brings an existing database up to the current schema
// version. It is idempotent and safe to run on every open: column additions
// are guarded by existence probes, and the version row is only appended when
// it changes.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if GetSchemaVersion(db) < CurrentSchemaVersion {
		if _, err := db.Exec(
			"INSERT INTO dag_schema_versions (version) VALUES (?)", CurrentSchemaVersion,
		); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	if applied > 0 {
		logging.Store("Schema migrations complete: applied=%d", applied)
	}
	return nil
}

// GetSchemaVersion returns the recorded schema version, or 0 for a fresh
// database.
func GetSchemaVersion(db *sql.DB) int {
	if !tableExists(db, "dag_schema_versions") {
		return 0
	}
	var version int
	query := "SELECT version FROM dag_schema_versions ORDER BY applied_at DESC, version DESC LIMIT 1"
	if err := db.QueryRow(query).Scan(&version); err != nil {
		return 0
	}
	return version
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}
