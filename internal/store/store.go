// Package store implements the node registry and path-enumeration closure
// index on SQLite. One row in dag_paths per distinct root-to-node sequence;
// the path set is the sole source of truth for every relationship query, so
// no read ever traverses the graph.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jwilger/dagex/internal/logging"
)

// SupremumExternalID is the reserved external id of the per-type universal
// ancestor node. Callers can never register it directly.
const SupremumExternalID = "*"

// Store owns the dag_nodes and dag_paths tables. All mutation runs under the
// write lock and inside one SQL transaction per logical operation, so
// concurrent edge mutations touching overlapping subgraphs serialize here
// rather than corrupting the combinatorial path expansion.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening dagex store at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("dagex store ready (registry + path index)")
	return s, nil
}

// initialize creates the required tables and brings the schema up to date.
func (s *Store) initialize() error {
	nodesTable := `
	CREATE TABLE IF NOT EXISTS dag_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_type TEXT NOT NULL,
		ext_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(node_type, ext_id)
	);
	CREATE INDEX IF NOT EXISTS idx_dag_nodes_type ON dag_nodes(node_type);
	`

	// The unique index on seq is the closure invariant: no two paths, for any
	// node of any type, share an identical sequence. Mutations delete before
	// they insert inside one transaction, so the index only ever judges the
	// final state of a logical operation.
	pathsTable := `
	CREATE TABLE IF NOT EXISTS dag_paths (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_type TEXT NOT NULL,
		node_id INTEGER NOT NULL,
		seq TEXT NOT NULL,
		UNIQUE(seq)
	);
	CREATE INDEX IF NOT EXISTS idx_dag_paths_type ON dag_paths(node_type);
	CREATE INDEX IF NOT EXISTS idx_dag_paths_node ON dag_paths(node_id);
	`

	versionTable := `
	CREATE TABLE IF NOT EXISTS dag_schema_versions (
		version INTEGER NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, table := range []string{nodesTable, pathsTable, versionTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := RunMigrations(s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing dagex store")
	return s.db.Close()
}

// DB returns the underlying SQL database connection, for external query
// executors that compile query specs themselves.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Stats returns row counts for the store's tables.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"dag_nodes", "dag_paths"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
