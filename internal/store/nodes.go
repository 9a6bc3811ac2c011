package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/jwilger/dagex/internal/logging"
	"github.com/jwilger/dagex/internal/pathseq"
)

// NodeRow is one registry entry.
type NodeRow struct {
	ID       int64
	NodeType string
	ExtID    string
}

// RegisterNode allocates an internal id for (nodeType, extID), seeds the
// node's trivial path, and, when attachSupremum is set, attaches it beneath
// the type's supremum node, all in one transaction, so node and path state
// never diverge. Returns ErrNodeExists for a duplicate registration.
//
// Reservation of the supremum external id is the caller's policy; this layer
// will happily create "*" when asked, which is how the supremum itself comes
// to exist.
func (s *Store) RegisterNode(nodeType, extID string, attachSupremum bool) (int64, error) {
	timer := logging.StartTimer(logging.CategoryRegistry, "RegisterNode")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback()

	id, err := insertNodeTx(tx, nodeType, extID)
	if err != nil {
		return 0, err
	}
	if err := insertTrivialPathTx(tx, nodeType, id); err != nil {
		return 0, err
	}

	if attachSupremum {
		supID, err := ensureSupremumTx(tx, nodeType)
		if err != nil {
			return 0, err
		}
		if err := insertEdgePathsTx(tx, nodeType, supID, id); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit register: %w", err)
	}

	logging.Get(logging.CategoryRegistry).Debug("Registered node %s/%s as id=%d (supremum=%v)",
		nodeType, extID, id, attachSupremum)
	return id, nil
}

// ResolveNode looks up the internal id for (nodeType, extID). Absence is not
// an error; the second return reports whether the mapping exists.
func (s *Store) ResolveNode(nodeType, extID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolveNode(s.db, nodeType, extID)
}

// RetireNode removes the registry mapping and purges every path containing
// the node anywhere in its sequence. Nodes left pathless by the purge get
// their trivial path re-seeded, preserving the one-path-minimum invariant.
// Returns false if the mapping did not exist.
func (s *Store) RetireNode(nodeType, extID string) (bool, error) {
	timer := logging.StartTimer(logging.CategoryRegistry, "RetireNode")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin retire: %w", err)
	}
	defer tx.Rollback()

	id, ok, err := resolveNode(tx, nodeType, extID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if _, err := tx.Exec(
		"DELETE FROM dag_nodes WHERE node_type = ? AND ext_id = ?", nodeType, extID,
	); err != nil {
		return false, fmt.Errorf("delete node %s/%s: %w", nodeType, extID, err)
	}

	res, err := tx.Exec(
		"DELETE FROM dag_paths WHERE node_type = ? AND seq LIKE '%' || ? || '%'",
		nodeType, pathseq.Marker(id),
	)
	if err != nil {
		return false, fmt.Errorf("purge paths for %s/%s: %w", nodeType, extID, err)
	}
	purged, _ := res.RowsAffected()

	// The purge can strand survivors whose only ancestry ran through the
	// retired node; give each its trivial path back so it re-emerges as an
	// independent root rather than vanishing from the index.
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO dag_paths (node_type, node_id, seq)
		SELECT n.node_type, n.id, '/' || n.id || '/'
		FROM dag_nodes n
		WHERE n.node_type = ?
		  AND NOT EXISTS (
			SELECT 1 FROM dag_paths p
			WHERE p.node_type = n.node_type AND p.node_id = n.id
		  )`, nodeType,
	); err != nil {
		return false, fmt.Errorf("reseed orphaned paths: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit retire: %w", err)
	}

	logging.Get(logging.CategoryRegistry).Debug("Retired node %s/%s (id=%d), purged %d paths",
		nodeType, extID, id, purged)
	return true, nil
}

// NodesByIDs resolves a set of internal ids to registry rows.
func (s *Store) NodesByIDs(nodeType string, ids []int64) (map[int64]NodeRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]NodeRow, len(ids))
	for _, id := range ids {
		var row NodeRow
		err := s.db.QueryRow(
			"SELECT id, node_type, ext_id FROM dag_nodes WHERE node_type = ? AND id = ?",
			nodeType, id,
		).Scan(&row.ID, &row.NodeType, &row.ExtID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve id %d: %w", id, err)
		}
		out[id] = row
	}
	return out, nil
}

type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func resolveNode(q rowQuerier, nodeType, extID string) (int64, bool, error) {
	var id int64
	err := q.QueryRow(
		"SELECT id FROM dag_nodes WHERE node_type = ? AND ext_id = ?", nodeType, extID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s/%s: %w", nodeType, extID, err)
	}
	return id, true, nil
}

func insertNodeTx(tx *sql.Tx, nodeType, extID string) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO dag_nodes (node_type, ext_id) VALUES (?, ?)", nodeType, extID,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%w: %s/%s", ErrNodeExists, nodeType, extID)
		}
		return 0, fmt.Errorf("insert node %s/%s: %w", nodeType, extID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("node id for %s/%s: %w", nodeType, extID, err)
	}
	return id, nil
}

func insertTrivialPathTx(tx *sql.Tx, nodeType string, id int64) error {
	seq := pathseq.Seq{id}.Encode()
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO dag_paths (node_type, node_id, seq) VALUES (?, ?, ?)",
		nodeType, id, seq,
	); err != nil {
		return fmt.Errorf("seed trivial path %s: %w", seq, err)
	}
	return nil
}

// ensureSupremumTx resolves the type's supremum node, creating it with its
// trivial path on first use.
func ensureSupremumTx(tx *sql.Tx, nodeType string) (int64, error) {
	id, ok, err := resolveNode(tx, nodeType, SupremumExternalID)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	id, err = insertNodeTx(tx, nodeType, SupremumExternalID)
	if err != nil {
		return 0, err
	}
	if err := insertTrivialPathTx(tx, nodeType, id); err != nil {
		return 0, err
	}
	logging.Get(logging.CategoryRegistry).Debug("Created supremum node for type %s (id=%d)", nodeType, id)
	return id, nil
}
