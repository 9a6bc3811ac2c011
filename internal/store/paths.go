package store

import (
	"database/sql"
	"fmt"

	"github.com/jwilger/dagex/internal/logging"
	"github.com/jwilger/dagex/internal/pathseq"
)

// Path index primitives. Relationship state lives entirely in dag_paths: an
// edge parent->child exists iff some sequence contains parent immediately
// followed by child. Rows are never updated in place; a sequence is
// immutable once written, and mutation is always insert-new/delete-old
// within one transaction.

// PathsEndingAt returns every path whose terminal node is id.
func (s *Store) PathsEndingAt(nodeType string, id int64) ([]pathseq.Seq, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectSeqs(s.db, "node_type = ? AND node_id = ?", nodeType, id)
}

// PathsContaining returns every path with id anywhere in its sequence.
func (s *Store) PathsContaining(nodeType string, id int64) ([]pathseq.Seq, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectSeqs(s.db, "node_type = ? AND seq LIKE '%' || ? || '%'", nodeType, pathseq.Marker(id))
}

// PathsRootedAt returns every path whose first element is id, i.e. paths on
// which id has no recorded ancestor.
func (s *Store) PathsRootedAt(nodeType string, id int64) ([]pathseq.Seq, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectSeqs(s.db, "node_type = ? AND seq LIKE ? || '%'", nodeType, pathseq.Marker(id))
}

// WouldCycle reports whether inserting parent->child would close a cycle:
// true iff child already appears before parent on some path. Acyclic
// sequences hold each node at most once, so the first occurrence found by
// instr is the only one.
func (s *Store) WouldCycle(nodeType string, parent, child int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wouldCycle(s.db, nodeType, parent, child)
}

// InsertEdgePaths materializes the edge parent->child: for every path P
// ending at parent and every path Q containing child, it inserts
// P ++ suffix(Q, child). Duplicate sequences are silent no-ops, which is
// what makes re-creation idempotent and diamond fan-in converge. The
// standalone chains that had child as their own root are subsumed by the
// new attachment and deleted.
//
// The cycle guard runs again inside the transaction: the caller's check and
// this mutation are separate critical sections, and two concurrent inserts
// must not be able to close a loop between them.
func (s *Store) InsertEdgePaths(nodeType string, parent, child int64) error {
	timer := logging.StartTimer(logging.CategoryPaths, "InsertEdgePaths")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin edge insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertEdgePathsTx(tx, nodeType, parent, child); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edge insert: %w", err)
	}
	return nil
}

// RemoveEdgePaths dissolves the edge parent->child: every path holding the
// adjacency is truncated to its suffix starting at child, deduplicated
// against surviving rows. If the child retains ancestry through some other
// edge afterwards, the truncation artifacts rooted at the child are deleted
// so it does not masquerade as an independent root. Removing an absent edge
// is a no-op.
func (s *Store) RemoveEdgePaths(nodeType string, parent, child int64) error {
	timer := logging.StartTimer(logging.CategoryPaths, "RemoveEdgePaths")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin edge remove: %w", err)
	}
	defer tx.Rollback()

	if err := removeEdgePathsTx(tx, nodeType, parent, child); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edge remove: %w", err)
	}
	return nil
}

// QueryNodeIDs runs a compiled query spec that selects internal node ids.
func (s *Store) QueryNodeIDs(query string, args ...interface{}) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query node ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QuerySeqs runs a compiled query spec that selects path sequences.
func (s *Store) QuerySeqs(query string, args ...interface{}) ([]pathseq.Seq, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	defer rows.Close()
	return scanSeqs(rows)
}

// QueryExists runs a compiled query spec that selects a single boolean.
func (s *Store) QueryExists(query string, args ...interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	if err := s.db.QueryRow(query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return exists, nil
}

// ---------------------------------------------------------------------------
// Transaction bodies
// ---------------------------------------------------------------------------

type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func wouldCycle(q querier, nodeType string, parent, child int64) (bool, error) {
	parentM := pathseq.Marker(parent)
	childM := pathseq.Marker(child)

	var cyclic bool
	err := q.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM dag_paths
			WHERE node_type = ?
			  AND seq LIKE '%' || ? || '%'
			  AND seq LIKE '%' || ? || '%'
			  AND instr(seq, ?) < instr(seq, ?)
		)`, nodeType, parentM, childM, childM, parentM,
	).Scan(&cyclic)
	if err != nil {
		return false, fmt.Errorf("cycle check %d->%d: %w", parent, child, err)
	}
	return cyclic, nil
}

func insertEdgePathsTx(tx *sql.Tx, nodeType string, parent, child int64) error {
	log := logging.Get(logging.CategoryPaths)

	cyclic, err := wouldCycle(tx, nodeType, parent, child)
	if err != nil {
		return err
	}
	if cyclic {
		return fmt.Errorf("%w: %d->%d", ErrCycle, parent, child)
	}

	endingAtParent, err := selectSeqs(tx, "node_type = ? AND node_id = ?", nodeType, parent)
	if err != nil {
		return err
	}
	containingChild, err := selectSeqs(tx,
		"node_type = ? AND seq LIKE '%' || ? || '%'", nodeType, pathseq.Marker(child))
	if err != nil {
		return err
	}

	// Capture the chains rooted at the child before inserting: they are the
	// standalone ancestries the new attachment subsumes. Every freshly
	// inserted sequence starts at one of the parent's roots, never at the
	// child (the cycle guard rules that out), so the captured set is exactly
	// the pre-existing rows.
	subsumed, err := selectPathIDs(tx,
		"node_type = ? AND seq LIKE ? || '%'", nodeType, pathseq.Marker(child))
	if err != nil {
		return err
	}

	inserted := 0
	for _, p := range endingAtParent {
		for _, q := range containingChild {
			suffix := q.SuffixFrom(child)
			seq := p.Concat(suffix)
			res, err := tx.Exec(
				"INSERT OR IGNORE INTO dag_paths (node_type, node_id, seq) VALUES (?, ?, ?)",
				nodeType, suffix.Terminal(), seq.Encode(),
			)
			if err != nil {
				return fmt.Errorf("insert path %s: %w", seq.Encode(), err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
	}

	for _, id := range subsumed {
		if _, err := tx.Exec("DELETE FROM dag_paths WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete subsumed path %d: %w", id, err)
		}
	}

	log.Debug("Edge %d->%d in %s: %d paths inserted (%dx%d expansion), %d subsumed",
		parent, child, nodeType, inserted, len(endingAtParent), len(containingChild), len(subsumed))
	return nil
}

func removeEdgePathsTx(tx *sql.Tx, nodeType string, parent, child int64) error {
	log := logging.Get(logging.CategoryPaths)
	adjacency := pathseq.EdgeMarker(parent, child)

	matched, err := selectPathRows(tx,
		"node_type = ? AND seq LIKE '%' || ? || '%'", nodeType, adjacency)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		log.Debug("Edge %d->%d in %s: no matching paths, nothing to remove", parent, child, nodeType)
		return nil
	}

	for _, row := range matched {
		if _, err := tx.Exec("DELETE FROM dag_paths WHERE id = ?", row.id); err != nil {
			return fmt.Errorf("delete path %d: %w", row.id, err)
		}
	}
	for _, row := range matched {
		trunc := row.seq.SuffixFrom(child)
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO dag_paths (node_type, node_id, seq) VALUES (?, ?, ?)",
			nodeType, row.seq.Terminal(), trunc.Encode(),
		); err != nil {
			return fmt.Errorf("insert truncated path %s: %w", trunc.Encode(), err)
		}
	}

	// If the child still has more than one path, it retains real ancestry
	// through some unrelated edge, and the freshly rooted truncation results
	// are spurious orphan roots: drop everything rooted at the child, across
	// its whole subtree. With exactly one path left, the child genuinely
	// became independent and the truncated chains are its new identity.
	var remaining int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM dag_paths WHERE node_type = ? AND node_id = ?", nodeType, child,
	).Scan(&remaining); err != nil {
		return fmt.Errorf("count paths of %d: %w", child, err)
	}
	if remaining > 1 {
		res, err := tx.Exec(
			"DELETE FROM dag_paths WHERE node_type = ? AND seq LIKE ? || '%'",
			nodeType, pathseq.Marker(child),
		)
		if err != nil {
			return fmt.Errorf("cleanup orphan roots at %d: %w", child, err)
		}
		cleaned, _ := res.RowsAffected()
		log.Debug("Edge %d->%d in %s: %d paths truncated, %d orphan-rooted paths cleaned",
			parent, child, nodeType, len(matched), cleaned)
		return nil
	}

	log.Debug("Edge %d->%d in %s: %d paths truncated, child kept as new root",
		parent, child, nodeType, len(matched))
	return nil
}

// ---------------------------------------------------------------------------
// Row helpers
// ---------------------------------------------------------------------------

type pathRow struct {
	id  int64
	seq pathseq.Seq
}

func selectSeqs(q querier, where string, args ...interface{}) ([]pathseq.Seq, error) {
	rows, err := q.Query("SELECT seq FROM dag_paths WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select paths: %w", err)
	}
	defer rows.Close()
	return scanSeqs(rows)
}

func scanSeqs(rows *sql.Rows) ([]pathseq.Seq, error) {
	var out []pathseq.Seq
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		seq, err := pathseq.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

func selectPathIDs(q querier, where string, args ...interface{}) ([]int64, error) {
	rows, err := q.Query("SELECT id FROM dag_paths WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select path ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan path id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func selectPathRows(q querier, where string, args ...interface{}) ([]pathRow, error) {
	rows, err := q.Query("SELECT id, seq FROM dag_paths WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select path rows: %w", err)
	}
	defer rows.Close()

	var out []pathRow
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan path row: %w", err)
		}
		seq, err := pathseq.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, pathRow{id: id, seq: seq})
	}
	return out, rows.Err()
}
