package dagex

import (
	"fmt"

	"github.com/jwilger/dagex/internal/logging"
	"github.com/jwilger/dagex/internal/pathseq"
)

// QueryKind names a relationship predicate.
type QueryKind string

const (
	// QueryRoots finds nodes with no parent other than the supremum.
	QueryRoots QueryKind = "roots"

	// QueryChildren finds nodes one hop below a parent.
	QueryChildren QueryKind = "children"

	// QueryParents finds nodes one hop above a child.
	QueryParents QueryKind = "parents"

	// QueryAncestors finds every node on some path to the subject.
	QueryAncestors QueryKind = "ancestors"

	// QueryWithAncestors is QueryAncestors including the subject itself.
	QueryWithAncestors QueryKind = "with_ancestors"

	// QueryDescendants finds every node reachable from the subject.
	QueryDescendants QueryKind = "descendants"

	// QueryWithDescendants is QueryDescendants including the subject itself.
	QueryWithDescendants QueryKind = "with_descendants"

	// QueryPrecedes asks whether the first node is an ancestor of the second.
	QueryPrecedes QueryKind = "precedes"

	// QuerySucceeds asks whether the first node is a descendant of the second.
	QuerySucceeds QueryKind = "succeeds"

	// QueryAllPaths enumerates every distinct path between two nodes.
	QueryAllPaths QueryKind = "all_paths"
)

// QuerySpec is a compiled read-only query over the path index: the predicate
// kind, its scope, and the SQL an executor runs against the dag_nodes and
// dag_paths tables. The library executes specs itself through the store, but
// external collaborators may compile them against their own backend access.
type QuerySpec struct {
	Kind     QueryKind
	NodeType string
	SQL      string
	Args     []interface{}
}

// specArity maps each kind to the number of node arguments it scopes over.
var specArity = map[QueryKind]int{
	QueryRoots:           0,
	QueryChildren:        1,
	QueryParents:         1,
	QueryAncestors:       1,
	QueryWithAncestors:   1,
	QueryDescendants:     1,
	QueryWithDescendants: 1,
	QueryPrecedes:        2,
	QuerySucceeds:        2,
	QueryAllPaths:        2,
}

// Compile builds the query spec for kind over nodeType, scoped to the given
// external ids. Unregistered external ids compile to a spec that matches
// nothing; absence is the caller's to interpret, not an error.
func (g *Graph) Compile(kind QueryKind, nodeType string, externalIDs ...string) (QuerySpec, error) {
	arity, ok := specArity[kind]
	if !ok {
		return QuerySpec{}, fmt.Errorf("unknown query kind %q", kind)
	}
	if len(externalIDs) != arity {
		return QuerySpec{}, fmt.Errorf("query %s takes %d node arguments, got %d", kind, arity, len(externalIDs))
	}

	ids := make([]int64, len(externalIDs))
	for i, ext := range externalIDs {
		id, err := g.refID(nodeType, ext)
		if err != nil {
			return QuerySpec{}, err
		}
		ids[i] = id
	}

	logging.Get(logging.CategoryQuery).Debug("Compile %s over %s %v", kind, nodeType, externalIDs)

	switch kind {
	case QueryRoots:
		supID, err := g.refID(nodeType, Supremum)
		if err != nil {
			return QuerySpec{}, err
		}
		return rootsSpec(nodeType, supID), nil
	case QueryChildren:
		return childrenSpec(nodeType, ids[0]), nil
	case QueryParents:
		return parentsSpec(nodeType, ids[0]), nil
	case QueryAncestors:
		return ancestorsSpec(nodeType, ids[0], false), nil
	case QueryWithAncestors:
		return ancestorsSpec(nodeType, ids[0], true), nil
	case QueryDescendants:
		return descendantsSpec(nodeType, ids[0], false), nil
	case QueryWithDescendants:
		return descendantsSpec(nodeType, ids[0], true), nil
	case QueryPrecedes:
		return precedesSpec(nodeType, ids[0], ids[1]), nil
	case QuerySucceeds:
		return precedesSpec(nodeType, ids[1], ids[0]), nil
	default: // QueryAllPaths
		return allPathsSpec(nodeType, ids[0], ids[1]), nil
	}
}

// Roots returns the nodes that have no parent other than the supremum: the
// unattached and the directly-supremum-attached alike, never the supremum
// itself. Results are an unordered set.
func (g *Graph) Roots(nodeType string) ([]Node, error) {
	spec, err := g.Compile(QueryRoots, nodeType)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// Children returns the nodes one hop below parent.
func (g *Graph) Children(nodeType, parentExternalID string) ([]Node, error) {
	spec, err := g.Compile(QueryChildren, nodeType, parentExternalID)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// Parents returns the nodes one hop above child. The supremum never appears
// in results; its attachment is bookkeeping, not an edge callers created.
func (g *Graph) Parents(nodeType, childExternalID string) ([]Node, error) {
	spec, err := g.Compile(QueryParents, nodeType, childExternalID)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// Ancestors returns every node appearing before child on any of its paths.
func (g *Graph) Ancestors(nodeType, childExternalID string) ([]Node, error) {
	spec, err := g.Compile(QueryAncestors, nodeType, childExternalID)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// WithAncestors is Ancestors including the node itself.
func (g *Graph) WithAncestors(nodeType, childExternalID string) ([]Node, error) {
	spec, err := g.Compile(QueryWithAncestors, nodeType, childExternalID)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// Descendants returns every node some path reaches through parent.
func (g *Graph) Descendants(nodeType, parentExternalID string) ([]Node, error) {
	spec, err := g.Compile(QueryDescendants, nodeType, parentExternalID)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// WithDescendants is Descendants including the node itself.
func (g *Graph) WithDescendants(nodeType, parentExternalID string) ([]Node, error) {
	spec, err := g.Compile(QueryWithDescendants, nodeType, parentExternalID)
	if err != nil {
		return nil, err
	}
	return g.runNodeSpec(spec)
}

// Precedes reports whether a is an ancestor of b.
func (g *Graph) Precedes(nodeType, aExternalID, bExternalID string) (bool, error) {
	spec, err := g.Compile(QueryPrecedes, nodeType, aExternalID, bExternalID)
	if err != nil {
		return false, err
	}
	return g.store.QueryExists(spec.SQL, spec.Args...)
}

// Succeeds reports whether a is a descendant of b.
func (g *Graph) Succeeds(nodeType, aExternalID, bExternalID string) (bool, error) {
	spec, err := g.Compile(QuerySucceeds, nodeType, aExternalID, bExternalID)
	if err != nil {
		return false, err
	}
	return g.store.QueryExists(spec.SQL, spec.Args...)
}

// AllPaths returns every distinct path from ancestor to descendant, each
// materialized as the ordered nodes from ancestor to descendant inclusive.
// Empty when no such path exists.
func (g *Graph) AllPaths(nodeType, ancestorExternalID, descendantExternalID string) ([][]Node, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "AllPaths")
	defer timer.Stop()

	spec, err := g.Compile(QueryAllPaths, nodeType, ancestorExternalID, descendantExternalID)
	if err != nil {
		return nil, err
	}
	ancestorID, err := g.refID(nodeType, ancestorExternalID)
	if err != nil {
		return nil, err
	}

	seqs, err := g.store.QuerySeqs(spec.SQL, spec.Args...)
	if err != nil {
		return nil, err
	}

	// Distinct full paths can share the ancestor-to-descendant segment when
	// the ancestor itself is reachable multiple ways; deduplicate on the
	// trimmed sequence.
	seen := make(map[string]bool)
	var trimmed []pathseq.Seq
	var ids []int64
	for _, seq := range seqs {
		segment := seq.SuffixFrom(ancestorID)
		key := segment.Encode()
		if seen[key] {
			continue
		}
		seen[key] = true
		trimmed = append(trimmed, segment)
		ids = append(ids, segment...)
	}

	nodes, err := g.store.NodesByIDs(nodeType, ids)
	if err != nil {
		return nil, err
	}

	out := make([][]Node, 0, len(trimmed))
	for _, segment := range trimmed {
		path := make([]Node, 0, len(segment))
		for _, id := range segment {
			row, ok := nodes[id]
			if !ok {
				return nil, fmt.Errorf("path references unknown node id %d", id)
			}
			path = append(path, Node{ID: row.ID, NodeType: row.NodeType, ExternalID: row.ExtID})
		}
		out = append(out, path)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Spec builders
// ---------------------------------------------------------------------------

// unresolvedID scopes a spec to a node that does not exist: no marker ever
// matches it, so the spec returns the empty set.
const unresolvedID = int64(-1)

// refID resolves an external id for query scoping; absence compiles to an
// impossible id rather than an error.
func (g *Graph) refID(nodeType, externalID string) (int64, error) {
	id, ok, err := g.store.ResolveNode(nodeType, externalID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return unresolvedID, nil
	}
	return id, nil
}

func rootsSpec(nodeType string, supremumID int64) QuerySpec {
	// A root's paths ending at itself are exactly its trivial path and,
	// when the supremum convention is active, the direct supremum path.
	// Anything else ending at the node is a real incoming ancestry.
	supMarker := ""
	if supremumID != unresolvedID {
		supMarker = pathseq.Marker(supremumID)
	}
	return QuerySpec{
		Kind:     QueryRoots,
		NodeType: nodeType,
		SQL: `
			SELECT n.id FROM dag_nodes n
			WHERE n.node_type = ? AND n.ext_id != '*'
			  AND NOT EXISTS (
				SELECT 1 FROM dag_paths p
				WHERE p.node_type = n.node_type AND p.node_id = n.id
				  AND p.seq != '/' || n.id || '/'
				  AND p.seq != ? || n.id || '/'
			  )`,
		Args: []interface{}{nodeType, supMarker},
	}
}

func childrenSpec(nodeType string, parentID int64) QuerySpec {
	return QuerySpec{
		Kind:     QueryChildren,
		NodeType: nodeType,
		SQL: `
			SELECT DISTINCT n.id FROM dag_nodes n
			JOIN dag_paths p ON p.node_type = n.node_type
			WHERE n.node_type = ?
			  AND p.seq LIKE '%' || ? || n.id || '/%'`,
		Args: []interface{}{nodeType, pathseq.Marker(parentID)},
	}
}

func parentsSpec(nodeType string, childID int64) QuerySpec {
	return QuerySpec{
		Kind:     QueryParents,
		NodeType: nodeType,
		SQL: `
			SELECT DISTINCT n.id FROM dag_nodes n
			JOIN dag_paths p ON p.node_type = n.node_type
			WHERE n.node_type = ? AND n.ext_id != '*'
			  AND p.seq LIKE '%/' || n.id || ? || '%'`,
		Args: []interface{}{nodeType, pathseq.Marker(childID)},
	}
}

func descendantsSpec(nodeType string, parentID int64, withSelf bool) QuerySpec {
	kind := QueryDescendants
	sql := `
		SELECT DISTINCT p.node_id FROM dag_paths p
		WHERE p.node_type = ? AND p.seq LIKE '%' || ? || '%'`
	args := []interface{}{nodeType, pathseq.Marker(parentID)}
	if withSelf {
		kind = QueryWithDescendants
	} else {
		sql += ` AND p.node_id != ?`
		args = append(args, parentID)
	}
	return QuerySpec{Kind: kind, NodeType: nodeType, SQL: sql, Args: args}
}

func ancestorsSpec(nodeType string, childID int64, withSelf bool) QuerySpec {
	kind := QueryAncestors
	sql := `
		SELECT DISTINCT n.id FROM dag_nodes n
		JOIN dag_paths p ON p.node_type = n.node_type
		WHERE n.node_type = ? AND n.ext_id != '*'
		  AND p.node_id = ?
		  AND p.seq LIKE '%/' || n.id || '/%'`
	args := []interface{}{nodeType, childID}
	if withSelf {
		kind = QueryWithAncestors
	} else {
		sql += ` AND n.id != ?`
		args = append(args, childID)
	}
	return QuerySpec{Kind: kind, NodeType: nodeType, SQL: sql, Args: args}
}

func precedesSpec(nodeType string, aID, bID int64) QuerySpec {
	return QuerySpec{
		Kind:     QueryPrecedes,
		NodeType: nodeType,
		SQL: `
			SELECT EXISTS (
				SELECT 1 FROM dag_paths p
				WHERE p.node_type = ? AND p.node_id = ?
				  AND p.seq LIKE '%' || ? || '%'
				  AND ? != ?
			)`,
		Args: []interface{}{nodeType, bID, pathseq.Marker(aID), aID, bID},
	}
}

func allPathsSpec(nodeType string, ancestorID, descendantID int64) QuerySpec {
	return QuerySpec{
		Kind:     QueryAllPaths,
		NodeType: nodeType,
		SQL: `
			SELECT p.seq FROM dag_paths p
			WHERE p.node_type = ? AND p.node_id = ?
			  AND p.seq LIKE '%' || ? || '%'`,
		Args: []interface{}{nodeType, descendantID, pathseq.Marker(ancestorID)},
	}
}

func (g *Graph) runNodeSpec(spec QuerySpec) ([]Node, error) {
	timer := logging.StartTimer(logging.CategoryQuery, string(spec.Kind))
	defer timer.Stop()

	ids, err := g.store.QueryNodeIDs(spec.SQL, spec.Args...)
	if err != nil {
		return nil, err
	}
	rows, err := g.store.NodesByIDs(spec.NodeType, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		row, ok := rows[id]
		if !ok {
			continue
		}
		out = append(out, Node{ID: row.ID, NodeType: row.NodeType, ExternalID: row.ExtID})
	}
	return out, nil
}
