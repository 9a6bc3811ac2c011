// Package dagex maintains directed acyclic graphs over independent business
// entities, one graph per node type. Instead of traversing at read time, it
// keeps a path-enumeration closure index: every root-to-node path is
// materialized as a row, updated incrementally on edge mutation, so ancestor,
// descendant, and path queries reduce to substring predicates over stored
// sequences.
package dagex

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jwilger/dagex/internal/logging"
	"github.com/jwilger/dagex/internal/store"
)

// Options configures a Graph.
type Options struct {
	// AttachToSupremum is the default policy applied when nodes are
	// registered through the entity lifecycle hooks: when true, every new
	// node is attached beneath its type's synthetic universal ancestor,
	// making whole-type root aggregation possible.
	AttachToSupremum bool

	// Logger receives the library's categorized logs. Nil means silent.
	Logger *zap.Logger
}

// Graph is the public face of the closure index: registry lifecycle, edge
// mutation, and relationship queries, all scoped by node type. The registry
// and path index are the only stateful parts; everything else orchestrates.
type Graph struct {
	store *store.Store
	opts  Options
}

// New wraps an opened store.
func New(st *store.Store, opts Options) *Graph {
	if opts.Logger != nil {
		logging.SetLogger(opts.Logger)
	}
	return &Graph{store: st, opts: opts}
}

// Open initializes the backing SQLite database at path and returns a Graph
// over it. Use ":memory:" for an ephemeral graph.
func Open(path string, opts Options) (*Graph, error) {
	if opts.Logger != nil {
		logging.SetLogger(opts.Logger)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Graph{store: st, opts: opts}, nil
}

// Close closes the backing store.
func (g *Graph) Close() error {
	return g.store.Close()
}

// Register maps (nodeType, externalID) to a fresh internal id and seeds the
// node's trivial path atomically. With attachToSupremum set, the node is
// also placed beneath the type's supremum, which is created on first use.
// Registering "*" fails with ErrReservedID; registering an already-mapped
// external id fails with ErrDuplicateNode.
func (g *Graph) Register(nodeType, externalID string, attachToSupremum bool) (int64, error) {
	if externalID == Supremum {
		return 0, fmt.Errorf("%w: %s/%s", ErrReservedID, nodeType, externalID)
	}
	id, err := g.store.RegisterNode(nodeType, externalID, attachToSupremum)
	if err != nil {
		if errors.Is(err, store.ErrNodeExists) {
			return 0, fmt.Errorf("%w: %s/%s", ErrDuplicateNode, nodeType, externalID)
		}
		return 0, err
	}
	return id, nil
}

// Retire removes the registry mapping and purges every path that contains
// the node anywhere, as ancestor or terminal, which is how deleting an
// entity prunes all relationships through it. Retiring an unknown node is a
// no-op.
func (g *Graph) Retire(nodeType, externalID string) error {
	_, err := g.store.RetireNode(nodeType, externalID)
	return err
}

// Resolve looks up the internal id for an external id. Absence is reported,
// not an error.
func (g *Graph) Resolve(nodeType, externalID string) (int64, bool, error) {
	return g.store.ResolveNode(nodeType, externalID)
}

// OnEntityCreated is the inbound lifecycle hook: call it exactly once, in
// the same transaction boundary as the entity insert. Registration follows
// the graph's supremum attachment policy.
func (g *Graph) OnEntityCreated(e Entity) (int64, error) {
	return g.Register(e.TypeTag(), e.PrimaryKey(), g.opts.AttachToSupremum)
}

// OnEntityDeleted is the inbound lifecycle hook for entity deletion.
func (g *Graph) OnEntityDeleted(e Entity) error {
	return g.Retire(e.TypeTag(), e.PrimaryKey())
}

// Stats returns row counts of the backing tables.
func (g *Graph) Stats() (map[string]int64, error) {
	return g.store.Stats()
}
