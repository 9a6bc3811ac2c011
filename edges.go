package dagex

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwilger/dagex/internal/logging"
	"github.com/jwilger/dagex/internal/store"
)

// EdgeOp tags the outcome of an edge operation.
type EdgeOp string

const (
	EdgeCreated EdgeOp = "edge_created"
	EdgeRemoved EdgeOp = "edge_removed"
)

// EdgeResult reports a successful edge operation, carrying the original
// entity pair back to the caller.
type EdgeResult struct {
	Op       EdgeOp
	NodeType string
	Parent   string
	Child    string
}

// CreateEdge inserts the directed edge parent->child within one node type.
// The parent is resolved first (ErrParentNotFound), then the child
// (ErrChildNotFound); a self-edge or an edge whose child is already an
// ancestor of the parent fails with ErrCyclicEdge. Re-creating an existing
// edge succeeds: the duplicate path set converges to the same state.
func (g *Graph) CreateEdge(nodeType, parentExternalID, childExternalID string) (EdgeResult, error) {
	timer := logging.StartTimer(logging.CategoryEdges, "CreateEdge")
	defer timer.Stop()

	log := logging.Get(logging.CategoryEdges).With("op_id", uuid.NewString())
	log.Debug("CreateEdge %s: %s -> %s", nodeType, parentExternalID, childExternalID)

	parentID, ok, err := g.store.ResolveNode(nodeType, parentExternalID)
	if err != nil {
		return EdgeResult{}, err
	}
	if !ok {
		return EdgeResult{}, fmt.Errorf("%w: %s/%s", ErrParentNotFound, nodeType, parentExternalID)
	}
	childID, ok, err := g.store.ResolveNode(nodeType, childExternalID)
	if err != nil {
		return EdgeResult{}, err
	}
	if !ok {
		return EdgeResult{}, fmt.Errorf("%w: %s/%s", ErrChildNotFound, nodeType, childExternalID)
	}

	if parentID == childID {
		return EdgeResult{}, fmt.Errorf("%w: %s -> %s", ErrCyclicEdge, parentExternalID, childExternalID)
	}

	// The ancestry check runs inside the insert transaction; a concurrent
	// mutation between a separate check and the insert could otherwise close
	// a loop.
	if err := g.store.InsertEdgePaths(nodeType, parentID, childID); err != nil {
		if errors.Is(err, store.ErrCycle) {
			return EdgeResult{}, fmt.Errorf("%w: %s -> %s", ErrCyclicEdge, parentExternalID, childExternalID)
		}
		return EdgeResult{}, err
	}

	log.Debug("CreateEdge %s: %s -> %s done", nodeType, parentExternalID, childExternalID)
	return EdgeResult{Op: EdgeCreated, NodeType: nodeType, Parent: parentExternalID, Child: childExternalID}, nil
}

// RemoveEdge removes the directed edge parent->child. Removal is idempotent:
// if either node is unregistered or the edge never existed, the edge is
// vacuously gone and the operation still reports success.
func (g *Graph) RemoveEdge(nodeType, parentExternalID, childExternalID string) (EdgeResult, error) {
	timer := logging.StartTimer(logging.CategoryEdges, "RemoveEdge")
	defer timer.Stop()

	log := logging.Get(logging.CategoryEdges).With("op_id", uuid.NewString())
	log.Debug("RemoveEdge %s: %s -> %s", nodeType, parentExternalID, childExternalID)

	result := EdgeResult{Op: EdgeRemoved, NodeType: nodeType, Parent: parentExternalID, Child: childExternalID}

	parentID, parentOK, err := g.store.ResolveNode(nodeType, parentExternalID)
	if err != nil {
		return EdgeResult{}, err
	}
	childID, childOK, err := g.store.ResolveNode(nodeType, childExternalID)
	if err != nil {
		return EdgeResult{}, err
	}
	if !parentOK || !childOK {
		return result, nil
	}

	if err := g.store.RemoveEdgePaths(nodeType, parentID, childID); err != nil {
		return EdgeResult{}, err
	}
	return result, nil
}
