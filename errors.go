package dagex

import "errors"

// Domain errors. Every operation ends in either an explicit success value or
// one of these; callers branch with errors.Is. Storage failures surface as
// ordinary wrapped errors distinct from all of them.
var (
	// ErrDuplicateNode is returned when registering an external id already
	// mapped within its node type.
	ErrDuplicateNode = errors.New("node already registered")

	// ErrReservedID is returned when a caller tries to register the supremum
	// external id "*" for a real entity.
	ErrReservedID = errors.New("external id is reserved for the supremum")

	// ErrParentNotFound is returned by CreateEdge when the parent external id
	// has no registered node.
	ErrParentNotFound = errors.New("parent node not found")

	// ErrChildNotFound is returned by CreateEdge when the child external id
	// has no registered node.
	ErrChildNotFound = errors.New("child node not found")

	// ErrCyclicEdge is returned when an edge would make a node its own
	// ancestor.
	ErrCyclicEdge = errors.New("edge would introduce a cycle")
)
