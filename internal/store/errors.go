package store

import "errors"

// Store errors. The public API wraps these into its own error kinds; they
// stay distinct here so the storage layer never imports the root package.
var (
	// ErrNodeExists is returned when registering a (node_type, ext_id) pair
	// that is already mapped.
	ErrNodeExists = errors.New("node already registered")

	// ErrCycle is returned when an edge insertion would make the child an
	// ancestor of itself.
	ErrCycle = errors.New("edge would introduce a cycle")
)
