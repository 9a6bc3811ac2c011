package dagex

import "github.com/jwilger/dagex/internal/store"

// Supremum is the reserved external id of the per-type universal ancestor
// node. It can never be registered for a real entity.
const Supremum = store.SupremumExternalID

// Node is one registry entry: an external entity's participation in a typed
// DAG. ID is the synthetic internal id the path index works in terms of.
type Node struct {
	ID         int64
	NodeType   string
	ExternalID string
}

// Entity is the capability a business record needs to participate in a DAG.
// Implementations expose their primary key and a type tag naming the
// homogeneous namespace they belong to; the library never sees their schema.
type Entity interface {
	PrimaryKey() string
	TypeTag() string
}
