package types

import "context"

// Storage is the graph storage capability the core runs on. Every read and
// write happens inside a Tx obtained from Begin.
type Storage interface {
	// Begin starts a transaction. The transaction must not outlive ctx:
	// backends abort it when ctx is done.
	Begin(ctx context.Context) (Tx, error)

	// LoadTypes returns the type definitions saved by earlier transactions,
	// ordered by name.
	LoadTypes(ctx context.Context) ([]EntityType, []RelationType, error)

	// Close releases backend resources. Close is idempotent.
	Close() error
}

// Tx is one storage transaction. Operations on a Tx are applied in the
// order they are issued and observe the transaction's own earlier writes.
// Backends generate ids (UUID v7) and timestamps for created records.
//
// Get, update and delete operations return EntityNotFound or
// RelationNotFound errors for unknown ids. Every other backend fault is
// reported as StorageUnavailable.
type Tx interface {
	CreateEntity(ctx context.Context, entityType string, props Properties) (*EntityRow, error)
	GetEntity(ctx context.Context, id string) (*EntityRow, error)
	// UpdateEntity replaces the entity's properties.
	UpdateEntity(ctx context.Context, id string, props Properties) (*EntityRow, error)
	// DeleteEntity removes the entity and every relation attached to it.
	DeleteEntity(ctx context.Context, id string) error

	CreateRelation(ctx context.Context, relationType, fromID, toID string, props Properties) (*RelationRow, error)
	GetRelation(ctx context.Context, id string) (*RelationRow, error)
	// UpdateRelation replaces the relation's properties.
	UpdateRelation(ctx context.Context, id string, props Properties) (*RelationRow, error)
	DeleteRelation(ctx context.Context, id string) error

	ExecuteQuery(ctx context.Context, q BackendQuery) ([]EntityRow, error)
	ExecuteTraversal(ctx context.Context, t BackendTraversal) (TraversalRows, error)

	// SaveEntityType stores def. Saving an identical definition again is a
	// no-op; a different definition under the same name is a TypeConflict.
	SaveEntityType(ctx context.Context, def EntityType) error
	// SaveRelationType stores def with the same rules as SaveEntityType.
	SaveRelationType(ctx context.Context, def RelationType) error

	Commit() error
	// Rollback aborts the transaction. Rolling back a transaction that has
	// already finished returns nil.
	Rollback() error
}
