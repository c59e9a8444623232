// Package engine defines the core entity storage engine for the Vitalis Store.
package engine

// Record is a single stored item: an id, a creation timestamp and arbitrary
// caller-supplied fields.
type Record map[string]any

// Reserved record fields managed by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
)

// ListOptions controls ordering and truncation of List results.
// Sort names a field; a leading '-' sorts descending. Limit <= 0 means no limit.
type ListOptions struct {
	Sort  string `json:"sort,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// --- Functional Interfaces (Interface Segregation) ---

// EntityReader defines the read operations of the store.
type EntityReader interface {
	// List returns a snapshot of the named collection. Unknown types yield an empty slice.
	List(entityType string, opts ListOptions) ([]Record, error)
	// Get returns the record or (nil, nil) when it does not exist.
	Get(entityType, id string) (Record, error)
}

// EntityWriter defines the mutating operations of the store.
type EntityWriter interface {
	// Create stores a new record with a generated id and created_at.
	Create(entityType string, data Record) (Record, error)
	// Update shallow-merges data into an existing record.
	// It returns (nil, nil) when the record does not exist.
	Update(entityType, id string, data Record) (Record, error)
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(entityType, id string) error
}

// EntityEnumeration allows discovering collections.
type EntityEnumeration interface {
	EntityTypes() ([]string, error)
}

// BatchImporter loads records while keeping their ids.
type BatchImporter interface {
	Import(entityType string, records []Record) error
}

// --- Composite Interfaces ---

// EntityStore is the primary interface for interacting with the data store.
// The embedded MemStore, the remote sdk.Client and the sealed store all implement it.
type EntityStore interface {
	EntityReader
	EntityWriter
	EntityEnumeration
	BatchImporter

	// For returns a Collection bound to entityType. Any name is valid.
	For(entityType string) Collection
}

// Collection is the per-entity-type facade: the store with the entity type pinned.
type Collection interface {
	Name() string
	List(opts ListOptions) ([]Record, error)
	Get(id string) (Record, error)
	Create(data Record) (Record, error)
	Update(id string, data Record) (Record, error)
	Delete(id string) error
}

// Snapshotter mirrors collections to an external medium.
type Snapshotter interface {
	SaveCollection(entityType string, records []Record) error
	LoadAll() (map[string][]Record, error)
}
