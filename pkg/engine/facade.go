package engine

// boundCollection is a Collection that "remembers" its entity type.
type boundCollection struct {
	store      EntityStore
	entityType string
}

// Bind returns a Collection that delegates to store with entityType pinned.
// Nothing is resolved until an operation runs, so any name is valid.
func Bind(store EntityStore, entityType string) Collection {
	return &boundCollection{store: store, entityType: entityType}
}

func (b *boundCollection) Name() string { return b.entityType }

func (b *boundCollection) List(opts ListOptions) ([]Record, error) {
	return b.store.List(b.entityType, opts)
}

func (b *boundCollection) Get(id string) (Record, error) {
	return b.store.Get(b.entityType, id)
}

func (b *boundCollection) Create(data Record) (Record, error) {
	return b.store.Create(b.entityType, data)
}

func (b *boundCollection) Update(id string, data Record) (Record, error) {
	return b.store.Update(b.entityType, id, data)
}

func (b *boundCollection) Delete(id string) error {
	return b.store.Delete(b.entityType, id)
}
