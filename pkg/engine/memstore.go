package engine

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// collection is an ordered set of records with an id index.
type collection struct {
	records []Record
	index   map[string]int
}

func newCollection() *collection {
	return &collection{index: make(map[string]int)}
}

func (c *collection) append(r Record) {
	c.index[r.ID()] = len(c.records)
	c.records = append(c.records, r)
}

func (c *collection) remove(pos int) {
	delete(c.index, c.records[pos].ID())
	c.records = append(c.records[:pos], c.records[pos+1:]...)
	for i := pos; i < len(c.records); i++ {
		c.index[c.records[i].ID()] = i
	}
}

// MemStore is the thread-safe in-memory entity engine.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [entityType] -> ordered records
	data      map[string]*collection
	persister Snapshotter
	wg        sync.WaitGroup
	saveMu    sync.Mutex // orders snapshot writes

	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a MemStore.
type Option func(*MemStore)

// WithLogger sets the logger used for per-operation debug output.
func WithLogger(l *zap.Logger) Option {
	return func(m *MemStore) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces the wall clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(m *MemStore) { m.now = now }
}

// WithIDGenerator replaces the id generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *MemStore) { m.newID = gen }
}

// NewMemStore initializes a store.
// It accepts existing data (from Snapshotter.LoadAll) and an optional persister.
func NewMemStore(initialData map[string][]Record, p Snapshotter, opts ...Option) *MemStore {
	m := &MemStore{
		data:      make(map[string]*collection),
		persister: p,
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     NewID,
	}
	for _, opt := range opts {
		opt(m)
	}
	for entityType, records := range initialData {
		c := m.collectionLocked(entityType)
		for _, r := range records {
			m.upsertLocked(c, r.Clone())
		}
	}
	return m
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Reset drops every collection.
func (m *MemStore) Reset() {
	m.mu.Lock()
	m.data = make(map[string]*collection)
	m.mu.Unlock()
}

// --- Interface Implementation ---

func (m *MemStore) List(entityType string, opts ListOptions) ([]Record, error) {
	m.mu.RLock()
	c, ok := m.data[entityType]
	var out []Record
	if ok {
		out = cloneRecords(c.records)
	} else {
		out = []Record{}
	}
	m.mu.RUnlock()

	m.logger.Debug("list", zap.String("entity", entityType), zap.String("sort", opts.Sort), zap.Int("limit", opts.Limit))
	return applyListOptions(out, opts), nil
}

func (m *MemStore) Get(entityType, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.logger.Debug("get", zap.String("entity", entityType), zap.String("id", id))
	c, ok := m.data[entityType]
	if !ok {
		return nil, nil
	}
	pos, ok := c.index[id]
	if !ok {
		return nil, nil
	}
	return c.records[pos].Clone(), nil
}

func (m *MemStore) Create(entityType string, data Record) (Record, error) {
	rec := data.Clone()
	if rec == nil {
		rec = Record{}
	}

	m.mu.Lock()
	c := m.collectionLocked(entityType)
	id := m.newID()
	for _, taken := c.index[id]; taken; _, taken = c.index[id] {
		id = m.newID()
	}
	rec[FieldID] = id
	rec[FieldCreatedAt] = FormatTimestamp(m.now())
	c.append(rec)
	out := rec.Clone()
	m.mu.Unlock()

	m.logger.Debug("create", zap.String("entity", entityType), zap.String("id", id))
	m.persist(entityType)
	return out, nil
}

func (m *MemStore) Update(entityType, id string, data Record) (Record, error) {
	m.mu.Lock()
	c, ok := m.data[entityType]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	pos, ok := c.index[id]
	if !ok {
		m.mu.Unlock()
		return nil, nil
	}
	updated := c.records[pos].merge(data)
	c.records[pos] = updated
	out := updated.Clone()
	m.mu.Unlock()

	m.logger.Debug("update", zap.String("entity", entityType), zap.String("id", id))
	m.persist(entityType)
	return out, nil
}

func (m *MemStore) Delete(entityType, id string) error {
	m.mu.Lock()
	c, ok := m.data[entityType]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	pos, ok := c.index[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	c.remove(pos)
	m.mu.Unlock()

	m.logger.Debug("delete", zap.String("entity", entityType), zap.String("id", id))
	m.persist(entityType)
	return nil
}

func (m *MemStore) EntityTypes() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for name := range m.data {
		list = append(list, name)
	}
	sort.Strings(list)
	return list, nil
}

// Import upserts records, keeping their ids. Records without an id or
// created_at get generated ones.
func (m *MemStore) Import(entityType string, records []Record) error {
	m.mu.Lock()
	c := m.collectionLocked(entityType)
	for _, r := range records {
		m.upsertLocked(c, r.Clone())
	}
	m.mu.Unlock()

	m.logger.Debug("import", zap.String("entity", entityType), zap.Int("count", len(records)))
	m.persist(entityType)
	return nil
}

// For returns the Collection facade for entityType.
func (m *MemStore) For(entityType string) Collection {
	return Bind(m, entityType)
}

// collectionLocked returns the named collection, creating it if needed.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) collectionLocked(entityType string) *collection {
	c, ok := m.data[entityType]
	if !ok {
		c = newCollection()
		m.data[entityType] = c
	}
	return c
}

// upsertLocked replaces a record with the same id or appends it.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) upsertLocked(c *collection, r Record) {
	if r == nil {
		return
	}
	if r.ID() == "" {
		r[FieldID] = m.newID()
	}
	if r.CreatedAt() == "" {
		r[FieldCreatedAt] = FormatTimestamp(m.now())
	}
	if pos, ok := c.index[r.ID()]; ok {
		c.records[pos] = r
		return
	}
	c.append(r)
}

// persist saves the collection in the background. The copy is taken under
// saveMu so the last write to land is always the newest state.
func (m *MemStore) persist(entityType string) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.saveMu.Lock()
		defer m.saveMu.Unlock()

		m.mu.RLock()
		var records []Record
		if c, ok := m.data[entityType]; ok {
			records = cloneRecords(c.records)
		} else {
			records = []Record{}
		}
		m.mu.RUnlock()

		if err := m.persister.SaveCollection(entityType, records); err != nil {
			m.logger.Warn("snapshot save failed", zap.String("entity", entityType), zap.Error(err))
		}
	}()
}
