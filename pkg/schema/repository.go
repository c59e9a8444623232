package schema

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// Repository wraps an engine.Collection to provide type-safe access.
type Repository[T Model] struct {
	coll   engine.Collection
	logger *zap.Logger
}

// Option configures a Repository.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger that reports records List had to skip.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewRepository creates a new type-safe wrapper around a collection.
func NewRepository[T Model](coll engine.Collection, opts ...Option) *Repository[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Repository[T]{coll: coll, logger: o.logger}
}

// Name returns the bound entity type.
func (r *Repository[T]) Name() string { return r.coll.Name() }

// ToRecord converts a typed value into a record. Empty id and created_at are
// dropped so the store assigns them.
func ToRecord(v any) (engine.Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}
	var rec engine.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to convert typed data to record: %w", err)
	}
	return rec, nil
}

// FromRecord converts a record into T. Unknown fields are ignored.
func FromRecord[T any](rec engine.Record) (T, error) {
	var out T
	b, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("failed to decode record: %w", err)
	}
	return out, nil
}

// Create stores v as a new record and returns it with id and created_at set.
func (r *Repository[T]) Create(v T) (T, error) {
	var zero T
	rec, err := ToRecord(v)
	if err != nil {
		return zero, err
	}
	delete(rec, engine.FieldID)
	delete(rec, engine.FieldCreatedAt)

	created, err := r.coll.Create(rec)
	if err != nil {
		return zero, err
	}
	return FromRecord[T](created)
}

// Get returns the record or nil when it does not exist.
func (r *Repository[T]) Get(id string) (*T, error) {
	rec, err := r.coll.Get(id)
	if err != nil || rec == nil {
		return nil, err
	}
	out, err := FromRecord[T](rec)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every record, ordered and truncated by opts. Records that do
// not decode into T are skipped and logged.
func (r *Repository[T]) List(opts engine.ListOptions) ([]T, error) {
	records, err := r.coll.List(opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		v, err := FromRecord[T](rec)
		if err != nil {
			r.logger.Warn("skipping undecodable record",
				zap.String("entity_type", r.coll.Name()),
				zap.String("id", rec.ID()),
				zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Update shallow-merges patch and returns the result, or nil when absent.
func (r *Repository[T]) Update(id string, patch engine.Record) (*T, error) {
	rec, err := r.coll.Update(id, patch)
	if err != nil || rec == nil {
		return nil, err
	}
	out, err := FromRecord[T](rec)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the record. Absence is not an error.
func (r *Repository[T]) Delete(id string) error {
	return r.coll.Delete(id)
}
