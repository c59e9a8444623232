package sdk

import (
	"encoding/json"
	"fmt"

	"github.com/vitalis-dev/vitalis-store/internal/vault"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// SealPolicy names, per entity type, the fields stored encrypted.
type SealPolicy map[string][]string

// SealedStore encrypts policy fields before they reach the wrapped store and
// decrypts them on the way out. The wrapped store only ever sees
// "vault:v1:<hex>" strings for those fields.
type SealedStore struct {
	inner     engine.EntityStore
	masterKey []byte
	policy    SealPolicy
}

// Seal wraps store so that the fields named in policy are encrypted with
// masterKey (32 bytes).
func Seal(store engine.EntityStore, masterKey []byte, policy SealPolicy) (*SealedStore, error) {
	if len(masterKey) != vault.KeySize {
		return nil, vault.ErrInvalidKey
	}
	return &SealedStore{inner: store, masterKey: masterKey, policy: policy}, nil
}

// seal returns a copy of rec with policy fields encrypted. Values are JSON
// encoded first so non-string fields survive the round trip. With keepSealed,
// values that already open under the master key are passed through as-is.
func (s *SealedStore) seal(entityType string, rec engine.Record, keepSealed bool) (engine.Record, error) {
	fields := s.policy[entityType]
	if len(fields) == 0 || rec == nil {
		return rec, nil
	}
	out := rec.Clone()
	for _, f := range fields {
		v, ok := out[f]
		if !ok || v == nil {
			continue
		}
		if keepSealed && s.opens(v) {
			continue
		}
		plain, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", entityType, f, err)
		}
		sealed, err := vault.SealValue(string(plain), s.masterKey)
		if err != nil {
			return nil, err
		}
		out[f] = sealed
	}
	return out, nil
}

func (s *SealedStore) opens(v any) bool {
	sealed, ok := v.(string)
	if !ok || !vault.IsSealed(sealed) {
		return false
	}
	_, err := vault.OpenValue(sealed, s.masterKey)
	return err == nil
}

// open decrypts policy fields in place. A value carrying the sealed prefix
// that does not open under the master key (foreign key, or plain text that
// merely looks sealed) is returned untouched.
func (s *SealedStore) open(entityType string, rec engine.Record) (engine.Record, error) {
	fields := s.policy[entityType]
	if len(fields) == 0 || rec == nil {
		return rec, nil
	}
	for _, f := range fields {
		sealed, ok := rec[f].(string)
		if !ok || !vault.IsSealed(sealed) {
			continue
		}
		plain, err := vault.OpenValue(sealed, s.masterKey)
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(plain), &v); err != nil {
			continue
		}
		rec[f] = v
	}
	return rec, nil
}

func (s *SealedStore) List(entityType string, opts engine.ListOptions) ([]engine.Record, error) {
	records, err := s.inner.List(entityType, opts)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		if records[i], err = s.open(entityType, r); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SealedStore) Get(entityType, id string) (engine.Record, error) {
	rec, err := s.inner.Get(entityType, id)
	if err != nil {
		return nil, err
	}
	return s.open(entityType, rec)
}

func (s *SealedStore) Create(entityType string, data engine.Record) (engine.Record, error) {
	sealed, err := s.seal(entityType, data, false)
	if err != nil {
		return nil, err
	}
	rec, err := s.inner.Create(entityType, sealed)
	if err != nil {
		return nil, err
	}
	return s.open(entityType, rec)
}

func (s *SealedStore) Update(entityType, id string, data engine.Record) (engine.Record, error) {
	sealed, err := s.seal(entityType, data, false)
	if err != nil {
		return nil, err
	}
	rec, err := s.inner.Update(entityType, id, sealed)
	if err != nil {
		return nil, err
	}
	return s.open(entityType, rec)
}

func (s *SealedStore) Delete(entityType, id string) error {
	return s.inner.Delete(entityType, id)
}

func (s *SealedStore) EntityTypes() ([]string, error) {
	return s.inner.EntityTypes()
}

// Import seals policy fields like Create, except that values already sealed
// under the same master key are stored unchanged.
func (s *SealedStore) Import(entityType string, records []engine.Record) error {
	sealed := make([]engine.Record, len(records))
	for i, r := range records {
		var err error
		if sealed[i], err = s.seal(entityType, r, true); err != nil {
			return err
		}
	}
	return s.inner.Import(entityType, sealed)
}

// For returns the Collection facade for entityType.
func (s *SealedStore) For(entityType string) engine.Collection {
	return engine.Bind(s, entityType)
}
