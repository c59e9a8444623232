// Package enginetest holds the behavioural contract every engine.EntityStore
// implementation must satisfy.
package enginetest

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) engine.EntityStore

// Run executes the contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UnknownTypeListsEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.List("NeverSeen", engine.ListOptions{})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("GetMissingIsAbsent", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get("Patient", "nope")
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = s.Create("Patient", engine.Record{"full_name": "x"})
		require.NoError(t, err)
		got, err = s.Get("Patient", "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CreateAssignsUniqueIDsAcrossCollections", func(t *testing.T) {
		s := newStore(t)
		seen := map[string]bool{}
		for _, entityType := range []string{"Patient", "SymptomCheck", "DoctorAppointment"} {
			for i := 0; i < 20; i++ {
				rec, err := s.Create(entityType, engine.Record{"i": i})
				require.NoError(t, err)
				require.NotEmpty(t, rec.ID())
				assert.False(t, seen[rec.ID()], "duplicate id %s", rec.ID())
				seen[rec.ID()] = true

				_, err = engine.ParseTimestamp(rec.CreatedAt())
				assert.NoError(t, err, "created_at %q should parse", rec.CreatedAt())
			}
		}
	})

	t.Run("CreateDoesNotMutateInput", func(t *testing.T) {
		s := newStore(t)
		in := engine.Record{"a": 1.0}
		_, err := s.Create("Thing", in)
		require.NoError(t, err)
		assert.Equal(t, engine.Record{"a": 1.0}, in)
	})

	t.Run("GetIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create("Thing", engine.Record{"a": 1.0, "tags": []any{"x"}})
		require.NoError(t, err)

		first, err := s.Get("Thing", rec.ID())
		require.NoError(t, err)
		second, err := s.Get("Thing", rec.ID())
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Get not idempotent (-first +second):\n%s", diff)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create("Thing", engine.Record{"a": 1})
		require.NoError(t, err)

		got, err := s.Get("Thing", rec.ID())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.EqualValues(t, 1, got["a"])
	})

	t.Run("UpdateMergeLaw", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create("Thing", engine.Record{"a": 1, "b": 2})
		require.NoError(t, err)

		updated, err := s.Update("Thing", rec.ID(), engine.Record{"b": 3, "id": "hijack", "created_at": "1999"})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.EqualValues(t, 1, updated["a"])
		assert.EqualValues(t, 3, updated["b"])
		assert.Equal(t, rec.ID(), updated.ID())
		assert.Equal(t, rec.CreatedAt(), updated.CreatedAt())

		got, err := s.Get("Thing", rec.ID())
		require.NoError(t, err)
		assert.EqualValues(t, 3, got["b"])
	})

	t.Run("UpdateMissingCreatesNothing", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Update("Thing", "missing", engine.Record{"a": 1})
		require.NoError(t, err)
		assert.Nil(t, got)

		list, err := s.List("Thing", engine.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("DeleteThenGet", func(t *testing.T) {
		s := newStore(t)
		keep, err := s.Create("Thing", engine.Record{"n": 1})
		require.NoError(t, err)
		gone, err := s.Create("Thing", engine.Record{"n": 2})
		require.NoError(t, err)

		require.NoError(t, s.Delete("Thing", gone.ID()))
		got, err := s.Get("Thing", gone.ID())
		require.NoError(t, err)
		assert.Nil(t, got)

		// Deleting again, or from an unknown type, is a no-op.
		require.NoError(t, s.Delete("Thing", gone.ID()))
		require.NoError(t, s.Delete("NeverSeen", "x"))

		list, err := s.List("Thing", engine.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, keep.ID(), list[0].ID())
	})

	t.Run("ListPreservesInsertionOrder", func(t *testing.T) {
		s := newStore(t)
		var ids []string
		for i := 0; i < 5; i++ {
			rec, err := s.Create("Thing", engine.Record{"i": i})
			require.NoError(t, err)
			ids = append(ids, rec.ID())
		}
		list, err := s.List("Thing", engine.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, ids, recordIDs(list))
	})

	t.Run("SortAndLimit", func(t *testing.T) {
		s := newStore(t)
		for _, n := range []int{3, 1, 2} {
			_, err := s.Create("Thing", engine.Record{"n": n})
			require.NoError(t, err)
		}

		desc, err := s.List("Thing", engine.ListOptions{Sort: "-n"})
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 2, 1}, numbers(desc, "n"))

		top2, err := s.List("Thing", engine.ListOptions{Sort: "-n", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 2}, numbers(top2, "n"))

		asc, err := s.List("Thing", engine.ListOptions{Sort: "n"})
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3}, numbers(asc, "n"))
	})

	t.Run("MissingSortKeyGoesLast", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.Create("Thing", engine.Record{"label": "no-n-first"})
		_, _ = s.Create("Thing", engine.Record{"n": 1})
		b, _ := s.Create("Thing", engine.Record{"label": "no-n-second"})
		_, _ = s.Create("Thing", engine.Record{"n": 2})

		for _, key := range []string{"n", "-n"} {
			list, err := s.List("Thing", engine.ListOptions{Sort: key})
			require.NoError(t, err)
			require.Len(t, list, 4)
			assert.Equal(t, []string{a.ID(), b.ID()}, recordIDs(list[2:]), "sort %s", key)
		}
	})

	t.Run("ListIsSnapshot", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Create("Thing", engine.Record{"nested": map[string]any{"k": "v"}})
		require.NoError(t, err)

		list, err := s.List("Thing", engine.ListOptions{})
		require.NoError(t, err)
		list[0]["nested"].(map[string]any)["k"] = "mutated"
		list[0]["extra"] = true

		got, err := s.Get("Thing", rec.ID())
		require.NoError(t, err)
		assert.Equal(t, "v", got["nested"].(map[string]any)["k"])
		assert.NotContains(t, got, "extra")
	})

	t.Run("NestedTypedValuesAreCopied", func(t *testing.T) {
		s := newStore(t)
		in := engine.Record{
			"labels":   map[string]string{"k": "v"},
			"visits":   []map[string]any{{"n": "a"}},
			"children": []engine.Record{{"n": "c"}},
		}
		rec, err := s.Create("Thing", in)
		require.NoError(t, err)

		for _, key := range []string{"labels", "visits", "children"} {
			scribble(in[key])
			scribble(rec[key])
		}
		list, err := s.List("Thing", engine.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		for _, key := range []string{"labels", "visits", "children"} {
			scribble(list[0][key])
		}

		got, err := s.Get("Thing", rec.ID())
		require.NoError(t, err)
		assert.JSONEq(t, `{"k":"v"}`, jsonOf(t, got["labels"]))
		assert.JSONEq(t, `[{"n":"a"}]`, jsonOf(t, got["visits"]))
		assert.JSONEq(t, `[{"n":"c"}]`, jsonOf(t, got["children"]))
	})

	t.Run("EmptyTypeName", func(t *testing.T) {
		s := newStore(t)
		c := s.For("")
		assert.Equal(t, "", c.Name())

		list, err := c.List(engine.ListOptions{Sort: "n"})
		require.NoError(t, err)
		assert.Empty(t, list)

		rec, err := c.Create(engine.Record{"n": 1})
		require.NoError(t, err)
		got, err := c.Get(rec.ID())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.EqualValues(t, 1, got["n"])

		list, err = c.List(engine.ListOptions{Sort: "n"})
		require.NoError(t, err)
		assert.Equal(t, []string{rec.ID()}, recordIDs(list))

		other, err := s.List(`{"sort":"n"}`, engine.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, other, "empty name must not shift the options into the name")

		require.NoError(t, c.Delete(rec.ID()))
		got, err = c.Get(rec.ID())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ImportKeepsIDs", func(t *testing.T) {
		s := newStore(t)
		err := s.Import("Patient", []engine.Record{
			{"id": "p-1", "created_at": "2024-01-01T00:00:00.000Z", "full_name": "A"},
			{"id": "p-2", "full_name": "B"},
		})
		require.NoError(t, err)

		got, err := s.Get("Patient", "p-2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "B", got["full_name"])
		assert.NotEmpty(t, got.CreatedAt())

		require.NoError(t, s.Import("Patient", []engine.Record{{"id": "p-1", "full_name": "A2"}}))
		list, err := s.List("Patient", engine.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"p-1", "p-2"}, recordIDs(list))
		assert.Equal(t, "A2", list[0]["full_name"])

		types, err := s.EntityTypes()
		require.NoError(t, err)
		assert.Contains(t, types, "Patient")
	})

	t.Run("FacadeResolvesAnyName", func(t *testing.T) {
		s := newStore(t)
		c := s.For("Brand New Type/with spaces")
		assert.Equal(t, "Brand New Type/with spaces", c.Name())

		list, err := c.List(engine.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)

		rec, err := c.Create(engine.Record{"x": "y"})
		require.NoError(t, err)
		got, err := c.Get(rec.ID())
		require.NoError(t, err)
		assert.Equal(t, "y", got["x"])
	})

	t.Run("PatientScenario", func(t *testing.T) {
		s := newStore(t)
		patients := s.For("Patient")

		created, err := patients.Create(engine.Record{"full_name": "Jane Doe", "age": 34})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID())
		require.NotEmpty(t, created.CreatedAt())

		list, err := patients.List(engine.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, created.ID(), list[0].ID())
		assert.Equal(t, "Jane Doe", list[0]["full_name"])
		assert.EqualValues(t, 34, list[0]["age"])

		_, err = patients.Update(created.ID(), engine.Record{"age": 35})
		require.NoError(t, err)
		got, err := patients.Get(created.ID())
		require.NoError(t, err)
		assert.EqualValues(t, 35, got["age"])
		assert.Equal(t, "Jane Doe", got["full_name"])

		require.NoError(t, patients.Delete(created.ID()))
		list, err = patients.List(engine.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

// scribble overwrites the leaves of a nested value in place.
func scribble(v any) {
	switch t := v.(type) {
	case map[string]string:
		for k := range t {
			t[k] = "mutated"
		}
	case map[string]any:
		for k := range t {
			t[k] = "mutated"
		}
	case engine.Record:
		for k := range t {
			t[k] = "mutated"
		}
	case []map[string]any:
		for _, e := range t {
			scribble(e)
		}
	case []engine.Record:
		for _, e := range t {
			scribble(e)
		}
	case []any:
		for _, e := range t {
			scribble(e)
		}
	}
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func recordIDs(records []engine.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID()
	}
	return ids
}

// numbers extracts a numeric field as float64 so embedded (int) and remote
// (JSON float64) stores compare equally.
func numbers(records []engine.Record, key string) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		switch v := r[key].(type) {
		case int:
			out[i] = float64(v)
		case float64:
			out[i] = v
		}
	}
	return out
}
