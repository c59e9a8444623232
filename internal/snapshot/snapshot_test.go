package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalis-dev/vitalis-store/internal/snapshot"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// runSnapshotTests runs a common suite against any Snapshotter.
func runSnapshotTests(t *testing.T, s engine.Snapshotter) {
	t.Helper()

	t.Run("LoadAll empty", func(t *testing.T) {
		all, err := s.LoadAll()
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Save and load keeps order", func(t *testing.T) {
		records := []engine.Record{
			{"id": "c", "created_at": "2024-01-01T00:00:00.000Z", "full_name": "C"},
			{"id": "a", "created_at": "2024-01-02T00:00:00.000Z", "full_name": "A", "age": float64(34)},
			{"id": "b", "created_at": "2024-01-03T00:00:00.000Z", "tags": []any{"x", "y"}},
		}
		require.NoError(t, s.SaveCollection("Patient", records))

		all, err := s.LoadAll()
		require.NoError(t, err)
		require.Len(t, all["Patient"], 3)
		assert.Equal(t, "c", all["Patient"][0].ID())
		assert.Equal(t, "a", all["Patient"][1].ID())
		assert.Equal(t, float64(34), all["Patient"][1]["age"])
		assert.Equal(t, []any{"x", "y"}, all["Patient"][2]["tags"])
	})

	t.Run("Save replaces collection", func(t *testing.T) {
		require.NoError(t, s.SaveCollection("Patient", []engine.Record{{"id": "only"}}))
		all, err := s.LoadAll()
		require.NoError(t, err)
		require.Len(t, all["Patient"], 1)
		assert.Equal(t, "only", all["Patient"][0].ID())
	})

	t.Run("Odd entity names", func(t *testing.T) {
		name := "Lab Result/2024"
		require.NoError(t, s.SaveCollection(name, []engine.Record{{"id": "r1"}}))
		all, err := s.LoadAll()
		require.NoError(t, err)
		require.Len(t, all[name], 1)
	})
}

func TestJSONDir(t *testing.T) {
	dir := t.TempDir()
	s, err := snapshot.NewJSONDir(dir, nil)
	require.NoError(t, err)
	runSnapshotTests(t, s)

	_, err = os.Stat(filepath.Join(dir, "Patient.json"))
	assert.NoError(t, err, "collection file should exist")
}

func TestJSONDir_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644))

	s, err := snapshot.NewJSONDir(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveCollection("Patient", []engine.Record{{"id": "p1"}}))

	all, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "Patient")
}

func TestSQLite(t *testing.T) {
	s, err := snapshot.NewSQLite(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runSnapshotTests(t, s)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("VITALIS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VITALIS_TEST_POSTGRES_DSN not set")
	}
	s, err := snapshot.NewPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runSnapshotTests(t, s)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	none, err := snapshot.New(snapshot.BackendNone, dir, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	js, err := snapshot.New(snapshot.BackendJSON, dir, nil)
	require.NoError(t, err)
	assert.IsType(t, &snapshot.JSONDir{}, js)

	lite, err := snapshot.New(snapshot.BackendSQLite, dir, nil)
	require.NoError(t, err)
	require.IsType(t, &snapshot.SQLStore{}, lite)
	lite.(snapshot.Closer).Close()
	_, err = os.Stat(filepath.Join(dir, "vitalis.db"))
	assert.NoError(t, err)

	_, err = snapshot.New("mongo", dir, nil)
	assert.Error(t, err)
}

func TestMemStoreReloadsFromJSON(t *testing.T) {
	dir := t.TempDir()
	p, err := snapshot.NewJSONDir(dir, nil)
	require.NoError(t, err)

	ms := engine.NewMemStore(nil, p)
	rec, err := ms.Create("Patient", engine.Record{"full_name": "Jane Doe", "age": 34})
	require.NoError(t, err)
	ms.Wait()

	loaded, err := p.LoadAll()
	require.NoError(t, err)
	ms2 := engine.NewMemStore(loaded, p)

	got, err := ms2.Get("Patient", rec.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jane Doe", got["full_name"])
	assert.Equal(t, float64(34), got["age"])
}
