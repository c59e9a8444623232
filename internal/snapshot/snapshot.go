// Package snapshot mirrors MemStore collections to disk or a database so the
// daemon can reload them at startup. Saves are best effort.
package snapshot

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// Backend names accepted by New.
const (
	BackendNone     = "none"
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Closer is implemented by snapshotters holding a connection.
type Closer interface {
	Close() error
}

// New creates a Snapshotter based on the backend name.
//
// Supported backends:
//
//	"none"     - no mirror; New returns (nil, nil)
//	"json"     - one JSON file per entity type in location (a directory)
//	"sqlite"   - SQLite database at location/vitalis.db, or location itself if it ends in .db
//	"postgres" - PostgreSQL, location is the connection string
func New(backend, location string, logger *zap.Logger) (engine.Snapshotter, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendJSON:
		return NewJSONDir(location, logger)
	case BackendSQLite:
		dbPath := location
		if filepath.Ext(location) != ".db" {
			dbPath = filepath.Join(location, "vitalis.db")
		}
		return NewSQLite(dbPath)
	case BackendPostgres:
		return NewPostgres(location)
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %q (supported: none, json, sqlite, postgres)", backend)
	}
}
