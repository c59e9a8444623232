package sdk

import (
	"os"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/internal/snapshot"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

// New initializes the store based on the environment.
// It returns the interface, so the app doesn't care if it's local or remote.
//
// When VITALIS_STORE_ADDR is set and reachable, a remote Client is returned.
// Otherwise an embedded MemStore mirrored to JSON files in dataDir is used.
func New(dataDir string, logger *zap.Logger) (engine.EntityStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if remoteAddr := os.Getenv("VITALIS_STORE_ADDR"); remoteAddr != "" {
		client, err := Connect(remoteAddr, WithClientLogger(logger))
		if err == nil {
			return client, nil
		}
		logger.Warn("remote store unreachable, falling back to embedded mode",
			zap.String("addr", remoteAddr), zap.Error(err))
	}

	// Embedded mode: same engine the daemon uses, inside the app process.
	p, err := snapshot.NewJSONDir(dataDir, logger)
	if err != nil {
		return nil, err
	}

	allData, err := p.LoadAll()
	if err != nil {
		return nil, err
	}

	return engine.NewMemStore(allData, p, engine.WithLogger(logger)), nil
}
