package snapshot

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

const jsonExt = ".json"

// JSONDir handles the disk I/O for the MemStore: one file per entity type.
type JSONDir struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	logger  *zap.Logger
}

// NewJSONDir initializes a JSON snapshot directory.
func NewJSONDir(dir string, logger *zap.Logger) (*JSONDir, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONDir{DataDir: dir, logger: logger}, nil
}

// fileName maps an entity type to a safe file name. Any entity name is valid,
// so separators and other special characters are escaped.
func fileName(entityType string) string {
	return url.PathEscape(entityType) + jsonExt
}

// SaveCollection writes a single collection to a JSON file atomically.
func (p *JSONDir) SaveCollection(entityType string, records []engine.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, fileName(entityType))
	tempPath := filePath + ".tmp"

	if records == nil {
		records = []engine.Record{}
	}
	bytes, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temporary file first, then swap it in. A crash leaves either
	// the old file or the new one.
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// LoadAll returns every collection found in the data directory.
func (p *JSONDir) LoadAll() (map[string][]engine.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string][]engine.Record)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != jsonExt {
			continue
		}
		entityType, err := url.PathUnescape(strings.TrimSuffix(file.Name(), jsonExt))
		if err != nil {
			p.logger.Warn("skipping snapshot with undecodable name", zap.String("file", file.Name()))
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("could not read snapshot file", zap.String("file", file.Name()), zap.Error(err))
			continue // Skip corrupted/unreadable files
		}

		var records []engine.Record
		if err := json.Unmarshal(content, &records); err != nil {
			p.logger.Warn("could not unmarshal snapshot", zap.String("file", file.Name()), zap.Error(err))
			continue
		}
		allData[entityType] = records
	}
	return allData, nil
}
