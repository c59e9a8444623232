package engine

import "fmt"

// Migrate copies every collection from src to dst, keeping record ids.
// This works for:
// - Embedded -> Remote (seeding a daemon)
// - Remote -> Embedded (export/backup)
func Migrate(src, dst EntityStore) error {
	types, err := src.EntityTypes()
	if err != nil {
		return fmt.Errorf("failed to list entity types: %w", err)
	}

	for _, entityType := range types {
		records, err := src.List(entityType, ListOptions{})
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", entityType, err)
		}
		if err := dst.Import(entityType, records); err != nil {
			return fmt.Errorf("failed to import %s into destination: %w", entityType, err)
		}
	}

	return nil
}
