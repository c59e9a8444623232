package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

var exportCmd = &cobra.Command{
	Use:   "export <file.json>",
	Short: "Write every collection of the daemon to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		n, err := exportStore(client, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", n, args[0])
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <fixtures.yaml|fixtures.json>",
	Short: "Import fixture records into the daemon, keeping their ids",
	Long: `seed reads a YAML or JSON document mapping entity types to lists of
records and imports them. Records with an id replace the stored record with
the same id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fixtures, err := loadFixtures(args[0])
		if err != nil {
			return err
		}
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		n, err := seedStore(fixtures, client)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d records\n", n)
		return nil
	},
}

// exportStore copies src into memory and writes it to path as
// {"<type>": [records...]}.
func exportStore(src engine.EntityStore, path string) (int, error) {
	mem := engine.NewMemStore(nil, nil)
	if err := engine.Migrate(src, mem); err != nil {
		return 0, err
	}

	types, err := mem.EntityTypes()
	if err != nil {
		return 0, err
	}
	out := make(map[string][]engine.Record, len(types))
	total := 0
	for _, t := range types {
		records, err := mem.List(t, engine.ListOptions{})
		if err != nil {
			return 0, err
		}
		out[t] = records
		total += len(records)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	return total, nil
}

// loadFixtures reads a YAML or JSON fixture file. Values are normalized
// through JSON so they match what the store returns.
func loadFixtures(path string) (map[string][]engine.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var doc map[string][]map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("fixtures are not JSON-compatible: %w", err)
	}
	var out map[string][]engine.Record
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// seedStore imports fixtures into dst through an in-memory staging store,
// which assigns ids and timestamps to records that lack them.
func seedStore(fixtures map[string][]engine.Record, dst engine.EntityStore) (int, error) {
	staging := engine.NewMemStore(nil, nil)
	total := 0
	for t, records := range fixtures {
		if err := staging.Import(t, records); err != nil {
			return 0, err
		}
		total += len(records)
	}
	if err := engine.Migrate(staging, dst); err != nil {
		return 0, err
	}
	return total, nil
}

func init() {
	rootCmd.AddCommand(exportCmd, seedCmd)
}
