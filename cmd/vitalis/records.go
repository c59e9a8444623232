package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

var (
	listSort  string
	listLimit int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Ping(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PONG")
		return nil
	},
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List entity types that hold records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		types, err := client.EntityTypes()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), types)
	},
}

var listCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List the records of an entity type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		records, err := client.List(args[0], engine.ListOptions{Sort: listSort, Limit: listLimit})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <type> <id>",
	Short: "Print one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		rec, err := client.Get(args[0], args[1])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s %s not found", args[0], args[1])
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <type> <json>",
	Short: "Create a record from a JSON object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseRecord(args[1])
		if err != nil {
			return err
		}
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		rec, err := client.Create(args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <type> <id> <json>",
	Short: "Merge a JSON object into a record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseRecord(args[2])
		if err != nil {
			return err
		}
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		rec, err := client.Update(args[0], args[1], data)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s %s not found", args[0], args[1])
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Delete(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

// parseRecord decodes a JSON object argument.
func parseRecord(arg string) (engine.Record, error) {
	var rec engine.Record
	if err := json.Unmarshal([]byte(arg), &rec); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return rec, nil
}

func init() {
	listCmd.Flags().StringVarP(&listSort, "sort", "s", "", "Field to sort by, prefix with - for descending")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum number of records")

	rootCmd.AddCommand(pingCmd, typesCmd, listCmd, getCmd, createCmd, updateCmd, deleteCmd)
}
