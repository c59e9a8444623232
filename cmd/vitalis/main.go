// Command vitalis is the command-line client for a running vitalis-stored.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vitalis-dev/vitalis-store/pkg/sdk"
)

var (
	addr     string
	insecure bool
	verbose  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vitalis",
	Short: "Command-line client for the Vitalis Store",
	Long: `vitalis talks to a running vitalis-stored over its TCP protocol.

Environment Variables:
  VITALIS_STORE_ADDR    Address of the store (default: localhost:7001)
  VITALIS_DISABLE_TLS   Set to true to disable TLS`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func defaultAddr() string {
	if v := os.Getenv("VITALIS_STORE_ADDR"); v != "" {
		return v
	}
	return "localhost:7001"
}

// connect dials the daemon named by --addr.
func connect() (*sdk.Client, error) {
	opts := []sdk.ClientOption{sdk.WithClientLogger(logger)}
	if insecure {
		opts = append(opts, sdk.WithTLS(false))
	}
	client, err := sdk.Connect(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return client, nil
}

func printJSON(w io.Writer, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bytes))
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", defaultAddr(), "Address of the store")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Connect without TLS")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
