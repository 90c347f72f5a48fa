package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "oms",
	Short:         "Order & execution management core",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `oms owns order lifecycle, bulk CSV ingestion, algorithmic strategy
supervision and portfolio risk aggregation.

It provides tools for:
  - Running the core against a live market data feed
  - Uploading and validating bulk order files
  - Inspecting portfolio risk from a configured book
  - Managing configuration files`,
}

var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Optional .env for local overrides; absence is fine.
		_ = godotenv.Load()
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", logLevel, err)
	}
	return cfg.Build()
}
