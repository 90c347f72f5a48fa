package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/oms/config"
	"github.com/rustyeddy/oms/core"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the core against the configured market data feed",
	Long: `Start the order management core: connect the market data stream,
accept fill notifications and publish risk snapshots until interrupted.

Example:
  oms run -f config.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	c, err := core.New(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.ConnectMarketData(ctx); err != nil {
		return fmt.Errorf("connect market data: %w", err)
	}

	fmt.Printf("oms running (account %s, %d symbols). Ctrl-C to stop.\n",
		cfg.Account.ID, len(cfg.MarketData.Symbols))

	<-ctx.Done()

	snap := c.RecomputeRisk()
	fmt.Printf("final risk: portfolio=%.2f exposure=%.2f score=%.3f\n",
		snap.PortfolioValue, snap.TotalExposure, snap.OverallRiskScore)
	return nil
}
