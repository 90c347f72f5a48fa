package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/oms/config"
	"github.com/rustyeddy/oms/core"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Print a risk snapshot for a configured account",
	Long: `Compute and print the portfolio risk snapshot from a configuration
file's account settings.

Example:
  oms risk -f config.yaml`,
	RunE: runRisk,
}

var riskConfigPath string

func init() {
	rootCmd.AddCommand(riskCmd)

	riskCmd.Flags().StringVarP(&riskConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	riskCmd.MarkFlagRequired("config")
}

func runRisk(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(riskConfigPath)
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

	snap := c.RecomputeRisk()
	fmt.Printf("Portfolio Value:    %.2f\n", snap.PortfolioValue)
	fmt.Printf("Total Exposure:     %.2f\n", snap.TotalExposure)
	fmt.Printf("Used Margin:        %.2f\n", snap.UsedMargin)
	fmt.Printf("Available Margin:   %.2f\n", snap.AvailableMargin)
	fmt.Printf("Margin Utilization: %.3f\n", snap.MarginUtilization)
	fmt.Printf("VaR (95%%):          %.2f\n", snap.VaR95)
	fmt.Printf("Expected Shortfall: %.2f\n", snap.ExpectedShortfall)
	fmt.Printf("Concentration:      %.3f\n", snap.ConcentrationRisk)
	fmt.Printf("Liquidity:          %.3f\n", snap.LiquidityRisk)
	fmt.Printf("Overall Score:      %.3f\n", snap.OverallRiskScore)
	return nil
}
