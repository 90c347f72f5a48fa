package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/oms/config"
	"github.com/rustyeddy/oms/core"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Process a bulk order CSV file",
	Long: `Parse a bulk order file, submit valid rows to the ledger and print
the batch report. Row failures never abort the batch.

Example:
  oms upload -f config.yaml orders.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var uploadConfigPath string

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVarP(&uploadConfigPath, "config", "f", "", "path to config file (optional, defaults apply)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if uploadConfigPath != "" {
		loaded, err := config.LoadFromFile(uploadConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
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

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	batch, err := c.UploadBatch(name, name, f)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s: %s\n", batch.ID, batch.Status)
	fmt.Printf("  total=%d processed=%d successful=%d failed=%d value=%.2f\n",
		batch.TotalOrders, batch.ProcessedOrders, batch.SuccessfulOrders,
		batch.FailedOrders, batch.TotalValue)
	for _, msg := range batch.ValidationErrors {
		fmt.Printf("  %s\n", msg)
	}
	return nil
}
