package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lead-finder",
	Short: "Streaming lead search and enrichment client",
	Long: "Searches for leads through the lead backend, folds the streamed results into a de-duplicated set, " +
		"re-enriches individual leads and exports them to CSV, XLSX, Google Sheets, Notion or Salesforce.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
