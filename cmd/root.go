package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crm-report",
	Short: "Salesforce contract reconciliation and funnel reporting",
	Long:  "Fetches contracts, opportunities and leads from Salesforce, reconciles pricing and stage history, and produces enriched reports, lead statistics and Claude-generated funnel insights.",
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
