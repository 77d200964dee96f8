package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-geocoder/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ticket-geocoder",
	Short: "Versioned geocode cache for locate tickets",
	Long:  "Caches geocode results for one-call locate tickets as immutable version chains, assesses quality, and reprocesses low-tier records through configurable stages.",
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
