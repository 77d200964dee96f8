package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-geocoder/internal/geo"
	"github.com/sells-group/ticket-geocoder/internal/pipeline"
	"github.com/sells-group/ticket-geocoder/internal/tickets"
)

var (
	runConfigPath  string
	runTicketsPath string
	runWorkers     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a geocoding pipeline over a ticket file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runCfg, err := pipeline.LoadRunConfig(runConfigPath)
		if err != nil {
			return err
		}
		if runWorkers > 0 {
			runCfg.Workers = runWorkers
		} else if runCfg.Workers <= 0 {
			runCfg.Workers = cfg.Pipeline.Workers
		}

		centroids := geo.DefaultCentroids()
		p, err := pipeline.FromConfig(runCfg, initRegistry(centroids), st, initEngine(centroids))
		if err != nil {
			return err
		}

		batch, err := tickets.Load(runTicketsPath)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return eris.Errorf("no tickets in %s", runTicketsPath)
		}

		zap.L().Info("tickets loaded",
			zap.String("file", runTicketsPath),
			zap.Int("tickets", len(batch)),
		)

		result, err := p.Run(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "run-config", "", "pipeline run config YAML (required)")
	runCmd.Flags().StringVar(&runTicketsPath, "tickets", "", "ticket CSV or XLSX file (required)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "override worker pool size")
	_ = runCmd.MarkFlagRequired("run-config")
	_ = runCmd.MarkFlagRequired("tickets")
	rootCmd.AddCommand(runCmd)
}
