package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ticket-geocoder/internal/export"
	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/store"
)

var (
	exportPath  string
	exportTiers []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export current records to CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var filter store.Filter
		for _, name := range exportTiers {
			tier, err := model.ParseTier(name)
			if err != nil {
				return err
			}
			filter.Tiers = append(filter.Tiers, tier)
		}

		n, err := export.WriteCSV(ctx, st, filter, exportPath)
		if err != nil {
			return err
		}
		fmt.Printf("exported %d records to %s\n", n, exportPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "records.csv", "output CSV path")
	exportCmd.Flags().StringSliceVar(&exportTiers, "tier", nil, "only export these quality tiers (e.g. FAILED,REVIEW_NEEDED)")
	rootCmd.AddCommand(exportCmd)
}
