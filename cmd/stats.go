package main

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "read stats")
		}

		fmt.Printf("Current records:  %d\n", stats.TotalCurrent)
		fmt.Printf("Total versions:   %d\n", stats.TotalVersions)
		fmt.Printf("Locked records:   %d\n", stats.LockedCount)
		fmt.Println()

		tiers := make([]string, 0, len(stats.ByTier))
		for tier := range stats.ByTier {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		for _, tier := range tiers {
			if avg, ok := stats.AvgConfidenceByTier[tier]; ok {
				fmt.Printf("%-15s %5d  (avg confidence %.2f)\n", tier, stats.ByTier[tier], avg)
			} else {
				fmt.Printf("%-15s %5d\n", tier, stats.ByTier[tier])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
