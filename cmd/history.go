package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history <ticket-key>",
	Short: "Show every version of a ticket's record, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		history, err := st.History(ctx, args[0])
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Printf("no records for %s\n", args[0])
			return nil
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(history)
		}

		for _, rec := range history {
			marker := " "
			if rec.IsCurrent {
				marker = "*"
			}
			conf := "-"
			if rec.Confidence != nil {
				conf = fmt.Sprintf("%.2f", *rec.Confidence)
			}
			locked := ""
			if rec.Locked {
				locked = fmt.Sprintf("  [locked: %s]", rec.LockReason)
			}
			fmt.Printf("%s v%-3d %-13s conf=%-5s %-20s %s%s\n",
				marker, rec.Version, rec.QualityTier, conf,
				rec.Technique, rec.CreatedAt.Format("2006-01-02 15:04"), locked)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(historyCmd)
}
