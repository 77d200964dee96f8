package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record, including version history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !clearYes {
			return eris.New("refusing to clear without --yes")
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d records\n", n)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deletion")
	rootCmd.AddCommand(clearCmd)
}
