package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ticket-geocoder/internal/export"
)

var importPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records from an export CSV",
	Long:  "Appends each row of an export file through the store, so imported records restart version chains under this store's numbering.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := export.ImportCSV(ctx, st, importPath)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d records\n", n)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "export CSV to import (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
