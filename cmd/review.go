package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ticket-geocoder/internal/export"
	"github.com/sells-group/ticket-geocoder/internal/model"
)

var (
	reviewOut        string
	reviewPriorities []string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Write the review queue, most urgent first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var priorities []model.ReviewPriority
		for _, name := range reviewPriorities {
			p, err := model.ParsePriority(strings.ToUpper(name))
			if err != nil {
				return err
			}
			priorities = append(priorities, p)
		}

		queue, err := export.ReviewQueue(ctx, st, priorities)
		if err != nil {
			return err
		}
		if len(queue) == 0 {
			fmt.Println("review queue is empty")
			return nil
		}

		switch strings.ToLower(filepath.Ext(reviewOut)) {
		case ".csv":
			err = export.WriteReviewCSV(queue, reviewOut)
		case ".xlsx":
			err = export.WriteReviewXLSX(queue, reviewOut)
		default:
			return eris.Errorf("unsupported review output type %s", filepath.Ext(reviewOut))
		}
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d records to %s\n", len(queue), reviewOut)
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewOut, "out", "review.csv", "output path (.csv or .xlsx)")
	reviewCmd.Flags().StringSliceVar(&reviewPriorities, "priority", nil,
		"review priorities to include (default CRITICAL,HIGH,MEDIUM,LOW)")
	rootCmd.AddCommand(reviewCmd)
}
