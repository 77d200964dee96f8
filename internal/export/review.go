package export

import (
	"context"
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/store"
)

// reviewColumns defines the ordered review queue output columns.
var reviewColumns = []string{
	"priority",
	"ticket_key",
	"street",
	"intersection",
	"city",
	"county",
	"ticket_type",
	"quality_tier",
	"confidence",
	"validation_flags",
	"technique",
	"approach",
	"error_message",
}

// AllReviewPriorities covers every priority that puts a record on the queue.
var AllReviewPriorities = []model.ReviewPriority{
	model.PriorityCritical,
	model.PriorityHigh,
	model.PriorityMedium,
	model.PriorityLow,
}

// ReviewQueue returns the current records carrying one of the given review
// priorities, most urgent first. Ties break on ticket key so output is
// stable. A nil priority list means all four reviewable priorities.
func ReviewQueue(ctx context.Context, st store.Store, priorities []model.ReviewPriority) ([]model.GeocodeRecord, error) {
	if len(priorities) == 0 {
		priorities = AllReviewPriorities
	}
	records, err := st.Query(ctx, store.Filter{Priorities: priorities})
	if err != nil {
		return nil, eris.Wrap(err, "export: query review queue")
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ReviewPriority != records[j].ReviewPriority {
			return records[i].ReviewPriority > records[j].ReviewPriority
		}
		return records[i].TicketKey < records[j].TicketKey
	})
	return records, nil
}

// WriteReviewCSV writes the review queue to a CSV file.
func WriteReviewCSV(records []model.GeocodeRecord, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(reviewColumns); err != nil {
		return eris.Wrap(err, "export: write review header")
	}
	for i := range records {
		if err := w.Write(reviewRow(&records[i])); err != nil {
			return eris.Wrap(err, "export: write review row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush review")
}

// WriteReviewXLSX writes the review queue to an XLSX workbook.
func WriteReviewXLSX(records []model.GeocodeRecord, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Review Queue")
	if err != nil {
		return eris.Wrap(err, "export: add review sheet")
	}

	header := sheet.AddRow()
	for _, col := range reviewColumns {
		header.AddCell().Value = col
	}
	for i := range records {
		row := sheet.AddRow()
		for _, val := range reviewRow(&records[i]) {
			row.AddCell().Value = val
		}
	}

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

func reviewRow(rec *model.GeocodeRecord) []string {
	var conf string
	if rec.Confidence != nil {
		conf = strconv.FormatFloat(*rec.Confidence, 'f', 2, 64)
	}
	return []string{
		rec.ReviewPriority.String(),
		rec.TicketKey,
		rec.Street,
		rec.Intersection,
		rec.City,
		rec.County,
		rec.TicketType,
		rec.QualityTier.String(),
		conf,
		strings.Join(rec.ValidationFlags, ";"),
		rec.Technique,
		rec.Approach,
		rec.ErrorMessage,
	}
}
