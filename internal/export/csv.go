// Package export writes current geocode records to flat files and reads them
// back for migration between stores.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/store"
)

// recordColumns defines the ordered export CSV columns.
var recordColumns = []string{
	"ticket_key",
	"record_key",
	"street",
	"intersection",
	"city",
	"county",
	"ticket_type",
	"latitude",
	"longitude",
	"technique",
	"approach",
	"confidence",
	"rationale",
	"error_message",
	"quality_tier",
	"review_priority",
	"validation_flags",
	"version",
	"created_at",
	"created_by_stage",
	"locked",
	"lock_reason",
	"locked_by",
}

// WriteCSV exports the current records matching filter to a CSV file and
// returns how many rows were written.
func WriteCSV(ctx context.Context, st store.Store, filter store.Filter, path string) (int, error) {
	records, err := st.Query(ctx, filter)
	if err != nil {
		return 0, eris.Wrap(err, "export: query records")
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(recordColumns); err != nil {
		return 0, eris.Wrap(err, "export: write header")
	}
	for i := range records {
		if err := w.Write(recordRow(&records[i])); err != nil {
			return 0, eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	return len(records), eris.Wrap(w.Error(), "export: flush")
}

func recordRow(rec *model.GeocodeRecord) []string {
	var lat, lon, conf string
	if rec.Coordinates != nil {
		lat = strconv.FormatFloat(rec.Coordinates.Latitude, 'f', -1, 64)
		lon = strconv.FormatFloat(rec.Coordinates.Longitude, 'f', -1, 64)
	}
	if rec.Confidence != nil {
		conf = strconv.FormatFloat(*rec.Confidence, 'f', -1, 64)
	}

	return []string{
		rec.TicketKey,
		rec.RecordKey,
		rec.Street,
		rec.Intersection,
		rec.City,
		rec.County,
		rec.TicketType,
		lat,
		lon,
		rec.Technique,
		rec.Approach,
		conf,
		rec.Rationale,
		rec.ErrorMessage,
		rec.QualityTier.String(),
		rec.ReviewPriority.String(),
		strings.Join(rec.ValidationFlags, ";"),
		strconv.Itoa(rec.Version),
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.CreatedByStage,
		strconv.FormatBool(rec.Locked),
		rec.LockReason,
		rec.LockedBy,
	}
}

// ImportCSV reads an export file and appends each row through the store,
// so version chains restart under the target store's own numbering. Locks
// are reapplied after the append.
func ImportCSV(ctx context.Context, st store.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "import: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return 0, eris.Wrap(err, "import: read header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, required := range []string{"ticket_key", "technique", "quality_tier", "review_priority"} {
		if _, ok := idx[required]; !ok {
			return 0, eris.Errorf("import: missing column %s", required)
		}
	}

	imported := 0
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, eris.Wrapf(err, "import: read row %d", line+1)
		}
		line++

		rec, locked, lockReason, lockedBy, err := parseRow(idx, row)
		if err != nil {
			return imported, eris.Wrapf(err, "import: row %d", line)
		}
		if err := st.Append(ctx, rec); err != nil {
			return imported, eris.Wrapf(err, "import: append %s", rec.TicketKey)
		}
		if locked {
			if err := st.Lock(ctx, rec.TicketKey, lockReason, lockedBy); err != nil {
				return imported, eris.Wrapf(err, "import: relock %s", rec.TicketKey)
			}
		}
		imported++
	}
	return imported, nil
}

func parseRow(idx map[string]int, row []string) (rec *model.GeocodeRecord, locked bool, lockReason, lockedBy string, err error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	rec = &model.GeocodeRecord{
		TicketKey:      get("ticket_key"),
		RecordKey:      get("record_key"),
		Street:         get("street"),
		Intersection:   get("intersection"),
		City:           get("city"),
		County:         get("county"),
		TicketType:     get("ticket_type"),
		Technique:      get("technique"),
		Approach:       get("approach"),
		Rationale:      get("rationale"),
		ErrorMessage:   get("error_message"),
		CreatedByStage: get("created_by_stage"),
	}
	if rec.TicketKey == "" {
		return nil, false, "", "", eris.New("missing ticket_key")
	}
	if rec.RecordKey == "" {
		rec.RecordKey = model.RecordKey(rec.Street, rec.Intersection, rec.City, rec.County)
	}

	if lat, lon := get("latitude"), get("longitude"); lat != "" && lon != "" {
		latF, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return nil, false, "", "", eris.Wrap(err, "parse latitude")
		}
		lonF, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return nil, false, "", "", eris.Wrap(err, "parse longitude")
		}
		rec.Coordinates = &model.Coordinates{Latitude: latF, Longitude: lonF}
	}
	if conf := get("confidence"); conf != "" {
		c, err := strconv.ParseFloat(conf, 64)
		if err != nil {
			return nil, false, "", "", eris.Wrap(err, "parse confidence")
		}
		rec.Confidence = &c
	}
	if rec.QualityTier, err = model.ParseTier(get("quality_tier")); err != nil {
		return nil, false, "", "", err
	}
	if rec.ReviewPriority, err = model.ParsePriority(get("review_priority")); err != nil {
		return nil, false, "", "", err
	}
	if flags := get("validation_flags"); flags != "" {
		rec.ValidationFlags = strings.Split(flags, ";")
	}
	if created := get("created_at"); created != "" {
		if rec.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, false, "", "", eris.Wrap(err, "parse created_at")
		}
	}

	locked = get("locked") == "true"
	return rec, locked, get("lock_reason"), get("locked_by"), nil
}
