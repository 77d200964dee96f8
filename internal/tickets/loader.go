// Package tickets loads locate tickets from CSV and XLSX files. Column
// headers vary between districts, so loading normalizes common aliases onto
// the ticket fields.
package tickets

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

// headerAliases maps normalized header names onto ticket fields.
var headerAliases = map[string]string{
	"ticket":        "ticket",
	"ticketnumber":  "ticket",
	"ticketno":      "ticket",
	"ticketkey":     "ticket",
	"street":        "street",
	"address":       "street",
	"streetaddress": "street",
	"intersection":  "intersection",
	"crossstreet":   "intersection",
	"nearestint":    "intersection",
	"city":          "city",
	"place":         "city",
	"county":        "county",
	"type":          "type",
	"tickettype":    "type",
	"duration":      "duration",
	"worktype":      "worktype",
	"work":          "worktype",
	"excavator":     "excavator",
	"company":       "excavator",
	"contractor":    "excavator",
}

// Load reads tickets from a CSV or XLSX file, dispatching on extension.
func Load(path string) ([]model.Ticket, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, eris.Errorf("tickets: unsupported file type %s", filepath.Ext(path))
	}
}

// LoadCSV reads tickets from a CSV file. The first row is the header.
func LoadCSV(path string) ([]model.Ticket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tickets: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "tickets: read header")
	}
	cols := mapHeader(header)
	if _, ok := cols["ticket"]; !ok {
		return nil, eris.Errorf("tickets: no ticket number column in %s", path)
	}

	var tickets []model.Ticket
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "tickets: read row %d", line+1)
		}
		line++

		t, ok := buildTicket(cols, row)
		if !ok {
			zap.L().Warn("tickets: skipping row without ticket number",
				zap.String("file", path), zap.Int("line", line))
			continue
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// LoadXLSX reads tickets from the first sheet of an XLSX workbook.
func LoadXLSX(path string) ([]model.Ticket, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tickets: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("tickets: no sheets in %s", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("tickets: empty sheet in %s", path)
	}

	header := rowToStrings(sheet.Rows[0])
	cols := mapHeader(header)
	if _, ok := cols["ticket"]; !ok {
		return nil, eris.Errorf("tickets: no ticket number column in %s", path)
	}

	var tickets []model.Ticket
	for i, row := range sheet.Rows[1:] {
		t, ok := buildTicket(cols, rowToStrings(row))
		if !ok {
			zap.L().Warn("tickets: skipping row without ticket number",
				zap.String("file", path), zap.Int("row", i+2))
			continue
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// mapHeader resolves aliased headers to column indexes. The first column
// matching a field wins.
func mapHeader(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		norm := normalizeHeader(h)
		field, ok := headerAliases[norm]
		if !ok {
			continue
		}
		if _, taken := cols[field]; !taken {
			cols[field] = i
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

func buildTicket(cols map[string]int, row []string) (model.Ticket, bool) {
	get := func(field string) string {
		idx, ok := cols[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	key := get("ticket")
	if key == "" {
		return model.Ticket{}, false
	}
	return model.Ticket{
		TicketKey:    key,
		Street:       get("street"),
		Intersection: get("intersection"),
		City:         get("city"),
		County:       get("county"),
		TicketType:   get("type"),
		Duration:     get("duration"),
		WorkType:     get("worktype"),
		Excavator:    get("excavator"),
	}, true
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}
