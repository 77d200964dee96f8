package tickets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, `Ticket Number,Street,Cross Street,City,County,Ticket Type,Work Type,Company
T-1001,COUNTY ROAD 401,,KERMIT,WINKLER,Normal,Pipeline,Acme Excavation
T-1002,HWY 18,CR 204,MONAHANS,WARD,Emergency,Repair,Fast Dig
`)

	tickets, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	assert.Equal(t, "T-1001", tickets[0].TicketKey)
	assert.Equal(t, "COUNTY ROAD 401", tickets[0].Street)
	assert.Equal(t, "KERMIT", tickets[0].City)
	assert.Equal(t, "WINKLER", tickets[0].County)
	assert.Equal(t, "Acme Excavation", tickets[0].Excavator)

	assert.Equal(t, "CR 204", tickets[1].Intersection)
	assert.Equal(t, "Emergency", tickets[1].TicketType)
}

func TestLoadCSV_SkipsRowsWithoutTicketNumber(t *testing.T) {
	path := writeCSV(t, `ticket,street,city,county
T-1,MAIN ST,KERMIT,WINKLER
,ORPHAN RD,KERMIT,WINKLER
T-2,SECOND ST,PYOTE,WARD
`)

	tickets, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "T-1", tickets[0].TicketKey)
	assert.Equal(t, "T-2", tickets[1].TicketKey)
}

func TestLoadCSV_NoTicketColumn(t *testing.T) {
	path := writeCSV(t, `street,city
MAIN ST,KERMIT
`)
	_, err := LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ticket number column")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("tickets.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "ticketnumber", normalizeHeader(" Ticket_Number "))
	assert.Equal(t, "crossstreet", normalizeHeader("Cross-Street"))
	assert.Equal(t, "worktype", normalizeHeader("work.type"))
}

func TestMapHeader_FirstMatchWins(t *testing.T) {
	cols := mapHeader([]string{"Ticket", "Ticket Number", "Street"})
	assert.Equal(t, 0, cols["ticket"])
	assert.Equal(t, 2, cols["street"])
}
