package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Ticket is one location-lookup request, the external unit of work.
type Ticket struct {
	TicketKey    string `json:"ticket_key"`
	Street       string `json:"street,omitempty"`
	Intersection string `json:"intersection,omitempty"`
	City         string `json:"city,omitempty"`
	County       string `json:"county,omitempty"`
	TicketType   string `json:"ticket_type,omitempty"`
	Duration     string `json:"duration,omitempty"`
	WorkType     string `json:"work_type,omitempty"`
	Excavator    string `json:"excavator,omitempty"`
}

// RecordKey returns SHA-256 hex of the normalized location fields, so
// semantically identical locations hash the same across tickets.
func RecordKey(street, intersection, city, county string) string {
	normalized := strings.ToUpper(fmt.Sprintf("%s|%s|%s|%s",
		strings.TrimSpace(street),
		strings.TrimSpace(intersection),
		strings.TrimSpace(city),
		strings.TrimSpace(county),
	))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// RecordKeyFor is RecordKey over a ticket's location fields.
func RecordKeyFor(t Ticket) string {
	return RecordKey(t.Street, t.Intersection, t.City, t.County)
}
