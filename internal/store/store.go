// Package store persists geocode records as immutable version chains. Each
// ticket key has at most one current version; appending a new attempt retires
// the previous current record atomically.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

// ErrLocked is returned by Append when the ticket's current record is locked.
var ErrLocked = eris.New("store: record is locked")

// Filter specifies criteria for querying current records.
type Filter struct {
	Tiers         []model.QualityTier    `json:"tiers,omitempty"`
	Priorities    []model.ReviewPriority `json:"priorities,omitempty"`
	MinConfidence *float64               `json:"min_confidence,omitempty"`
	MaxConfidence *float64               `json:"max_confidence,omitempty"`
	Locked        *bool                  `json:"locked,omitempty"`
	Limit         int                    `json:"limit,omitempty"`
}

// Stats summarizes the current state of the cache.
type Stats struct {
	TotalCurrent        int                `json:"total_current"`
	TotalVersions       int                `json:"total_versions"`
	LockedCount         int                `json:"locked_count"`
	ByTier              map[string]int     `json:"by_tier"`
	AvgConfidenceByTier map[string]float64 `json:"avg_confidence_by_tier"`
}

// Store defines the persistence interface for geocode record version chains.
type Store interface {
	// GetCurrent returns the current record for a ticket key, or (nil, nil)
	// when the ticket has never been geocoded.
	GetCurrent(ctx context.Context, ticketKey string) (*model.GeocodeRecord, error)

	// History returns every version for a ticket key, newest first.
	History(ctx context.Context, ticketKey string) ([]model.GeocodeRecord, error)

	// Append inserts rec as the new current version, retiring the previous one
	// in the same transaction. It assigns rec.ID, rec.Version, rec.SupersedesID,
	// and rec.IsCurrent. Returns ErrLocked if the current record is locked.
	Append(ctx context.Context, rec *model.GeocodeRecord) error

	// Lock marks the ticket's current record as locked, exempting it from
	// reprocessing. Lock and Unlock edit bookkeeping fields in place; they do
	// not create new versions.
	Lock(ctx context.Context, ticketKey, reason, lockedBy string) error
	Unlock(ctx context.Context, ticketKey string) error

	// Query returns current records matching the filter.
	Query(ctx context.Context, filter Filter) ([]model.GeocodeRecord, error)

	// Stats aggregates tier counts and confidence averages over current records.
	Stats(ctx context.Context) (*Stats, error)

	// Clear deletes all records and returns how many rows were removed.
	Clear(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
