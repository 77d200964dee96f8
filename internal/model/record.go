// Package model defines the geocode record, its quality enumerations, and the
// ticket input shared by the store, pipeline, and CLI.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// QualityTier classifies how trustworthy a geocode result is. Tiers are
// ordered so that threshold checks are plain integer comparisons.
type QualityTier int

const (
	TierFailed QualityTier = iota
	TierReviewNeeded
	TierAcceptable
	TierGood
	TierExcellent
)

var tierNames = map[QualityTier]string{
	TierFailed:       "FAILED",
	TierReviewNeeded: "REVIEW_NEEDED",
	TierAcceptable:   "ACCEPTABLE",
	TierGood:         "GOOD",
	TierExcellent:    "EXCELLENT",
}

func (t QualityTier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseTier converts a stored tier name back to its ordinal.
func ParseTier(s string) (QualityTier, error) {
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return TierFailed, eris.Errorf("model: unknown quality tier %q", s)
}

// ReviewPriority classifies how urgently a human should inspect a result.
// Ordered NONE < LOW < MEDIUM < HIGH < CRITICAL.
type ReviewPriority int

const (
	PriorityNone ReviewPriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[ReviewPriority]string{
	PriorityNone:     "NONE",
	PriorityLow:      "LOW",
	PriorityMedium:   "MEDIUM",
	PriorityHigh:     "HIGH",
	PriorityCritical: "CRITICAL",
}

func (p ReviewPriority) String() string {
	if s, ok := priorityNames[p]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParsePriority converts a stored priority name back to its ordinal.
func ParsePriority(s string) (ReviewPriority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return PriorityNone, eris.Errorf("model: unknown review priority %q", s)
}

// Approach identifiers shared by the quality assessor, validation rules, and
// the fallback stage.
const (
	ApproachClosestPoint         = "closest_point"
	ApproachCorridorMidpoint     = "corridor_midpoint"
	ApproachCityPrimary          = "city_primary"
	ApproachCityCentroidFallback = "city_centroid_fallback"
)

// TicketTypeEmergency is the elevated ticket class that tightens confidence
// requirements.
const TicketTypeEmergency = "Emergency"

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both axes are inside real-world bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// GeocodeRecord is one immutable version of a ticket's resolution state.
// Records are never updated in place; a new attempt supersedes the prior
// current version through the store's Append.
type GeocodeRecord struct {
	ID        int64  `json:"id"`
	TicketKey string `json:"ticket_key"`
	RecordKey string `json:"record_key"`

	// Input snapshot, kept so audits don't need the source file.
	Street       string `json:"street,omitempty"`
	Intersection string `json:"intersection,omitempty"`
	City         string `json:"city,omitempty"`
	County       string `json:"county,omitempty"`
	TicketType   string `json:"ticket_type,omitempty"`
	Duration     string `json:"duration,omitempty"`
	WorkType     string `json:"work_type,omitempty"`
	Excavator    string `json:"excavator,omitempty"`

	// Result.
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	Technique    string       `json:"technique"`
	Approach     string       `json:"approach,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty"`
	Rationale    string       `json:"rationale,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`

	// Quality metadata.
	QualityTier     QualityTier    `json:"quality_tier"`
	ReviewPriority  ReviewPriority `json:"review_priority"`
	ValidationFlags []string       `json:"validation_flags,omitempty"`

	// Version control.
	Version        int       `json:"version"`
	SupersedesID   *int64    `json:"supersedes_id,omitempty"`
	IsCurrent      bool      `json:"is_current"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedByStage string    `json:"created_by_stage"`

	// Reprocessing control.
	Locked     bool       `json:"locked"`
	LockReason string     `json:"lock_reason,omitempty"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	LockedBy   string     `json:"locked_by,omitempty"`

	// Technique-specific side data. Kept opaque; decision logic never reads it.
	Metadata     map[string]any `json:"metadata,omitempty"`
	ProcessingMS int64          `json:"processing_ms,omitempty"`
}

// Attempt is the raw output of a stage's technique before quality assessment.
type Attempt struct {
	Coordinates *Coordinates
	Confidence  float64
	Technique   string
	Approach    string
	Rationale   string
	Metadata    map[string]any
}
