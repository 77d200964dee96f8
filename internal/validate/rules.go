// Package validate runs independent rule checks over a geocode attempt and
// collects the triggered flags consumed by the quality assessor.
package validate

import (
	"fmt"

	"github.com/sells-group/ticket-geocoder/internal/geo"
	"github.com/sells-group/ticket-geocoder/internal/model"
)

// Severity grades a triggered flag.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Flag is the result of a triggered validation rule.
type Flag struct {
	Code            string   `json:"code"`
	Severity        Severity `json:"severity"`
	Message         string   `json:"message"`
	SuggestedAction string   `json:"suggested_action"`
}

// Input is the normalized attempt a rule inspects. Rules read only these
// well-typed fields; record metadata never reaches them.
type Input struct {
	Coordinates  *model.Coordinates
	Confidence   *float64
	Technique    string
	Approach     string
	Street       string
	Intersection string
	City         string
	County       string
	TicketType   string
}

// Rule is a pure predicate over an attempt. Check returns nil to abstain.
type Rule interface {
	Check(in Input) *Flag
}

// LowConfidenceRule flags results below a confidence floor.
type LowConfidenceRule struct {
	Threshold float64
}

func (r LowConfidenceRule) Check(in Input) *Flag {
	if in.Confidence == nil || *in.Confidence >= r.Threshold {
		return nil
	}
	return &Flag{
		Code:            "low_confidence",
		Severity:        SeverityWarning,
		Message:         fmt.Sprintf("Confidence %.1f%% is below threshold %.1f%%", *in.Confidence*100, r.Threshold*100),
		SuggestedAction: "Review location accuracy; consider alternative geocoding techniques",
	}
}

// EmergencyConfidenceRule flags emergency tickets whose confidence is below a
// tighter floor. Fires independently of LowConfidenceRule.
type EmergencyConfidenceRule struct {
	Threshold float64
}

func (r EmergencyConfidenceRule) Check(in Input) *Flag {
	if in.TicketType != model.TicketTypeEmergency || in.Confidence == nil || *in.Confidence >= r.Threshold {
		return nil
	}
	return &Flag{
		Code:            "emergency_low_confidence",
		Severity:        SeverityError,
		Message:         fmt.Sprintf("Emergency ticket has %.1f%% confidence (below %.1f%%)", *in.Confidence*100, r.Threshold*100),
		SuggestedAction: "High priority review - emergency response location must be accurate",
	}
}

// CityDistanceRule flags results far from the registered city centroid.
// Abstains when no centroid is registered for the city/county pair.
type CityDistanceRule struct {
	MaxKM     float64
	Centroids *geo.CentroidTable
}

func (r CityDistanceRule) Check(in Input) *Flag {
	if in.Coordinates == nil || in.City == "" || in.County == "" || r.Centroids == nil {
		return nil
	}
	center, ok := r.Centroids.Lookup(in.City, in.County)
	if !ok {
		return nil
	}

	distance := geo.HaversineKM(in.Coordinates.Latitude, in.Coordinates.Longitude, center.Latitude, center.Longitude)
	if distance <= r.MaxKM {
		return nil
	}
	return &Flag{
		Code:            "distance_from_city",
		Severity:        SeverityWarning,
		Message:         fmt.Sprintf("Location %.1fkm from %s center (max: %.0fkm)", distance, in.City, r.MaxKM),
		SuggestedAction: "Verify location is correct for this city",
	}
}

// FallbackApproachRule flags results produced by the city-centroid fallback,
// the lowest-precision strategy.
type FallbackApproachRule struct{}

func (FallbackApproachRule) Check(in Input) *Flag {
	if in.Approach != model.ApproachCityCentroidFallback {
		return nil
	}
	return &Flag{
		Code:            "fallback_used",
		Severity:        SeverityError,
		Message:         "Both roads missing from network; used city centroid approximation",
		SuggestedAction: "Locate actual work area - city centroid is very approximate",
	}
}

// PartialDataRule flags results where one of the two expected road inputs was
// unavailable and the city-primary approach filled in.
type PartialDataRule struct{}

func (PartialDataRule) Check(in Input) *Flag {
	if in.Approach != model.ApproachCityPrimary {
		return nil
	}
	return &Flag{
		Code:            "one_road_missing",
		Severity:        SeverityWarning,
		Message:         "One road not found in network; used city + available road",
		SuggestedAction: "Consider finding missing road for more precise location",
	}
}
