// Package quality computes quality tiers, review priorities, and
// reprocess-threshold decisions from raw confidence and validation signals.
// All functions are pure.
package quality

import "github.com/sells-group/ticket-geocoder/internal/model"

// Tier thresholds, applied highest first to penalty-adjusted confidence.
const (
	tierExcellentMin    = 0.90
	tierGoodMin         = 0.80
	tierAcceptableMin   = 0.65
	tierReviewNeededMin = 0.40
)

// Penalty constants.
const (
	fallbackPenaltyFactor = 0.90 // 10% off for the city-centroid fallback
	perFlagPenalty        = 0.03 // each validation flag costs 3%
	maxFlagPenalty        = 0.15 // capped at 15% total
)

// Threshold controls which tiers a stage is willing to redo.
type Threshold string

const (
	ThresholdAlways Threshold = "always"
	ThresholdMinor  Threshold = "minor_enhancement"
	ThresholdMajor  Threshold = "major_enhancement"
	ThresholdNone   Threshold = ""
)

// Valid reports whether t is a recognized threshold spelling.
func (t Threshold) Valid() bool {
	switch t {
	case ThresholdAlways, ThresholdMinor, ThresholdMajor, ThresholdNone:
		return true
	}
	return false
}

// Tier maps a result's confidence through penalties to a quality tier.
// Absent or zero confidence is FAILED outright.
func Tier(confidence *float64, approach string, flags []string) model.QualityTier {
	if confidence == nil || *confidence == 0 {
		return model.TierFailed
	}

	adjusted := *confidence

	if approach == model.ApproachCityCentroidFallback {
		adjusted *= fallbackPenaltyFactor
	}

	if n := len(flags); n > 0 {
		penalty := perFlagPenalty * float64(n)
		if penalty > maxFlagPenalty {
			penalty = maxFlagPenalty
		}
		adjusted *= 1 - penalty
	}

	switch {
	case adjusted >= tierExcellentMin:
		return model.TierExcellent
	case adjusted >= tierGoodMin:
		return model.TierGood
	case adjusted >= tierAcceptableMin:
		return model.TierAcceptable
	case adjusted >= tierReviewNeededMin:
		return model.TierReviewNeeded
	default:
		return model.TierFailed
	}
}

// Priority assigns a review priority. Branch order encodes business
// precedence, not severity: the fallback check comes before the FAILED check
// so a centroid approximation is flagged HIGH, never silently CRITICAL.
func Priority(confidence *float64, tier model.QualityTier, flags []string, ticketType, approach string) model.ReviewPriority {
	if approach == model.ApproachCityCentroidFallback {
		return model.PriorityHigh
	}
	if tier == model.TierFailed {
		return model.PriorityCritical
	}
	if ticketType == model.TicketTypeEmergency && confidence != nil && *confidence < 0.75 {
		return model.PriorityHigh
	}
	if confidence != nil && *confidence < 0.50 {
		return model.PriorityHigh
	}
	if tier == model.TierReviewNeeded {
		return model.PriorityMedium
	}
	if len(flags) >= 2 {
		return model.PriorityMedium
	}
	if tier == model.TierAcceptable && len(flags) > 0 {
		return model.PriorityLow
	}
	return model.PriorityNone
}

// ShouldReprocess reports whether a record at the given tier falls under the
// stage's reprocess threshold. Locked records are never reprocessed. With no
// threshold configured nothing is reprocessed, not even tiers below EXCELLENT;
// that conservative default is intentional and differs from the
// always/minor/major ladder.
func ShouldReprocess(tier model.QualityTier, threshold Threshold, locked bool) bool {
	if locked {
		return false
	}

	switch threshold {
	case ThresholdAlways:
		return true
	case ThresholdMinor:
		return tier <= model.TierAcceptable
	case ThresholdMajor:
		return tier <= model.TierGood
	default:
		return false
	}
}
