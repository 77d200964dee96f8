package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

func conf(v float64) *float64 { return &v }

func TestTier_Thresholds(t *testing.T) {
	tests := []struct {
		confidence float64
		want       model.QualityTier
	}{
		{0.95, model.TierExcellent},
		{0.90, model.TierExcellent},
		{0.85, model.TierGood},
		{0.80, model.TierGood},
		{0.70, model.TierAcceptable},
		{0.65, model.TierAcceptable},
		{0.50, model.TierReviewNeeded},
		{0.40, model.TierReviewNeeded},
		{0.30, model.TierFailed},
	}
	for _, tt := range tests {
		got := Tier(conf(tt.confidence), "", nil)
		assert.Equal(t, tt.want, got, "confidence %.2f", tt.confidence)
	}
}

func TestTier_AbsentOrZeroConfidenceIsFailed(t *testing.T) {
	assert.Equal(t, model.TierFailed, Tier(nil, "", nil))
	assert.Equal(t, model.TierFailed, Tier(conf(0), "", nil))
	// Zero confidence fails even on a non-fallback approach.
	assert.Equal(t, model.TierFailed, Tier(conf(0), model.ApproachClosestPoint, nil))
}

func TestTier_FallbackPenaltyAppliedBeforeThresholding(t *testing.T) {
	// 0.90 * 0.90 = 0.81 which lands in GOOD, not EXCELLENT.
	got := Tier(conf(0.90), model.ApproachCityCentroidFallback, nil)
	assert.Equal(t, model.TierGood, got)
}

func TestTier_FlagPenalty(t *testing.T) {
	// One flag: 0.82 * 0.97 = 0.7954 -> ACCEPTABLE.
	assert.Equal(t, model.TierAcceptable, Tier(conf(0.82), "", []string{"low_confidence"}))

	// Penalty caps at 15% even with many flags: 0.95 * 0.85 = 0.8075 -> GOOD.
	many := []string{"a", "b", "c", "d", "e", "f", "g"}
	assert.Equal(t, model.TierGood, Tier(conf(0.95), "", many))
}

func TestTier_FlagAndFallbackPenaltiesCompound(t *testing.T) {
	// 0.95 * 0.90 (fallback) * 0.97 (one flag) = 0.8293 -> GOOD.
	got := Tier(conf(0.95), model.ApproachCityCentroidFallback, []string{"fallback_used"})
	assert.Equal(t, model.TierGood, got)
}

func TestPriority_FallbackDominatesFailed(t *testing.T) {
	got := Priority(conf(0.35), model.TierFailed, nil, "Normal", model.ApproachCityCentroidFallback)
	assert.Equal(t, model.PriorityHigh, got, "fallback precedence must beat the FAILED check")
}

func TestPriority_FailedIsCritical(t *testing.T) {
	got := Priority(nil, model.TierFailed, nil, "Normal", "")
	assert.Equal(t, model.PriorityCritical, got)
}

func TestPriority_EmergencyLowConfidence(t *testing.T) {
	got := Priority(conf(0.65), model.TierAcceptable, nil, model.TicketTypeEmergency, "")
	assert.Equal(t, model.PriorityHigh, got)

	// At or above 0.75 the emergency branch no longer applies.
	got = Priority(conf(0.80), model.TierGood, nil, model.TicketTypeEmergency, "")
	assert.Equal(t, model.PriorityNone, got)
}

func TestPriority_VeryLowConfidence(t *testing.T) {
	got := Priority(conf(0.45), model.TierReviewNeeded, nil, "Normal", "")
	assert.Equal(t, model.PriorityHigh, got)
}

func TestPriority_ReviewNeededTier(t *testing.T) {
	got := Priority(conf(0.55), model.TierReviewNeeded, nil, "Normal", "")
	assert.Equal(t, model.PriorityMedium, got)
}

func TestPriority_MultipleFlags(t *testing.T) {
	got := Priority(conf(0.85), model.TierGood, []string{"a", "b"}, "Normal", "")
	assert.Equal(t, model.PriorityMedium, got)
}

func TestPriority_AcceptableWithFlag(t *testing.T) {
	got := Priority(conf(0.70), model.TierAcceptable, []string{"low_confidence"}, "Normal", "")
	assert.Equal(t, model.PriorityLow, got)
}

func TestPriority_CleanResult(t *testing.T) {
	got := Priority(conf(0.95), model.TierExcellent, nil, "Normal", "")
	assert.Equal(t, model.PriorityNone, got)
}

func TestShouldReprocess_LockedAlwaysWins(t *testing.T) {
	assert.False(t, ShouldReprocess(model.TierFailed, ThresholdAlways, true))
}

func TestShouldReprocess_Always(t *testing.T) {
	for _, tier := range []model.QualityTier{model.TierExcellent, model.TierGood, model.TierFailed} {
		assert.True(t, ShouldReprocess(tier, ThresholdAlways, false))
	}
}

func TestShouldReprocess_Minor(t *testing.T) {
	assert.False(t, ShouldReprocess(model.TierExcellent, ThresholdMinor, false))
	assert.False(t, ShouldReprocess(model.TierGood, ThresholdMinor, false))
	assert.True(t, ShouldReprocess(model.TierAcceptable, ThresholdMinor, false))
	assert.True(t, ShouldReprocess(model.TierReviewNeeded, ThresholdMinor, false))
	assert.True(t, ShouldReprocess(model.TierFailed, ThresholdMinor, false))
}

func TestShouldReprocess_Major(t *testing.T) {
	assert.False(t, ShouldReprocess(model.TierExcellent, ThresholdMajor, false))
	assert.True(t, ShouldReprocess(model.TierGood, ThresholdMajor, false))
	assert.True(t, ShouldReprocess(model.TierFailed, ThresholdMajor, false))
}

func TestShouldReprocess_NoThresholdReprocessesNothing(t *testing.T) {
	// The conservative default: without a threshold even FAILED stays put.
	for _, tier := range []model.QualityTier{model.TierExcellent, model.TierGood, model.TierAcceptable, model.TierReviewNeeded, model.TierFailed} {
		assert.False(t, ShouldReprocess(tier, ThresholdNone, false))
	}
}

func TestThreshold_Valid(t *testing.T) {
	assert.True(t, ThresholdAlways.Valid())
	assert.True(t, ThresholdNone.Valid())
	assert.False(t, Threshold("sometimes").Valid())
}
