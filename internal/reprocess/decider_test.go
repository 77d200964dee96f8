package reprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

func conf(v float64) *float64 { return &v }

func boolPtr(b bool) *bool { return &b }

func record(mutate func(*model.GeocodeRecord)) *model.GeocodeRecord {
	rec := &model.GeocodeRecord{
		TicketKey:      "T100",
		Technique:      "PROXIMITY_BASED",
		Approach:       model.ApproachClosestPoint,
		Confidence:     conf(0.70),
		QualityTier:    model.TierAcceptable,
		CreatedByStage: "stage_3_proximity",
	}
	if mutate != nil {
		mutate(rec)
	}
	return rec
}

func TestDecide_NoCurrentRecord(t *testing.T) {
	d := Decide(nil, "stage_1_api", SkipRules{})
	assert.False(t, d.Skip)
	assert.Equal(t, "no cached record", d.Reason)
}

func TestDecide_LockedSkipsRegardlessOfOtherRules(t *testing.T) {
	rec := record(func(r *model.GeocodeRecord) {
		r.Locked = true
		r.LockReason = "human verified"
	})

	// Even an entirely empty rule set skips a locked record.
	d := Decide(rec, "stage_1_api", SkipRules{})
	assert.True(t, d.Skip)
	assert.Equal(t, "locked (human verified)", d.Reason)
}

func TestDecide_SkipIfLockedDisabled(t *testing.T) {
	rec := record(func(r *model.GeocodeRecord) { r.Locked = true })

	d := Decide(rec, "stage_1_api", SkipRules{SkipIfLocked: boolPtr(false)})
	assert.False(t, d.Skip)
}

func TestDecide_QualityTierInSkipList(t *testing.T) {
	rec := record(func(r *model.GeocodeRecord) { r.QualityTier = model.TierExcellent })

	d := Decide(rec, "stage_1_api", SkipRules{
		SkipTiers: []model.QualityTier{model.TierExcellent, model.TierGood},
	})
	assert.True(t, d.Skip)
	assert.Equal(t, "quality tier EXCELLENT in skip list", d.Reason)
}

func TestDecide_TierNotInSkipList(t *testing.T) {
	d := Decide(record(nil), "stage_1_api", SkipRules{
		SkipTiers: []model.QualityTier{model.TierExcellent, model.TierGood},
	})
	assert.False(t, d.Skip)
}

func TestDecide_ConfidenceThreshold(t *testing.T) {
	rec := record(func(r *model.GeocodeRecord) { r.Confidence = conf(0.85) })

	d := Decide(rec, "stage_1_api", SkipRules{SkipConfidence: conf(0.75)})
	assert.True(t, d.Skip)
	assert.Equal(t, "confidence 0.85 >= 0.75", d.Reason)

	// Below threshold does not skip.
	rec.Confidence = conf(0.60)
	d = Decide(rec, "stage_1_api", SkipRules{SkipConfidence: conf(0.75)})
	assert.False(t, d.Skip)
}

func TestDecide_ConfidenceRuleIgnoresAbsentConfidence(t *testing.T) {
	rec := record(func(r *model.GeocodeRecord) { r.Confidence = nil })
	d := Decide(rec, "stage_1_api", SkipRules{SkipConfidence: conf(0.10)})
	assert.False(t, d.Skip)
}

func TestDecide_TechniqueInSkipList(t *testing.T) {
	d := Decide(record(nil), "stage_1_api", SkipRules{
		SkipTechniques: []string{"PROXIMITY_BASED"},
	})
	assert.True(t, d.Skip)
	assert.Equal(t, "technique PROXIMITY_BASED in skip list", d.Reason)
}

func TestDecide_ApproachInSkipList(t *testing.T) {
	d := Decide(record(nil), "stage_1_api", SkipRules{
		SkipApproaches: []string{model.ApproachClosestPoint},
	})
	assert.True(t, d.Skip)
	assert.Equal(t, "approach closest_point in skip list", d.Reason)
}

func TestDecide_SameStageSkipsWithEmptyRules(t *testing.T) {
	d := Decide(record(nil), "stage_3_proximity", SkipRules{})
	assert.True(t, d.Skip)
	assert.Equal(t, "already processed by stage_3_proximity", d.Reason)
}

func TestDecide_ConfiguredRuleReasonWinsOverSameStage(t *testing.T) {
	// Both the tier rule and the same-stage rule apply; the configured rule's
	// reason reports.
	rec := record(func(r *model.GeocodeRecord) { r.QualityTier = model.TierGood })

	d := Decide(rec, "stage_3_proximity", SkipRules{
		SkipTiers: []model.QualityTier{model.TierGood},
	})
	assert.True(t, d.Skip)
	assert.Equal(t, "quality tier GOOD in skip list", d.Reason)
}

func TestDecide_NoRulesMatched(t *testing.T) {
	d := Decide(record(nil), "stage_1_api", SkipRules{})
	assert.False(t, d.Skip)
	assert.Equal(t, "no skip rules matched", d.Reason)
}
