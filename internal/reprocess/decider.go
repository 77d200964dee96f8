// Package reprocess decides, per (ticket, stage) pair, whether the cached
// current record is reused or the stage runs again. Rules are evaluated in a
// fixed order with early return; every branch reports a distinct reason so
// skip decisions stay observable.
package reprocess

import (
	"fmt"

	"github.com/sells-group/ticket-geocoder/internal/model"
)

// SkipRules is a stage's declared skip configuration, validated at pipeline
// assembly time and never mutated during a run.
type SkipRules struct {
	// SkipIfLocked defaults to true; nil means unset.
	SkipIfLocked   *bool
	SkipTiers      []model.QualityTier
	SkipConfidence *float64
	SkipTechniques []string
	SkipApproaches []string
}

// Decision is the outcome of a skip evaluation.
type Decision struct {
	Skip   bool
	Reason string
}

// Decide evaluates the skip rules against the ticket's current record.
// First match wins. The same-stage check runs last so a configured rule's
// reason takes precedence when both apply.
func Decide(rec *model.GeocodeRecord, stageName string, rules SkipRules) Decision {
	if rec == nil {
		return Decision{Skip: false, Reason: "no cached record"}
	}

	skipIfLocked := rules.SkipIfLocked == nil || *rules.SkipIfLocked
	if skipIfLocked && rec.Locked {
		return Decision{Skip: true, Reason: fmt.Sprintf("locked (%s)", rec.LockReason)}
	}

	for _, tier := range rules.SkipTiers {
		if rec.QualityTier == tier {
			return Decision{Skip: true, Reason: fmt.Sprintf("quality tier %s in skip list", tier)}
		}
	}

	if rules.SkipConfidence != nil && rec.Confidence != nil && *rec.Confidence >= *rules.SkipConfidence {
		return Decision{Skip: true, Reason: fmt.Sprintf("confidence %.2f >= %.2f", *rec.Confidence, *rules.SkipConfidence)}
	}

	for _, technique := range rules.SkipTechniques {
		if rec.Technique == technique {
			return Decision{Skip: true, Reason: fmt.Sprintf("technique %s in skip list", technique)}
		}
	}

	for _, approach := range rules.SkipApproaches {
		if rec.Approach != "" && rec.Approach == approach {
			return Decision{Skip: true, Reason: fmt.Sprintf("approach %s in skip list", approach)}
		}
	}

	if rec.CreatedByStage == stageName {
		return Decision{Skip: true, Reason: fmt.Sprintf("already processed by %s", stageName)}
	}

	return Decision{Skip: false, Reason: "no skip rules matched"}
}
