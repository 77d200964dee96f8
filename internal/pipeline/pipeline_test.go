package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-geocoder/internal/geo"
	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/quality"
	"github.com/sells-group/ticket-geocoder/internal/reprocess"
	"github.com/sells-group/ticket-geocoder/internal/stage"
	"github.com/sells-group/ticket-geocoder/internal/store"
	"github.com/sells-group/ticket-geocoder/internal/validate"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testEngine() *validate.Engine {
	return validate.DefaultEngine(geo.DefaultCentroids())
}

func kermitTicket(key string) model.Ticket {
	return model.Ticket{
		TicketKey: key,
		Street:    "COUNTY ROAD 401",
		City:      "KERMIT",
		County:    "WINKLER",
	}
}

func fixedStage(name string, cfg stage.Config, confidence float64) stage.Stage {
	return stage.NewFunc(name, cfg, func(_ context.Context, _ model.Ticket) (*model.Attempt, error) {
		return &model.Attempt{
			Coordinates: &model.Coordinates{Latitude: 31.86, Longitude: -103.09},
			Confidence:  confidence,
			Technique:   "FIXED",
			Approach:    model.ApproachClosestPoint,
		}, nil
	})
}

func failingStage(name string, cfg stage.Config) stage.Stage {
	return stage.NewFunc(name, cfg, func(_ context.Context, _ model.Ticket) (*model.Attempt, error) {
		return nil, eris.New("upstream unavailable")
	})
}

func TestPipeline_SingleStageRun(t *testing.T) {
	st := newTestStore(t)
	p := New("test", []stage.Stage{fixedStage("stage_1", stage.Config{}, 0.95)}, st, testEngine(), 2, false)

	tickets := []model.Ticket{kermitTicket("T-1"), kermitTicket("T-2")}
	result, err := p.Run(context.Background(), tickets)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Stages, 1)
	assert.Equal(t, 2, result.Stages[0].Total)
	assert.Equal(t, 2, result.Stages[0].Succeeded)
	assert.Equal(t, 0, result.Stages[0].Failed)
	assert.Equal(t, 2, result.TierCounts["EXCELLENT"])

	rec, err := st.GetCurrent(context.Background(), "T-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "stage_1", rec.CreatedByStage)
	assert.Equal(t, model.TierExcellent, rec.QualityTier)
}

func TestPipeline_SecondRunSkipsSameStage(t *testing.T) {
	st := newTestStore(t)
	p := New("test", []stage.Stage{fixedStage("stage_1", stage.Config{}, 0.95)}, st, testEngine(), 1, false)

	tickets := []model.Ticket{kermitTicket("T-1")}
	_, err := p.Run(context.Background(), tickets)
	require.NoError(t, err)

	result, err := p.Run(context.Background(), tickets)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stages[0].Skipped)
	assert.Equal(t, 0, result.Stages[0].Processed)

	// No new version was appended.
	rec, err := st.GetCurrent(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
}

func TestPipeline_LaterStageBuildsVersionChain(t *testing.T) {
	st := newTestStore(t)
	// No skip rules configured: only the same-stage check applies, so a
	// later stage reprocesses the record stage_1 wrote.
	stages := []stage.Stage{
		fixedStage("stage_1", stage.Config{}, 0.55),
		fixedStage("stage_2", stage.Config{}, 0.95),
	}
	p := New("test", stages, st, testEngine(), 1, false)

	result, err := p.Run(context.Background(), []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stages[1].Processed)
	assert.Equal(t, 0, result.Stages[1].Skipped)

	history, err := st.History(context.Background(), "T-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "stage_2", history[0].CreatedByStage)
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, model.TierExcellent, history[0].QualityTier)
	assert.Equal(t, "stage_1", history[1].CreatedByStage)
}

func TestPipeline_SkipTiersLeaveRecordAlone(t *testing.T) {
	st := newTestStore(t)
	stages := []stage.Stage{
		fixedStage("stage_1", stage.Config{}, 0.95),
		fixedStage("stage_2", stage.Config{SkipRules: reprocess.SkipRules{
			SkipTiers: []model.QualityTier{model.TierExcellent},
		}}, 0.99),
	}
	p := New("test", stages, st, testEngine(), 1, false)

	result, err := p.Run(context.Background(), []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stages[1].Skipped)

	rec, err := st.GetCurrent(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "stage_1", rec.CreatedByStage)
}

func TestPipeline_StageFailureProducesFailedRecord(t *testing.T) {
	st := newTestStore(t)
	p := New("test", []stage.Stage{failingStage("stage_1", stage.Config{})}, st, testEngine(), 1, false)

	result, err := p.Run(context.Background(), []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stages[0].Failed)
	assert.Equal(t, StateCompleted, result.State)

	rec, err := st.GetCurrent(context.Background(), "T-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.TierFailed, rec.QualityTier)
	assert.Equal(t, model.PriorityCritical, rec.ReviewPriority)
	assert.Nil(t, rec.Coordinates)
	assert.Nil(t, rec.Confidence)
	assert.Contains(t, rec.ErrorMessage, "upstream unavailable")
}

func TestPipeline_FailFastAbortsAfterStageDrains(t *testing.T) {
	st := newTestStore(t)
	stages := []stage.Stage{
		failingStage("stage_1", stage.Config{}),
		fixedStage("stage_2", stage.Config{ReprocessThreshold: quality.ThresholdAlways}, 0.95),
	}
	p := New("test", stages, st, testEngine(), 2, true)

	tickets := []model.Ticket{kermitTicket("T-1"), kermitTicket("T-2")}
	result, err := p.Run(context.Background(), tickets)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, result.State)
	require.Len(t, result.Stages, 1)
	// Every ticket in the failing stage still got a record.
	assert.Equal(t, 2, result.Stages[0].Failed)
	assert.Equal(t, 2, result.TierCounts["FAILED"])
}

func TestPipeline_LockedTicketUntouched(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed := New("seed", []stage.Stage{fixedStage("stage_1", stage.Config{}, 0.60)}, st, testEngine(), 1, false)
	_, err := seed.Run(ctx, []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)
	require.NoError(t, st.Lock(ctx, "T-1", "verified in the field", "ops"))

	p := New("test", []stage.Stage{
		fixedStage("stage_2", stage.Config{ReprocessThreshold: quality.ThresholdAlways}, 0.99),
	}, st, testEngine(), 1, false)
	result, err := p.Run(ctx, []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stages[0].Skipped)

	rec, err := st.GetCurrent(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "stage_1", rec.CreatedByStage)
}

func TestPipeline_ValidationFlagsStored(t *testing.T) {
	st := newTestStore(t)
	// Low confidence with coordinates far from the city centroid.
	s := stage.NewFunc("stage_1", stage.Config{}, func(_ context.Context, _ model.Ticket) (*model.Attempt, error) {
		return &model.Attempt{
			Coordinates: &model.Coordinates{Latitude: 33.0, Longitude: -101.0},
			Confidence:  0.60,
			Technique:   "FIXED",
			Approach:    model.ApproachClosestPoint,
		}, nil
	})
	p := New("test", []stage.Stage{s}, st, testEngine(), 1, false)

	_, err := p.Run(context.Background(), []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)

	rec, err := st.GetCurrent(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Contains(t, rec.ValidationFlags, "low_confidence")
	assert.Contains(t, rec.ValidationFlags, "distance_from_city")
}

func TestPipeline_OutOfRangeCoordinatesFail(t *testing.T) {
	st := newTestStore(t)
	s := stage.NewFunc("stage_1", stage.Config{}, func(_ context.Context, _ model.Ticket) (*model.Attempt, error) {
		return &model.Attempt{
			Coordinates: &model.Coordinates{Latitude: 120.0, Longitude: -103.0},
			Confidence:  0.90,
			Technique:   "FIXED",
		}, nil
	})
	p := New("test", []stage.Stage{s}, st, testEngine(), 1, false)

	result, err := p.Run(context.Background(), []model.Ticket{kermitTicket("T-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stages[0].Failed)

	rec, err := st.GetCurrent(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierFailed, rec.QualityTier)
	assert.Nil(t, rec.Coordinates)
	assert.Contains(t, rec.ErrorMessage, "out of range")
}

func TestPipeline_NoStages(t *testing.T) {
	p := New("test", nil, newTestStore(t), testEngine(), 1, false)
	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestLoadRunConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: backfill
fail_fast: true
stages:
  - name: stage_1_centroid
    technique: CITY_CENTROID
    reprocess_threshold: minor_enhancement
    skip_rules:
      skip_tiers: [EXCELLENT, GOOD]
      skip_confidence: 0.90
`), 0o644))

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "backfill", cfg.Name)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, defaultWorkers, cfg.Workers)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, "CITY_CENTROID", cfg.Stages[0].Technique)

	reg := stage.NewRegistry()
	reg.Register(stage.TechniqueCityCentroid, stage.CentroidFactory(geo.DefaultCentroids()))
	stages, err := cfg.Build(reg)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, quality.ThresholdMinor, stages[0].Config().ReprocessThreshold)
	assert.Equal(t, []model.QualityTier{model.TierExcellent, model.TierGood}, stages[0].Config().SkipRules.SkipTiers)
}

func TestRunConfig_BuildErrors(t *testing.T) {
	reg := stage.NewRegistry()
	reg.Register(stage.TechniqueCityCentroid, stage.CentroidFactory(geo.DefaultCentroids()))

	tests := []struct {
		name string
		cfg  RunConfig
		want string
	}{
		{"no stages", RunConfig{}, "no stages"},
		{"missing name", RunConfig{Stages: []StageConfig{{Technique: "CITY_CENTROID"}}}, "missing name"},
		{"unknown technique", RunConfig{Stages: []StageConfig{{Name: "s1", Technique: "NOPE"}}}, "unknown technique"},
		{"bad threshold", RunConfig{Stages: []StageConfig{{Name: "s1", Technique: "CITY_CENTROID", ReprocessThreshold: "sometimes"}}}, "invalid reprocess threshold"},
		{"bad tier", RunConfig{Stages: []StageConfig{{
			Name: "s1", Technique: "CITY_CENTROID",
			SkipRules: SkipRulesConfig{SkipTiers: []string{"SUPERB"}},
		}}}, "unknown quality tier"},
		{"duplicate names", RunConfig{Stages: []StageConfig{
			{Name: "s1", Technique: "CITY_CENTROID"},
			{Name: "s1", Technique: "CITY_CENTROID"},
		}}, "duplicate stage name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Build(reg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
