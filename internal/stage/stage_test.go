package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-geocoder/internal/geo"
	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/quality"
)

func TestNewFunc(t *testing.T) {
	cfg := Config{ReprocessThreshold: quality.ThresholdAlways}
	s := NewFunc("stage_test", cfg, func(_ context.Context, _ model.Ticket) (*model.Attempt, error) {
		return &model.Attempt{Confidence: 0.9, Technique: "TEST"}, nil
	})

	assert.Equal(t, "stage_test", s.Name())
	assert.Equal(t, quality.ThresholdAlways, s.Config().ReprocessThreshold)

	att, err := s.Process(context.Background(), model.Ticket{})
	require.NoError(t, err)
	assert.Equal(t, "TEST", att.Technique)
}

func TestRegistry_UnknownTechnique(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("NOPE", "stage_1", Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown technique "NOPE"`)
}

func TestRegistry_BuildAndOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("B", func(name string, cfg Config, _ map[string]string) (Stage, error) {
		return NewFunc(name, cfg, nil), nil
	})
	r.Register("A", func(name string, cfg Config, _ map[string]string) (Stage, error) {
		return NewFunc(name, cfg, nil), nil
	})

	s, err := r.Build("A", "stage_a", Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "stage_a", s.Name())

	assert.Equal(t, []string{"B", "A"}, r.Techniques())
}

func TestCentroidStage_Process(t *testing.T) {
	s, err := NewCentroidStage("stage_4_fallback", Config{}, geo.DefaultCentroids(), nil)
	require.NoError(t, err)

	att, err := s.Process(context.Background(), model.Ticket{
		City:   "Kermit",
		County: "Winkler",
	})
	require.NoError(t, err)
	require.NotNil(t, att.Coordinates)
	assert.InDelta(t, 31.8576, att.Coordinates.Latitude, 1e-6)
	assert.InDelta(t, -103.0930, att.Coordinates.Longitude, 1e-6)
	assert.Equal(t, TechniqueCityCentroid, att.Technique)
	assert.Equal(t, model.ApproachCityCentroidFallback, att.Approach)
	assert.InDelta(t, defaultCentroidConfidence, att.Confidence, 1e-9)
}

func TestCentroidStage_UnknownCity(t *testing.T) {
	s, err := NewCentroidStage("stage_4_fallback", Config{}, geo.DefaultCentroids(), nil)
	require.NoError(t, err)

	_, err = s.Process(context.Background(), model.Ticket{City: "Lubbock", County: "Lubbock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no centroid registered")
}

func TestCentroidStage_ConfigErrors(t *testing.T) {
	_, err := NewCentroidStage("s", Config{}, nil, nil)
	require.Error(t, err)

	_, err = NewCentroidStage("s", Config{}, geo.NewCentroidTable(), nil)
	require.Error(t, err)

	_, err = NewCentroidStage("s", Config{}, geo.DefaultCentroids(), map[string]string{"confidence": "1.5"})
	require.Error(t, err)

	_, err = NewCentroidStage("s", Config{}, geo.DefaultCentroids(), map[string]string{"confidence": "abc"})
	require.Error(t, err)
}

func TestCentroidStage_ConfidenceOverride(t *testing.T) {
	s, err := NewCentroidStage("s", Config{}, geo.DefaultCentroids(), map[string]string{"confidence": "0.5"})
	require.NoError(t, err)

	att, err := s.Process(context.Background(), model.Ticket{City: "Pyote", County: "Ward"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, att.Confidence, 1e-9)
}
