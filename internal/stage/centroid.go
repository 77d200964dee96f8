package stage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-geocoder/internal/geo"
	"github.com/sells-group/ticket-geocoder/internal/model"
)

// TechniqueCityCentroid is the registry name for the centroid fallback stage.
const TechniqueCityCentroid = "CITY_CENTROID"

// defaultCentroidConfidence reflects that a city centroid only places the
// ticket in the right town, not on the right road.
const defaultCentroidConfidence = 0.35

// CentroidStage places a ticket at its city's registered centroid. It is the
// last-resort stage: low confidence, flagged as a fallback so review queues
// and later stages treat the result accordingly.
type CentroidStage struct {
	name       string
	cfg        Config
	centroids  *geo.CentroidTable
	confidence float64
}

// NewCentroidStage builds a centroid fallback stage. Recognized settings:
//
//	confidence - override the attempt confidence (0..1)
func NewCentroidStage(name string, cfg Config, centroids *geo.CentroidTable, settings map[string]string) (*CentroidStage, error) {
	if centroids == nil || centroids.Len() == 0 {
		return nil, eris.New("stage: centroid stage requires a populated centroid table")
	}
	s := &CentroidStage{
		name:       name,
		cfg:        cfg,
		centroids:  centroids,
		confidence: defaultCentroidConfidence,
	}
	if raw, ok := settings["confidence"]; ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 1 {
			return nil, eris.Errorf("stage: invalid centroid confidence %q", raw)
		}
		s.confidence = v
	}
	return s, nil
}

// CentroidFactory returns a Factory bound to the given centroid table, for
// registration under TechniqueCityCentroid.
func CentroidFactory(centroids *geo.CentroidTable) Factory {
	return func(name string, cfg Config, settings map[string]string) (Stage, error) {
		return NewCentroidStage(name, cfg, centroids, settings)
	}
}

func (s *CentroidStage) Name() string   { return s.name }
func (s *CentroidStage) Config() Config { return s.cfg }

func (s *CentroidStage) Process(_ context.Context, ticket model.Ticket) (*model.Attempt, error) {
	c, ok := s.centroids.Lookup(ticket.City, ticket.County)
	if !ok {
		return nil, eris.Errorf("stage: no centroid registered for %s, %s county", ticket.City, ticket.County)
	}
	return &model.Attempt{
		Coordinates: &model.Coordinates{Latitude: c.Latitude, Longitude: c.Longitude},
		Confidence:  s.confidence,
		Technique:   TechniqueCityCentroid,
		Approach:    model.ApproachCityCentroidFallback,
		Rationale:   fmt.Sprintf("city centroid for %s, %s county", ticket.City, ticket.County),
	}, nil
}
