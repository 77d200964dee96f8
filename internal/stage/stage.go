// Package stage defines the geocoding stage abstraction. A stage wraps one
// geocoding technique together with the skip rules and reprocessing threshold
// that govern when the pipeline invokes it.
package stage

import (
	"context"

	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/quality"
	"github.com/sells-group/ticket-geocoder/internal/reprocess"
)

// Config carries the per-stage policy knobs. SkipRules short-circuit tickets
// whose current record is good enough; ReprocessThreshold decides whether a
// record that survives the skip rules is still worth re-geocoding.
type Config struct {
	SkipRules          reprocess.SkipRules
	ReprocessThreshold quality.Threshold
}

// Stage is a single geocoding technique. Process returns the attempt for one
// ticket; a nil error with a nil-coordinate attempt is a valid "could not
// geocode" outcome, while a non-nil error records a stage failure.
type Stage interface {
	Name() string
	Config() Config
	Process(ctx context.Context, ticket model.Ticket) (*model.Attempt, error)
}

// ProcessFunc adapts a plain function to the Stage interface.
type ProcessFunc func(ctx context.Context, ticket model.Ticket) (*model.Attempt, error)

type funcStage struct {
	name string
	cfg  Config
	fn   ProcessFunc
}

// NewFunc wraps fn as a Stage with the given name and config.
func NewFunc(name string, cfg Config, fn ProcessFunc) Stage {
	return &funcStage{name: name, cfg: cfg, fn: fn}
}

func (s *funcStage) Name() string   { return s.name }
func (s *funcStage) Config() Config { return s.cfg }

func (s *funcStage) Process(ctx context.Context, ticket model.Ticket) (*model.Attempt, error) {
	return s.fn(ctx, ticket)
}
