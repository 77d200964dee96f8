// Package pipeline orchestrates staged geocoding runs over a batch of
// tickets. Stages execute in order; within a stage, tickets are processed
// concurrently by a bounded worker pool.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ticket-geocoder/internal/model"
	"github.com/sells-group/ticket-geocoder/internal/quality"
	"github.com/sells-group/ticket-geocoder/internal/reprocess"
	"github.com/sells-group/ticket-geocoder/internal/stage"
	"github.com/sells-group/ticket-geocoder/internal/store"
	"github.com/sells-group/ticket-geocoder/internal/validate"
)

const defaultWorkers = 4

// RunState tracks the lifecycle of a pipeline run.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateAborted   RunState = "aborted"
)

// StageStats counts ticket outcomes within one stage.
type StageStats struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Result summarizes a completed (or aborted) run.
type Result struct {
	RunID      string         `json:"run_id"`
	Name       string         `json:"name"`
	State      RunState       `json:"state"`
	Stages     []StageStats   `json:"stages"`
	TierCounts map[string]int `json:"tier_counts"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}

// Pipeline runs configured stages against the record store.
type Pipeline struct {
	name     string
	stages   []stage.Stage
	store    store.Store
	engine   *validate.Engine
	workers  int
	failFast bool

	mu    sync.Mutex
	state RunState
}

// New creates a pipeline. Workers below 1 fall back to the default pool size.
func New(name string, stages []stage.Stage, st store.Store, engine *validate.Engine, workers int, failFast bool) *Pipeline {
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Pipeline{
		name:     name,
		stages:   stages,
		store:    st,
		engine:   engine,
		workers:  workers,
		failFast: failFast,
		state:    StateIdle,
	}
}

// FromConfig assembles a pipeline from a run config and stage registry.
func FromConfig(cfg *RunConfig, reg *stage.Registry, st store.Store, engine *validate.Engine) (*Pipeline, error) {
	stages, err := cfg.Build(reg)
	if err != nil {
		return nil, err
	}
	return New(cfg.Name, stages, st, engine, cfg.Workers, cfg.FailFast), nil
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s RunState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run executes every stage over the ticket batch and returns the run summary.
// A stage failure only aborts the run when fail-fast is set, and even then the
// in-flight stage drains before the run stops.
func (p *Pipeline) Run(ctx context.Context, tickets []model.Ticket) (*Result, error) {
	if len(p.stages) == 0 {
		return nil, eris.New("pipeline: no stages configured")
	}

	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID), zap.String("run", p.name))
	log.Info("pipeline: starting run",
		zap.Int("tickets", len(tickets)),
		zap.Int("stages", len(p.stages)),
		zap.Int("workers", p.workers),
	)

	p.setState(StateRunning)
	result := &Result{
		RunID:      runID,
		Name:       p.name,
		State:      StateRunning,
		TierCounts: make(map[string]int),
		StartedAt:  time.Now().UTC(),
	}

	aborted := false
	for _, st := range p.stages {
		stats := p.runStage(ctx, st, tickets, log)
		result.Stages = append(result.Stages, stats)

		log.Info("pipeline: stage complete",
			zap.String("stage", st.Name()),
			zap.Int("processed", stats.Processed),
			zap.Int("skipped", stats.Skipped),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
		)

		if ctx.Err() != nil {
			aborted = true
			break
		}
		if p.failFast && stats.Failed > 0 {
			log.Warn("pipeline: aborting run, fail-fast triggered",
				zap.String("stage", st.Name()),
				zap.Int("failed", stats.Failed),
			)
			aborted = true
			break
		}
	}

	if err := p.tally(ctx, tickets, result); err != nil {
		log.Warn("pipeline: final tally incomplete", zap.Error(err))
	}

	if aborted {
		result.State = StateAborted
	} else {
		result.State = StateCompleted
	}
	p.setState(result.State)
	result.Duration = time.Since(result.StartedAt)

	log.Info("pipeline: run finished",
		zap.String("state", string(result.State)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// runStage processes every ticket through one stage with a bounded pool.
// Worker errors are folded into the stage stats rather than propagated, so
// one bad ticket never poisons the batch.
func (p *Pipeline) runStage(ctx context.Context, st stage.Stage, tickets []model.Ticket, log *zap.Logger) StageStats {
	stats := StageStats{Name: st.Name(), Total: len(tickets)}
	cfg := st.Config()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, ticket := range tickets {
		g.Go(func() error {
			outcome := p.processTicket(gctx, st, cfg, ticket, log)
			mu.Lock()
			switch outcome {
			case outcomeSkipped:
				stats.Skipped++
			case outcomeSucceeded:
				stats.Processed++
				stats.Succeeded++
			case outcomeFailed:
				stats.Processed++
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	return stats
}

type ticketOutcome int

const (
	outcomeSkipped ticketOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

func (p *Pipeline) processTicket(ctx context.Context, st stage.Stage, cfg stage.Config, ticket model.Ticket, log *zap.Logger) ticketOutcome {
	current, err := p.store.GetCurrent(ctx, ticket.TicketKey)
	if err != nil {
		log.Error("pipeline: read current record",
			zap.String("ticket", ticket.TicketKey), zap.Error(err))
		return outcomeFailed
	}

	decision := reprocess.Decide(current, st.Name(), cfg.SkipRules)
	if decision.Skip {
		log.Debug("pipeline: skipping ticket",
			zap.String("ticket", ticket.TicketKey),
			zap.String("stage", st.Name()),
			zap.String("reason", decision.Reason),
		)
		return outcomeSkipped
	}

	start := time.Now()
	attempt, procErr := st.Process(ctx, ticket)
	elapsed := time.Since(start).Milliseconds()

	rec := p.buildRecord(ticket, st.Name(), attempt, procErr)
	rec.ProcessingMS = elapsed

	if err := p.store.Append(ctx, rec); err != nil {
		if eris.Is(err, store.ErrLocked) {
			// Locked between the skip check and the append; treat as a skip.
			return outcomeSkipped
		}
		log.Error("pipeline: append record",
			zap.String("ticket", ticket.TicketKey), zap.Error(err))
		return outcomeFailed
	}

	if procErr != nil || rec.QualityTier == model.TierFailed {
		return outcomeFailed
	}
	return outcomeSucceeded
}

// buildRecord turns a stage attempt (or failure) into a fully assessed record.
func (p *Pipeline) buildRecord(ticket model.Ticket, stageName string, attempt *model.Attempt, procErr error) *model.GeocodeRecord {
	rec := &model.GeocodeRecord{
		TicketKey:      ticket.TicketKey,
		RecordKey:      model.RecordKeyFor(ticket),
		Street:         ticket.Street,
		Intersection:   ticket.Intersection,
		City:           ticket.City,
		County:         ticket.County,
		TicketType:     ticket.TicketType,
		Duration:       ticket.Duration,
		WorkType:       ticket.WorkType,
		Excavator:      ticket.Excavator,
		CreatedByStage: stageName,
	}

	failed := procErr != nil || attempt == nil
	if !failed && attempt.Coordinates != nil && !attempt.Coordinates.Valid() {
		procErr = eris.Errorf("pipeline: coordinates out of range: %.4f, %.4f",
			attempt.Coordinates.Latitude, attempt.Coordinates.Longitude)
		failed = true
	}

	if failed {
		rec.QualityTier = model.TierFailed
		rec.ReviewPriority = quality.Priority(nil, model.TierFailed, nil, ticket.TicketType, "")
		if procErr != nil {
			rec.ErrorMessage = procErr.Error()
			rec.Technique = stageName
		}
		if attempt != nil {
			rec.Technique = attempt.Technique
		}
		if rec.Technique == "" {
			rec.Technique = stageName
		}
		return rec
	}

	conf := attempt.Confidence
	rec.Coordinates = attempt.Coordinates
	rec.Confidence = &conf
	rec.Technique = attempt.Technique
	rec.Approach = attempt.Approach
	rec.Rationale = attempt.Rationale
	rec.Metadata = attempt.Metadata

	flags := p.engine.Run(validate.Input{
		Coordinates:  attempt.Coordinates,
		Confidence:   &conf,
		Technique:    attempt.Technique,
		Approach:     attempt.Approach,
		Street:       ticket.Street,
		Intersection: ticket.Intersection,
		City:         ticket.City,
		County:       ticket.County,
		TicketType:   ticket.TicketType,
	})
	codes := validate.Codes(flags)

	rec.ValidationFlags = codes
	rec.QualityTier = quality.Tier(&conf, attempt.Approach, codes)
	rec.ReviewPriority = quality.Priority(&conf, rec.QualityTier, codes, ticket.TicketType, attempt.Approach)

	// An attempt without coordinates is a failure regardless of confidence.
	if attempt.Coordinates == nil {
		rec.QualityTier = model.TierFailed
		rec.Confidence = nil
		rec.ReviewPriority = quality.Priority(nil, model.TierFailed, codes, ticket.TicketType, attempt.Approach)
	}
	return rec
}

// tally re-reads each distinct ticket's current record so the summary
// reflects the store, not the per-stage bookkeeping.
func (p *Pipeline) tally(ctx context.Context, tickets []model.Ticket, result *Result) error {
	seen := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		if seen[t.TicketKey] {
			continue
		}
		seen[t.TicketKey] = true

		rec, err := p.store.GetCurrent(ctx, t.TicketKey)
		if err != nil {
			return eris.Wrapf(err, "pipeline: tally %s", t.TicketKey)
		}
		if rec != nil {
			result.TierCounts[rec.QualityTier.String()]++
		}
	}
	return nil
}
