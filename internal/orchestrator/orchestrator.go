// Package orchestrator schedules the pipeline stages inside one process.
// Stages run in a fixed rotation at configured cadences; each invocation is
// bounded by a stage budget and emits heartbeats so an external supervisor
// never mistakes a long stage for a hung process.
package orchestrator

import (
	"context"
	"time"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/logger"

	"github.com/google/uuid"
)

// StageFunc is one schedulable unit of pipeline work.
type StageFunc func(ctx context.Context) (core.StageSummary, error)

// stage is one registered stage with its cadence and next due time.
type stage struct {
	name     string
	interval time.Duration
	run      StageFunc
	nextRun  time.Time
}

// Orchestrator owns the stage rotation. All scheduler state is mutated only
// from the Run goroutine.
type Orchestrator struct {
	stages        []*stage
	stageTimeout  time.Duration
	cancelGrace   time.Duration
	heartbeatTick time.Duration
}

// New creates an orchestrator with the configured budgets.
func New(cfg config.Pipeline) *Orchestrator {
	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = 4 * time.Minute
	}
	cancelGrace := cfg.CancelGrace
	if cancelGrace <= 0 {
		cancelGrace = 5 * time.Second
	}
	return &Orchestrator{
		stageTimeout:  stageTimeout,
		cancelGrace:   cancelGrace,
		heartbeatTick: time.Second,
	}
}

// Register adds a stage to the rotation. The first invocation is due
// immediately; later ones follow the interval. Registration order defines
// the tie-break when several stages come due in the same tick.
func (o *Orchestrator) Register(name string, interval time.Duration, run StageFunc) {
	o.stages = append(o.stages, &stage{
		name:     name,
		interval: interval,
		run:      run,
	})
}

// Run drives the rotation until the context is cancelled. The caller wires
// signal handling into ctx; this loop itself holds no locks and can always
// be abandoned safely.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Info("orchestrator started", "stages", len(o.stages))

	ticker := time.NewTicker(o.heartbeatTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("orchestrator stopping")
			return ctx.Err()
		case now := <-ticker.C:
			for _, s := range o.stages {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if now.Before(s.nextRun) {
					continue
				}
				o.runStage(ctx, s)
				s.nextRun = time.Now().Add(s.interval)
			}
		}
	}
}

// RunAll invokes every registered stage once, in registration order.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	for _, s := range o.stages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.runStage(ctx, s)
	}
	return nil
}

// runStage executes one stage under the stage budget while heartbeating.
// A stage that ignores cancellation past the grace period is abandoned and
// logged; the process stays alive.
func (o *Orchestrator) runStage(ctx context.Context, s *stage) {
	runID := uuid.NewString()
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	logger.Info("stage starting", "stage", s.name, "run_id", runID)
	start := time.Now()

	type result struct {
		summary core.StageSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := s.run(stageCtx)
		done <- result{summary, err}
	}()

	heartbeat := time.NewTicker(o.heartbeatTick)
	defer heartbeat.Stop()

	for {
		select {
		case r := <-done:
			if r.err != nil {
				logger.Error("stage failed", r.err, "stage", s.name, "run_id", runID,
					"elapsed", time.Since(start).String())
				return
			}
			logger.Info("stage finished",
				"stage", s.name,
				"run_id", runID,
				"processed", r.summary.Processed,
				"skipped", r.summary.Skipped,
				"failed", r.summary.Failed,
				"elapsed", time.Since(start).String())
			return
		case <-heartbeat.C:
			logger.Info("stage heartbeat", "stage", s.name, "run_id", runID,
				"elapsed", time.Since(start).String())
		case <-stageCtx.Done():
			// Budget expired or shutdown requested: give in-flight work a
			// short grace window, then abandon it.
			select {
			case r := <-done:
				logger.Warn("stage returned after cancellation",
					"stage", s.name, "run_id", runID, "error", r.err)
			case <-time.After(o.cancelGrace):
				logger.Warn("stage abandoned after grace period",
					"stage", s.name, "run_id", runID,
					"elapsed", time.Since(start).String())
			}
			return
		}
	}
}
