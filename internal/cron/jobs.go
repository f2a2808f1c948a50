package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/budgetforce/internal/engine"
)

// Pruner deletes runs older than a cutoff. runs.Store satisfies it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// PruneJob deletes stored runs older than Retention.
type PruneJob struct {
	Store        Pruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@daily"

	now func() time.Time
}

var _ Job = (*PruneJob)(nil)

// Name implements Job.
func (j *PruneJob) Name() string { return "run_prune" }

// Schedule implements Job.
func (j *PruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@daily"
}

// Run prunes runs started before now minus Retention. A zero Retention
// keeps everything.
func (j *PruneJob) Run(ctx context.Context) error {
	if j.Retention <= 0 {
		return nil
	}
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	n, err := j.Store.Prune(ctx, now().Add(-j.Retention))
	if err != nil {
		return fmt.Errorf("cron: prune runs: %w", err)
	}
	if n > 0 {
		j.Logger.Info("cron: pruned old runs", "count", n, "retention", j.Retention)
	}
	return nil
}

// Prober actively checks an engine that is cooling down or dead.
// *engine.Retrying satisfies it.
type Prober interface {
	Probe(ctx context.Context) error
	Status() engine.HealthStatus
}

// EngineProbeJob revives an engine marked unavailable once its backend
// answers a health check again.
type EngineProbeJob struct {
	Engine       Prober
	Timeout      time.Duration // per probe, default 10s
	Logger       *slog.Logger
	ScheduleExpr string // empty = "* * * * *"
}

var _ Job = (*EngineProbeJob)(nil)

// Name implements Job.
func (j *EngineProbeJob) Name() string { return "engine_probe" }

// Schedule implements Job.
func (j *EngineProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run probes the engine when it is not healthy.
func (j *EngineProbeJob) Run(ctx context.Context) error {
	before := j.Engine.Status()
	if before.State == engine.HealthHealthy.String() {
		return nil
	}

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := j.Engine.Probe(ctx); err != nil {
		return fmt.Errorf("cron: probe %s: %w", before.Model, err)
	}
	if after := j.Engine.Status(); after.State != before.State {
		j.Logger.Info("cron: engine recovered", "model", after.Model, "from", before.State, "to", after.State)
	}
	return nil
}
