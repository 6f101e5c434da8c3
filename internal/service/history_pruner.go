package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/mmk-inference/internal/core"
	obserrors "github.com/target/mmk-inference/internal/observability/errors"
	"github.com/target/mmk-inference/internal/observability/metrics"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// HistoryPrunerOptions groups dependencies for HistoryPruner.
type HistoryPrunerOptions struct {
	Store     core.HistoryStore // Required: history to prune
	Schedule  string            // Required: standard five-field cron expression
	Retention time.Duration     // Required: records older than this are deleted
	Logger    *slog.Logger      // Optional: structured logger
	Metrics   statsd.Sink       // Optional: metrics sink (StatsD-compatible)
	Now       func() time.Time  // Optional: clock, defaults to time.Now
}

// HistoryPruner deletes old prediction history on a cron schedule.
type HistoryPruner struct {
	store     core.HistoryStore
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewHistoryPruner constructs a HistoryPruner.
func NewHistoryPruner(opts HistoryPrunerOptions) (*HistoryPruner, error) {
	if opts.Store == nil {
		return nil, errors.New("HistoryStore is required")
	}
	if opts.Retention <= 0 {
		return nil, errors.New("Retention must be positive")
	}
	schedule, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse prune schedule %q: %w", opts.Schedule, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "history_pruner")
	}

	return &HistoryPruner{
		store:     opts.Store,
		schedule:  schedule,
		retention: opts.Retention,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// NextRun returns the first scheduled run after t.
func (p *HistoryPruner) NextRun(t time.Time) time.Time {
	return p.schedule.Next(t)
}

// Run prunes on schedule until ctx is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (p *HistoryPruner) Run(ctx context.Context) error {
	for {
		next := p.NextRun(p.now())
		if p.logger != nil {
			p.logger.InfoContext(ctx, "next history prune scheduled", "at", next)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			if p.logger != nil {
				p.logger.InfoContext(ctx, "history pruner stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
			if _, err := p.PruneOnce(ctx); err != nil {
				logLoopError(p.logger, err, "history prune")
			}
		}
	}
}

// PruneOnce deletes records older than the retention window and returns how
// many were removed.
func (p *HistoryPruner) PruneOnce(ctx context.Context) (int64, error) {
	start := p.now()
	cutoff := start.Add(-p.retention)

	n, err := p.store.Prune(ctx, cutoff)
	p.emitMetrics(n, err)
	if err != nil {
		return n, fmt.Errorf("prune history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if p.logger != nil {
		p.logger.InfoContext(ctx, "pruned prediction history", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (p *HistoryPruner) emitMetrics(n int64, err error) {
	if p.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if n == 0 {
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	p.metrics.Count("history.prune", 1, tags)
	if n > 0 {
		p.metrics.Count("history.pruned_records", n, nil)
	}
}
