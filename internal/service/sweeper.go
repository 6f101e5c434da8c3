package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	obserrors "github.com/target/mmk-inference/internal/observability/errors"
	"github.com/target/mmk-inference/internal/observability/metrics"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// SweeperOptions groups dependencies for Sweeper.
type SweeperOptions struct {
	Cache           *ResultCache     // Required: cache to sweep
	Scheduler       *JobScheduler    // Optional: finished jobs are pruned after StatusRetention
	Interval        time.Duration    // Required: time between sweeps
	StatusRetention time.Duration    // Optional: how long finished jobs stay queryable
	Logger          *slog.Logger     // Optional: structured logger
	Metrics         statsd.Sink      // Optional: metrics sink (StatsD-compatible)
	Now             func() time.Time // Optional: clock, defaults to time.Now
}

// Sweeper periodically removes expired cache entries and forgets finished
// jobs, independent of read traffic.
type Sweeper struct {
	cache     *ResultCache
	scheduler *JobScheduler
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Cache == nil {
		return nil, errors.New("ResultCache is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("Interval must be positive")
	}
	if opts.Scheduler != nil && opts.StatusRetention <= 0 {
		return nil, errors.New("StatusRetention must be positive when a scheduler is given")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper")
		logger.Debug("Sweeper initialized",
			"interval", opts.Interval,
			"status_retention", opts.StatusRetention,
			"cache_needs_sweep", opts.Cache.NeedsSweep(),
		)
	}

	return &Sweeper{
		cache:     opts.Cache,
		scheduler: opts.Scheduler,
		interval:  opts.Interval,
		retention: opts.StatusRetention,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// Run sweeps at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper", "interval", s.interval)
	}

	waitWithJitter(ctx, s.interval, s.logger)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				logLoopError(s.logger, err, "sweep")
			}
		}
	}
}

// SweepOnce performs a single sweep of the cache and the job table.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	start := s.now()

	removed, err := s.cache.Sweep(ctx)
	pruned := 0
	if s.scheduler != nil {
		pruned = s.scheduler.PruneFinished(start.Add(-s.retention))
	}

	s.emitMetrics(removed, pruned, err, time.Since(start))

	if err != nil {
		if isContextCancellation(err) {
			return context.Canceled
		}
		return fmt.Errorf("sweep failed: %w", err)
	}
	if s.logger != nil && (removed > 0 || pruned > 0) {
		s.logger.DebugContext(ctx, "sweep complete", "cache_removed", removed, "jobs_pruned", pruned)
	}
	return nil
}

func (s *Sweeper) emitMetrics(removed, pruned int, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if removed == 0 && pruned == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("sweeper.run", 1, tags)
	s.metrics.Timing("sweeper.duration", elapsed, metrics.CloneTags(tags))
	if pruned > 0 {
		s.metrics.Count("sweeper.jobs_pruned", int64(pruned), nil)
	}
}

// waitWithJitter adds a random delay up to 10% of interval to prevent
// thundering herd when several instances start together.
func waitWithJitter(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if logger != nil {
			logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func logLoopError(logger *slog.Logger, err error, label string) {
	if err == nil || logger == nil {
		return
	}
	if isContextCancellation(err) {
		logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
