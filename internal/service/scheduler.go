package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-inference/internal/core"
	domainjob "github.com/target/mmk-inference/internal/domain/job"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
	"github.com/target/mmk-inference/internal/observability/metrics"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// ErrSchedulerStopped is returned by Enqueue once the scheduler has shut down.
var ErrSchedulerStopped = errors.New("scheduler is stopped")

// JobSchedulerOptions groups dependencies for JobScheduler.
type JobSchedulerOptions struct {
	Engine    core.InferenceEngine // Required: executes models
	Publisher domainjob.Publisher  // Required: receives lifecycle events
	Cache     *ResultCache         // Optional: successful results are written through
	History   core.HistorySink     // Optional: terminal snapshots are appended

	Workers        int           // Required: concurrent executions
	Capacity       int           // Optional: admitted flights, queued or running; defaults to 2*Workers
	ExecTimeout    time.Duration // Required: per-execution deadline
	CacheTTL       time.Duration // Optional: TTL for written results; zero uses the cache default
	HistoryTimeout time.Duration // Optional: bound on a single history append; defaults to 2s

	Logger  *slog.Logger     // Optional: structured logger
	Metrics statsd.Sink      // Optional: lifecycle metrics
	Now     func() time.Time // Optional: clock, defaults to time.Now
	NewID   func() string    // Optional: job id generator, defaults to UUIDv4
}

type flightState int

const (
	flightQueued flightState = iota
	flightRunning
	flightDone
)

// flight is one execution shared by every job with the same fingerprint.
type flight struct {
	fingerprint string
	request     core.InferenceRequest
	state       flightState
	members     []*jobEntry
	ctx         context.Context
	cancel      context.CancelFunc
}

type jobEntry struct {
	job    *model.Job
	flight *flight // nil once the job is terminal or detached
	done   chan struct{}
}

// JobScheduler is a bounded worker pool with per-fingerprint deduplication.
//
// All admission, cancellation and completion bookkeeping happens under one
// mutex, and every lifecycle event is published while holding it, so each
// job's events reach the status channel in transition order.
type JobScheduler struct {
	engine         core.InferenceEngine
	publisher      domainjob.Publisher
	cache          *ResultCache
	history        core.HistorySink
	workers        int
	capacity       int
	execTimeout    time.Duration
	cacheTTL       time.Duration
	historyTimeout time.Duration
	logger         *slog.Logger
	metrics        statsd.Sink
	now            func() time.Time
	newID          func() string

	mu       sync.Mutex
	cond     *sync.Cond
	inflight map[string]*flight
	pending  []*flight
	running  int
	jobs     map[string]*jobEntry
	started  bool
	stopped  bool
	wg       sync.WaitGroup
}

// NewJobScheduler constructs a JobScheduler. Call Run to start the workers.
func NewJobScheduler(opts JobSchedulerOptions) (*JobScheduler, error) {
	if opts.Engine == nil {
		return nil, errors.New("InferenceEngine is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("Publisher is required")
	}
	if opts.Workers < 1 {
		return nil, errors.New("Workers must be at least 1")
	}
	if opts.ExecTimeout <= 0 {
		return nil, errors.New("ExecTimeout must be positive")
	}

	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 2 * opts.Workers
	}
	historyTimeout := opts.HistoryTimeout
	if historyTimeout <= 0 {
		historyTimeout = 2 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &JobScheduler{
		engine:         opts.Engine,
		publisher:      opts.Publisher,
		cache:          opts.Cache,
		history:        opts.History,
		workers:        opts.Workers,
		capacity:       capacity,
		execTimeout:    opts.ExecTimeout,
		cacheTTL:       opts.CacheTTL,
		historyTimeout: historyTimeout,
		logger:         logger.With("component", "job_scheduler"),
		metrics:        opts.Metrics,
		now:            now,
		newID:          newID,
		inflight:       make(map[string]*flight),
		jobs:           make(map[string]*jobEntry),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// MustNewJobScheduler constructs a JobScheduler and panics on error.
func MustNewJobScheduler(opts JobSchedulerOptions) *JobScheduler {
	s, err := NewJobScheduler(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobScheduler: %v", err))
	}
	return s
}

// Enqueue admits job and returns its id. The caller sets ModelID,
// ModelVersion, Fingerprint, Payload and SubmittedBy; the scheduler owns
// every other field.
//
// A job whose fingerprint is already in flight becomes a follower of that
// flight and never triggers a second execution. Otherwise a new flight is
// admitted unless capacity is reached, in which case QueueFull is returned.
func (s *JobScheduler) Enqueue(ctx context.Context, job model.Job) (string, error) {
	if job.Fingerprint == "" {
		return "", apperrors.Validation("fingerprint is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", ErrSchedulerStopped
	}

	now := s.now()
	job.ID = s.newID()
	job.Status = model.JobStatusQueued
	job.CreatedAt = now
	job.StartedAt, job.FinishedAt, job.Result, job.Error = nil, nil, nil, nil
	job.CancelPending = false
	entry := &jobEntry{job: &job, done: make(chan struct{})}

	if fl, ok := s.inflight[job.Fingerprint]; ok {
		s.attach(entry, fl, now)
		metrics.EmitAdmission(s.metrics, job.ModelID, "deduplicated")
		s.logger.DebugContext(ctx, "job joined in-flight execution",
			"job_id", job.ID, "fingerprint", job.Fingerprint, "members", len(fl.members))
		return job.ID, nil
	}

	if len(s.pending)+s.running >= s.capacity {
		metrics.EmitAdmission(s.metrics, job.ModelID, "rejected")
		return "", apperrors.QueueFull(s.capacity)
	}

	fl := &flight{
		fingerprint: job.Fingerprint,
		request: core.InferenceRequest{
			ModelID:      job.ModelID,
			ModelVersion: job.ModelVersion,
			Payload:      job.Payload,
		},
		state: flightQueued,
	}
	s.inflight[fl.fingerprint] = fl
	s.pending = append(s.pending, fl)
	s.attach(entry, fl, now)
	s.cond.Signal()

	metrics.EmitAdmission(s.metrics, job.ModelID, "admitted")
	s.logger.DebugContext(ctx, "job admitted", "job_id", job.ID, "fingerprint", job.Fingerprint)
	return job.ID, nil
}

// attach registers entry as a member of fl and publishes its queued event.
// A follower joining a running flight is moved to running straight away.
// Caller holds s.mu.
func (s *JobScheduler) attach(entry *jobEntry, fl *flight, now time.Time) {
	s.jobs[entry.job.ID] = entry
	entry.flight = fl
	fl.members = append(fl.members, entry)
	s.publish(entry.job, now)
	if fl.state == flightRunning {
		s.transition(entry.job, model.JobStatusRunning, now)
	}
}

// Cancel cancels the job with the given id.
//
// A queued job, a running job whose execution is shared with other jobs, and
// the last job of a cooperatively cancellable execution are cancelled
// immediately. The last job of an execution that ignores cancellation is
// marked CancelPending and becomes cancelled when the execution ends; the
// returned error is then a CancelPending error alongside the snapshot.
func (s *JobScheduler) Cancel(ctx context.Context, jobID string) (model.Job, error) {
	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return model.Job{}, apperrors.NotFoundf("job %s not found", jobID)
	}
	if entry.job.Status.Terminal() {
		snap := entry.job.Clone()
		s.mu.Unlock()
		return snap, apperrors.AlreadyTerminal(jobID)
	}
	if entry.job.CancelPending {
		snap := entry.job.Clone()
		s.mu.Unlock()
		return snap, apperrors.CancelPending(jobID)
	}

	fl := entry.flight
	now := s.now()
	switch {
	case fl.state == flightQueued:
		s.detach(entry, fl)
		if len(fl.members) == 0 {
			s.abandon(fl)
		}
	case len(fl.members) > 1:
		s.detach(entry, fl)
	case s.engine.SupportsCancellation(fl.request.ModelID):
		s.detach(entry, fl)
		s.release(fl)
		fl.cancel()
	default:
		entry.job.CancelPending = true
		s.release(fl)
		fl.cancel()
		snap := entry.job.Clone()
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "cancellation pending until execution ends",
			"job_id", jobID, "model_id", fl.request.ModelID)
		return snap, apperrors.CancelPending(jobID)
	}

	s.finishEntry(entry, model.JobStatusCancelled, nil,
		&model.JobError{Code: model.JobErrorCancelled, Message: "cancelled by request"}, now)
	snap := entry.job.Clone()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "job cancelled", "job_id", jobID)
	s.appendHistory(snap)
	return snap, nil
}

// detach removes entry from fl's members. Caller holds s.mu.
func (s *JobScheduler) detach(entry *jobEntry, fl *flight) {
	fl.members = slices.DeleteFunc(fl.members, func(m *jobEntry) bool { return m == entry })
	entry.flight = nil
}

// abandon drops a queued flight that no longer has members. Caller holds s.mu.
func (s *JobScheduler) abandon(fl *flight) {
	s.pending = slices.DeleteFunc(s.pending, func(p *flight) bool { return p == fl })
	s.release(fl)
	fl.state = flightDone
}

// release removes fl from the dedup map if it still owns its fingerprint, so
// later identical submissions start a fresh execution. Caller holds s.mu.
func (s *JobScheduler) release(fl *flight) {
	if s.inflight[fl.fingerprint] == fl {
		delete(s.inflight, fl.fingerprint)
	}
}

// Get returns a snapshot of the job.
func (s *JobScheduler) Get(jobID string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return model.Job{}, apperrors.NotFoundf("job %s not found", jobID)
	}
	return entry.job.Clone(), nil
}

// Wait blocks until the job is terminal or ctx is done and returns the
// latest snapshot. On ctx expiry the snapshot is returned with ctx's error.
func (s *JobScheduler) Wait(ctx context.Context, jobID string) (model.Job, error) {
	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return model.Job{}, apperrors.NotFoundf("job %s not found", jobID)
	}

	var waitErr error
	select {
	case <-entry.done:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// The entry is read directly so a job pruned meanwhile still yields its
	// last snapshot.
	s.mu.Lock()
	defer s.mu.Unlock()
	return entry.job.Clone(), waitErr
}

// Stats returns a snapshot of scheduler occupancy.
func (s *JobScheduler) Stats() model.JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.JobStats{
		Workers:  s.workers,
		Capacity: s.capacity,
		InFlight: len(s.pending) + s.running,
		Tracked:  len(s.jobs),
	}
	for _, e := range s.jobs {
		switch e.job.Status {
		case model.JobStatusQueued:
			st.Queued++
		case model.JobStatusRunning:
			st.Running++
		case model.JobStatusSucceeded:
			st.Succeeded++
		case model.JobStatusFailed:
			st.Failed++
		case model.JobStatusCancelled:
			st.Cancelled++
		}
	}
	return st
}

// PruneFinished forgets terminal jobs that finished before olderThan and
// returns how many were removed.
func (s *JobScheduler) PruneFinished(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.jobs {
		if e.job.Status.Terminal() && e.job.FinishedAt != nil && e.job.FinishedAt.Before(olderThan) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Run starts the workers and blocks until ctx is done. On shutdown, queued
// jobs are cancelled with code "shutdown" and running executions are allowed
// to finish. Returns nil on graceful shutdown.
func (s *JobScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "starting job scheduler", "workers", s.workers, "capacity", s.capacity)

	for range s.workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.work()
		}()
	}

	<-ctx.Done()
	drained := s.shutdown()
	s.wg.Wait()

	s.logger.InfoContext(ctx, "job scheduler stopped", "cancelled_queued", len(drained))
	return nil
}

// shutdown stops admission, cancels every queued job and wakes idle workers.
func (s *JobScheduler) shutdown() []model.Job {
	s.mu.Lock()
	s.stopped = true
	now := s.now()
	var snaps []model.Job
	for _, fl := range s.pending {
		for _, entry := range fl.members {
			entry.flight = nil
			s.finishEntry(entry, model.JobStatusCancelled, nil,
				&model.JobError{Code: model.JobErrorShutdown, Message: "scheduler shut down before execution"}, now)
			snaps = append(snaps, entry.job.Clone())
		}
		fl.members = nil
		fl.state = flightDone
		s.release(fl)
	}
	s.pending = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, snap := range snaps {
		s.appendHistory(snap)
	}
	return snaps
}

func (s *JobScheduler) work() {
	for {
		fl := s.next()
		if fl == nil {
			return
		}
		s.execute(fl)
	}
}

// next blocks until a flight is available and moves it and its members to
// running. It returns nil once the scheduler is stopped.
func (s *JobScheduler) next() *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return nil
	}

	fl := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	s.running++

	// Executions outlive the Run context so in-flight work finishes on shutdown.
	fl.ctx, fl.cancel = context.WithCancel(context.Background())
	fl.state = flightRunning
	now := s.now()
	for _, entry := range fl.members {
		s.transition(entry.job, model.JobStatusRunning, now)
	}
	return fl
}

func (s *JobScheduler) execute(fl *flight) {
	execCtx, cancel := context.WithTimeout(fl.ctx, s.execTimeout)
	result, err := s.invoke(execCtx, fl.request)
	timedOut := err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()
	fl.cancel()

	if err == nil && s.cache != nil {
		// Written before the dedup entry is released so a new identical
		// submission either joins this flight or hits the cache.
		s.cache.Put(context.Background(), fl.fingerprint, result, s.cacheTTL)
	}

	s.mu.Lock()
	now := s.now()
	var snaps []model.Job
	for _, entry := range fl.members {
		entry.flight = nil
		switch {
		case entry.job.CancelPending:
			s.finishEntry(entry, model.JobStatusCancelled, nil,
				&model.JobError{Code: model.JobErrorCancelled, Message: "cancelled by request"}, now)
		case err == nil:
			s.finishEntry(entry, model.JobStatusSucceeded, result, nil, now)
		case timedOut:
			s.finishEntry(entry, model.JobStatusFailed, nil,
				&model.JobError{Code: model.JobErrorTimeout, Message: fmt.Sprintf("execution exceeded %s", s.execTimeout)}, now)
		default:
			s.finishEntry(entry, model.JobStatusFailed, nil,
				&model.JobError{Code: model.JobErrorExecution, Message: err.Error()}, now)
		}
		snaps = append(snaps, entry.job.Clone())
	}
	fl.members = nil
	fl.state = flightDone
	s.release(fl)
	s.running--
	s.cond.Signal()
	s.mu.Unlock()

	if err != nil {
		s.logger.WarnContext(fl.ctx, "execution failed",
			"fingerprint", fl.fingerprint, "model_id", fl.request.ModelID, "timed_out", timedOut, "error", err)
	}
	for _, snap := range snaps {
		s.appendHistory(snap)
	}
}

// invoke calls the engine, converting a panic into an execution error.
func (s *JobScheduler) invoke(ctx context.Context, req core.InferenceRequest) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model %s panicked: %v", req.ModelID, r)
		}
	}()
	out, err := s.engine.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// finishEntry moves entry to a terminal status and wakes its waiters.
// Caller holds s.mu.
func (s *JobScheduler) finishEntry(entry *jobEntry, to model.JobStatus, result []byte, jobErr *model.JobError, now time.Time) {
	entry.job.Result = result
	entry.job.Error = jobErr
	if s.transition(entry.job, to, now) {
		close(entry.done)
	}
}

// transition applies a state change and publishes exactly one event for it.
// Caller holds s.mu.
func (s *JobScheduler) transition(j *model.Job, to model.JobStatus, now time.Time) bool {
	if err := j.Transition(to, now); err != nil {
		s.logger.Error("refusing job transition", "job_id", j.ID, "error", err)
		return false
	}
	s.publish(j, now)

	in := metrics.JobMetric{
		Model:      j.ModelID,
		Transition: string(to),
		Result:     metrics.ResultSuccess,
		Duration:   j.ProcessingTime(),
	}
	if j.Error != nil {
		in.Result = metrics.ResultError
		in.ErrorClass = j.Error.Code
	}
	metrics.EmitJobLifecycle(s.metrics, in)
	return true
}

func (s *JobScheduler) publish(j *model.Job, now time.Time) {
	s.publisher.Publish(model.EventFromJob(j, now))
}

func (s *JobScheduler) appendHistory(job model.Job) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.historyTimeout)
	defer cancel()
	if err := s.history.Append(ctx, job); err != nil {
		s.logger.Warn("history append failed", "job_id", job.ID, "error", err)
	}
}
