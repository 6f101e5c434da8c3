package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-inference/internal/core"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
)

// RequestGateOptions groups dependencies for RequestGate.
type RequestGateOptions struct {
	Scheduler  *JobScheduler     // Required: admits jobs
	Catalog    core.ModelCatalog // Required: resolves models and versions
	Cache      *ResultCache      // Optional: cached results short-circuit submission
	Authorizer core.Authorizer   // Optional: defaults to the domain policy

	MaxPayloadBytes  int           // Optional: payload size limit, zero means unlimited
	MaxBatch         int           // Optional: batch size limit, defaults to 32
	MaxWait          time.Duration // Optional: cap on synchronous waits
	BatchConcurrency int           // Optional: concurrent batch items, defaults to 4

	Logger *slog.Logger // Optional: structured logger
}

// RequestGate is the entry point for submissions, status queries and
// cancellation. It is the only component that checks caller permissions for
// jobs.
type RequestGate struct {
	scheduler        *JobScheduler
	catalog          core.ModelCatalog
	cache            *ResultCache
	authz            core.Authorizer
	maxPayloadBytes  int
	maxBatch         int
	maxWait          time.Duration
	batchConcurrency int
	logger           *slog.Logger
}

// NewRequestGate constructs a RequestGate.
func NewRequestGate(opts RequestGateOptions) (*RequestGate, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("JobScheduler is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("ModelCatalog is required")
	}
	authz := opts.Authorizer
	if authz == nil {
		authz = core.PolicyAuthorizer{}
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 32
	}
	concurrency := opts.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "request_gate")
	}

	return &RequestGate{
		scheduler:        opts.Scheduler,
		catalog:          opts.Catalog,
		cache:            opts.Cache,
		authz:            authz,
		maxPayloadBytes:  opts.MaxPayloadBytes,
		maxBatch:         maxBatch,
		maxWait:          opts.MaxWait,
		batchConcurrency: concurrency,
		logger:           logger,
	}, nil
}

// BatchConcurrency returns how many batch items are submitted at once.
func (g *RequestGate) BatchConcurrency() int { return g.batchConcurrency }

// Submit validates req, answers from the cache when possible and otherwise
// hands a new job to the scheduler. Validation failures have no side effects.
func (g *RequestGate) Submit(
	ctx context.Context,
	p domainauth.Principal,
	req model.SubmitRequest,
) (model.SubmitResult, error) {
	if !g.authz.HasPermission(p, domainauth.ActionSubmit, p.ID) {
		return model.SubmitResult{}, apperrors.Forbidden("principal may not submit jobs")
	}
	return g.submit(ctx, p, req)
}

func (g *RequestGate) submit(
	ctx context.Context,
	p domainauth.Principal,
	req model.SubmitRequest,
) (model.SubmitResult, error) {
	if err := req.Validate(g.maxPayloadBytes); err != nil {
		return model.SubmitResult{}, apperrors.Validation(err.Error())
	}

	version, err := g.catalog.ResolveVersion(req.ModelID, req.ModelVersion)
	if err != nil {
		return model.SubmitResult{}, err
	}

	fp, err := core.Fingerprint(req.ModelID, version, req.Payload)
	if err != nil {
		return model.SubmitResult{}, apperrors.Validationf("payload: %v", err)
	}

	if g.cache != nil {
		if result, hit := g.cache.Get(ctx, fp); hit {
			if g.logger != nil {
				g.logger.DebugContext(ctx, "submission served from cache", "fingerprint", fp, "principal", p.ID)
			}
			return model.SubmitResult{Fingerprint: fp, Cached: true, Result: result}, nil
		}
	}

	jobID, err := g.scheduler.Enqueue(ctx, model.Job{
		Fingerprint:  fp,
		ModelID:      req.ModelID,
		ModelVersion: version,
		Payload:      req.Payload,
		SubmittedBy:  p.ID,
	})
	if err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{JobID: jobID, Fingerprint: fp}, nil
}

// SubmitAndWait submits req and then waits up to wait for the job to become
// terminal. If it does, the snapshot (and result on success) is attached;
// otherwise the plain asynchronous result is returned.
func (g *RequestGate) SubmitAndWait(
	ctx context.Context,
	p domainauth.Principal,
	req model.SubmitRequest,
	wait time.Duration,
) (model.SubmitResult, error) {
	res, err := g.Submit(ctx, p, req)
	if err != nil || res.Cached || wait <= 0 {
		return res, err
	}
	if g.maxWait > 0 && wait > g.maxWait {
		wait = g.maxWait
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	job, err := g.scheduler.Wait(waitCtx, res.JobID)
	if err != nil {
		// Still running when the wait ended; the caller polls or subscribes.
		return res, nil
	}
	res.Job = &job
	if job.Status == model.JobStatusSucceeded {
		res.Result = job.Result
	}
	return res, nil
}

// SubmitBatch submits every request concurrently and reports a result or an
// error code per item. Only authorization and batch size fail the whole call.
func (g *RequestGate) SubmitBatch(
	ctx context.Context,
	p domainauth.Principal,
	reqs []model.SubmitRequest,
) ([]model.BatchItemResult, error) {
	if !g.authz.HasPermission(p, domainauth.ActionSubmit, p.ID) {
		return nil, apperrors.Forbidden("principal may not submit jobs")
	}
	if len(reqs) == 0 {
		return nil, apperrors.Validation("batch is empty")
	}
	if len(reqs) > g.maxBatch {
		return nil, apperrors.Validationf("batch exceeds %d items", g.maxBatch)
	}

	out := make([]model.BatchItemResult, len(reqs))
	var eg errgroup.Group
	eg.SetLimit(g.batchConcurrency)
	for i, req := range reqs {
		eg.Go(func() error {
			item := model.BatchItemResult{Index: i}
			res, err := g.submit(ctx, p, req)
			if err != nil {
				item.ErrorCode = string(apperrors.GetCode(err))
				if item.ErrorCode == "" {
					item.ErrorCode = string(apperrors.ErrCodeInternal)
				}
				item.Error = err.Error()
			} else {
				item.Result = &res
			}
			out[i] = item
			return nil
		})
	}
	_ = eg.Wait()

	if g.logger != nil {
		g.logger.InfoContext(ctx, "batch submitted", "principal", p.ID, "items", len(reqs))
	}
	return out, nil
}

// Status returns a snapshot of a job the principal may view.
func (g *RequestGate) Status(ctx context.Context, p domainauth.Principal, jobID string) (model.Job, error) {
	job, err := g.scheduler.Get(jobID)
	if err != nil {
		return model.Job{}, err
	}
	if !g.authz.HasPermission(p, domainauth.ActionView, job.SubmittedBy) {
		return model.Job{}, apperrors.Forbidden(fmt.Sprintf("principal may not view job %s", jobID))
	}
	return job, nil
}

// Cancel cancels a job the principal may cancel. See JobScheduler.Cancel for
// the outcomes.
func (g *RequestGate) Cancel(ctx context.Context, p domainauth.Principal, jobID string) (model.Job, error) {
	job, err := g.scheduler.Get(jobID)
	if err != nil {
		return model.Job{}, err
	}
	if !g.authz.HasPermission(p, domainauth.ActionCancel, job.SubmittedBy) {
		return model.Job{}, apperrors.Forbidden(fmt.Sprintf("principal may not cancel job %s", jobID))
	}
	return g.scheduler.Cancel(ctx, jobID)
}
