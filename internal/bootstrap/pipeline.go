package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/adapters/inference"
	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/data"
	domainjob "github.com/target/mmk-inference/internal/domain/job"
	"github.com/target/mmk-inference/internal/observability/statsd"
	"github.com/target/mmk-inference/internal/service"
)

// PipelineDeps groups the inputs for NewPipeline.
type PipelineDeps struct {
	Config      *config.AppConfig
	Registry    *inference.Registry // Optional: built from Config.Models when nil
	RedisClient redis.UniversalClient
	History     core.HistoryStore // Optional: nil disables history
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// Pipeline holds the wired inference components.
type Pipeline struct {
	Registry  *inference.Registry
	Channel   *domainjob.DefaultStatusChannel
	Cache     *service.ResultCache
	Scheduler *service.JobScheduler
	Hub       *service.BroadcastHub
	Gate      *service.RequestGate
	Sweeper   *service.Sweeper
	History   core.HistoryStore
}

// NewCacheRepository returns the result cache backend selected by cfg.
//
//nolint:ireturn // the backend decides the concrete repository.
func NewCacheRepository(cfg config.CacheConfig, client redis.UniversalClient) (core.CacheRepository, error) {
	switch cfg.Backend {
	case config.CacheBackendRedis:
		if client == nil {
			return nil, errors.New("redis cache backend requires a redis client")
		}
		return data.NewRedisCacheRepo(client, cfg.KeyPrefix), nil
	default:
		return data.NewMemoryCacheRepo(data.MemoryCacheRepoOptions{Shards: cfg.Shards}), nil
	}
}

// NewPipeline builds the status channel, result cache, scheduler, hub, gate
// and sweeper. Nothing runs until Run is called.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, errors.New("pipeline config is required")
	}
	cfg := deps.Config

	registry := deps.Registry
	if registry == nil {
		var err error
		registry, err = BuildRegistry(RegistryConfig{Models: cfg.Models, Logger: deps.Logger, Metrics: deps.Metrics})
		if err != nil {
			return nil, err
		}
	}

	repo, err := NewCacheRepository(cfg.Cache, deps.RedisClient)
	if err != nil {
		return nil, err
	}
	cache, err := service.NewResultCache(service.ResultCacheOptions{
		Repo:       repo,
		DefaultTTL: cfg.Cache.TTL,
		Logger:     deps.Logger,
		Metrics:    deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	var sink core.HistorySink
	if deps.History != nil {
		sink = deps.History
	}

	channel := domainjob.NewStatusChannel(domainjob.StatusChannelOptions{})
	scheduler, err := service.NewJobScheduler(service.JobSchedulerOptions{
		Engine:         registry,
		Publisher:      channel,
		Cache:          cache,
		History:        sink,
		Workers:        cfg.Pipeline.Workers,
		Capacity:       cfg.Pipeline.QueueCapacity,
		ExecTimeout:    cfg.Pipeline.ExecTimeout,
		CacheTTL:       cfg.Cache.TTL,
		HistoryTimeout: cfg.History.AppendTimeout,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	hub, err := service.NewBroadcastHub(service.BroadcastHubOptions{
		Channel:       channel,
		Buffer:        cfg.Hub.SubscriberBuffer,
		Shards:        cfg.Hub.Shards,
		ChannelBuffer: cfg.Hub.ChannelBuffer,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	// Batch items fan out no wider than the worker pool.
	gate, err := service.NewRequestGate(service.RequestGateOptions{
		Scheduler:        scheduler,
		Catalog:          registry,
		Cache:            cache,
		MaxPayloadBytes:  cfg.Pipeline.MaxPayloadBytes,
		MaxBatch:         cfg.Pipeline.MaxBatch,
		MaxWait:          cfg.Pipeline.MaxWait,
		BatchConcurrency: cfg.Pipeline.Workers,
		Logger:           deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	sweeper, err := service.NewSweeper(service.SweeperOptions{
		Cache:           cache,
		Scheduler:       scheduler,
		Interval:        cfg.Cache.SweepInterval,
		StatusRetention: cfg.Pipeline.StatusRetention,
		Logger:          deps.Logger,
		Metrics:         deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Registry:  registry,
		Channel:   channel,
		Cache:     cache,
		Scheduler: scheduler,
		Hub:       hub,
		Gate:      gate,
		Sweeper:   sweeper,
		History:   deps.History,
	}, nil
}

// Run runs the hub, scheduler and sweeper until ctx is done. The hub keeps
// dispatching until the scheduler has drained, so shutdown cancellations
// still reach subscribers.
func (p *Pipeline) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()

	hubDone := make(chan error, 1)
	go func() { hubDone <- p.Hub.Run(hubCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Scheduler.Run(gctx) })
	g.Go(func() error { return p.Sweeper.Run(gctx) })
	err := g.Wait()

	stopHub()
	if hubErr := <-hubDone; hubErr != nil && err == nil {
		err = hubErr
	}
	return err
}
