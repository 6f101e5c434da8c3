package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/observability/statsd"
	"github.com/target/mmk-inference/internal/service"
)

// Infrastructure holds shared connections. Either field may be nil when no
// enabled component needs it.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// ConnectInfrastructure opens the connections the configuration needs.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	if cfg.NeedsPostgres() {
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
	}
	if cfg.NeedsRedis() {
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Redis = client
	}
	return infra, nil
}

// Close closes every open connection.
func (i *Infrastructure) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ServiceOrchestrationConfig contains the inputs for NewRuntime.
type ServiceOrchestrationConfig struct {
	Config *config.AppConfig
	Infra  *Infrastructure
	Logger *slog.Logger
}

// Runtime is the set of services enabled by configuration.
type Runtime struct {
	Pipeline   *Pipeline
	HTTPServer *http.Server
	Pruner     *service.HistoryPruner
	History    core.HistoryStore
	Metrics    *statsd.Client

	logger *slog.Logger
}

// NewRuntime builds every enabled service.
func NewRuntime(ctx context.Context, cfg *ServiceOrchestrationConfig) (*Runtime, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("service orchestration config is required")
	}
	app := cfg.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	infra := cfg.Infra
	if infra == nil {
		infra = &Infrastructure{}
	}

	rt := &Runtime{logger: logger}
	var sink statsd.Sink
	rt.Metrics, sink = BuildMetrics(app.Observability.Metrics, logger)

	history, err := OpenHistory(ctx, HistoryConfig{
		History:       app.History,
		DB:            infra.DB,
		RunMigrations: app.Postgres.RunMigrationsOnStart,
		Logger:        logger,
	})
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	rt.History = history

	if app.IsHTTPServerEnabled() {
		if err := rt.buildHTTP(app, infra, sink); err != nil {
			return nil, errors.Join(err, rt.Close())
		}
	}

	if app.IsPrunerEnabled() {
		if history == nil {
			return nil, errors.Join(errors.New("pruner service requires HISTORY_DRIVER"), rt.Close())
		}
		rt.Pruner, err = service.NewHistoryPruner(service.HistoryPrunerOptions{
			Store:     history,
			Schedule:  app.History.PruneSchedule,
			Retention: app.History.Retention,
			Logger:    logger,
			Metrics:   sink,
		})
		if err != nil {
			return nil, errors.Join(err, rt.Close())
		}
	}
	return rt, nil
}

func (rt *Runtime) buildHTTP(app *config.AppConfig, infra *Infrastructure, sink statsd.Sink) error {
	pipeline, err := NewPipeline(PipelineDeps{
		Config:      app,
		RedisClient: infra.Redis,
		History:     rt.History,
		Metrics:     sink,
		Logger:      rt.logger,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	resolver, err := BuildResolver(AuthConfig{Auth: app.Auth, RedisClient: infra.Redis, Logger: rt.logger})
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}
	server, err := NewHTTPServer(HTTPServerConfig{
		Config:   app,
		Pipeline: pipeline,
		Resolver: resolver,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}
	rt.Pipeline = pipeline
	rt.HTTPServer = server
	return nil
}

// Run runs every built service until ctx is done or one of them fails.
func (rt *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if rt.Pipeline != nil {
		g.Go(func() error { return rt.Pipeline.Run(gctx) })
	}
	if rt.HTTPServer != nil {
		g.Go(func() error { return RunHTTPServer(gctx, rt.HTTPServer, rt.logger) })
	}
	if rt.Pruner != nil {
		g.Go(func() error { return rt.Pruner.Run(gctx) })
	}
	return g.Wait()
}

// Close releases the history store and the metrics client.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.History != nil {
		if err := rt.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if rt.Metrics != nil {
		if err := rt.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RunServicesWithShutdown builds the runtime and runs it until SIGINT or
// SIGTERM.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := rt.Run(ctx)
	if runErr == nil {
		rt.logger.Info("services stopped")
	}
	return errors.Join(runErr, rt.Close())
}
