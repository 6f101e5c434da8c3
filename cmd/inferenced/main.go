package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	infra, err := bootstrap.ConnectInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config: &cfg,
		Infra:  infra,
		Logger: logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting inference service",
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"auth_mode", cfg.Auth.Mode,
		"cache_backend", cfg.Cache.Backend,
		"history_driver", cfg.History.Driver,
		"workers", cfg.Pipeline.Workers,
		"queue_capacity", cfg.Pipeline.QueueCapacity,
	)
}
