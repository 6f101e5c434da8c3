package bootstrap

import (
	"log/slog"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// BuildMetrics returns the StatsD client and the sink to hand to services.
// The sink is a nil interface when metrics are disabled or the client cannot
// be created, so services skip emission entirely.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, statsd.Sink) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		}
		return nil, nil
	}
	return client, client
}
