package bootstrap

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/adapters/inference"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// RegistryConfig contains the inputs for BuildRegistry.
type RegistryConfig struct {
	Models  config.ModelsConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// BuildRegistry registers the built-in mock model and every configured remote
// model.
func BuildRegistry(cfg RegistryConfig) (*inference.Registry, error) {
	registry := inference.NewRegistry(inference.RegistryOptions{
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})

	if cfg.Models.MockName != "" {
		err := registry.Register(inference.Registration{
			Name: cfg.Models.MockName,
			Model: inference.NewMockModel(inference.MockModelOptions{
				Latency:     cfg.Models.MockLatency,
				Cooperative: cfg.Models.MockCooperative,
			}),
			Versions: cfg.Models.MockVersions,
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", cfg.Models.MockName, err)
		}
	}

	endpoints, err := cfg.Models.ParsedHTTPEndpoints()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m, err := inference.NewHTTPModel(inference.HTTPModelOptions{
			Name:     name,
			Endpoint: endpoints[name],
			Timeout:  cfg.Models.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		if err := registry.Register(inference.Registration{
			Name:     name,
			Model:    m,
			Versions: cfg.Models.HTTPVersions,
		}); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("model registry built", "models", len(registry.List()))
	}
	return registry, nil
}
