package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
	"github.com/target/mmk-inference/internal/observability/statsd"
)

// degradedAfter is the number of consecutive failures that marks a model degraded.
const degradedAfter = 3

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger  *slog.Logger     // Optional: structured logger
	Metrics statsd.Sink      // Optional: execution timings
	Now     func() time.Time // Optional: clock, defaults to time.Now
}

// Registration describes a model to add to the registry.
type Registration struct {
	Name     string
	Model    Model
	Versions []string // The first version is active until SetVersion changes it.
}

type entry struct {
	name        string
	model       Model
	versions    []string
	active      string
	lastUpdated time.Time

	executions          int64
	failures            int64
	consecutiveFailures int
	totalLatency        time.Duration
}

// Registry is the set of models the service can run. It implements both
// core.ModelCatalog and core.InferenceEngine.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]*entry
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

var (
	_ core.ModelCatalog    = (*Registry)(nil)
	_ core.InferenceEngine = (*Registry)(nil)
)

// NewRegistry constructs an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "model_registry")
	}
	return &Registry{
		models:  make(map[string]*entry),
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}
}

// Register adds a model. Names must be unique and at least one version is required.
func (r *Registry) Register(reg Registration) error {
	name := strings.TrimSpace(reg.Name)
	if name == "" {
		return errors.New("model name is required")
	}
	if reg.Model == nil {
		return fmt.Errorf("model %s: implementation is required", name)
	}
	versions := make([]string, 0, len(reg.Versions))
	for _, v := range reg.Versions {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(versions, v) {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("model %s: at least one version is required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[name]; exists {
		return fmt.Errorf("model %s is already registered", name)
	}
	r.models[name] = &entry{
		name:        name,
		model:       reg.Model,
		versions:    versions,
		active:      versions[0],
		lastUpdated: r.now(),
	}
	return nil
}

// ResolveVersion returns version if the model knows it, or the active version
// when version is empty. Unknown models and versions are validation errors.
func (r *Registry) ResolveVersion(modelID, version string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[modelID]
	if !ok {
		return "", apperrors.ValidationField("model_id", fmt.Sprintf("unknown model %q", modelID))
	}
	if version == "" {
		return e.active, nil
	}
	if !slices.Contains(e.versions, version) {
		return "", apperrors.ValidationField("model_version",
			fmt.Sprintf("model %s has no version %q", modelID, version))
	}
	return version, nil
}

// Status returns the state of one model.
func (r *Registry) Status(modelID string) (model.ModelStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[modelID]
	if !ok {
		return model.ModelStatus{}, apperrors.NotFoundf("model %s not found", modelID)
	}
	return e.status(), nil
}

// List returns every model's state ordered by name.
func (r *Registry) List() []model.ModelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ModelStatus, 0, len(r.models))
	for _, e := range r.models {
		out = append(out, e.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetVersion activates a known version. Jobs already admitted keep the
// version they resolved at submission.
func (r *Registry) SetVersion(modelID, version string) (model.ModelStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.models[modelID]
	if !ok {
		return model.ModelStatus{}, apperrors.NotFoundf("model %s not found", modelID)
	}
	if !slices.Contains(e.versions, version) {
		return model.ModelStatus{}, apperrors.ValidationField("version",
			fmt.Sprintf("model %s has no version %q", modelID, version))
	}
	prev := e.active
	e.active = version
	e.lastUpdated = r.now()
	e.consecutiveFailures = 0
	if r.logger != nil {
		r.logger.Info("model version activated", "model", modelID, "from", prev, "to", version)
	}
	return e.status(), nil
}

// SupportsCancellation reports whether the model stops promptly on cancellation.
func (r *Registry) SupportsCancellation(modelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[modelID]
	return ok && e.model.Cooperative()
}

// Execute runs the request on its model and records per-model metrics.
func (r *Registry) Execute(ctx context.Context, req core.InferenceRequest) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.models[req.ModelID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model %s is not registered", req.ModelID)
	}

	start := r.now()
	out, err := e.model.Predict(ctx, req.ModelVersion, req.Payload)
	elapsed := r.now().Sub(start)

	r.record(e, elapsed, err)
	return out, err
}

func (r *Registry) record(e *entry, elapsed time.Duration, err error) {
	r.mu.Lock()
	e.executions++
	e.totalLatency += elapsed
	if err != nil {
		e.failures++
		e.consecutiveFailures++
	} else {
		e.consecutiveFailures = 0
	}
	degraded := e.consecutiveFailures == degradedAfter
	r.mu.Unlock()

	if degraded && r.logger != nil {
		r.logger.Warn("model degraded", "model", e.name, "consecutive_failures", degradedAfter, "error", err)
	}
	if r.metrics != nil {
		result := "success"
		if err != nil {
			result = "error"
		}
		r.metrics.Timing("model.execution", elapsed, map[string]string{"model": e.name, "result": result})
	}
}

// status must be called with the registry lock held.
func (e *entry) status() model.ModelStatus {
	state := model.ModelStateReady
	if e.consecutiveFailures >= degradedAfter {
		state = model.ModelStateDegraded
	}
	var avg float64
	if e.executions > 0 {
		avg = float64(e.totalLatency.Microseconds()) / float64(e.executions) / 1000
	}
	return model.ModelStatus{
		Name:        e.name,
		Kind:        e.model.Kind(),
		Version:     e.active,
		Versions:    slices.Clone(e.versions),
		Status:      state,
		Cooperative: e.model.Cooperative(),
		LastUpdated: e.lastUpdated,
		Metrics: model.ModelMetrics{
			Executions:   e.executions,
			Failures:     e.failures,
			AvgLatencyMs: avg,
		},
	}
}
