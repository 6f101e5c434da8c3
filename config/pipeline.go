package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// PipelineConfig controls the job scheduler and request gate.
type PipelineConfig struct {
	// Workers is the number of concurrent executions.
	Workers int `env:"WORKERS" envDefault:"4"`

	// QueueCapacity bounds admitted flights, queued or running. Zero means
	// twice the worker count.
	QueueCapacity int `env:"QUEUE_CAPACITY" envDefault:"0"`

	// ExecTimeout bounds a single model execution.
	ExecTimeout time.Duration `env:"EXEC_TIMEOUT" envDefault:"30s"`

	// StatusRetention is how long terminal jobs stay queryable.
	StatusRetention time.Duration `env:"STATUS_RETENTION" envDefault:"15m"`

	// MaxPayloadBytes caps a single submission payload.
	MaxPayloadBytes int `env:"MAX_PAYLOAD_BYTES" envDefault:"65536"`

	// MaxBatch caps the number of items in a batch submission.
	MaxBatch int `env:"MAX_BATCH" envDefault:"32"`

	// MaxWait caps the synchronous wait a caller may request.
	MaxWait time.Duration `env:"MAX_WAIT" envDefault:"30s"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.Workers < 1 {
		p.Workers = 1
	}
	if p.QueueCapacity <= 0 {
		p.QueueCapacity = 2 * p.Workers
	}
	if p.ExecTimeout < 100*time.Millisecond {
		p.ExecTimeout = 100 * time.Millisecond
	}
	if p.StatusRetention < time.Second {
		p.StatusRetention = time.Second
	}
	if p.MaxPayloadBytes < 2 {
		p.MaxPayloadBytes = 2
	}
	if p.MaxBatch < 1 {
		p.MaxBatch = 1
	}
	if p.MaxWait < 0 {
		p.MaxWait = 0
	}
}

// HubConfig controls live subscription fan-out.
type HubConfig struct {
	// SubscriberBuffer is the per-subscription event buffer; overflow drops the oldest event.
	SubscriberBuffer int `env:"SUBSCRIBER_BUFFER" envDefault:"64"`

	// Shards is the number of independently locked subscription registries.
	Shards int `env:"SHARDS" envDefault:"8"`

	// ChannelBuffer is the hub's buffer on the status channel.
	ChannelBuffer int `env:"CHANNEL_BUFFER" envDefault:"1024"`

	// PingInterval keeps idle WebSocket connections alive.
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"30s"`

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// AllowedOrigins lists accepted WebSocket origins; empty allows same-origin only.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Sanitize applies guardrails to hub configuration values.
func (h *HubConfig) Sanitize() {
	if h.SubscriberBuffer < 1 {
		h.SubscriberBuffer = 1
	}
	if h.Shards < 1 {
		h.Shards = 1
	}
	if h.ChannelBuffer < 1 {
		h.ChannelBuffer = 1
	}
	if h.PingInterval < time.Second {
		h.PingInterval = time.Second
	}
	if h.WriteTimeout < time.Second {
		h.WriteTimeout = time.Second
	}
}

// HistoryDriver selects where terminal job snapshots are persisted.
type HistoryDriver string

const (
	// HistoryDriverNone disables history.
	HistoryDriverNone HistoryDriver = "none"
	// HistoryDriverPostgres stores history in PostgreSQL.
	HistoryDriverPostgres HistoryDriver = "postgres"
	// HistoryDriverSQLite stores history in a local SQLite file.
	HistoryDriverSQLite HistoryDriver = "sqlite"
)

// UnmarshalText implements encoding.TextUnmarshaler for HistoryDriver.
func (d *HistoryDriver) UnmarshalText(text []byte) error {
	v := HistoryDriver(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case HistoryDriverNone, HistoryDriverPostgres, HistoryDriverSQLite:
		*d = v
		return nil
	default:
		return fmt.Errorf("invalid HistoryDriver: %q (valid options: none, postgres, sqlite)", v)
	}
}

// HistoryConfig controls the optional prediction history sink.
type HistoryConfig struct {
	Driver HistoryDriver `env:"DRIVER" envDefault:"none"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `env:"SQLITE_PATH" envDefault:"inference-history.db"`

	// AppendTimeout bounds a single history write.
	AppendTimeout time.Duration `env:"APPEND_TIMEOUT" envDefault:"2s"`

	// Retention is how long history records are kept by the pruner.
	Retention time.Duration `env:"RETENTION" envDefault:"720h"`

	// PruneSchedule is a standard five-field cron expression.
	PruneSchedule string `env:"PRUNE_SCHEDULE" envDefault:"17 3 * * *"`
}

// Sanitize applies guardrails to history configuration values.
func (h *HistoryConfig) Sanitize() {
	if h.Driver == "" {
		h.Driver = HistoryDriverNone
	}
	if h.AppendTimeout <= 0 {
		h.AppendTimeout = 2 * time.Second
	}
	if h.Retention < time.Hour {
		h.Retention = time.Hour
	}
	h.PruneSchedule = strings.TrimSpace(h.PruneSchedule)
}

// Enabled reports whether history is persisted.
func (h *HistoryConfig) Enabled() bool {
	return h.Driver != HistoryDriverNone && h.Driver != ""
}

// Validate checks the prune schedule and driver settings.
func (h *HistoryConfig) Validate() error {
	if h.Driver == HistoryDriverSQLite && strings.TrimSpace(h.SQLitePath) == "" {
		return errors.New("HISTORY_SQLITE_PATH is required for the sqlite history driver")
	}
	if _, err := cron.ParseStandard(h.PruneSchedule); err != nil {
		return fmt.Errorf("invalid HISTORY_PRUNE_SCHEDULE %q: %w", h.PruneSchedule, err)
	}
	return nil
}

// ModelsConfig configures the models the registry serves.
type ModelsConfig struct {
	// MockName is the id of the built-in deterministic model; empty disables it.
	MockName string `env:"MOCK_NAME" envDefault:"mock_model"`

	// MockVersions lists known versions; the first is active.
	MockVersions []string `env:"MOCK_VERSIONS" envDefault:"1.0.0" envSeparator:","`

	// MockLatency is the simulated execution time.
	MockLatency time.Duration `env:"MOCK_LATENCY" envDefault:"100ms"`

	// MockCooperative controls whether the mock honours cancellation.
	MockCooperative bool `env:"MOCK_COOPERATIVE" envDefault:"true"`

	// HTTPEndpoints registers remote models as "name=url" pairs.
	HTTPEndpoints []string `env:"HTTP_ENDPOINTS" envSeparator:";"`

	// HTTPVersions lists the versions accepted by remote models; the first is active.
	HTTPVersions []string `env:"HTTP_VERSIONS" envDefault:"1.0.0" envSeparator:","`

	// HTTPTimeout bounds a single remote model call.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to model configuration values.
func (m *ModelsConfig) Sanitize() {
	m.MockName = strings.TrimSpace(m.MockName)
	m.MockVersions = trimNonEmpty(m.MockVersions)
	if len(m.MockVersions) == 0 {
		m.MockVersions = []string{"1.0.0"}
	}
	m.HTTPVersions = trimNonEmpty(m.HTTPVersions)
	if len(m.HTTPVersions) == 0 {
		m.HTTPVersions = []string{"1.0.0"}
	}
	m.HTTPEndpoints = trimNonEmpty(m.HTTPEndpoints)
	if m.MockLatency < 0 {
		m.MockLatency = 0
	}
	if m.HTTPTimeout <= 0 {
		m.HTTPTimeout = 30 * time.Second
	}
}

// ParsedHTTPEndpoints splits HTTPEndpoints into name to URL pairs.
func (m *ModelsConfig) ParsedHTTPEndpoints() (map[string]string, error) {
	out := make(map[string]string, len(m.HTTPEndpoints))
	for _, pair := range m.HTTPEndpoints {
		name, url, ok := strings.Cut(pair, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid MODEL_HTTP_ENDPOINTS entry %q (want name=url)", pair)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate model %q in MODEL_HTTP_ENDPOINTS", name)
		}
		out[name] = url
	}
	return out, nil
}

// Validate checks the model list is usable.
func (m *ModelsConfig) Validate() error {
	endpoints, err := m.ParsedHTTPEndpoints()
	if err != nil {
		return err
	}
	if m.MockName == "" && len(endpoints) == 0 {
		return errors.New("no models configured")
	}
	if _, clash := endpoints[m.MockName]; clash && m.MockName != "" {
		return fmt.Errorf("model %q is configured twice", m.MockName)
	}
	return nil
}

func trimNonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
