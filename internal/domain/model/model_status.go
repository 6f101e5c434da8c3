package model

import "time"

// ModelState describes whether a model can accept work.
type ModelState string

const (
	// ModelStateReady indicates the model accepts submissions.
	ModelStateReady ModelState = "ready"
	// ModelStateDegraded indicates recent executions mostly failed.
	ModelStateDegraded ModelState = "degraded"
)

// ModelMetrics are per-model execution counters.
type ModelMetrics struct {
	Executions   int64   `json:"executions"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ModelStatus is the externally visible state of a registered model.
type ModelStatus struct {
	Name        string       `json:"name"`
	Kind        string       `json:"kind"`
	Version     string       `json:"version"`
	Versions    []string     `json:"versions"`
	Status      ModelState   `json:"status"`
	Cooperative bool         `json:"cooperative"`
	LastUpdated time.Time    `json:"last_updated"`
	Metrics     ModelMetrics `json:"metrics"`
}

// SetModelVersionRequest activates a known version of a model.
type SetModelVersionRequest struct {
	Version string `json:"version"`
}
