// Package inference provides the model registry and the concrete model
// variants that back core.InferenceEngine and core.ModelCatalog.
package inference

import (
	"context"
	"encoding/json"
)

// Model kinds reported in model status.
const (
	KindMock = "mock"
	KindHTTP = "http"
)

// Model runs predictions for one registered model id.
type Model interface {
	// Kind names the variant, e.g. "mock" or "http".
	Kind() string
	// Cooperative reports whether Predict returns promptly when ctx is cancelled.
	Cooperative() bool
	// Predict runs the given version of the model on input.
	Predict(ctx context.Context, version string, input json.RawMessage) (json.RawMessage, error)
}

// Prediction is the output document produced by the built-in models.
type Prediction struct {
	Prediction float64        `json:"prediction"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
