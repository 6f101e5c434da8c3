package inference

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// MockModelOptions configures a MockModel.
type MockModelOptions struct {
	Latency     time.Duration // Optional: simulated execution time
	Cooperative bool          // Whether the simulated wait stops on cancellation
}

// MockModel produces deterministic predictions derived from a hash of the
// version and input. Equal inputs always yield equal outputs.
type MockModel struct {
	latency     time.Duration
	cooperative bool
}

// NewMockModel constructs a MockModel.
func NewMockModel(opts MockModelOptions) *MockModel {
	latency := opts.Latency
	if latency < 0 {
		latency = 0
	}
	return &MockModel{latency: latency, cooperative: opts.Cooperative}
}

func (m *MockModel) Kind() string { return KindMock }

func (m *MockModel) Cooperative() bool { return m.cooperative }

// Predict waits out the configured latency and returns a prediction in [0, 1)
// with a confidence in [0, 1).
func (m *MockModel) Predict(ctx context.Context, version string, input json.RawMessage) (json.RawMessage, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	h := sha256.New()
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(input)
	sum := h.Sum(nil)

	out := Prediction{
		Prediction: unitFloat(sum[0:8]),
		Confidence: unitFloat(sum[8:16]),
		Metadata:   map[string]any{"model_version": version},
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction: %w", err)
	}
	return b, nil
}

func (m *MockModel) wait(ctx context.Context) error {
	if m.latency == 0 {
		return nil
	}
	if !m.cooperative {
		time.Sleep(m.latency)
		return nil
	}
	t := time.NewTimer(m.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// unitFloat maps 8 bytes onto [0, 1) with 53 bits of precision.
func unitFloat(b []byte) float64 {
	v := binary.BigEndian.Uint64(b) >> 11
	f := float64(v) / float64(uint64(1)<<53)
	return math.Round(f*1e6) / 1e6
}
