package inference

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_Deterministic(t *testing.T) {
	m := NewMockModel(MockModelOptions{})
	ctx := context.Background()
	input := json.RawMessage(`{"features":[1,2,3]}`)

	a, err := m.Predict(ctx, "1.0.0", input)
	require.NoError(t, err)
	b, err := m.Predict(ctx, "1.0.0", input)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))

	var p Prediction
	require.NoError(t, json.Unmarshal(a, &p))
	assert.GreaterOrEqual(t, p.Prediction, 0.0)
	assert.Less(t, p.Prediction, 1.0)
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.Less(t, p.Confidence, 1.0)
	assert.Equal(t, "1.0.0", p.Metadata["model_version"])

	c, err := m.Predict(ctx, "1.1.0", input)
	require.NoError(t, err)
	assert.NotEqual(t, string(a), string(c))
}

func TestMockModel_CooperativeStopsOnCancel(t *testing.T) {
	m := NewMockModel(MockModelOptions{Latency: time.Minute, Cooperative: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := m.Predict(ctx, "1.0.0", json.RawMessage(`{}`))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, m.Cooperative())
}

func TestMockModel_NonCooperativeIgnoresCancel(t *testing.T) {
	m := NewMockModel(MockModelOptions{Latency: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := m.Predict(ctx, "1.0.0", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, json.Valid(out))
	assert.False(t, m.Cooperative())
	assert.Equal(t, KindMock, m.Kind())
}
