package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-inference/internal/mocks"
)

func TestNewHistoryPruner_Validation(t *testing.T) {
	store := mocks.NewMockHistoryStore(gomock.NewController(t))

	tests := []struct {
		name string
		opts HistoryPrunerOptions
	}{
		{name: "missing store", opts: HistoryPrunerOptions{Schedule: "@daily", Retention: time.Hour}},
		{name: "missing retention", opts: HistoryPrunerOptions{Store: store, Schedule: "@daily"}},
		{name: "bad schedule", opts: HistoryPrunerOptions{Store: store, Schedule: "not a cron", Retention: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHistoryPruner(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestHistoryPruner_NextRun(t *testing.T) {
	store := mocks.NewMockHistoryStore(gomock.NewController(t))
	p, err := NewHistoryPruner(HistoryPrunerOptions{Store: store, Schedule: "17 3 * * *", Retention: time.Hour})
	require.NoError(t, err)

	from := time.Date(2025, 5, 10, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 5, 11, 3, 17, 0, 0, time.UTC), p.NextRun(from))
}

func TestHistoryPruner_PruneOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockHistoryStore(ctrl)
	now := time.Date(2025, 5, 10, 4, 0, 0, 0, time.UTC)
	sink := newCountingSink()

	p, err := NewHistoryPruner(HistoryPrunerOptions{
		Store:     store,
		Schedule:  "@daily",
		Retention: 30 * 24 * time.Hour,
		Metrics:   sink,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	cutoff := now.Add(-30 * 24 * time.Hour)
	store.EXPECT().Prune(gomock.Any(), cutoff).Return(int64(7), nil)

	n, err := p.PruneOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, int64(7), sink.count("history.pruned_records"))
	assert.Equal(t, "success", sink.lastTags("history.prune")["result"])

	boom := errors.New("connection reset")
	store.EXPECT().Prune(gomock.Any(), cutoff).Return(int64(0), boom)
	_, err = p.PruneOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "error", sink.lastTags("history.prune")["result"])
}

func TestHistoryPruner_RunFiresOnSchedule(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockHistoryStore(ctrl)

	pruned := make(chan struct{}, 4)
	store.EXPECT().Prune(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, time.Time) (int64, error) {
			pruned <- struct{}{}
			return 0, nil
		}).MinTimes(1)

	// "@every" keeps the test fast while exercising the cron parser.
	p, err := NewHistoryPruner(HistoryPrunerOptions{Store: store, Schedule: "@every 1s", Retention: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-pruned:
	case <-time.After(5 * time.Second):
		t.Fatal("prune did not run")
	}
	cancel()
	require.NoError(t, <-done)
}
