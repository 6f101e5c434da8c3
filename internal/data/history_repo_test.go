package data

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/domain/model"
	"github.com/target/mmk-inference/internal/testutil"
)

func terminalJob(id, owner string, status model.JobStatus, finished time.Time) model.Job {
	created := finished.Add(-2 * time.Second)
	started := finished.Add(-1500 * time.Millisecond)
	job := model.Job{
		ID:           id,
		Fingerprint:  "fp-" + id,
		ModelID:      "mock_model",
		ModelVersion: "1.0.0",
		Payload:      json.RawMessage(`{"features":[1,2,3]}`),
		Status:       status,
		SubmittedBy:  owner,
		CreatedAt:    created,
		StartedAt:    &started,
		FinishedAt:   &finished,
	}
	switch status {
	case model.JobStatusSucceeded:
		job.Result = json.RawMessage(`{"prediction":0.42}`)
	case model.JobStatusFailed:
		job.Error = &model.JobError{Code: model.JobErrorTimeout, Message: "execution exceeded 1s"}
	}
	return job
}

// exerciseHistoryStore runs the behaviour shared by every history backend.
func exerciseHistoryStore(t *testing.T, store core.HistoryStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, terminalJob("j1", "alice", model.JobStatusSucceeded, base)))
	require.NoError(t, store.Append(ctx, terminalJob("j2", "bob", model.JobStatusFailed, base.Add(time.Minute))))
	require.NoError(t, store.Append(ctx, terminalJob("j3", "alice", model.JobStatusCancelled, base.Add(2*time.Minute))))

	t.Run("duplicate append keeps first record", func(t *testing.T) {
		dup := terminalJob("j1", "alice", model.JobStatusFailed, base)
		require.NoError(t, store.Append(ctx, dup))

		recs, err := store.List(ctx, model.HistoryListOptions{Owner: "alice"})
		require.NoError(t, err)
		for _, r := range recs {
			if r.JobID == "j1" {
				assert.Equal(t, model.JobStatusSucceeded, r.Status)
			}
		}
	})

	t.Run("non terminal job rejected", func(t *testing.T) {
		job := terminalJob("j9", "alice", model.JobStatusRunning, base)
		require.ErrorIs(t, store.Append(ctx, job), ErrNotTerminalJob)

		job.ID = ""
		require.ErrorIs(t, store.Append(ctx, job), ErrJobIDRequired)
	})

	t.Run("list newest first", func(t *testing.T) {
		recs, err := store.List(ctx, model.HistoryListOptions{})
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, []string{"j3", "j2", "j1"}, []string{recs[0].JobID, recs[1].JobID, recs[2].JobID})
	})

	t.Run("owner filter and fields", func(t *testing.T) {
		recs, err := store.List(ctx, model.HistoryListOptions{Owner: "bob"})
		require.NoError(t, err)
		require.Len(t, recs, 1)

		r := recs[0]
		assert.Equal(t, "j2", r.JobID)
		assert.Equal(t, model.JobStatusFailed, r.Status)
		assert.Equal(t, "mock_model", r.ModelID)
		assert.Equal(t, "fp-j2", r.Fingerprint)
		assert.JSONEq(t, `{"features":[1,2,3]}`, string(r.Input))
		assert.Empty(t, r.Output)
		require.NotNil(t, r.ErrorCode)
		assert.Equal(t, model.JobErrorTimeout, *r.ErrorCode)
		require.NotNil(t, r.ErrorMessage)
		assert.Equal(t, "execution exceeded 1s", *r.ErrorMessage)
		assert.Equal(t, int64(1500), r.ProcessingTimeMs)
		assert.True(t, r.FinishedAt.Equal(base.Add(time.Minute)))
	})

	t.Run("success output kept", func(t *testing.T) {
		recs, err := store.List(ctx, model.HistoryListOptions{Owner: "alice", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "j1", recs[0].JobID)
		assert.JSONEq(t, `{"prediction":0.42}`, string(recs[0].Output))
		assert.Nil(t, recs[0].ErrorCode)
	})

	t.Run("prune removes older records", func(t *testing.T) {
		n, err := store.Prune(ctx, base.Add(90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		recs, err := store.List(ctx, model.HistoryListOptions{})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "j3", recs[0].JobID)
	})

	t.Run("closed store refuses work", func(t *testing.T) {
		require.NoError(t, store.Close())
		require.ErrorIs(t, store.Append(ctx, terminalJob("j4", "alice", model.JobStatusSucceeded, base)), ErrHistoryClosed)
		_, err := store.List(ctx, model.HistoryListOptions{})
		require.ErrorIs(t, err, ErrHistoryClosed)
		_, err = store.Prune(ctx, base)
		require.ErrorIs(t, err, ErrHistoryClosed)
	})
}

func TestSQLiteHistoryRepo(t *testing.T) {
	repo, err := OpenSQLiteHistory(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	exerciseHistoryStore(t, repo)
}

func TestSQLiteHistoryRepo_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	repo, err := OpenSQLiteHistory(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, terminalJob("j1", "alice", model.JobStatusSucceeded, testutil.TestTime())))
	require.NoError(t, repo.Close())

	reopened, err := OpenSQLiteHistory(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	recs, err := reopened.List(ctx, model.HistoryListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].FinishedAt.Equal(testutil.TestTime()))
}

func TestPredictionRepo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	exerciseHistoryStore(t, NewPredictionRepo(db))
}
