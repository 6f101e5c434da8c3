package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/data"
	"github.com/target/mmk-inference/internal/domain/model"
)

func sqliteCommandContext(t *testing.T) (*commandContext, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.AppConfig{
			History: config.HistoryConfig{
				Driver:     config.HistoryDriverSQLite,
				SQLitePath: filepath.Join(t.TempDir(), "history.db"),
				Retention:  time.Hour,
			},
			Cache: config.CacheConfig{Backend: config.CacheBackendMemory},
		},
		Out: out,
	}, out
}

func seedHistory(t *testing.T, path string, owner string, finished time.Time) string {
	t.Helper()
	store, err := data.OpenSQLiteHistory(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	started := finished.Add(-time.Second)
	job := model.Job{
		ID:           "job-" + owner + "-" + finished.Format("150405"),
		Fingerprint:  "fp",
		ModelID:      "mock_model",
		ModelVersion: "1.0.0",
		Payload:      json.RawMessage(`{"x":1}`),
		Status:       model.JobStatusSucceeded,
		Result:       json.RawMessage(`{"prediction":0.5}`),
		SubmittedBy:  owner,
		CreatedAt:    started,
		StartedAt:    &started,
		FinishedAt:   &finished,
	}
	require.NoError(t, store.Append(context.Background(), job))
	return job.ID
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		assert.Contains(t, buf.String(), name)
	}
}

func TestParseIssueSessionFlags(t *testing.T) {
	opts, err := parseIssueSessionFlags([]string{"--user", " alice ", "--groups", "users, ,admins", "--ttl", "1h"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "alice", opts.User)
	assert.Equal(t, []string{"users", "admins"}, opts.Groups)
	assert.Equal(t, time.Hour, opts.TTL)

	_, err = parseIssueSessionFlags(nil, io.Discard)
	require.Error(t, err)
	_, err = parseIssueSessionFlags([]string{"--user", "a", "--ttl", "-1s"}, io.Discard)
	require.Error(t, err)
}

func TestParseListHistoryFlags(t *testing.T) {
	opts, err := parseListHistoryFlags([]string{"--owner", "bob", "--limit", "5"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, listHistoryOptions{Owner: "bob", Limit: 5}, opts)

	_, err = parseListHistoryFlags([]string{"--limit", "0"}, io.Discard)
	require.Error(t, err)
	_, err = parseListHistoryFlags([]string{"--offset", "-1"}, io.Discard)
	require.Error(t, err)
}

func TestListAndPruneHistory(t *testing.T) {
	cmdCtx, out := sqliteCommandContext(t)
	require.NoError(t, runMigrate(cmdCtx, nil))
	assert.Contains(t, out.String(), "migrations applied (sqlite)")

	now := time.Now().UTC()
	recent := seedHistory(t, cmdCtx.Config.History.SQLitePath, "alice", now.Add(-time.Minute))
	old := seedHistory(t, cmdCtx.Config.History.SQLitePath, "bob", now.Add(-48*time.Hour))

	out.Reset()
	require.NoError(t, runListHistory(cmdCtx, []string{"--owner", "alice"}))
	assert.Contains(t, out.String(), recent)
	assert.Contains(t, out.String(), "mock_model@1.0.0")
	assert.NotContains(t, out.String(), old)

	out.Reset()
	require.NoError(t, runPruneHistory(cmdCtx, []string{"--older-than", "24h"}))
	assert.Contains(t, out.String(), "pruned 1 record(s)")

	out.Reset()
	require.NoError(t, runListHistory(cmdCtx, nil))
	assert.Contains(t, out.String(), recent)
	assert.NotContains(t, out.String(), old)
}

func TestRenderHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderHistory(&buf, nil))
	assert.Equal(t, "No history records found.\n", buf.String())
}

func TestCommandsRejectUnsupportedBackends(t *testing.T) {
	cmdCtx, _ := sqliteCommandContext(t)

	require.Error(t, runClearCache(cmdCtx, nil), "memory cache cannot be cleared remotely")

	cmdCtx.Config.History.Driver = config.HistoryDriverNone
	require.Error(t, runListHistory(cmdCtx, nil))
	require.Error(t, runRevokeSession(cmdCtx, nil), "--id is required")
}
