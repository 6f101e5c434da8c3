package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/internal/adapters/inference"
	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/data"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	domainjob "github.com/target/mmk-inference/internal/domain/job"
	apperrors "github.com/target/mmk-inference/internal/errors"
	"github.com/target/mmk-inference/internal/service"
)

const (
	aliceToken = "tok-alice"
	bobToken   = "tok-bob"
	adminToken = "tok-admin"
)

// tokenResolver maps fixed tokens to principals.
type tokenResolver map[string]domainauth.Principal

func (r tokenResolver) Resolve(_ context.Context, token string) (domainauth.Principal, error) {
	if p, ok := r[token]; ok {
		return p, nil
	}
	return domainauth.Principal{}, apperrors.NotFound("session not found")
}

func defaultResolver() tokenResolver {
	return tokenResolver{
		aliceToken: {ID: "alice", Role: domainauth.RoleUser},
		bobToken:   {ID: "bob", Role: domainauth.RoleUser},
		adminToken: {ID: "root", Role: domainauth.RoleAdmin},
	}
}

type apiHarnessOptions struct {
	latency     time.Duration
	cooperative bool
	workers     int
	capacity    int
	history     core.HistoryStore
}

type apiHarness struct {
	server    *httptest.Server
	scheduler *service.JobScheduler
	hub       *service.BroadcastHub
	channel   *domainjob.DefaultStatusChannel
	registry  *inference.Registry
}

func newAPIHarness(t *testing.T, opts apiHarnessOptions) *apiHarness {
	t.Helper()
	if opts.workers == 0 {
		opts.workers = 2
	}

	registry := inference.NewRegistry(inference.RegistryOptions{})
	require.NoError(t, registry.Register(inference.Registration{
		Name:     "mock_model",
		Model:    inference.NewMockModel(inference.MockModelOptions{Latency: opts.latency, Cooperative: opts.cooperative}),
		Versions: []string{"1.0.0", "1.1.0"},
	}))

	channel := domainjob.NewStatusChannel(domainjob.StatusChannelOptions{})
	cache, err := service.NewResultCache(service.ResultCacheOptions{
		Repo:       data.NewMemoryCacheRepo(data.MemoryCacheRepoOptions{}),
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)

	scheduler, err := service.NewJobScheduler(service.JobSchedulerOptions{
		Engine:      registry,
		Publisher:   channel,
		Cache:       cache,
		Workers:     opts.workers,
		Capacity:    opts.capacity,
		ExecTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	hub, err := service.NewBroadcastHub(service.BroadcastHubOptions{Channel: channel, Buffer: 16})
	require.NoError(t, err)

	gate, err := service.NewRequestGate(service.RequestGateOptions{
		Scheduler:       scheduler,
		Catalog:         registry,
		Cache:           cache,
		MaxPayloadBytes: 4096,
		MaxBatch:        4,
		MaxWait:         5 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	schedDone := make(chan error, 1)
	hubDone := make(chan error, 1)
	go func() { schedDone <- scheduler.Run(ctx) }()
	go func() { hubDone <- hub.Run(ctx) }()
	require.Eventually(t, func() bool { return channel.Stats().Subscribers == 1 }, 2*time.Second, 5*time.Millisecond)

	server := httptest.NewServer(NewRouter(RouterServices{
		Gate:         gate,
		Scheduler:    scheduler,
		Hub:          hub,
		Channel:      channel,
		Catalog:      registry,
		History:      opts.history,
		Resolver:     defaultResolver(),
		MaxBodyBytes: 1 << 16,
		PingInterval: 200 * time.Millisecond,
		WriteTimeout: time.Second,
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-schedDone
		<-hubDone
	})
	return &apiHarness{server: server, scheduler: scheduler, hub: hub, channel: channel, registry: registry}
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r apiResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dst), "body: %s", r.body)
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return apiResponse{status: resp.StatusCode, header: resp.Header, body: raw}
}
