package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/domain/model"
)

// fakeEngine is a controllable InferenceEngine. While gate is non-nil every
// execution blocks until the gate is closed; cooperative executions also
// return early when their context ends.
type fakeEngine struct {
	mu          sync.Mutex
	calls       []core.InferenceRequest
	gate        chan struct{}
	started     chan core.InferenceRequest
	cooperative bool
	err         error
	panicWith   any
	result      func(core.InferenceRequest) json.RawMessage
}

func newFakeEngine(cooperative bool) *fakeEngine {
	return &fakeEngine{
		gate:        make(chan struct{}),
		started:     make(chan core.InferenceRequest, 64),
		cooperative: cooperative,
	}
}

func (e *fakeEngine) Execute(ctx context.Context, req core.InferenceRequest) (json.RawMessage, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	gate, cooperative, err, panicWith, result := e.gate, e.cooperative, e.err, e.panicWith, e.result
	e.mu.Unlock()

	e.started <- req

	if gate != nil {
		if cooperative {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			<-gate
		}
	}
	if panicWith != nil {
		panic(panicWith)
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result(req), nil
	}
	return json.RawMessage(`{"model":"` + req.ModelID + `"}`), nil
}

func (e *fakeEngine) SupportsCancellation(string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooperative
}

// open releases every blocked and future execution.
func (e *fakeEngine) open() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// waitStarted blocks until n executions have started.
func (e *fakeEngine) waitStarted(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-e.started:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for execution to start")
		}
	}
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	seq    uint64
	events []model.JobEvent
}

func (p *recordingPublisher) Publish(ev model.JobEvent) model.JobEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	ev.Seq = p.seq
	p.events = append(p.events, ev)
	return ev
}

func (p *recordingPublisher) statuses(jobID string) []model.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.JobStatus
	for _, ev := range p.events {
		if ev.JobID == jobID {
			out = append(out, ev.Status)
		}
	}
	return out
}

// testClock is a mutable clock safe for concurrent use.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// startScheduler runs s until the test ends and returns a function that stops
// it and waits for Run to return.
func startScheduler(t *testing.T, s *JobScheduler) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Errorf("scheduler did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func waitJob(t *testing.T, s *JobScheduler, id string) model.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := s.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func testJob(fp string) model.Job {
	return model.Job{
		Fingerprint:  fp,
		ModelID:      "mock_model",
		ModelVersion: "1.0.0",
		Payload:      json.RawMessage(`{"x":1}`),
		SubmittedBy:  "alice",
	}
}

// countingSink records Count calls by metric name.
type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	tags   map[string][]map[string]string
}

func newCountingSink() *countingSink {
	return &countingSink{counts: make(map[string]int64), tags: make(map[string][]map[string]string)}
}

func (s *countingSink) Count(name string, value int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] += value
	s.tags[name] = append(s.tags[name], tags)
}

func (s *countingSink) Gauge(string, float64, map[string]string) {}

func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

func (s *countingSink) count(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func (s *countingSink) lastTags(name string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.tags[name]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}
