package httpx

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/internal/domain/model"
)

func dialStream(t *testing.T, h *apiHarness, query, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/stream" + query
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, ws *websocket.Conn) streamFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f streamFrame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestStream_DeliversOwnEvents(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	ws, _, err := dialStream(t, h, "", aliceToken)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return h.hub.Stats().Subscribers == 1 }, 2*time.Second, 5*time.Millisecond)

	// Bob's job must never reach alice's stream.
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/jobs?wait=2s", bobToken, submitBody("bob")).status)
	var res model.SubmitResult
	h.do(t, http.MethodPost, "/api/jobs?wait=2s", aliceToken, submitBody("alice")).decode(t, &res)

	var statuses []model.JobStatus
	for len(statuses) < 3 {
		f := readFrame(t, ws)
		if f.Type != frameEvent {
			continue
		}
		require.NotNil(t, f.Event)
		assert.Equal(t, "alice", f.Event.Owner)
		assert.Equal(t, res.JobID, f.Event.JobID)
		statuses = append(statuses, f.Event.Status)
	}
	assert.Equal(t, []model.JobStatus{model.JobStatusQueued, model.JobStatusRunning, model.JobStatusSucceeded}, statuses)
}

func TestStream_FilterExpression(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	ws, _, err := dialStream(t, h, "?filter="+strings.ReplaceAll("status == 'succeeded'", " ", "%20"), aliceToken)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return h.hub.Stats().Subscribers == 1 }, 2*time.Second, 5*time.Millisecond)

	h.do(t, http.MethodPost, "/api/jobs?wait=2s", aliceToken, submitBody("f"))

	f := readFrame(t, ws)
	require.Equal(t, frameEvent, f.Type)
	assert.Equal(t, model.JobStatusSucceeded, f.Event.Status)
}

func TestStream_RefusedBeforeUpgrade(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	tests := []struct {
		name   string
		query  string
		token  string
		status int
	}{
		{"anonymous", "", "", http.StatusUnauthorized},
		{"foreign owner", "?owner=bob", aliceToken, http.StatusForbidden},
		{"all owners as user", "?owner=*", aliceToken, http.StatusForbidden},
		{"bad filter", "?filter=%5B%5B", aliceToken, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, resp, err := dialStream(t, h, tt.query, tt.token)
			if ws != nil {
				_ = ws.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, h.hub.Stats().Subscribers)
}

func TestStream_ClientCloseUnregisters(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	ws, _, err := dialStream(t, h, "?owner=*", adminToken)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.hub.Stats().Subscribers == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return h.hub.Stats().Subscribers == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestStream_SurvivesSteadyTraffic(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	ws, _, err := dialStream(t, h, "?owner=*", adminToken)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return h.hub.Stats().Subscribers == 1 }, 2*time.Second, 5*time.Millisecond)

	// Events arrive faster than the 200ms ping interval for several
	// intervals; the connection must stay up the whole time.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(40 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.channel.Publish(model.JobEvent{JobID: "steady", Owner: "root", Status: model.JobStatusRunning})
			}
		}
	}()

	until := time.Now().Add(1200 * time.Millisecond)
	frames := 0
	for time.Now().Before(until) {
		f := readFrame(t, ws)
		if f.Type == frameEvent {
			frames++
		}
	}
	assert.Greater(t, frames, 10)
	assert.Equal(t, 1, h.hub.Stats().Subscribers)
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.example.com", "tools.example.com"}
	assert.True(t, originAllowed("", allowed))
	assert.True(t, originAllowed("https://app.example.com", allowed))
	assert.True(t, originAllowed("http://tools.example.com", allowed))
	assert.False(t, originAllowed("https://evil.example.com", allowed))
	assert.True(t, originAllowed("https://anything", []string{"*"}))
}
