package httpx

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/internal/domain/model"
)

func TestModelHandlers(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	t.Run("list", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/api/models", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.status)
		var out modelListResponse
		resp.decode(t, &out)
		require.Len(t, out.Models, 1)
		assert.Equal(t, "mock_model", out.Models[0].Name)
		assert.Equal(t, "1.0.0", out.Models[0].Version)
	})

	t.Run("get unknown", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/api/models/nope", aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.status)
	})

	t.Run("user may not change version", func(t *testing.T) {
		resp := h.do(t, http.MethodPut, "/api/models/mock_model/version", aliceToken, map[string]string{"version": "1.1.0"})
		assert.Equal(t, http.StatusForbidden, resp.status)
	})

	t.Run("admin changes version", func(t *testing.T) {
		resp := h.do(t, http.MethodPut, "/api/models/mock_model/version", adminToken, map[string]string{"version": "1.1.0"})
		require.Equal(t, http.StatusOK, resp.status, string(resp.body))
		var st model.ModelStatus
		resp.decode(t, &st)
		assert.Equal(t, "1.1.0", st.Version)

		get := h.do(t, http.MethodGet, "/api/models/mock_model", aliceToken, nil)
		require.Equal(t, http.StatusOK, get.status)
		get.decode(t, &st)
		assert.Equal(t, "1.1.0", st.Version)
	})

	t.Run("admin unknown version", func(t *testing.T) {
		resp := h.do(t, http.MethodPut, "/api/models/mock_model/version", adminToken, map[string]string{"version": "7"})
		require.Equal(t, http.StatusBadRequest, resp.status)
		var body errorBody
		resp.decode(t, &body)
		assert.Equal(t, "version", body.Field)
	})
}

func TestStatsHandlers(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})

	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/api/stats", aliceToken, nil).status)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/stats", "", nil).status)

	resp := h.do(t, http.MethodGet, "/api/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.status)
	var out statsResponse
	resp.decode(t, &out)
	assert.Equal(t, 2, out.Scheduler.Workers)
	assert.Equal(t, 1, out.Channel.Subscribers)
}
