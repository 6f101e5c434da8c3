package httpx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-inference/internal/domain/model"
	"github.com/target/mmk-inference/internal/mocks"
)

func TestHistoryHandlers_Disabled(t *testing.T) {
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true})
	resp := h.do(t, http.MethodGet, "/api/history", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestHistoryHandlers_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockHistoryStore(ctrl)
	h := newAPIHarness(t, apiHarnessOptions{cooperative: true, history: store})

	t.Run("defaults to own history", func(t *testing.T) {
		store.EXPECT().
			List(gomock.Any(), model.HistoryListOptions{Owner: "alice", Limit: defaultHistoryPageSize}).
			Return([]model.HistoryRecord{{JobID: "j1", SubmittedBy: "alice", Status: model.JobStatusSucceeded}}, nil)

		resp := h.do(t, http.MethodGet, "/api/history", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.status, string(resp.body))
		var out historyResponse
		resp.decode(t, &out)
		require.Len(t, out.Records, 1)
		assert.Equal(t, "j1", out.Records[0].JobID)
	})

	t.Run("foreign owner forbidden", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/api/history?owner=bob", aliceToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.status)
	})

	t.Run("all owners requires admin", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/api/history?owner=*", aliceToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.status)

		store.EXPECT().
			List(gomock.Any(), model.HistoryListOptions{Limit: 10, Offset: 5}).
			Return(nil, nil)
		resp = h.do(t, http.MethodGet, "/api/history?owner=*&limit=10&offset=5", adminToken, nil)
		require.Equal(t, http.StatusOK, resp.status)
		assert.JSONEq(t, `{"records":[],"limit":10,"offset":5}`, string(resp.body))
	})

	t.Run("limit clamped", func(t *testing.T) {
		store.EXPECT().
			List(gomock.Any(), model.HistoryListOptions{Owner: "bob", Limit: maxHistoryPageSize}).
			Return(nil, nil)
		resp := h.do(t, http.MethodGet, "/api/history?owner=bob&limit=100000", adminToken, nil)
		assert.Equal(t, http.StatusOK, resp.status)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		store.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk on fire"))
		resp := h.do(t, http.MethodGet, "/api/history", bobToken, nil)
		require.Equal(t, http.StatusInternalServerError, resp.status)
		assert.NotContains(t, string(resp.body), "disk on fire")
	})
}
