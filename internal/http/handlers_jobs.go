// Package httpx exposes the inference pipeline over HTTP and WebSocket.
package httpx

import (
	"net/http"

	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
	"github.com/target/mmk-inference/internal/service"
)

// JobHandlers provides HTTP handlers for job submission, status and cancellation.
type JobHandlers struct {
	Gate *service.RequestGate
}

type batchSubmitRequest struct {
	Requests []model.SubmitRequest `json:"requests"`
}

type batchSubmitResponse struct {
	Items []model.BatchItemResult `json:"items"`
}

// Submit handles POST /api/jobs. A queued job answers 202; a cached result
// or a job that finished within the requested wait answers 200.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	wait, err := parseWait(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	var req model.SubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Gate.SubmitAndWait(r.Context(), PrincipalFromContext(r.Context()), req, wait)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	status := http.StatusAccepted
	if res.Cached || (res.Job != nil && res.Job.Status.Terminal()) {
		status = http.StatusOK
	}
	WriteJSON(w, status, res)
}

// SubmitBatch handles POST /api/jobs/batch. Per-item failures are reported
// inline; only authorization and batch size fail the request.
func (h *JobHandlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchSubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	items, err := h.Gate.SubmitBatch(r.Context(), PrincipalFromContext(r.Context()), req.Requests)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, batchSubmitResponse{Items: items})
}

// Get handles GET /api/jobs/{id}.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Gate.Status(r.Context(), PrincipalFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Cancel handles POST /api/jobs/{id}/cancel. A cancelled job answers 200;
// a cancellation waiting on an execution that ignores it answers 202.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.Gate.Cancel(r.Context(), PrincipalFromContext(r.Context()), r.PathValue("id"))
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, job)
	case apperrors.IsCancelPending(err):
		WriteJSON(w, http.StatusAccepted, job)
	default:
		WriteAppError(w, err)
	}
}
