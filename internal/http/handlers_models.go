package httpx

import (
	"net/http"

	"github.com/target/mmk-inference/internal/core"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
)

// ModelHandlers exposes the model registry.
type ModelHandlers struct {
	Catalog core.ModelCatalog
	Authz   core.Authorizer
}

type modelListResponse struct {
	Models []model.ModelStatus `json:"models"`
}

func (h *ModelHandlers) allowed(w http.ResponseWriter, r *http.Request, action domainauth.Action) bool {
	if h.Authz.HasPermission(PrincipalFromContext(r.Context()), action, "") {
		return true
	}
	WriteAppError(w, apperrors.Forbidden("principal may not "+string(action)))
	return false
}

// List handles GET /api/models.
func (h *ModelHandlers) List(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, domainauth.ActionViewModels) {
		return
	}
	WriteJSON(w, http.StatusOK, modelListResponse{Models: h.Catalog.List()})
}

// Get handles GET /api/models/{id}.
func (h *ModelHandlers) Get(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, domainauth.ActionViewModels) {
		return
	}
	st, err := h.Catalog.Status(r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// SetVersion handles PUT /api/models/{id}/version.
func (h *ModelHandlers) SetVersion(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, domainauth.ActionManageModels) {
		return
	}
	var req model.SetModelVersionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	st, err := h.Catalog.SetVersion(r.PathValue("id"), req.Version)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}
