package httpx

import (
	"net/http"
	"strings"

	"github.com/target/mmk-inference/internal/core"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
)

const (
	defaultHistoryPageSize = 50
	maxHistoryPageSize     = 500
)

// HistoryHandlers serves persisted prediction history.
type HistoryHandlers struct {
	Store core.HistoryStore // nil when history is disabled
	Authz core.Authorizer
}

type historyResponse struct {
	Records []model.HistoryRecord `json:"records"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// List handles GET /api/history?owner=&limit=&offset=. Owners see their own
// history; viewing another owner's, or every owner's, follows the view policy.
func (h *HistoryHandlers) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		WriteAppError(w, apperrors.NotFound("prediction history is disabled"))
		return
	}
	p := PrincipalFromContext(r.Context())
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	switch {
	case owner == "*":
		if !h.Authz.HasPermission(p, domainauth.ActionView, "") {
			WriteAppError(w, apperrors.Forbidden("principal may not view every owner's history"))
			return
		}
		owner = ""
	case owner == "":
		owner = p.ID
	}
	if owner != "" && !h.Authz.HasPermission(p, domainauth.ActionView, owner) {
		WriteAppError(w, apperrors.Forbidden("principal may not view history of "+owner))
		return
	}

	limit, offset := ParseLimitOffset(r, defaultHistoryPageSize, maxHistoryPageSize)
	records, err := h.Store.List(r.Context(), model.HistoryListOptions{Owner: owner, Limit: limit, Offset: offset})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	WriteJSON(w, http.StatusOK, historyResponse{Records: records, Limit: limit, Offset: offset})
}
