package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/hospitality-access/internal"
	"github.com/frahmantamala/hospitality-access/internal/transport"
)

type Lister interface {
	List(ctx context.Context, f Filter) ([]Entry, error)
}

type Handler struct {
	*transport.BaseHandler
	Store Lister
}

func NewHandler(base *transport.BaseHandler, store Lister) *Handler {
	return &Handler{BaseHandler: base, Store: store}
}

type EntriesResponse struct {
	Entries []Entry `json:"entries"`
}

// ListEntries handles GET /audit?user_id=&decision=&module=&limit=
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f Filter
	if raw := q.Get("user_id"); raw != "" {
		id, err := transport.ParseIDParam(raw)
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		f.UserID = &id
	}
	switch d := Decision(q.Get("decision")); d {
	case "", DecisionAllow, DecisionDeny:
		f.Decision = d
	default:
		h.WriteAppError(w, r, internal.NewValidationError("decision must be allow or deny", internal.ErrCodeValidationFailed))
		return
	}
	f.Module = q.Get("module")
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}

	entries, err := h.Store.List(r.Context(), f)
	if err != nil {
		h.WriteAppError(w, r, internal.NewUnavailableError("audit log is unavailable", err))
		return
	}
	h.WriteJSON(w, http.StatusOK, EntriesResponse{Entries: entries})
}
