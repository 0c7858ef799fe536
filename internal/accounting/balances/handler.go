package balances

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes balance projections over HTTP.
type Handler struct {
	logger    *slog.Logger
	projector *Projector
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, projector *Projector) *Handler {
	return &Handler{logger: logger, projector: projector}
}

// MountRoutes registers projection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}/balance", h.balance)
	r.Get("/accounts/{id}/statement", h.statement)
	r.Get("/reports/trial-balance", h.trialBalance)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bal, err := h.projector.Balance(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stmt, err := h.projector.Statement(r.Context(), id, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tb, err := h.projector.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("projection request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
