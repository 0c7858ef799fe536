package accounting

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler wires chart of accounts and journal endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}", h.getAccount)
	r.Patch("/accounts/{id}", h.updateAccount)
	r.Post("/accounts/{id}/deactivate", h.deactivateAccount)
	r.Delete("/accounts/{id}", h.deleteAccount)

	r.Get("/journals", h.listJournals)
	r.Post("/journals", h.postJournal)
	r.Get("/journals/{id}", h.getJournal)
	r.Post("/journals/{id}/reverse", h.reverseJournal)
}

type createAccountRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	Subtype        string          `json:"subtype"`
	ParentID       *int64          `json:"parent_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	OpeningDate    string          `json:"opening_date"`
}

type postJournalRequest struct {
	Date          string             `json:"date"`
	Description   string             `json:"description"`
	ReferenceType ReferenceType      `json:"reference_type"`
	ReferenceID   string             `json:"reference_id"`
	Lines         []PostingLineInput `json:"lines"`
}

type reverseJournalRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	openingDate, err := httpx.ParseDate("opening_date", req.OpeningDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Code:           req.Code,
		Name:           req.Name,
		Type:           req.Type,
		Subtype:        req.Subtype,
		ParentID:       req.ParentID,
		OpeningBalance: req.OpeningBalance,
		OpeningDate:    openingDate,
		CreatedBy:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req UpdateAccountInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeactivateAccount(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
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
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListJournalEntries(r.Context(), JournalFilter{
		ReferenceType: ReferenceType(r.URL.Query().Get("reference_type")),
		From:          from,
		To:            to,
		Limit:         limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := httpx.ParseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	refType := req.ReferenceType
	if refType == "" {
		refType = RefManual
	}
	entry, err := h.service.PostJournal(r.Context(), PostingInput{
		Date:          date,
		Description:   req.Description,
		ReferenceType: refType,
		ReferenceID:   req.ReferenceID,
		CreatedBy:     shared.ActorFromContext(r.Context()),
		Lines:         req.Lines,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.service.GetJournal(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reverseJournalRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	input := ReverseInput{EntryID: id, ActorID: shared.ActorFromContext(r.Context()), Description: req.Description}
	if req.Date != "" {
		date, err := httpx.ParseDate("date", req.Date)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		input.Date = &date
	}
	entry, err := h.service.ReverseJournal(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
