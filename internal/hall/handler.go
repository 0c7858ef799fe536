package hall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Handler exposes hall booking endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers booking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bookings", h.createBooking)
	r.Get("/bookings/{id}", h.getBooking)
	r.Post("/bookings/{id}/confirm", h.confirmBooking)
	r.Post("/bookings/{id}/complete", h.completeBooking)
	r.Post("/bookings/{id}/cancel", h.cancelBooking)
	r.Post("/bookings/{id}/payments", h.recordPayment)
}

type createBookingRequest struct {
	CustomerID int64           `json:"customer_id"`
	HallName   string          `json:"hall_name"`
	EventDate  string          `json:"event_date"`
	Total      decimal.Decimal `json:"total_amount"`
	Notes      string          `json:"notes"`
}

type recordPaymentRequest struct {
	Amount      decimal.Decimal  `json:"amount"`
	Method      string           `json:"method"`
	Reference   string           `json:"reference"`
	Status      ar.PaymentStatus `json:"status"`
	PaymentDate string           `json:"payment_date"`
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	eventDate, err := httpx.ParseDate("event_date", req.EventDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	booking, err := h.service.CreateBooking(r.Context(), CreateBookingInput{
		CustomerID: req.CustomerID,
		HallName:   req.HallName,
		EventDate:  eventDate,
		Total:      req.Total,
		Notes:      req.Notes,
		CreatedBy:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, booking)
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	booking, err := h.service.GetBooking(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, booking)
}

func (h *Handler) confirmBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.ConfirmBooking)
}

func (h *Handler) completeBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.CompleteBooking)
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.CancelBooking)
}

type statusChange func(ctx context.Context, id, actorID int64) (Booking, error)

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, change statusChange) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	booking, err := change(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, booking)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	paidOn, err := httpx.ParseDate("payment_date", req.PaymentDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), id, ar.RecordPaymentInput{
		Amount:      req.Amount,
		Method:      req.Method,
		Reference:   req.Reference,
		Status:      req.Status,
		PaymentDate: paidOn,
		CreatedBy:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("booking request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
