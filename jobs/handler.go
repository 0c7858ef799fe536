package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// IntegrityEnqueuer is the part of Client the HTTP handler uses.
type IntegrityEnqueuer interface {
	EnqueueIntegrityCheck(ctx context.Context, checks ...string) (*asynq.TaskInfo, error)
}

// QueueInspector reports queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes job endpoints under /jobs.
type Handler struct {
	inspector QueueInspector
	enqueuer  IntegrityEnqueuer
	logger    *slog.Logger
}

// NewHandler builds the job endpoints. inspector and enqueuer may be nil
// when no queue is configured.
func NewHandler(inspector QueueInspector, enqueuer IntegrityEnqueuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/integrity", h.enqueueIntegrity)
}

type integrityRequest struct {
	Checks []string `json:"checks"`
}

type enqueueResponse struct {
	TaskID string   `json:"task_id"`
	Queue  string   `json:"queue"`
	Checks []string `json:"checks,omitempty"`
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

func (h *Handler) enqueueIntegrity(w http.ResponseWriter, r *http.Request) {
	var req integrityRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	for _, check := range req.Checks {
		if !slices.Contains(AllChecks, check) {
			httpx.Problem(w, http.StatusBadRequest, "validation", "Validation Failed", fmt.Sprintf("unknown integrity check %q", check))
			return
		}
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "infrastructure", "Queue Unavailable", "job queue is not configured")
		return
	}
	info, err := h.enqueuer.EnqueueIntegrityCheck(r.Context(), req.Checks...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		httpx.Problem(w, http.StatusConflict, "conflict", "Already Queued", "an integrity check with the same checks is already queued")
		return
	}
	if err != nil {
		h.logger.Warn("enqueue integrity check", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "infrastructure", "Queue Unavailable", "could not enqueue integrity check")
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueueResponse{TaskID: info.ID, Queue: info.Queue, Checks: req.Checks})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "infrastructure", "Queue Unavailable", "queue state unavailable")
		return
	}
	out := queueHealth{Queue: QueueDefault}
	if info != nil {
		out = queueHealth{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Paused:    info.Paused,
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}
