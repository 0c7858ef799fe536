package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// OverdueMarker flags invoices whose due date has passed.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) ([]int64, error)
}

// OverdueSweepJob runs the ar:overdue task.
type OverdueSweepJob struct {
	marker  OverdueMarker
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewOverdueSweepJob builds the handler.
func NewOverdueSweepJob(marker OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return &OverdueSweepJob{marker: marker, logger: logger.With(slog.String("job", TaskAROverdue)), metrics: metrics}
}

// Handle marks overdue invoices.
func (j *OverdueSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.marker == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	tracker := j.metrics.Track(TaskAROverdue)
	ids, err := j.marker.MarkOverdue(ctx)
	if err != nil {
		j.logger.Error("overdue sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddOverdue(len(ids))
	j.logger.Info("overdue sweep completed", slog.Int("invoices", len(ids)))
	return tracker.End(nil)
}
