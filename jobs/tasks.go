package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies the ledger's cached figures against the journal.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskAROverdue flags invoices past their due date.
	TaskAROverdue = "ar:overdue"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityPayload selects which checks a ledger:integrity run performs.
// An empty Checks list runs all of them.
type IntegrityPayload struct {
	Checks []string `json:"checks,omitempty"`
}

// NewLedgerIntegrityTask constructs a ledger:integrity task.
func NewLedgerIntegrityTask(checks ...string) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityPayload{Checks: checks})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault)), nil
}

// NewOverdueSweepTask constructs an ar:overdue task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAROverdue, nil, asynq.Queue(QueueDefault))
}
