package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Integrity checks.
const (
	CheckUnbalancedEntries = "unbalanced_entries"
	CheckBalanceDrift      = "balance_drift"
	CheckBalanceDue        = "balance_due"
	CheckReceivableDrift   = "receivable_drift"
)

// AllChecks lists every integrity check in execution order.
var AllChecks = []string{CheckUnbalancedEntries, CheckBalanceDrift, CheckBalanceDue, CheckReceivableDrift}

// JournalChecker lists posted entries whose debits and credits differ.
type JournalChecker interface {
	ListUnbalancedEntries(ctx context.Context) ([]string, error)
}

// BalanceChecker lists accounts whose cached balance disagrees with the fold.
type BalanceChecker interface {
	Drift(ctx context.Context) ([]balances.BalanceDrift, error)
}

// ReceivableChecker lists receivable documents and customers out of step.
type ReceivableChecker interface {
	ListBalanceDueMismatches(ctx context.Context) ([]string, error)
	ListReceivableDrift(ctx context.Context) ([]ar.ReceivableTotals, error)
}

// IntegrityReport counts violations per check.
type IntegrityReport struct {
	Violations map[string]int
}

// Total sums violations across checks.
func (r IntegrityReport) Total() int {
	total := 0
	for _, n := range r.Violations {
		total += n
	}
	return total
}

// LedgerIntegrityJob verifies that every posted entry balances, cached
// account balances match the journal, receivable documents satisfy
// balance_due = total - amount_paid and customer outstanding balances match
// their open documents.
type LedgerIntegrityJob struct {
	Journals    JournalChecker
	Balances    BalanceChecker
	Receivables ReceivableChecker
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(journals JournalChecker, balances BalanceChecker, receivables ReceivableChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Journals: journals, Balances: balances, Receivables: receivables, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check for an asynq task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Checks)
	return err
}

// Run performs the selected checks, all of them when checks is empty.
// Violations are logged and counted; they do not fail the run. An unknown
// check name fails with asynq.SkipRetry before anything runs.
func (j *LedgerIntegrityJob) Run(ctx context.Context, checks []string) (report IntegrityReport, resultErr error) {
	if len(checks) == 0 {
		checks = AllChecks
	}
	for _, check := range checks {
		if !slices.Contains(AllChecks, check) {
			return report, fmt.Errorf("ledger integrity: unknown check %q: %w", check, asynq.SkipRetry)
		}
	}
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger()
	logger.Info("starting ledger integrity check", slog.Any("checks", checks))

	report.Violations = make(map[string]int, len(checks))
	for _, check := range AllChecks {
		if !slices.Contains(checks, check) {
			continue
		}
		found, err := j.runCheck(ctx, logger, check)
		if err != nil {
			logger.Error("integrity check failed", slog.String("check", check), slog.Any("error", err))
			return report, err
		}
		report.Violations[check] = found
		j.metrics().AddAnomalies(check, found)
	}

	logger.Info("completed ledger integrity check",
		slog.Int("violations", report.Total()),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (j *LedgerIntegrityJob) runCheck(ctx context.Context, logger *slog.Logger, check string) (int, error) {
	switch check {
	case CheckUnbalancedEntries:
		if j.Journals == nil {
			return 0, errors.New("ledger integrity: journal checker not configured")
		}
		numbers, err := j.Journals.ListUnbalancedEntries(ctx)
		if err != nil {
			return 0, err
		}
		for _, number := range numbers {
			logger.Warn("unbalanced journal entry", slog.String("entry", number))
		}
		return len(numbers), nil
	case CheckBalanceDrift:
		if j.Balances == nil {
			return 0, errors.New("ledger integrity: balance checker not configured")
		}
		drift, err := j.Balances.Drift(ctx)
		if err != nil {
			return 0, err
		}
		for _, d := range drift {
			logger.Warn("account balance drift",
				slog.String("account", d.Code),
				slog.String("cached", d.Cached.StringFixed(2)),
				slog.String("folded", d.Folded.StringFixed(2)),
			)
		}
		return len(drift), nil
	case CheckBalanceDue:
		if j.Receivables == nil {
			return 0, errors.New("ledger integrity: receivable checker not configured")
		}
		numbers, err := j.Receivables.ListBalanceDueMismatches(ctx)
		if err != nil {
			return 0, err
		}
		for _, number := range numbers {
			logger.Warn("balance due mismatch", slog.String("document", number))
		}
		return len(numbers), nil
	case CheckReceivableDrift:
		if j.Receivables == nil {
			return 0, errors.New("ledger integrity: receivable checker not configured")
		}
		drift, err := j.Receivables.ListReceivableDrift(ctx)
		if err != nil {
			return 0, err
		}
		for _, d := range drift {
			logger.Warn("customer outstanding drift",
				slog.String("customer", d.Code),
				slog.String("outstanding", d.OutstandingBalance.StringFixed(2)),
				slog.String("open_balance_due", d.OpenBalanceDue.StringFixed(2)),
			)
		}
		return len(drift), nil
	}
	return 0, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
