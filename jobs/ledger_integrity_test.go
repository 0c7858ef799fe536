package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	ledgertest "github.com/odyssey-erp/odyssey-ledger/testing"
)

var today = time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)

type staleReceivables struct {
	jobs.ReceivableChecker
}

func (staleReceivables) ListReceivableDrift(context.Context) ([]ar.ReceivableTotals, error) {
	return []ar.ReceivableTotals{{CustomerID: 7, Code: "C-7", OutstandingBalance: decimal.NewFromInt(10), OpenBalanceDue: decimal.Zero}}, nil
}

type brokenJournals struct{}

func (brokenJournals) ListUnbalancedEntries(context.Context) ([]string, error) {
	return nil, errors.New("connection reset")
}

func anomalies(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "odyssey_finance_anomalies_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "check" {
					out[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func seedActivity(t *testing.T, l *ledgertest.Ledger) {
	t.Helper()
	ctx := context.Background()
	customer := l.Customer(t, "C-100")
	inv, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: customer.ID,
		TaxRate:    decimal.NewFromInt(11),
		Lines:      []ar.InvoiceLineInput{{Description: "Service", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(150)}},
	})
	require.NoError(t, err)
	_, err = l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	_, err = l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = l.Accounting.CreateAccount(ctx, accounting.CreateAccountInput{
		Code: "1200", Name: "Prepaid Rent", Type: accounting.AccountTypeAsset,
		OpeningBalance: decimal.NewFromInt(900),
	})
	require.NoError(t, err)
}

func TestLedgerIntegrityCleanLedger(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	seedActivity(t, l)
	registry := prometheus.NewRegistry()
	job := jobs.NewLedgerIntegrityJob(l.Store, l.Projector, l.Store, l.Logger, jobmetrics.NewMetrics(registry))

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, report.Total())
	require.Len(t, report.Violations, len(jobs.AllChecks))
	require.Empty(t, anomalies(t, registry))
}

func TestLedgerIntegrityCountsViolations(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	seedActivity(t, l)
	registry := prometheus.NewRegistry()
	job := jobs.NewLedgerIntegrityJob(l.Store, l.Projector, staleReceivables{ReceivableChecker: l.Store}, l.Logger, jobmetrics.NewMetrics(registry))

	task, err := jobs.NewLedgerIntegrityTask(jobs.CheckReceivableDrift, jobs.CheckBalanceDue)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, map[string]float64{jobs.CheckReceivableDrift: 1}, anomalies(t, registry))
}

func TestLedgerIntegrityStopsOnCheckError(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	job := jobs.NewLedgerIntegrityJob(brokenJournals{}, l.Projector, l.Store, l.Logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	_, err := job.Run(context.Background(), []string{jobs.CheckUnbalancedEntries})
	require.Error(t, err)

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLedgerIntegrityRejectsUnknownCheck(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	registry := prometheus.NewRegistry()
	job := jobs.NewLedgerIntegrityJob(brokenJournals{}, l.Projector, l.Store, l.Logger, jobmetrics.NewMetrics(registry))

	task, err := jobs.NewLedgerIntegrityTask(jobs.CheckUnbalancedEntries, "orphan_lines")
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorContains(t, err, "orphan_lines")

	report, err := job.Run(context.Background(), []string{"orphan_lines"})
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, report.Violations)
	require.Empty(t, anomalies(t, registry))
}

func TestOverdueSweepMarksInvoices(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-200")
	inv, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: customer.ID,
		IssueDate:  today.AddDate(0, 0, -45),
		DueDate:    today.AddDate(0, 0, -15),
		Lines:      []ar.InvoiceLineInput{{Description: "Hall deposit", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500)}},
	})
	require.NoError(t, err)
	_, err = l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)

	job := jobs.NewOverdueSweepJob(l.AR, l.Logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(ctx, jobs.NewOverdueSweepTask()))

	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusOverdue, inv.Status)
}
