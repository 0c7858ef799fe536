package ar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	ledgertest "github.com/odyssey-erp/odyssey-ledger/testing"
)

var today = time.Date(2025, 4, 10, 14, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func balance(t *testing.T, l *ledgertest.Ledger, id int64) string {
	t.Helper()
	return l.Account(t, id).CurrentBalance.StringFixed(2)
}

func requireNoDrift(t *testing.T, l *ledgertest.Ledger) {
	t.Helper()
	ctx := context.Background()
	drift, err := l.Store.ListReceivableDrift(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)
	mismatches, err := l.Store.ListBalanceDueMismatches(ctx)
	require.NoError(t, err)
	require.Empty(t, mismatches)
	unbalanced, err := l.Store.ListUnbalancedEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, unbalanced)
}

func newInvoice(t *testing.T, l *ledgertest.Ledger, customerID int64, price string) ar.Invoice {
	t.Helper()
	inv, err := l.AR.CreateInvoice(context.Background(), ar.CreateInvoiceInput{
		CustomerID: customerID,
		Lines:      []ar.InvoiceLineInput{{Description: "Consulting", Quantity: d("1"), UnitPrice: d(price)}},
		CreatedBy:  1,
	})
	require.NoError(t, err)
	return inv
}

func TestInvoiceLifecycleScenario(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-001")

	inv := newInvoice(t, l, customer.ID, "1000")
	require.Equal(t, ar.InvoiceStatusDraft, inv.Status)
	require.Equal(t, "1000.00", inv.BalanceDue.StringFixed(2))
	require.Equal(t, "1000.00", l.Outstanding(t, customer.ID))
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Receivable))

	sent, err := l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.JournalEntryID)
	require.Equal(t, "1000.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "1000.00", balance(t, l, l.Defaults.Revenue))
	require.Equal(t, "0.00", balance(t, l, l.Defaults.TaxPayable))

	_, err = l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("400"), CreatedBy: 1})
	require.NoError(t, err)
	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "600.00", inv.BalanceDue.StringFixed(2))
	require.Equal(t, ar.InvoiceStatusPartial, inv.Status)
	require.Equal(t, "400.00", balance(t, l, l.Defaults.Cash))
	require.Equal(t, "600.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "600.00", l.Outstanding(t, customer.ID))

	_, err = l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("600"), CreatedBy: 1})
	require.NoError(t, err)
	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusPaid, inv.Status)
	require.True(t, inv.BalanceDue.IsZero())
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "1000.00", balance(t, l, l.Defaults.Cash))
	require.Equal(t, "0.00", l.Outstanding(t, customer.ID))
	requireNoDrift(t, l)
}

func TestInvoiceTotalsApplyDiscountBeforeTax(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-002")

	inv, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID:     customer.ID,
		DiscountAmount: d("50"),
		TaxRate:        d("10"),
		Lines: []ar.InvoiceLineInput{
			{Description: "Room", Quantity: d("2"), UnitPrice: d("200")},
			{Description: "Catering", Quantity: d("3"), UnitPrice: d("33.33")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "499.99", inv.Subtotal.StringFixed(2))
	require.Equal(t, "45.00", inv.TaxAmount.StringFixed(2))
	require.Equal(t, "494.99", inv.Total.StringFixed(2))
	require.Equal(t, l.Today.AddDate(0, 0, 30), inv.DueDate)
	require.Len(t, inv.Lines, 2)

	_, err = l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "494.99", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "449.99", balance(t, l, l.Defaults.Revenue))
	require.Equal(t, "45.00", balance(t, l, l.Defaults.TaxPayable))

	_, err = l.AR.SendInvoice(ctx, inv.ID, 1)
	require.ErrorIs(t, err, ar.ErrInvalidTransition)
	require.Equal(t, shared.KindState, shared.KindOf(err))
	requireNoDrift(t, l)
}

func TestCreateInvoiceRejectsBadTotals(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-003")

	_, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID:     customer.ID,
		DiscountAmount: d("150"),
		Lines:          []ar.InvoiceLineInput{{Description: "Item", Quantity: d("1"), UnitPrice: d("100")}},
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: customer.ID,
		Lines:      []ar.InvoiceLineInput{{Description: "Free", Quantity: d("1"), UnitPrice: d("0")}},
	})
	require.ErrorIs(t, err, ar.ErrInvalidTotals)

	_, err = l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{CustomerID: customer.ID})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: 404,
		Lines:      []ar.InvoiceLineInput{{Description: "Item", Quantity: d("1"), UnitPrice: d("10")}},
	})
	require.ErrorIs(t, err, ar.ErrCustomerNotFound)
	require.Equal(t, "0.00", l.Outstanding(t, customer.ID))
}

func TestRecordPaymentGuards(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-004")
	inv := newInvoice(t, l, customer.ID, "300")

	_, err := l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("100")})
	require.ErrorIs(t, err, ar.ErrInvalidTransition)

	_, err = l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)

	_, err = l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("300.01")})
	require.ErrorIs(t, err, ar.ErrOverpayment)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("0")})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	require.Equal(t, "0.00", balance(t, l, l.Defaults.Cash))
	require.Equal(t, "300.00", l.Outstanding(t, customer.ID))
	payments, err := l.AR.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
	requireNoDrift(t, l)
}

func TestDeletePaymentRestoresBalances(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-005")
	inv := newInvoice(t, l, customer.ID, "500")
	_, err := l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)

	payment, err := l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("500"), Method: "transfer"})
	require.NoError(t, err)
	require.Equal(t, ar.PaymentStatusPending, payment.Status)
	require.Equal(t, l.Today, payment.PaymentDate)

	require.NoError(t, l.AR.DeletePayment(ctx, payment.ID, 1))
	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusSent, inv.Status)
	require.Equal(t, "500.00", inv.BalanceDue.StringFixed(2))
	require.True(t, inv.AmountPaid.IsZero())
	require.Equal(t, "500.00", l.Outstanding(t, customer.ID))
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Cash))
	require.Equal(t, "500.00", balance(t, l, l.Defaults.Receivable))

	reversals, err := l.Accounting.ListJournalEntries(ctx, accounting.JournalFilter{ReferenceType: accounting.RefReversal})
	require.NoError(t, err)
	require.Len(t, reversals, 1)

	completed, err := l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("200"), Status: ar.PaymentStatusCompleted})
	require.NoError(t, err)
	err = l.AR.DeletePayment(ctx, completed.ID, 1)
	require.ErrorIs(t, err, ar.ErrNotDeletable)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.Equal(t, "300.00", l.Outstanding(t, customer.ID))

	err = l.AR.DeletePayment(ctx, payment.ID, 1)
	require.ErrorIs(t, err, ar.ErrPaymentNotFound)
	requireNoDrift(t, l)
}

func TestDeleteInvoiceOnlyWhileDraft(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-006")

	draft := newInvoice(t, l, customer.ID, "120")
	sent := newInvoice(t, l, customer.ID, "80")
	_, err := l.AR.SendInvoice(ctx, sent.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "200.00", l.Outstanding(t, customer.ID))

	require.NoError(t, l.AR.DeleteInvoice(ctx, draft.ID, 1))
	_, err = l.AR.GetInvoice(ctx, draft.ID)
	require.ErrorIs(t, err, ar.ErrInvoiceNotFound)
	require.Equal(t, "80.00", l.Outstanding(t, customer.ID))

	err = l.AR.DeleteInvoice(ctx, sent.ID, 1)
	require.ErrorIs(t, err, ar.ErrNotDeletable)
	require.Equal(t, shared.KindConflict, shared.KindOf(err))
	require.Equal(t, "80.00", l.Outstanding(t, customer.ID))
	requireNoDrift(t, l)
}

func TestCancelInvoiceReversesReceivable(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-007")
	inv := newInvoice(t, l, customer.ID, "250")
	_, err := l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)

	cancelled, err := l.AR.CancelInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusCancelled, cancelled.Status)
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Revenue))
	require.Equal(t, "0.00", l.Outstanding(t, customer.ID))

	_, err = l.AR.CancelInvoice(ctx, inv.ID, 1)
	require.ErrorIs(t, err, ar.ErrInvalidTransition)

	paid := newInvoice(t, l, customer.ID, "90")
	_, err = l.AR.SendInvoice(ctx, paid.ID, 1)
	require.NoError(t, err)
	_, err = l.AR.RecordPayment(ctx, paid.ID, ar.RecordPaymentInput{Amount: d("10")})
	require.NoError(t, err)
	_, err = l.AR.CancelInvoice(ctx, paid.ID, 1)
	require.ErrorIs(t, err, ar.ErrInvalidTransition)
	requireNoDrift(t, l)
}

func TestMarkOverdue(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-008")

	late, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: customer.ID,
		IssueDate:  today.AddDate(0, -2, 0),
		DueDate:    today.AddDate(0, -1, 0),
		Lines:      []ar.InvoiceLineInput{{Description: "Old work", Quantity: d("1"), UnitPrice: d("70")}},
	})
	require.NoError(t, err)
	current := newInvoice(t, l, customer.ID, "30")
	for _, id := range []int64{late.ID, current.ID} {
		_, err := l.AR.SendInvoice(ctx, id, 1)
		require.NoError(t, err)
	}

	ids, err := l.AR.MarkOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{late.ID}, ids)

	late, err = l.AR.GetInvoice(ctx, late.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusOverdue, late.Status)

	_, err = l.AR.RecordPayment(ctx, late.ID, ar.RecordPaymentInput{Amount: d("70")})
	require.NoError(t, err)
	late, err = l.AR.GetInvoice(ctx, late.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusPaid, late.Status)
	requireNoDrift(t, l)
}

func TestDuplicateCustomerCode(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	l.Customer(t, "C-009")
	_, err := l.AR.CreateCustomer(context.Background(), ar.CreateCustomerInput{Code: "C-009", Name: "Again"}, 1)
	require.ErrorIs(t, err, ar.ErrDuplicateCustomer)
}

func TestSendInvoiceRollsBackOnInactiveRevenue(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-300")
	inv := newInvoice(t, l, customer.ID, "450")

	consulting, err := l.Accounting.CreateAccount(ctx, accounting.CreateAccountInput{Code: "4090", Name: "Consulting Revenue", Type: accounting.AccountTypeIncome})
	require.NoError(t, err)
	require.NoError(t, l.Accounting.DeactivateAccount(ctx, consulting.ID, 1))
	defaults := l.Defaults
	defaults.Revenue = consulting.ID
	l.Accounting.WithDefaults(defaults)

	_, err = l.AR.SendInvoice(ctx, inv.ID, 1)
	require.ErrorIs(t, err, shared.ErrAccountInactive)

	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusDraft, inv.Status)
	require.Nil(t, inv.JournalEntryID)
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "450.00", l.Outstanding(t, customer.ID))
	entries, err := l.Accounting.ListJournalEntries(ctx, accounting.JournalFilter{ReferenceType: accounting.RefInvoice})
	require.NoError(t, err)
	require.Empty(t, entries)
	requireNoDrift(t, l)
}

// failAfterPost lets the journal write land inside the caller's transaction
// and then fails it, so the whole unit of work has to roll back.
type failAfterPost struct {
	ar.Ledger
}

var errLedgerDown = errors.New("ledger unavailable")

func (f failAfterPost) PostInTx(ctx context.Context, tx accounting.TxRepository, in accounting.PostingInput) (accounting.JournalEntry, error) {
	if _, err := f.Ledger.PostInTx(ctx, tx, in); err != nil {
		return accounting.JournalEntry{}, err
	}
	return accounting.JournalEntry{}, errLedgerDown
}

func TestSendInvoiceRollsBackWhenPostingFails(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-301")
	inv := newInvoice(t, l, customer.ID, "300")
	broken := ar.NewService(l.Store.AR(), failAfterPost{l.Accounting}, l.Logger)

	_, err := broken.SendInvoice(ctx, inv.ID, 1)
	require.ErrorIs(t, err, errLedgerDown)

	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusDraft, inv.Status)
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Revenue))
	require.Equal(t, "300.00", l.Outstanding(t, customer.ID))

	sent, err := l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusSent, sent.Status)
	requireNoDrift(t, l)
}

func TestRecordPaymentRollsBackWhenPostingFails(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-302")
	inv := newInvoice(t, l, customer.ID, "900")
	_, err := l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	broken := ar.NewService(l.Store.AR(), failAfterPost{l.Accounting}, l.Logger)

	_, err = broken.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("400"), CreatedBy: 1})
	require.ErrorIs(t, err, errLedgerDown)

	inv, err = l.AR.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, ar.InvoiceStatusSent, inv.Status)
	require.True(t, inv.AmountPaid.IsZero())
	require.Equal(t, "900.00", inv.BalanceDue.StringFixed(2))
	payments, err := l.AR.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
	require.Equal(t, "0.00", balance(t, l, l.Defaults.Cash))
	require.Equal(t, "900.00", balance(t, l, l.Defaults.Receivable))
	require.Equal(t, "900.00", l.Outstanding(t, customer.ID))
	requireNoDrift(t, l)
}

func TestDeleteInvoicePaymentWithoutBookingHook(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-303")
	inv := newInvoice(t, l, customer.ID, "100")
	_, err := l.AR.SendInvoice(ctx, inv.ID, 1)
	require.NoError(t, err)
	payment, err := l.AR.RecordPayment(ctx, inv.ID, ar.RecordPaymentInput{Amount: d("40")})
	require.NoError(t, err)

	standalone := ar.NewService(l.Store.AR(), l.Accounting, l.Logger)
	require.NoError(t, standalone.DeletePayment(ctx, payment.ID, 1))
	require.Equal(t, "100.00", l.Outstanding(t, customer.ID))
	requireNoDrift(t, l)
}

func TestCreateInvoiceRejectsOutOfRangeTaxRate(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	customer := l.Customer(t, "C-304")

	for _, rate := range []string{"1000", "100.0001", "7.12345", "-1"} {
		_, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
			CustomerID: customer.ID,
			TaxRate:    d(rate),
			Lines:      []ar.InvoiceLineInput{{Description: "Room", Quantity: d("1"), UnitPrice: d("100")}},
		})
		require.Error(t, err, rate)
		require.Equal(t, shared.KindValidation, shared.KindOf(err), rate)
	}
	require.Equal(t, "0.00", l.Outstanding(t, customer.ID))

	inv, err := l.AR.CreateInvoice(ctx, ar.CreateInvoiceInput{
		CustomerID: customer.ID,
		TaxRate:    d("7.1234"),
		Lines:      []ar.InvoiceLineInput{{Description: "Room", Quantity: d("1"), UnitPrice: d("100")}},
	})
	require.NoError(t, err)
	require.Equal(t, "7.12", inv.TaxAmount.StringFixed(2))
}
