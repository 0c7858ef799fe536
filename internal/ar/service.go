package ar

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DefaultPaymentTerms is applied when an invoice has no due date.
const DefaultPaymentTerms = 30 * 24 * time.Hour

// Service keeps invoices, payments and customer balances consistent with
// the journal.
type Service struct {
	repo     RepositoryPort
	ledger   Ledger
	logger   *slog.Logger
	bookings BookingPayments
}

// BookingPayments deletes payments recorded against hall bookings.
type BookingPayments interface {
	DeletePayment(ctx context.Context, paymentID, actorID int64) error
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, logger: logger}
}

// WithBookingPayments routes deletion of booking payments to bookings.
func (s *Service) WithBookingPayments(bookings BookingPayments) {
	s.bookings = bookings
}

// CreateCustomer registers a customer with a zero outstanding balance.
func (s *Service) CreateCustomer(ctx context.Context, input CreateCustomerInput, actorID int64) (Customer, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return Customer{}, err
	}
	var customer Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		customer, err = tx.InsertCustomer(ctx, input)
		return err
	})
	if err != nil {
		return Customer{}, err
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "customer.create",
		Entity:   "customer",
		EntityID: strconv.FormatInt(customer.ID, 10),
		Meta:     map[string]any{"code": customer.Code},
	})
	return customer, nil
}

// GetCustomer returns a customer with its outstanding balance.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var customer Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		customer, err = tx.GetCustomer(ctx, id)
		return err
	})
	return customer, err
}

// CreateInvoice stores a Draft invoice and raises the customer's outstanding
// balance by its total.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Invoice{}, err
	}
	today := s.ledger.Today()
	issue := accounting.DateOnly(input.IssueDate)
	if issue.IsZero() {
		issue = today
	}
	due := accounting.DateOnly(input.DueDate)
	if due.IsZero() {
		due = issue.Add(DefaultPaymentTerms)
	}
	if due.Before(issue) {
		return Invoice{}, shared.Errorf(shared.KindValidation, "ar: due date before issue date")
	}
	totals := CalculateTotals(input.Lines, input.DiscountAmount, input.TaxRate)
	if totals.Discount.GreaterThan(totals.Subtotal) {
		return Invoice{}, shared.Errorf(shared.KindValidation, "ar: discount %s exceeds subtotal %s", totals.Discount.StringFixed(2), totals.Subtotal.StringFixed(2))
	}
	if !totals.Total.IsPositive() {
		return Invoice{}, ErrInvalidTotals
	}

	inv := Invoice{
		CustomerID:     input.CustomerID,
		IssueDate:      issue,
		DueDate:        due,
		Status:         InvoiceStatusDraft,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.Discount,
		TaxRate:        input.TaxRate,
		TaxAmount:      totals.Tax,
		Total:          totals.Total,
		AmountPaid:     decimal.Zero,
		BalanceDue:     totals.Total,
		Notes:          input.Notes,
		CreatedBy:      input.CreatedBy,
	}
	for _, line := range input.Lines {
		inv.Lines = append(inv.Lines, InvoiceLine{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      LineAmount(line),
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCustomerForUpdate(ctx, input.CustomerID); err != nil {
			return err
		}
		var err error
		inv, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		return tx.AdjustCustomerOutstanding(ctx, inv.CustomerID, inv.Total)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  input.CreatedBy,
		Action:   "invoice.create",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     map[string]any{"number": inv.Number, "total": inv.Total.StringFixed(2)},
	})
	return inv, nil
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoice(ctx, id)
		return err
	})
	return inv, err
}

// ListPayments returns the payments recorded against an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var payments []Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		var err error
		payments, err = tx.ListPayments(ctx, invoiceID, 0)
		return err
	})
	return payments, err
}

// SendInvoice moves a Draft invoice to Sent and posts the receivable.
func (s *Service) SendInvoice(ctx context.Context, id, actorID int64) (Invoice, error) {
	var (
		inv   Invoice
		entry accounting.JournalEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceStatusDraft {
			return transition(inv, InvoiceStatusSent)
		}
		defaults := s.ledger.Defaults()
		entry, err = s.ledger.PostInTx(ctx, tx, accounting.PostingInput{
			Date:          inv.IssueDate,
			Description:   "Invoice " + inv.Number,
			ReferenceType: accounting.RefInvoice,
			ReferenceID:   strconv.FormatInt(inv.ID, 10),
			CreatedBy:     actorID,
			Lines:         ReceivableEntry(defaults, defaults.Revenue, inv.Taxable(), inv.TaxAmount),
		})
		if err != nil {
			return err
		}
		inv.Status = InvoiceStatusSent
		inv.JournalEntryID = &entry.ID
		return tx.UpdateInvoiceStatus(ctx, inv.ID, inv.Status, inv.JournalEntryID)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "invoice.send",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     map[string]any{"number": inv.Number, "journal": entry.Number},
	})
	return inv, nil
}

// RecordPayment books a payment against a Sent, Partial or Overdue invoice.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, input RecordPaymentInput) (Payment, error) {
	input.Amount = shared.Round2(input.Amount)
	if err := shared.ValidateStruct(input); err != nil {
		return Payment{}, err
	}
	var (
		payment Payment
		inv     Invoice
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.Payable() {
			return fmt.Errorf("%w: cannot pay invoice %s in status %s", ErrInvalidTransition, inv.Number, inv.Status)
		}
		if input.Amount.GreaterThan(inv.BalanceDue) {
			return fmt.Errorf("%w: %s > %s", ErrOverpayment, input.Amount.StringFixed(2), inv.BalanceDue.StringFixed(2))
		}
		payment, err = BookReceipt(ctx, tx, s.ledger, Payment{
			InvoiceID:   &inv.ID,
			CustomerID:  inv.CustomerID,
			Amount:      input.Amount,
			Method:      input.Method,
			Reference:   input.Reference,
			Status:      input.Status,
			PaymentDate: accounting.DateOnly(input.PaymentDate),
			CreatedBy:   input.CreatedBy,
		}, accounting.RefPayment, "Payment for invoice "+inv.Number)
		if err != nil {
			return err
		}
		inv = applyPayment(inv, payment.Amount, s.ledger.Today())
		return tx.ApplyInvoicePayment(ctx, inv.ID, payment.Amount, inv.Status)
	})
	if err != nil {
		return Payment{}, err
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  input.CreatedBy,
		Action:   "payment.record",
		Entity:   "payment",
		EntityID: strconv.FormatInt(payment.ID, 10),
		Meta: map[string]any{
			"invoice":     inv.Number,
			"amount":      payment.Amount.StringFixed(2),
			"balance_due": inv.BalanceDue.StringFixed(2),
			"status":      string(inv.Status),
		},
	})
	return payment, nil
}

// DeletePayment undoes a Pending payment: the payment entry is reversed and
// the invoice and customer balances are restored. Booking payments are
// handed to the registered BookingPayments.
func (s *Service) DeletePayment(ctx context.Context, paymentID, actorID int64) error {
	var (
		payment    Payment
		forBooking bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.InvoiceID == nil {
			forBooking = true
			return nil
		}
		inv, err := tx.GetInvoiceForUpdate(ctx, *payment.InvoiceID)
		if err != nil {
			return err
		}
		if err := VoidReceipt(ctx, tx, s.ledger, payment, actorID); err != nil {
			return err
		}
		inv = applyPayment(inv, payment.Amount.Neg(), s.ledger.Today())
		return tx.ApplyInvoicePayment(ctx, inv.ID, payment.Amount.Neg(), inv.Status)
	})
	if err != nil {
		return err
	}
	if forBooking {
		if s.bookings == nil {
			return notDeletable("payment %d belongs to a booking", paymentID)
		}
		return s.bookings.DeletePayment(ctx, paymentID, actorID)
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "payment.delete",
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     map[string]any{"amount": payment.Amount.StringFixed(2)},
	})
	return nil
}

// DeleteInvoice removes a Draft invoice without payments or postings.
func (s *Service) DeleteInvoice(ctx context.Context, id, actorID int64) error {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceStatusDraft {
			return notDeletable("invoice %s is %s", inv.Number, inv.Status)
		}
		if inv.JournalEntryID != nil {
			return notDeletable("invoice %s has a journal entry", inv.Number)
		}
		payments, err := tx.ListPayments(ctx, inv.ID, 0)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return fmt.Errorf("%w: invoice %s", ErrHasPayments, inv.Number)
		}
		if err := tx.AdjustCustomerOutstanding(ctx, inv.CustomerID, inv.BalanceDue.Neg()); err != nil {
			return err
		}
		return tx.DeleteInvoice(ctx, inv.ID)
	})
	if err != nil {
		return err
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "invoice.delete",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"number": inv.Number},
	})
	return nil
}

// CancelInvoice cancels an unpaid invoice, reversing its receivable entry.
func (s *Service) CancelInvoice(ctx context.Context, id, actorID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusOverdue:
		default:
			return transition(inv, InvoiceStatusCancelled)
		}
		payments, err := tx.ListPayments(ctx, inv.ID, 0)
		if err != nil {
			return err
		}
		if len(payments) > 0 || inv.AmountPaid.IsPositive() {
			return fmt.Errorf("%w: invoice %s", ErrHasPayments, inv.Number)
		}
		if inv.JournalEntryID != nil {
			if _, err := s.ledger.ReverseInTx(ctx, tx, accounting.ReverseInput{
				EntryID:     *inv.JournalEntryID,
				ActorID:     actorID,
				Description: "Cancellation of invoice " + inv.Number,
			}); err != nil {
				return err
			}
		}
		if err := tx.AdjustCustomerOutstanding(ctx, inv.CustomerID, inv.BalanceDue.Neg()); err != nil {
			return err
		}
		inv.Status = InvoiceStatusCancelled
		return tx.UpdateInvoiceStatus(ctx, inv.ID, inv.Status, inv.JournalEntryID)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "invoice.cancel",
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     map[string]any{"number": inv.Number},
	})
	return inv, nil
}

// MarkOverdue flags Sent and Partial invoices whose due date has passed.
func (s *Service) MarkOverdue(ctx context.Context) ([]int64, error) {
	today := s.ledger.Today()
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ids, err = tx.MarkOverdue(ctx, today)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.Info("invoices marked overdue", slog.Int("count", len(ids)), slog.Time("as_of", today))
	}
	return ids, nil
}

// applyPayment moves amount from balance due to amount paid and recomputes
// the status. A negative amount undoes a payment.
func applyPayment(inv Invoice, amount decimal.Decimal, today time.Time) Invoice {
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.BalanceDue = inv.Total.Sub(inv.AmountPaid)
	switch {
	case !inv.BalanceDue.IsPositive():
		inv.Status = InvoiceStatusPaid
	case inv.AmountPaid.IsPositive():
		inv.Status = InvoiceStatusPartial
	case inv.DueDate.Before(today):
		inv.Status = InvoiceStatusOverdue
	default:
		inv.Status = InvoiceStatusSent
	}
	return inv
}

func transition(inv Invoice, to InvoiceStatus) error {
	return fmt.Errorf("%w: invoice %s %s -> %s", ErrInvalidTransition, inv.Number, inv.Status, to)
}

func notDeletable(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotDeletable}, args...)...)
}
