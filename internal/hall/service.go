package hall

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service runs the booking lifecycle and its receivable postings.
type Service struct {
	repo   RepositoryPort
	ledger ar.Ledger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, ledger ar.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, logger: logger}
}

// CreateBooking stores a Pending booking and raises the customer's
// outstanding balance by its total.
func (s *Service) CreateBooking(ctx context.Context, input CreateBookingInput) (Booking, error) {
	input.HallName = strings.TrimSpace(input.HallName)
	input.Total = shared.Round2(input.Total)
	if err := shared.ValidateStruct(input); err != nil {
		return Booking{}, err
	}
	if input.EventDate.IsZero() {
		return Booking{}, shared.Errorf(shared.KindValidation, "hall: event date required")
	}
	booking := Booking{
		CustomerID: input.CustomerID,
		HallName:   input.HallName,
		EventDate:  accounting.DateOnly(input.EventDate),
		Status:     BookingStatusPending,
		Total:      input.Total,
		AmountPaid: decimal.Zero,
		BalanceDue: input.Total,
		Notes:      input.Notes,
		CreatedBy:  input.CreatedBy,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCustomerForUpdate(ctx, input.CustomerID); err != nil {
			return err
		}
		var err error
		booking, err = tx.InsertBooking(ctx, booking)
		if err != nil {
			return err
		}
		return tx.AdjustCustomerOutstanding(ctx, booking.CustomerID, booking.Total)
	})
	if err != nil {
		return Booking{}, err
	}
	s.audit(ctx, input.CreatedBy, "booking.create", booking, map[string]any{"total": booking.Total.StringFixed(2)})
	return booking, nil
}

// GetBooking returns a booking.
func (s *Service) GetBooking(ctx context.Context, id int64) (Booking, error) {
	var booking Booking
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		booking, err = tx.GetBooking(ctx, id)
		return err
	})
	return booking, err
}

// ConfirmBooking moves a Pending booking to Confirmed and posts
// Dr Accounts Receivable / Cr hall revenue for its total. Any other status
// fails without changing the booking.
func (s *Service) ConfirmBooking(ctx context.Context, id, actorID int64) (Booking, error) {
	var (
		booking Booking
		entry   accounting.JournalEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		booking, err = tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking.Status != BookingStatusPending {
			return transition(booking, BookingStatusConfirmed)
		}
		defaults := s.ledger.Defaults()
		entry, err = s.ledger.PostInTx(ctx, tx, accounting.PostingInput{
			Date:          s.ledger.Today(),
			Description:   "Hall booking " + booking.Number + " confirmed",
			ReferenceType: accounting.RefBooking,
			ReferenceID:   strconv.FormatInt(booking.ID, 10),
			CreatedBy:     actorID,
			Lines:         ar.ReceivableEntry(defaults, defaults.HallRevenueAccount(), booking.Total, decimal.Zero),
		})
		if err != nil {
			return err
		}
		booking.Status = BookingStatusConfirmed
		booking.JournalEntryID = &entry.ID
		return tx.UpdateBookingStatus(ctx, booking.ID, booking.Status, booking.JournalEntryID)
	})
	if err != nil {
		return Booking{}, err
	}
	s.audit(ctx, actorID, "booking.confirm", booking, map[string]any{"journal": entry.Number})
	return booking, nil
}

// CompleteBooking closes a Confirmed booking after the event.
func (s *Service) CompleteBooking(ctx context.Context, id, actorID int64) (Booking, error) {
	var booking Booking
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		booking, err = tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking.Status != BookingStatusConfirmed {
			return transition(booking, BookingStatusCompleted)
		}
		booking.Status = BookingStatusCompleted
		return tx.UpdateBookingStatus(ctx, booking.ID, booking.Status, booking.JournalEntryID)
	})
	if err != nil {
		return Booking{}, err
	}
	s.audit(ctx, actorID, "booking.complete", booking, nil)
	return booking, nil
}

// CancelBooking cancels an unpaid Pending or Confirmed booking. The
// confirmation entry is reversed and the outstanding balance released.
func (s *Service) CancelBooking(ctx context.Context, id, actorID int64) (Booking, error) {
	var booking Booking
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		booking, err = tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking.Status != BookingStatusPending && booking.Status != BookingStatusConfirmed {
			return transition(booking, BookingStatusCancelled)
		}
		payments, err := tx.ListPayments(ctx, 0, booking.ID)
		if err != nil {
			return err
		}
		if len(payments) > 0 || booking.AmountPaid.IsPositive() {
			return fmt.Errorf("%w: booking %s", ar.ErrHasPayments, booking.Number)
		}
		if booking.JournalEntryID != nil {
			if _, err := s.ledger.ReverseInTx(ctx, tx, accounting.ReverseInput{
				EntryID:     *booking.JournalEntryID,
				ActorID:     actorID,
				Description: "Cancellation of hall booking " + booking.Number,
			}); err != nil {
				return err
			}
		}
		if err := tx.AdjustCustomerOutstanding(ctx, booking.CustomerID, booking.BalanceDue.Neg()); err != nil {
			return err
		}
		booking.Status = BookingStatusCancelled
		return tx.UpdateBookingStatus(ctx, booking.ID, booking.Status, booking.JournalEntryID)
	})
	if err != nil {
		return Booking{}, err
	}
	s.audit(ctx, actorID, "booking.cancel", booking, nil)
	return booking, nil
}

// RecordPayment books a payment against a Confirmed or Completed booking.
func (s *Service) RecordPayment(ctx context.Context, bookingID int64, input ar.RecordPaymentInput) (ar.Payment, error) {
	input.Amount = shared.Round2(input.Amount)
	if err := shared.ValidateStruct(input); err != nil {
		return ar.Payment{}, err
	}
	var (
		payment ar.Payment
		booking Booking
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		booking, err = tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != BookingStatusConfirmed && booking.Status != BookingStatusCompleted {
			return fmt.Errorf("%w: cannot pay booking %s in status %s", ErrInvalidTransition, booking.Number, booking.Status)
		}
		if input.Amount.GreaterThan(booking.BalanceDue) {
			return fmt.Errorf("%w: %s > %s", ar.ErrOverpayment, input.Amount.StringFixed(2), booking.BalanceDue.StringFixed(2))
		}
		payment, err = ar.BookReceipt(ctx, tx, s.ledger, ar.Payment{
			BookingID:   &booking.ID,
			CustomerID:  booking.CustomerID,
			Amount:      input.Amount,
			Method:      input.Method,
			Reference:   input.Reference,
			Status:      input.Status,
			PaymentDate: accounting.DateOnly(input.PaymentDate),
			CreatedBy:   input.CreatedBy,
		}, accounting.RefBookingPayment, "Payment for hall booking "+booking.Number)
		if err != nil {
			return err
		}
		booking.AmountPaid = booking.AmountPaid.Add(payment.Amount)
		booking.BalanceDue = booking.Total.Sub(booking.AmountPaid)
		return tx.ApplyBookingPayment(ctx, booking.ID, payment.Amount)
	})
	if err != nil {
		return ar.Payment{}, err
	}
	s.audit(ctx, input.CreatedBy, "booking.payment", booking, map[string]any{
		"payment_id":  payment.ID,
		"amount":      payment.Amount.StringFixed(2),
		"balance_due": booking.BalanceDue.StringFixed(2),
	})
	return payment, nil
}

// DeletePayment undoes a Pending booking payment: the receipt entry is
// reversed and the booking and customer balances are restored. The booking
// keeps its status.
func (s *Service) DeletePayment(ctx context.Context, paymentID, actorID int64) error {
	var (
		payment ar.Payment
		booking Booking
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.BookingID == nil {
			return fmt.Errorf("%w: payment %d belongs to an invoice", ar.ErrNotDeletable, payment.ID)
		}
		booking, err = tx.GetBookingForUpdate(ctx, *payment.BookingID)
		if err != nil {
			return err
		}
		if err := ar.VoidReceipt(ctx, tx, s.ledger, payment, actorID); err != nil {
			return err
		}
		booking.AmountPaid = booking.AmountPaid.Sub(payment.Amount)
		booking.BalanceDue = booking.Total.Sub(booking.AmountPaid)
		return tx.ApplyBookingPayment(ctx, booking.ID, payment.Amount.Neg())
	})
	if err != nil {
		return err
	}
	s.audit(ctx, actorID, "booking.payment_delete", booking, map[string]any{
		"payment_id":  paymentID,
		"amount":      payment.Amount.StringFixed(2),
		"balance_due": booking.BalanceDue.StringFixed(2),
	})
	return nil
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, booking Booking, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = booking.Number
	meta["status"] = string(booking.Status)
	s.ledger.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "hall_booking",
		EntityID: strconv.FormatInt(booking.ID, 10),
		Meta:     meta,
	})
}

func transition(b Booking, to BookingStatus) error {
	return fmt.Errorf("%w: booking %s %s -> %s", ErrInvalidTransition, b.Number, b.Status, to)
}
