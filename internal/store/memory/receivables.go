package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/hall"
)

func (t *txn) InsertCustomer(_ context.Context, in ar.CreateCustomerInput) (ar.Customer, error) {
	for _, c := range t.s.st.customers {
		if c.Code == in.Code {
			return ar.Customer{}, fmt.Errorf("%w: %s", ar.ErrDuplicateCustomer, in.Code)
		}
	}
	now := t.s.now()
	c := ar.Customer{
		ID:                 t.s.next("customer"),
		Code:               in.Code,
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		OutstandingBalance: decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t.s.st.customers[c.ID] = c
	return c, nil
}

func (t *txn) GetCustomer(_ context.Context, id int64) (ar.Customer, error) {
	c, ok := t.s.st.customers[id]
	if !ok {
		return ar.Customer{}, ar.ErrCustomerNotFound
	}
	return c, nil
}

func (t *txn) GetCustomerForUpdate(ctx context.Context, id int64) (ar.Customer, error) {
	return t.GetCustomer(ctx, id)
}

func (t *txn) AdjustCustomerOutstanding(ctx context.Context, id int64, delta decimal.Decimal) error {
	c, err := t.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	c.OutstandingBalance = c.OutstandingBalance.Add(delta)
	c.UpdatedAt = t.s.now()
	t.s.st.customers[id] = c
	return nil
}

func (t *txn) InsertInvoice(ctx context.Context, inv ar.Invoice) (ar.Invoice, error) {
	if _, err := t.GetCustomer(ctx, inv.CustomerID); err != nil {
		return ar.Invoice{}, err
	}
	now := t.s.now()
	inv.ID = t.s.next("invoice")
	inv.Number = number("INV", inv.ID)
	inv.CreatedAt = now
	inv.UpdatedAt = now
	lines := make([]ar.InvoiceLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		line.ID = t.s.next("invoice_line")
		line.InvoiceID = inv.ID
		lines = append(lines, line)
	}
	inv.Lines = lines
	t.s.st.invoices[inv.ID] = inv
	return inv, nil
}

func (t *txn) GetInvoice(_ context.Context, id int64) (ar.Invoice, error) {
	inv, ok := t.s.st.invoices[id]
	if !ok {
		return ar.Invoice{}, ar.ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *txn) GetInvoiceForUpdate(ctx context.Context, id int64) (ar.Invoice, error) {
	return t.GetInvoice(ctx, id)
}

func (t *txn) UpdateInvoiceStatus(ctx context.Context, id int64, status ar.InvoiceStatus, journalEntryID *int64) error {
	inv, err := t.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	inv.Status = status
	inv.JournalEntryID = journalEntryID
	inv.UpdatedAt = t.s.now()
	t.s.st.invoices[id] = inv
	return nil
}

func (t *txn) ApplyInvoicePayment(ctx context.Context, id int64, amount decimal.Decimal, status ar.InvoiceStatus) error {
	inv, err := t.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.BalanceDue = inv.BalanceDue.Sub(amount)
	inv.Status = status
	inv.UpdatedAt = t.s.now()
	t.s.st.invoices[id] = inv
	return nil
}

func (t *txn) DeleteInvoice(_ context.Context, id int64) error {
	if _, ok := t.s.st.invoices[id]; !ok {
		return ar.ErrInvoiceNotFound
	}
	delete(t.s.st.invoices, id)
	return nil
}

func (t *txn) MarkOverdue(_ context.Context, today time.Time) ([]int64, error) {
	var ids []int64
	for id, inv := range t.s.st.invoices {
		if (inv.Status == ar.InvoiceStatusSent || inv.Status == ar.InvoiceStatusPartial) && inv.DueDate.Before(today) {
			inv.Status = ar.InvoiceStatusOverdue
			inv.UpdatedAt = t.s.now()
			t.s.st.invoices[id] = inv
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *txn) InsertPayment(ctx context.Context, p ar.Payment) (ar.Payment, error) {
	if (p.InvoiceID == nil) == (p.BookingID == nil) {
		return ar.Payment{}, shared.Infra("memory: insert payment", errors.New("payment must target exactly one invoice or booking"))
	}
	if _, err := t.GetCustomer(ctx, p.CustomerID); err != nil {
		return ar.Payment{}, err
	}
	p.ID = t.s.next("payment")
	p.CreatedAt = t.s.now()
	t.s.st.payments[p.ID] = p
	return p, nil
}

func (t *txn) GetPaymentForUpdate(_ context.Context, id int64) (ar.Payment, error) {
	p, ok := t.s.st.payments[id]
	if !ok {
		return ar.Payment{}, ar.ErrPaymentNotFound
	}
	return p, nil
}

func (t *txn) SetPaymentJournal(ctx context.Context, id, entryID int64) error {
	p, err := t.GetPaymentForUpdate(ctx, id)
	if err != nil {
		return err
	}
	p.JournalEntryID = &entryID
	t.s.st.payments[id] = p
	return nil
}

func (t *txn) DeletePayment(_ context.Context, id int64) error {
	if _, ok := t.s.st.payments[id]; !ok {
		return ar.ErrPaymentNotFound
	}
	delete(t.s.st.payments, id)
	return nil
}

func (t *txn) ListPayments(_ context.Context, invoiceID, bookingID int64) ([]ar.Payment, error) {
	var out []ar.Payment
	for _, p := range t.s.st.payments {
		if invoiceID != 0 && (p.InvoiceID == nil || *p.InvoiceID != invoiceID) {
			continue
		}
		if bookingID != 0 && (p.BookingID == nil || *p.BookingID != bookingID) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b ar.Payment) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *txn) InsertBooking(ctx context.Context, b hall.Booking) (hall.Booking, error) {
	if _, err := t.GetCustomer(ctx, b.CustomerID); err != nil {
		return hall.Booking{}, err
	}
	now := t.s.now()
	b.ID = t.s.next("booking")
	b.Number = number("BK", b.ID)
	b.CreatedAt = now
	b.UpdatedAt = now
	t.s.st.bookings[b.ID] = b
	return b, nil
}

func (t *txn) GetBooking(_ context.Context, id int64) (hall.Booking, error) {
	b, ok := t.s.st.bookings[id]
	if !ok {
		return hall.Booking{}, hall.ErrBookingNotFound
	}
	return b, nil
}

func (t *txn) GetBookingForUpdate(ctx context.Context, id int64) (hall.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *txn) UpdateBookingStatus(ctx context.Context, id int64, status hall.BookingStatus, journalEntryID *int64) error {
	b, err := t.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	b.Status = status
	b.JournalEntryID = journalEntryID
	b.UpdatedAt = t.s.now()
	t.s.st.bookings[id] = b
	return nil
}

func (t *txn) ApplyBookingPayment(ctx context.Context, id int64, amount decimal.Decimal) error {
	b, err := t.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	b.AmountPaid = b.AmountPaid.Add(amount)
	b.BalanceDue = b.BalanceDue.Sub(amount)
	b.UpdatedAt = t.s.now()
	t.s.st.bookings[id] = b
	return nil
}

// ListReceivableDrift returns customers whose cached outstanding balance
// differs from the balance due of their open invoices and bookings.
func (s *Store) ListReceivableDrift(context.Context) ([]ar.ReceivableTotals, error) {
	var drift []ar.ReceivableTotals
	s.read(func(t *txn) {
		open := make(map[int64]decimal.Decimal)
		for _, inv := range t.s.st.invoices {
			if inv.Status != ar.InvoiceStatusCancelled {
				open[inv.CustomerID] = open[inv.CustomerID].Add(inv.BalanceDue)
			}
		}
		for _, b := range t.s.st.bookings {
			if b.Status != hall.BookingStatusCancelled {
				open[b.CustomerID] = open[b.CustomerID].Add(b.BalanceDue)
			}
		}
		for _, c := range t.s.st.customers {
			if !c.OutstandingBalance.Equal(open[c.ID]) {
				drift = append(drift, ar.ReceivableTotals{
					CustomerID:         c.ID,
					Code:               c.Code,
					OutstandingBalance: c.OutstandingBalance,
					OpenBalanceDue:     open[c.ID],
				})
			}
		}
	})
	slices.SortFunc(drift, func(a, b ar.ReceivableTotals) int { return cmp.Compare(a.CustomerID, b.CustomerID) })
	return drift, nil
}

// ListBalanceDueMismatches returns invoices and bookings whose balance due
// differs from total minus amount paid.
func (s *Store) ListBalanceDueMismatches(context.Context) ([]string, error) {
	var numbers []string
	s.read(func(t *txn) {
		for _, inv := range t.s.st.invoices {
			if !inv.BalanceDue.Equal(inv.Total.Sub(inv.AmountPaid)) {
				numbers = append(numbers, inv.Number)
			}
		}
		for _, b := range t.s.st.bookings {
			if !b.BalanceDue.Equal(b.Total.Sub(b.AmountPaid)) {
				numbers = append(numbers, b.Number)
			}
		}
	})
	slices.Sort(numbers)
	return numbers, nil
}

func mappingKey(module, key string) string {
	return mappings.NormalizeModule(module) + "/" + key
}

// Get resolves an account mapping override.
func (s *Store) Get(_ context.Context, module, key string) (mappings.AccountMapping, error) {
	var (
		m  mappings.AccountMapping
		ok bool
	)
	s.read(func(t *txn) { m, ok = t.s.st.mappings[mappingKey(module, key)] })
	if !ok {
		return mappings.AccountMapping{}, shared.ErrMappingNotFound
	}
	return m, nil
}

// SetMapping stores an account mapping override in its own transaction.
func (s *Store) SetMapping(ctx context.Context, module, key string, accountID int64) error {
	if err := mappings.ValidateKey(module, key); err != nil {
		return err
	}
	return s.run(ctx, func(t *txn) error {
		now := t.s.now()
		k := mappingKey(module, key)
		m, ok := t.s.st.mappings[k]
		if !ok {
			m = mappings.AccountMapping{Module: mappings.NormalizeModule(module), Key: key, CreatedAt: now}
		}
		m.AccountID = accountID
		m.UpdatedAt = now
		t.s.st.mappings[k] = m
		return nil
	})
}

// ListPayments reads the payments of an invoice or booking outside a
// transaction.
func (s *Store) ListPayments(ctx context.Context, invoiceID, bookingID int64) (payments []ar.Payment, err error) {
	s.read(func(t *txn) { payments, err = t.ListPayments(ctx, invoiceID, bookingID) })
	return payments, err
}

// GetCustomer reads a customer outside a transaction.
func (s *Store) GetCustomer(ctx context.Context, id int64) (c ar.Customer, err error) {
	s.read(func(t *txn) { c, err = t.GetCustomer(ctx, id) })
	return c, err
}
