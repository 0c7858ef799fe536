package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	accounting.TxRepository
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction with receivable and ledger
// operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{TxRepository: accounting.NewTxRepository(tx), tx: tx}
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ar repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const customerColumns = `id, code, name, email, phone, outstanding_balance, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		c           Customer
		outstanding pgtype.Numeric
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &outstanding, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, shared.Infra("ar: scan customer", err)
	}
	c.OutstandingBalance = db.Decimal(outstanding)
	return c, nil
}

func (r *txRepo) InsertCustomer(ctx context.Context, in CreateCustomerInput) (Customer, error) {
	c, err := scanCustomer(r.tx.QueryRow(ctx, `INSERT INTO customers (code, name, email, phone) VALUES ($1,$2,$3,$4) RETURNING `+customerColumns,
		in.Code, in.Name, in.Email, in.Phone))
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok && constraint == "uq_customers_code" {
			return Customer{}, fmt.Errorf("%w: %s", ErrDuplicateCustomer, in.Code)
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *txRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
}

func (r *txRepo) GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) AdjustCustomerOutstanding(ctx context.Context, id int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE customers SET outstanding_balance = outstanding_balance + $2, updated_at=NOW() WHERE id=$1`, id, db.Numeric(delta))
	if err != nil {
		return shared.Infra("ar: adjust outstanding", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

const invoiceColumns = `id, number, customer_id, issue_date, due_date, status, subtotal, discount_amount, tax_rate, tax_amount, total_amount, amount_paid, balance_due, notes, journal_entry_id, COALESCE(created_by, 0), created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                                  Invoice
		subtotal, discount, rate, tax, total pgtype.Numeric
		paid, due                            pgtype.Numeric
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.IssueDate, &inv.DueDate, &inv.Status,
		&subtotal, &discount, &rate, &tax, &total, &paid, &due, &inv.Notes, &inv.JournalEntryID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, shared.Infra("ar: scan invoice", err)
	}
	inv.Subtotal = db.Decimal(subtotal)
	inv.DiscountAmount = db.Decimal(discount)
	inv.TaxRate = db.Decimal(rate)
	inv.TaxAmount = db.Decimal(tax)
	inv.Total = db.Decimal(total)
	inv.AmountPaid = db.Decimal(paid)
	inv.BalanceDue = db.Decimal(due)
	return inv, nil
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	stored, err := scanInvoice(r.tx.QueryRow(ctx, `INSERT INTO invoices (customer_id, issue_date, due_date, status, subtotal, discount_amount, tax_rate, tax_amount, total_amount, amount_paid, balance_due, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+invoiceColumns,
		inv.CustomerID, inv.IssueDate, inv.DueDate, inv.Status, db.Numeric(inv.Subtotal), db.Numeric(inv.DiscountAmount), inv.TaxRate.String(),
		db.Numeric(inv.TaxAmount), db.Numeric(inv.Total), db.Numeric(inv.AmountPaid), db.Numeric(inv.BalanceDue), inv.Notes, db.NullInt(inv.CreatedBy)))
	if err != nil {
		return Invoice{}, err
	}
	for _, line := range inv.Lines {
		var id int64
		if err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, amount) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			stored.ID, line.Description, db.Numeric(line.Quantity), db.Numeric(line.UnitPrice), db.Numeric(line.Amount)).Scan(&id); err != nil {
			return Invoice{}, shared.Infra("ar: insert invoice line", err)
		}
		line.ID = id
		line.InvoiceID = stored.ID
		stored.Lines = append(stored.Lines, line)
	}
	return stored, nil
}

func (r *txRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, invoice_id, description, quantity, unit_price, amount FROM invoice_lines WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, shared.Infra("ar: invoice lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line               InvoiceLine
			qty, price, amount pgtype.Numeric
		)
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description, &qty, &price, &amount); err != nil {
			return Invoice{}, shared.Infra("ar: scan invoice line", err)
		}
		line.Quantity = db.Decimal(qty)
		line.UnitPrice = db.Decimal(price)
		line.Amount = db.Decimal(amount)
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Invoice{}, shared.Infra("ar: invoice lines", err)
	}
	return inv, nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, journalEntryID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, journal_entry_id=$3, updated_at=NOW() WHERE id=$1`, id, status, db.NullIntPtr(journalEntryID))
	if err != nil {
		return shared.Infra("ar: update invoice status", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) ApplyInvoicePayment(ctx context.Context, id int64, amount decimal.Decimal, status InvoiceStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET amount_paid = amount_paid + $2, balance_due = balance_due - $2, status=$3, updated_at=NOW() WHERE id=$1`,
		id, db.Numeric(amount), status)
	if err != nil {
		return shared.Infra("ar: apply invoice payment", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if err != nil {
		return shared.Infra("ar: delete invoice", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) MarkOverdue(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `UPDATE invoices SET status='Overdue', updated_at=NOW()
WHERE status IN ('Sent','Partial') AND due_date < $1 RETURNING id`, today)
	if err != nil {
		return nil, shared.Infra("ar: mark overdue", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, shared.Infra("ar: mark overdue", err)
		}
		ids = append(ids, id)
	}
	return ids, shared.Infra("ar: mark overdue", rows.Err())
}

const paymentColumns = `id, invoice_id, booking_id, customer_id, amount, method, reference, status, payment_date, journal_entry_id, COALESCE(created_by, 0), created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p      Payment
		amount pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.InvoiceID, &p.BookingID, &p.CustomerID, &amount, &p.Method, &p.Reference, &p.Status, &p.PaymentDate, &p.JournalEntryID, &p.CreatedBy, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, shared.Infra("ar: scan payment", err)
	}
	p.Amount = db.Decimal(amount)
	return p, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, booking_id, customer_id, amount, method, reference, status, payment_date, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+paymentColumns,
		db.NullIntPtr(p.InvoiceID), db.NullIntPtr(p.BookingID), p.CustomerID, db.Numeric(p.Amount), p.Method, p.Reference, p.Status, p.PaymentDate, db.NullInt(p.CreatedBy)))
}

func (r *txRepo) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) SetPaymentJournal(ctx context.Context, id, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE payments SET journal_entry_id=$2 WHERE id=$1`, id, entryID)
	if err != nil {
		return shared.Infra("ar: link payment journal", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepo) DeletePayment(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	if err != nil {
		return shared.Infra("ar: delete payment", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepo) ListPayments(ctx context.Context, invoiceID, bookingID int64) ([]Payment, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE ($1::bigint IS NULL OR invoice_id=$1) AND ($2::bigint IS NULL OR booking_id=$2) ORDER BY id`,
		db.NullInt(invoiceID), db.NullInt(bookingID))
	if err != nil {
		return nil, shared.Infra("ar: list payments", err)
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, shared.Infra("ar: list payments", rows.Err())
}

// ReceivableTotals is the invoice and booking exposure of one customer.
type ReceivableTotals struct {
	CustomerID         int64
	Code               string
	OutstandingBalance decimal.Decimal
	OpenBalanceDue     decimal.Decimal
}

// ListReceivableDrift returns customers whose cached outstanding balance
// differs from the balance due of their open invoices and bookings.
func (r *Repository) ListReceivableDrift(ctx context.Context) ([]ReceivableTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.code, c.outstanding_balance,
  COALESCE((SELECT SUM(balance_due) FROM invoices i WHERE i.customer_id = c.id AND i.status <> 'Cancelled'), 0)
  + COALESCE((SELECT SUM(balance_due) FROM hall_bookings b WHERE b.customer_id = c.id AND b.booking_status <> 'Cancelled'), 0) AS open_due
FROM customers c ORDER BY c.id`)
	if err != nil {
		return nil, shared.Infra("ar: receivable totals", err)
	}
	defer rows.Close()
	var drift []ReceivableTotals
	for rows.Next() {
		var (
			t                 ReceivableTotals
			outstanding, open pgtype.Numeric
		)
		if err := rows.Scan(&t.CustomerID, &t.Code, &outstanding, &open); err != nil {
			return nil, shared.Infra("ar: scan receivable totals", err)
		}
		t.OutstandingBalance = db.Decimal(outstanding)
		t.OpenBalanceDue = db.Decimal(open)
		if !t.OutstandingBalance.Equal(t.OpenBalanceDue) {
			drift = append(drift, t)
		}
	}
	return drift, shared.Infra("ar: receivable totals", rows.Err())
}

// ListBalanceDueMismatches returns the numbers of invoices and bookings
// whose balance due differs from total minus amount paid.
func (r *Repository) ListBalanceDueMismatches(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT number FROM invoices WHERE balance_due <> total_amount - amount_paid
UNION ALL
SELECT number FROM hall_bookings WHERE balance_due <> total_amount - amount_paid
ORDER BY number`)
	if err != nil {
		return nil, shared.Infra("ar: balance due mismatches", err)
	}
	defer rows.Close()
	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, shared.Infra("ar: scan balance due mismatch", err)
		}
		numbers = append(numbers, number)
	}
	return numbers, shared.Infra("ar: balance due mismatches", rows.Err())
}
