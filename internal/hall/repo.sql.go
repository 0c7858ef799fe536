package hall

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists hall bookings in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	ar.TxRepository
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("hall repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: ar.NewTxRepository(tx), tx: tx})
	})
}

const bookingColumns = `id, number, customer_id, hall_name, event_date, booking_status, total_amount, amount_paid, balance_due, notes, journal_entry_id, COALESCE(created_by, 0), created_at, updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var (
		b                Booking
		total, paid, due pgtype.Numeric
	)
	err := row.Scan(&b.ID, &b.Number, &b.CustomerID, &b.HallName, &b.EventDate, &b.Status,
		&total, &paid, &due, &b.Notes, &b.JournalEntryID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrBookingNotFound
		}
		return Booking{}, shared.Infra("hall: scan booking", err)
	}
	b.Total = db.Decimal(total)
	b.AmountPaid = db.Decimal(paid)
	b.BalanceDue = db.Decimal(due)
	return b, nil
}

func (r *txRepo) InsertBooking(ctx context.Context, b Booking) (Booking, error) {
	return scanBooking(r.tx.QueryRow(ctx, `INSERT INTO hall_bookings (customer_id, hall_name, event_date, booking_status, total_amount, amount_paid, balance_due, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+bookingColumns,
		b.CustomerID, b.HallName, b.EventDate, b.Status, db.Numeric(b.Total), db.Numeric(b.AmountPaid), db.Numeric(b.BalanceDue), b.Notes, db.NullInt(b.CreatedBy)))
}

func (r *txRepo) GetBooking(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(r.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM hall_bookings WHERE id=$1`, id))
}

func (r *txRepo) GetBookingForUpdate(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(r.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM hall_bookings WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateBookingStatus(ctx context.Context, id int64, status BookingStatus, journalEntryID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE hall_bookings SET booking_status=$2, journal_entry_id=$3, updated_at=NOW() WHERE id=$1`,
		id, status, db.NullIntPtr(journalEntryID))
	if err != nil {
		return shared.Infra("hall: update booking status", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *txRepo) ApplyBookingPayment(ctx context.Context, id int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE hall_bookings SET amount_paid = amount_paid + $2, balance_due = balance_due - $2, updated_at=NOW() WHERE id=$1`,
		id, db.Numeric(amount))
	if err != nil {
		return shared.Infra("hall: apply booking payment", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}
