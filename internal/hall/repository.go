package hall

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
)

// TxRepository exposes transactional booking operations next to the
// receipt and ledger operations a booking payment needs.
type TxRepository interface {
	ar.ReceiptTx
	InsertBooking(ctx context.Context, b Booking) (Booking, error)
	GetBooking(ctx context.Context, id int64) (Booking, error)
	GetBookingForUpdate(ctx context.Context, id int64) (Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status BookingStatus, journalEntryID *int64) error
	ApplyBookingPayment(ctx context.Context, id int64, amount decimal.Decimal) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
