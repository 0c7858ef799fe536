package hall

import "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"

var (
	// ErrBookingNotFound indicates a missing booking.
	ErrBookingNotFound = shared.New(shared.KindNotFound, "hall: booking not found")
	// ErrInvalidTransition indicates an illegal booking status change.
	ErrInvalidTransition = shared.New(shared.KindState, "hall: invalid booking status transition")
)
