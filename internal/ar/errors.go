package ar

import "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"

var (
	// ErrCustomerNotFound indicates a missing customer.
	ErrCustomerNotFound = shared.New(shared.KindNotFound, "ar: customer not found")
	// ErrDuplicateCustomer indicates the customer code is taken.
	ErrDuplicateCustomer = shared.New(shared.KindValidation, "ar: customer code already exists")
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = shared.New(shared.KindNotFound, "ar: invoice not found")
	// ErrPaymentNotFound indicates a missing payment.
	ErrPaymentNotFound = shared.New(shared.KindNotFound, "ar: payment not found")
	// ErrInvalidTransition indicates an illegal invoice status change.
	ErrInvalidTransition = shared.New(shared.KindState, "ar: invalid invoice status transition")
	// ErrOverpayment indicates a payment larger than the balance due.
	ErrOverpayment = shared.New(shared.KindValidation, "ar: payment exceeds balance due")
	// ErrNotDeletable indicates the invoice or payment is past its deletable state.
	ErrNotDeletable = shared.New(shared.KindConflict, "ar: record is not deletable")
	// ErrHasPayments indicates payments block the operation.
	ErrHasPayments = shared.New(shared.KindConflict, "ar: payments recorded")
	// ErrInvalidTotals indicates the invoice would not bill a positive amount.
	ErrInvalidTotals = shared.New(shared.KindValidation, "ar: invoice total must be positive")
)
