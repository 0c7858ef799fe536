package ar

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// CustomerTxRepository mutates customer receivable caches.
type CustomerTxRepository interface {
	InsertCustomer(ctx context.Context, in CreateCustomerInput) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	GetCustomerForUpdate(ctx context.Context, id int64) (Customer, error)
	AdjustCustomerOutstanding(ctx context.Context, id int64, delta decimal.Decimal) error
}

// PaymentTxRepository persists received payments.
type PaymentTxRepository interface {
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	SetPaymentJournal(ctx context.Context, id, entryID int64) error
	DeletePayment(ctx context.Context, id int64) error
	ListPayments(ctx context.Context, invoiceID, bookingID int64) ([]Payment, error)
}

// ReceiptTx is the unit of work needed to book a customer receipt.
type ReceiptTx interface {
	accounting.TxRepository
	CustomerTxRepository
	PaymentTxRepository
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ReceiptTx
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, journalEntryID *int64) error
	ApplyInvoicePayment(ctx context.Context, id int64, amount decimal.Decimal, status InvoiceStatus) error
	DeleteInvoice(ctx context.Context, id int64) error
	MarkOverdue(ctx context.Context, today time.Time) ([]int64, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
