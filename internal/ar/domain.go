package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "Draft"
	InvoiceStatusSent      InvoiceStatus = "Sent"
	InvoiceStatusPartial   InvoiceStatus = "Partial"
	InvoiceStatusPaid      InvoiceStatus = "Paid"
	InvoiceStatusOverdue   InvoiceStatus = "Overdue"
	InvoiceStatusCancelled InvoiceStatus = "Cancelled"
)

// Payable reports whether payments may be recorded in this status.
func (s InvoiceStatus) Payable() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPartial || s == InvoiceStatusOverdue
}

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
)

// Customer holds the receivable aggregate for one customer.
type Customer struct {
	ID                 int64           `json:"id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Email              string          `json:"email,omitempty"`
	Phone              string          `json:"phone,omitempty"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Invoice model.
type Invoice struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	CustomerID     int64           `json:"customer_id"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	Status         InvoiceStatus   `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	Notes          string          `json:"notes,omitempty"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Lines          []InvoiceLine   `json:"lines,omitempty"`
}

// Taxable returns the discounted amount tax is computed on.
func (inv Invoice) Taxable() decimal.Decimal {
	return inv.Subtotal.Sub(inv.DiscountAmount)
}

// InvoiceLine is a billed item.
type InvoiceLine struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Payment is money received against an invoice or a booking.
type Payment struct {
	ID             int64           `json:"id"`
	InvoiceID      *int64          `json:"invoice_id,omitempty"`
	BookingID      *int64          `json:"booking_id,omitempty"`
	CustomerID     int64           `json:"customer_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Status         PaymentStatus   `json:"status"`
	PaymentDate    time.Time       `json:"payment_date"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateCustomerInput carries customer fields.
type CreateCustomerInput struct {
	Code  string `json:"code" validate:"required,max=32,acctcode"`
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
	Phone string `json:"phone" validate:"max=64"`
}

// InvoiceLineInput describes a billed item on creation.
type InvoiceLineInput struct {
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    decimal.Decimal `json:"quantity" validate:"dgt0,money"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"dgte0,money"`
}

// CreateInvoiceInput carries the fields for a new invoice.
type CreateInvoiceInput struct {
	CustomerID     int64              `json:"customer_id" validate:"required,gt=0"`
	IssueDate      time.Time          `json:"-"`
	DueDate        time.Time          `json:"-"`
	DiscountAmount decimal.Decimal    `json:"discount_amount" validate:"dgte0,money"`
	TaxRate        decimal.Decimal    `json:"tax_rate" validate:"percent"`
	Notes          string             `json:"notes" validate:"max=2000"`
	Lines          []InvoiceLineInput `json:"lines" validate:"required,min=1,dive"`
	CreatedBy      int64              `json:"-"`
}

// RecordPaymentInput carries a received payment.
type RecordPaymentInput struct {
	Amount      decimal.Decimal `json:"amount" validate:"dgt0,money"`
	Method      string          `json:"method" validate:"max=32"`
	Reference   string          `json:"reference" validate:"max=128"`
	Status      PaymentStatus   `json:"status" validate:"omitempty,oneof=Pending Completed"`
	PaymentDate time.Time       `json:"-"`
	CreatedBy   int64           `json:"-"`
}

// Totals is the computed money breakdown of an invoice.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// CalculateTotals applies the discount to the subtotal before computing tax
// on the discounted amount.
func CalculateTotals(lines []InvoiceLineInput, discount, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineAmount(line))
	}
	discount = shared.Round2(discount)
	taxable := subtotal.Sub(discount)
	tax := shared.Percent(taxable, taxRate)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Taxable:  taxable,
		Tax:      tax,
		Total:    taxable.Add(tax),
	}
}

// LineAmount returns quantity x unit price rounded to cents.
func LineAmount(line InvoiceLineInput) decimal.Decimal {
	return shared.Round2(line.Quantity.Mul(line.UnitPrice))
}
