package hall

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus enumerates booking lifecycle values.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "Pending"
	BookingStatusConfirmed BookingStatus = "Confirmed"
	BookingStatusCompleted BookingStatus = "Completed"
	BookingStatusCancelled BookingStatus = "Cancelled"
)

// Booking is a hall reservation billed to a customer.
type Booking struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	CustomerID     int64           `json:"customer_id"`
	HallName       string          `json:"hall_name"`
	EventDate      time.Time       `json:"event_date"`
	Status         BookingStatus   `json:"booking_status"`
	Total          decimal.Decimal `json:"total_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	Notes          string          `json:"notes,omitempty"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateBookingInput carries the fields for a new booking.
type CreateBookingInput struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	HallName   string          `json:"hall_name" validate:"required,max=255"`
	EventDate  time.Time       `json:"-"`
	Total      decimal.Decimal `json:"total_amount" validate:"dgt0,money"`
	Notes      string          `json:"notes" validate:"max=2000"`
	CreatedBy  int64           `json:"-"`
}
