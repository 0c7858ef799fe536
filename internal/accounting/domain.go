package accounting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance of this type.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Signed converts a debit/credit pair into a balance movement for this type.
func (t AccountType) Signed(debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
)

// ReferenceType names the domain object a journal entry was posted for.
type ReferenceType string

const (
	RefManual         ReferenceType = "manual"
	RefOpeningBalance ReferenceType = "opening_balance"
	RefInvoice        ReferenceType = "invoice"
	RefPayment        ReferenceType = "payment"
	RefBooking        ReferenceType = "booking"
	RefBookingPayment ReferenceType = "booking_payment"
	RefReversal       ReferenceType = "reversal"
)

// Valid reports whether t is a known reference type.
func (t ReferenceType) Valid() bool {
	switch t {
	case RefManual, RefOpeningBalance, RefInvoice, RefPayment, RefBooking, RefBookingPayment, RefReversal:
		return true
	}
	return false
}

// Account models a chart of accounts node.
type Account struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	Subtype        string          `json:"subtype,omitempty"`
	ParentID       *int64          `json:"parent_id,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsSystem       bool            `json:"is_system"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID            int64         `json:"id"`
	Number        string        `json:"number"`
	Date          time.Time     `json:"date"`
	Description   string        `json:"description"`
	Status        JournalStatus `json:"status"`
	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	CreatedBy     int64         `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores debit or credit amount for an account.
//
// Opening lines restate an account's opening balance; they are already
// counted in Account.OpeningBalance and never move the cached balance.
type JournalLine struct {
	ID          int64           `json:"id"`
	EntryID     int64           `json:"entry_id"`
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	Opening     bool            `json:"opening,omitempty"`
}

// LedgerLine is a posted line joined with its entry header, as read by
// balance projections.
type LedgerLine struct {
	LineID      int64
	EntryID     int64
	EntryNumber string
	Date        time.Time
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// LineTotals aggregates posted debits and credits.
type LineTotals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// DefaultAccounts holds the account ids postings fall back on. They are
// resolved once at startup by the mappings package.
type DefaultAccounts struct {
	Receivable  int64
	Revenue     int64
	TaxPayable  int64
	Cash        int64
	Equity      int64
	HallRevenue int64
}

// HallRevenueAccount returns the hall revenue account or the default revenue.
func (d DefaultAccounts) HallRevenueAccount() int64 {
	if d.HallRevenue != 0 {
		return d.HallRevenue
	}
	return d.Revenue
}

// CreateAccountInput carries the fields for a new account.
type CreateAccountInput struct {
	Code           string          `json:"code" validate:"required,max=32,acctcode"`
	Name           string          `json:"name" validate:"required,max=255"`
	Type           AccountType     `json:"type" validate:"required"`
	Subtype        string          `json:"subtype" validate:"max=100"`
	ParentID       *int64          `json:"parent_id" validate:"omitempty,gt=0"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"money"`
	OpeningDate    time.Time       `json:"opening_date"`
	IsSystem       bool            `json:"is_system"`
	CreatedBy      int64           `json:"-"`
}

// UpdateAccountInput carries editable account attributes.
type UpdateAccountInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	Subtype string `json:"subtype" validate:"max=100"`
}

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit" validate:"dgte0,money"`
	Credit      decimal.Decimal `json:"credit" validate:"dgte0,money"`
	Description string          `json:"description" validate:"max=255"`
	Opening     bool            `json:"-"`
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date          time.Time          `json:"date" validate:"required"`
	Description   string             `json:"description" validate:"max=500"`
	ReferenceType ReferenceType      `json:"reference_type"`
	ReferenceID   string             `json:"reference_id" validate:"max=64"`
	CreatedBy     int64              `json:"-"`
	Lines         []PostingLineInput `json:"lines" validate:"dive"`
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID     int64
	ActorID     int64
	Description string
	Date        *time.Time
}

// JournalFilter narrows journal listings.
type JournalFilter struct {
	ReferenceType ReferenceType
	From          time.Time
	To            time.Time
	Limit         int
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if err := shared.ValidateStruct(in); err != nil {
		return err
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		hasDebit, hasCredit := !line.Debit.IsZero(), !line.Credit.IsZero()
		if hasDebit == hasCredit {
			return fmt.Errorf("%w: line %d", shared.ErrInvalidLine, idx)
		}
		if line.Opening && in.ReferenceType != RefOpeningBalance {
			return shared.Errorf(shared.KindValidation, "accounting: line %d marked opening outside an opening entry", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
