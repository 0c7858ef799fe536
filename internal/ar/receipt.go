package ar

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger posts journal entries inside transactions owned by the caller.
type Ledger interface {
	PostInTx(ctx context.Context, tx accounting.TxRepository, in accounting.PostingInput) (accounting.JournalEntry, error)
	ReverseInTx(ctx context.Context, tx accounting.TxRepository, in accounting.ReverseInput) (accounting.JournalEntry, error)
	AfterCommit(ctx context.Context, log internalShared.AuditLog)
	Defaults() accounting.DefaultAccounts
	Today() time.Time
}

// BookReceipt stores a payment, posts Dr Cash / Cr Accounts Receivable for
// it and lowers the customer's outstanding balance, all inside tx.
func BookReceipt(ctx context.Context, tx ReceiptTx, ledger Ledger, p Payment, refType accounting.ReferenceType, memo string) (Payment, error) {
	p.Amount = shared.Round2(p.Amount)
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = ledger.Today()
	}
	stored, err := tx.InsertPayment(ctx, p)
	if err != nil {
		return Payment{}, err
	}
	defaults := ledger.Defaults()
	entry, err := ledger.PostInTx(ctx, tx, accounting.PostingInput{
		Date:          stored.PaymentDate,
		Description:   memo,
		ReferenceType: refType,
		ReferenceID:   strconv.FormatInt(stored.ID, 10),
		CreatedBy:     p.CreatedBy,
		Lines: []accounting.PostingLineInput{
			{AccountID: defaults.Cash, Debit: stored.Amount, Description: memo},
			{AccountID: defaults.Receivable, Credit: stored.Amount, Description: memo},
		},
	})
	if err != nil {
		return Payment{}, err
	}
	if err := tx.SetPaymentJournal(ctx, stored.ID, entry.ID); err != nil {
		return Payment{}, err
	}
	stored.JournalEntryID = &entry.ID
	if err := tx.AdjustCustomerOutstanding(ctx, stored.CustomerID, stored.Amount.Neg()); err != nil {
		return Payment{}, err
	}
	return stored, nil
}

// VoidReceipt reverses a pending payment's journal entry, restores the
// customer's outstanding balance and deletes the payment row.
func VoidReceipt(ctx context.Context, tx ReceiptTx, ledger Ledger, p Payment, actorID int64) error {
	if p.Status != PaymentStatusPending {
		return notDeletable("payment %d is %s", p.ID, p.Status)
	}
	if p.JournalEntryID != nil {
		if _, err := ledger.ReverseInTx(ctx, tx, accounting.ReverseInput{
			EntryID:     *p.JournalEntryID,
			ActorID:     actorID,
			Description: "Payment " + strconv.FormatInt(p.ID, 10) + " deleted",
		}); err != nil {
			return err
		}
	}
	if err := tx.AdjustCustomerOutstanding(ctx, p.CustomerID, p.Amount); err != nil {
		return err
	}
	return tx.DeletePayment(ctx, p.ID)
}

// ReceivableEntry builds Dr Accounts Receivable against revenue and tax.
func ReceivableEntry(defaults accounting.DefaultAccounts, revenueID int64, taxable, tax decimal.Decimal) []accounting.PostingLineInput {
	lines := []accounting.PostingLineInput{
		{AccountID: defaults.Receivable, Debit: taxable.Add(tax)},
	}
	if taxable.IsPositive() {
		lines = append(lines, accounting.PostingLineInput{AccountID: revenueID, Credit: taxable})
	}
	if tax.IsPositive() {
		lines = append(lines, accounting.PostingLineInput{AccountID: defaults.TaxPayable, Credit: tax})
	}
	return lines
}
