package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

func TestRunRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	boom := errors.New("boom")

	var inserted accounting.Account
	err := store.Accounting().WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		var err error
		inserted, err = tx.InsertAccount(ctx, accounting.CreateAccountInput{Code: "1010", Name: "Cash", Type: accounting.AccountTypeAsset})
		if err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetAccount(ctx, inserted.ID)
	require.Error(t, err)
	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Empty(t, accounts)

	err = store.Accounting().WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		account, err := tx.InsertAccount(ctx, accounting.CreateAccountInput{Code: "1010", Name: "Cash", Type: accounting.AccountTypeAsset})
		require.Greater(t, account.ID, inserted.ID)
		return err
	})
	require.NoError(t, err)
}

func TestRunRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.Panics(t, func() {
		_ = store.AR().WithTx(ctx, func(ctx context.Context, tx ar.TxRepository) error {
			if _, err := tx.InsertCustomer(ctx, ar.CreateCustomerInput{Code: "C-1", Name: "Acme"}); err != nil {
				return err
			}
			panic("mid-transaction")
		})
	})

	err := store.AR().WithTx(ctx, func(ctx context.Context, tx ar.TxRepository) error {
		customer, err := tx.InsertCustomer(ctx, ar.CreateCustomerInput{Code: "C-1", Name: "Acme"})
		if err != nil {
			return err
		}
		require.Equal(t, int64(2), customer.ID)
		require.True(t, customer.OutstandingBalance.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestRunRejectsCancelledContext(t *testing.T) {
	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Accounting().WithTx(ctx, func(context.Context, accounting.TxRepository) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestNumbersAreSequential(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.WithNow(func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) })

	var numbers []string
	err := store.AR().WithTx(ctx, func(ctx context.Context, tx ar.TxRepository) error {
		customer, err := tx.InsertCustomer(ctx, ar.CreateCustomerInput{Code: "C-2", Name: "Globex"})
		if err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			inv, err := tx.InsertInvoice(ctx, ar.Invoice{
				CustomerID: customer.ID,
				Status:     ar.InvoiceStatusDraft,
				Total:      decimal.NewFromInt(10),
				BalanceDue: decimal.NewFromInt(10),
			})
			if err != nil {
				return err
			}
			numbers = append(numbers, inv.Number)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"INV-000001", "INV-000002"}, numbers)
}

func TestSetMappingRunsInTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.SetMapping(ctx, "ledger", "revenue", 7))
	m, err := store.Get(ctx, "LEDGER", "revenue")
	require.NoError(t, err)
	require.Equal(t, int64(7), m.AccountID)
	created := m.CreatedAt

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, store.SetMapping(cancelled, "ledger", "revenue", 9))
	m, err = store.Get(ctx, "ledger", "revenue")
	require.NoError(t, err)
	require.Equal(t, int64(7), m.AccountID)

	require.NoError(t, store.SetMapping(ctx, "ledger", "revenue", 9))
	m, err = store.Get(ctx, "ledger", "revenue")
	require.NoError(t, err)
	require.Equal(t, int64(9), m.AccountID)
	require.Equal(t, created, m.CreatedAt)

	require.Error(t, store.SetMapping(ctx, "", "revenue", 1))
	require.Error(t, store.SetMapping(ctx, "ledger", "payroll", 1))
	_, err = store.Get(ctx, "ledger", "payroll")
	require.Error(t, err)
}
