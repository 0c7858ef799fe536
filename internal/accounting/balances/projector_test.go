package balances_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	ledgertest "github.com/odyssey-erp/odyssey-ledger/testing"
)

var today = time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time { return time.Date(2025, 6, n, 0, 0, 0, 0, time.UTC) }

func post(t *testing.T, l *ledgertest.Ledger, date time.Time, debitID, creditID int64, amount string) accounting.JournalEntry {
	t.Helper()
	entry, err := l.Accounting.PostJournal(context.Background(), accounting.PostingInput{
		Date:        date,
		Description: "movement " + amount,
		Lines: []accounting.PostingLineInput{
			{AccountID: debitID, Debit: decimal.RequireFromString(amount)},
			{AccountID: creditID, Credit: decimal.RequireFromString(amount)},
		},
	})
	require.NoError(t, err)
	return entry
}

type countingReader struct {
	balances.Reader
	statements atomic.Int32
}

func (r *countingReader) ListPostedLines(ctx context.Context, accountID int64, from, to time.Time) ([]accounting.LedgerLine, error) {
	r.statements.Add(1)
	return r.Reader.ListPostedLines(ctx, accountID, from, to)
}

func TestStatementRunningBalance(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()

	bank, err := l.Accounting.CreateAccount(ctx, accounting.CreateAccountInput{
		Code: "1020", Name: "Operating Bank", Type: accounting.AccountTypeAsset,
		OpeningBalance: decimal.RequireFromString("1000"), OpeningDate: day(1),
	})
	require.NoError(t, err)

	post(t, l, day(3), bank.ID, l.Defaults.Revenue, "200")
	post(t, l, day(10), l.Defaults.Cash, bank.ID, "150")
	second := post(t, l, day(10), bank.ID, l.Defaults.Revenue, "50")
	post(t, l, day(20), l.Defaults.Cash, bank.ID, "400")

	stmt, err := l.Projector.Statement(ctx, bank.ID, day(5), day(15))
	require.NoError(t, err)
	require.Equal(t, "1200.00", stmt.Opening.StringFixed(2))
	require.Len(t, stmt.Lines, 2)
	require.Equal(t, "1050.00", stmt.Lines[0].Balance.StringFixed(2))
	require.Equal(t, second.ID, stmt.Lines[1].EntryID)
	require.Equal(t, "1100.00", stmt.Lines[1].Balance.StringFixed(2))
	require.Equal(t, "1100.00", stmt.Closing.StringFixed(2))
	require.Equal(t, "50.00", stmt.TotalDebit.StringFixed(2))
	require.Equal(t, "150.00", stmt.TotalCredit.StringFixed(2))

	opening, err := l.Projector.OpeningAsOf(ctx, bank.ID, day(5))
	require.NoError(t, err)
	require.Equal(t, stmt.Opening.StringFixed(2), opening.StringFixed(2))

	balance, err := l.Projector.Balance(ctx, bank.ID, day(15))
	require.NoError(t, err)
	require.Equal(t, stmt.Closing.StringFixed(2), balance.Balance.StringFixed(2))

	full, err := l.Projector.Statement(ctx, bank.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "1000.00", full.Opening.StringFixed(2))
	require.Len(t, full.Lines, 4)
	require.Equal(t, l.Account(t, bank.ID).CurrentBalance.StringFixed(2), full.Closing.StringFixed(2))

	_, err = l.Projector.Statement(ctx, bank.ID, day(15), day(5))
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestStatementShowsPostedEntryOnce(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()

	entry := post(t, l, day(12), l.Defaults.Cash, l.Defaults.Revenue, "99.99")
	stmt, err := l.Projector.Statement(ctx, l.Defaults.Revenue, day(12), day(12))
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 1)
	require.Equal(t, entry.ID, stmt.Lines[0].EntryID)
	require.Equal(t, entry.Number, stmt.Lines[0].EntryNumber)
	require.Equal(t, "99.99", stmt.Lines[0].Balance.StringFixed(2))
}

func TestBalanceAsOfExcludesLaterLines(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()

	post(t, l, day(1), l.Defaults.Cash, l.Defaults.Revenue, "10")
	post(t, l, day(2), l.Defaults.Cash, l.Defaults.Revenue, "20")

	b, err := l.Projector.Balance(ctx, l.Defaults.Cash, day(1))
	require.NoError(t, err)
	require.Equal(t, "10.00", b.Balance.StringFixed(2))
	require.NotNil(t, b.AsOf)

	b, err = l.Projector.Balance(ctx, l.Defaults.Cash, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "30.00", b.Balance.StringFixed(2))

	_, err = l.Projector.Balance(ctx, 4242, time.Time{})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestStatementCacheInvalidatedByPosting(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := balances.NewCache(client, time.Minute)
	l.Accounting.WithInvalidator(cache)
	reader := &countingReader{Reader: l.Store}
	projector := balances.NewProjector(reader, cache, l.Logger)
	var lookups []string
	projector.WithCacheObserver(func(result string) { lookups = append(lookups, result) })

	post(t, l, day(4), l.Defaults.Cash, l.Defaults.Revenue, "40")

	first, err := projector.Statement(ctx, l.Defaults.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, first.Lines, 1)
	again, err := projector.Statement(ctx, l.Defaults.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, first.Closing.StringFixed(2), again.Closing.StringFixed(2))
	require.EqualValues(t, 1, reader.statements.Load())

	post(t, l, day(5), l.Defaults.Cash, l.Defaults.Revenue, "2")
	fresh, err := projector.Statement(ctx, l.Defaults.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, fresh.Lines, 2)
	require.Equal(t, "42.00", fresh.Closing.StringFixed(2))
	require.EqualValues(t, 2, reader.statements.Load())
	require.Equal(t, []string{"miss", "hit", "miss"}, lookups)
}

func TestStatementFallsBackWhenCacheDown(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := balances.NewCache(client, time.Minute)
	projector := balances.NewProjector(l.Store, cache, l.Logger)
	post(t, l, day(4), l.Defaults.Cash, l.Defaults.Revenue, "15")
	mr.Close()

	stmt, err := projector.Statement(ctx, l.Defaults.Cash, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "15.00", stmt.Closing.StringFixed(2))
}

func TestTrialBalanceBalances(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()

	_, err := l.Accounting.CreateAccount(ctx, accounting.CreateAccountInput{
		Code: "2300", Name: "Loan", Type: accounting.AccountTypeLiability,
		OpeningBalance: decimal.RequireFromString("500"), OpeningDate: day(1),
	})
	require.NoError(t, err)
	expense, err := l.Accounting.GetAccountByCode(ctx, "5010")
	require.NoError(t, err)
	post(t, l, day(2), l.Defaults.Cash, l.Defaults.Revenue, "800")
	post(t, l, day(3), expense.ID, l.Defaults.Cash, "120")
	post(t, l, day(29), l.Defaults.Cash, l.Defaults.Revenue, "5")

	tb, err := l.Projector.TrialBalance(ctx, day(28))
	require.NoError(t, err)
	require.True(t, tb.Balanced)
	require.Equal(t, tb.ClosingDebit.StringFixed(2), tb.ClosingCredit.StringFixed(2))

	closing := map[string]string{}
	for _, group := range tb.Groups {
		for _, row := range group.Accounts {
			closing[row.Code] = row.Balance.StringFixed(2)
		}
	}
	require.Equal(t, "680.00", closing["1010"])
	require.Equal(t, "800.00", closing["4010"])
	require.Equal(t, "120.00", closing["5010"])
	require.Equal(t, "500.00", closing["2300"])
	require.Equal(t, "-500.00", closing["3010"])
}

type skewedReader struct {
	balances.Reader
	accountID int64
}

func (r skewedReader) ListAccounts(ctx context.Context) ([]accounting.Account, error) {
	accounts, err := r.Reader.ListAccounts(ctx)
	for i := range accounts {
		if accounts[i].ID == r.accountID {
			accounts[i].CurrentBalance = accounts[i].CurrentBalance.Add(decimal.NewFromInt(1))
		}
	}
	return accounts, err
}

func TestDriftComparesCachedBalances(t *testing.T) {
	l := ledgertest.NewLedger(t, today)
	ctx := context.Background()
	post(t, l, day(2), l.Defaults.Cash, l.Defaults.Revenue, "75.25")
	post(t, l, day(3), l.Defaults.Receivable, l.Defaults.Revenue, "10")

	drift, err := l.Projector.Drift(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)

	skewed := balances.NewProjector(skewedReader{Reader: l.Store, accountID: l.Defaults.Cash}, nil, l.Logger)
	drift, err = skewed.Drift(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.Equal(t, l.Defaults.Cash, drift[0].AccountID)
	require.Equal(t, "76.25", drift[0].Cached.StringFixed(2))
	require.Equal(t, "75.25", drift[0].Folded.StringFixed(2))
}
