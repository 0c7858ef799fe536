package testing

import (
	"context"
	"io"
	"log/slog"
	stdtesting "testing"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/hall"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

// Ledger wires the ledger services over a fresh memory store.
type Ledger struct {
	Store      *memory.Store
	Accounting *accounting.Service
	AR         *ar.Service
	Hall       *hall.Service
	Projector  *balances.Projector
	Defaults   accounting.DefaultAccounts
	Logger     *slog.Logger
	Today      time.Time
}

// NewLedger seeds the default chart and pins the clock to today.
func NewLedger(t stdtesting.TB, today time.Time) *Ledger {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return today }

	store := memory.New()
	store.WithNow(now)
	ledger := accounting.NewService(store.Accounting(), shared.NewLogAuditor(logger), logger)
	ledger.WithNow(now)
	if err := memory.Seed(ctx, ledger, memory.DefaultChart); err != nil {
		t.Fatalf("seed chart: %v", err)
	}
	defaults, err := mappings.NewResolver(store, store).Resolve(ctx, memory.DefaultCodes)
	if err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	ledger.WithDefaults(defaults)

	receivables := ar.NewService(store.AR(), ledger, logger)
	bookings := hall.NewService(store.Hall(), ledger, logger)
	receivables.WithBookingPayments(bookings)

	return &Ledger{
		Store:      store,
		Accounting: ledger,
		AR:         receivables,
		Hall:       bookings,
		Projector:  balances.NewProjector(store, nil, logger),
		Defaults:   defaults,
		Logger:     logger,
		Today:      accounting.DateOnly(today),
	}
}

// Account returns the current state of an account or fails the test.
func (l *Ledger) Account(t stdtesting.TB, id int64) accounting.Account {
	t.Helper()
	account, err := l.Store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %d: %v", id, err)
	}
	return account
}

// Customer creates a customer or fails the test.
func (l *Ledger) Customer(t stdtesting.TB, code string) ar.Customer {
	t.Helper()
	customer, err := l.AR.CreateCustomer(context.Background(), ar.CreateCustomerInput{Code: code, Name: "Customer " + code}, 1)
	if err != nil {
		t.Fatalf("create customer %s: %v", code, err)
	}
	return customer
}

// Outstanding returns a customer's cached outstanding balance.
func (l *Ledger) Outstanding(t stdtesting.TB, customerID int64) string {
	t.Helper()
	customer, err := l.Store.GetCustomer(context.Background(), customerID)
	if err != nil {
		t.Fatalf("get customer %d: %v", customerID, err)
	}
	return customer.OutstandingBalance.StringFixed(2)
}
