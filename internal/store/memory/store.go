// Package memory provides a transactional in-process store that implements
// every repository port of the ledger. Transactions are serialised behind a
// single mutex and roll back by restoring a snapshot; ids are never reused.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/hall"
)

type state struct {
	accounts  map[int64]accounting.Account
	entries   map[int64]accounting.JournalEntry
	lines     []accounting.JournalLine
	customers map[int64]ar.Customer
	invoices  map[int64]ar.Invoice
	payments  map[int64]ar.Payment
	bookings  map[int64]hall.Booking
	mappings  map[string]mappings.AccountMapping
}

func newState() state {
	return state{
		accounts:  make(map[int64]accounting.Account),
		entries:   make(map[int64]accounting.JournalEntry),
		customers: make(map[int64]ar.Customer),
		invoices:  make(map[int64]ar.Invoice),
		payments:  make(map[int64]ar.Payment),
		bookings:  make(map[int64]hall.Booking),
		mappings:  make(map[string]mappings.AccountMapping),
	}
}

func (s state) clone() state {
	return state{
		accounts:  maps.Clone(s.accounts),
		entries:   maps.Clone(s.entries),
		lines:     slices.Clone(s.lines),
		customers: maps.Clone(s.customers),
		invoices:  maps.Clone(s.invoices),
		payments:  maps.Clone(s.payments),
		bookings:  maps.Clone(s.bookings),
		mappings:  maps.Clone(s.mappings),
	}
}

// Store keeps ledger state in memory.
type Store struct {
	mu  sync.Mutex
	st  state
	seq map[string]int64
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), seq: make(map[string]int64), now: time.Now}
}

// WithNow overrides the clock used for timestamps.
func (s *Store) WithNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

func (s *Store) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

func number(prefix string, id int64) string {
	return fmt.Sprintf("%s-%06d", prefix, id)
}

// run executes fn as one transaction. Any error or panic restores the
// state captured before fn started.
func (s *Store) run(ctx context.Context, fn func(*txn) error) error {
	if err := ctx.Err(); err != nil {
		return shared.Infra("memory: begin", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
	}()
	if err := fn(&txn{s: s}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return shared.Infra("memory: commit", err)
	}
	committed = true
	return nil
}

func (s *Store) read(fn func(*txn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&txn{s: s})
}

// txn is the transactional view handed to services.
type txn struct {
	s *Store
}

// Accounting returns the ledger repository port.
func (s *Store) Accounting() AccountingRepo { return AccountingRepo{store: s} }

// AR returns the receivable repository port.
func (s *Store) AR() ARRepo { return ARRepo{store: s} }

// Hall returns the booking repository port.
func (s *Store) Hall() HallRepo { return HallRepo{store: s} }

// AccountingRepo adapts Store to accounting.RepositoryPort.
type AccountingRepo struct{ store *Store }

// WithTx runs fn in a transaction.
func (r AccountingRepo) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return r.store.run(ctx, func(tx *txn) error { return fn(ctx, tx) })
}

// ARRepo adapts Store to ar.RepositoryPort.
type ARRepo struct{ store *Store }

// WithTx runs fn in a transaction.
func (r ARRepo) WithTx(ctx context.Context, fn func(context.Context, ar.TxRepository) error) error {
	return r.store.run(ctx, func(tx *txn) error { return fn(ctx, tx) })
}

// HallRepo adapts Store to hall.RepositoryPort.
type HallRepo struct{ store *Store }

// WithTx runs fn in a transaction.
func (r HallRepo) WithTx(ctx context.Context, fn func(context.Context, hall.TxRepository) error) error {
	return r.store.run(ctx, func(tx *txn) error { return fn(ctx, tx) })
}

var (
	_ accounting.TxRepository = (*txn)(nil)
	_ ar.TxRepository         = (*txn)(nil)
	_ hall.TxRepository       = (*txn)(nil)
	_ mappings.Repository     = (*Store)(nil)
)
