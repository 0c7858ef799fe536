package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func (t *txn) GetAccount(_ context.Context, id int64) (accounting.Account, error) {
	a, ok := t.s.st.accounts[id]
	if !ok {
		return accounting.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (t *txn) GetAccountForUpdate(ctx context.Context, id int64) (accounting.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *txn) GetAccountByCode(_ context.Context, code string) (accounting.Account, error) {
	for _, a := range t.s.st.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return accounting.Account{}, shared.ErrAccountNotFound
}

func (t *txn) ListAccounts(context.Context) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(t.s.st.accounts))
	for _, a := range t.s.st.accounts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b accounting.Account) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (t *txn) InsertAccount(ctx context.Context, in accounting.CreateAccountInput) (accounting.Account, error) {
	if _, err := t.GetAccountByCode(ctx, in.Code); err == nil {
		return accounting.Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, in.Code)
	}
	now := t.s.now()
	a := accounting.Account{
		ID:             t.s.next("account"),
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		Subtype:        in.Subtype,
		ParentID:       in.ParentID,
		OpeningBalance: in.OpeningBalance,
		CurrentBalance: in.OpeningBalance,
		IsSystem:       in.IsSystem,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.s.st.accounts[a.ID] = a
	return a, nil
}

func (t *txn) UpdateAccount(ctx context.Context, id int64, in accounting.UpdateAccountInput) (accounting.Account, error) {
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return accounting.Account{}, err
	}
	a.Name = in.Name
	a.Subtype = in.Subtype
	a.UpdatedAt = t.s.now()
	t.s.st.accounts[id] = a
	return a, nil
}

func (t *txn) SetAccountActive(ctx context.Context, id int64, active bool) error {
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	a.IsActive = active
	a.UpdatedAt = t.s.now()
	t.s.st.accounts[id] = a
	return nil
}

func (t *txn) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := t.s.st.accounts[id]; !ok {
		return shared.ErrAccountNotFound
	}
	delete(t.s.st.accounts, id)
	return nil
}

func (t *txn) CountAccountLines(_ context.Context, id int64) (int, error) {
	n := 0
	for _, line := range t.s.st.lines {
		if line.AccountID == id {
			n++
		}
	}
	return n, nil
}

func (t *txn) CountChildAccounts(_ context.Context, id int64) (int, error) {
	n := 0
	for _, a := range t.s.st.accounts {
		if a.ParentID != nil && *a.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (t *txn) AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	a.CurrentBalance = a.CurrentBalance.Add(delta)
	a.UpdatedAt = t.s.now()
	t.s.st.accounts[id] = a
	return nil
}

func (t *txn) FindJournalByReference(_ context.Context, refType accounting.ReferenceType, refID string) (accounting.JournalEntry, error) {
	for _, e := range t.s.st.entries {
		if e.ReferenceType == refType && e.ReferenceID == refID {
			return e, nil
		}
	}
	return accounting.JournalEntry{}, shared.ErrJournalNotFound
}

func (t *txn) InsertJournalEntry(ctx context.Context, in accounting.PostingInput) (accounting.JournalEntry, error) {
	if _, err := t.FindJournalByReference(ctx, in.ReferenceType, in.ReferenceID); err == nil {
		return accounting.JournalEntry{}, fmt.Errorf("%w: %s %s", shared.ErrDuplicateReference, in.ReferenceType, in.ReferenceID)
	}
	id := t.s.next("entry")
	e := accounting.JournalEntry{
		ID:            id,
		Number:        number("JE", id),
		Date:          accounting.DateOnly(in.Date),
		Description:   in.Description,
		Status:        accounting.JournalStatusPosted,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     t.s.now(),
	}
	t.s.st.entries[id] = e
	return e, nil
}

func (t *txn) InsertJournalLines(_ context.Context, entryID int64, lines []accounting.PostingLineInput) error {
	if _, ok := t.s.st.entries[entryID]; !ok {
		return shared.ErrJournalNotFound
	}
	for _, line := range lines {
		if _, ok := t.s.st.accounts[line.AccountID]; !ok {
			return fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, line.AccountID)
		}
		t.s.st.lines = append(t.s.st.lines, accounting.JournalLine{
			ID:          t.s.next("line"),
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			Opening:     line.Opening,
		})
	}
	return nil
}

func (t *txn) GetJournalWithLines(_ context.Context, entryID int64) (accounting.JournalEntry, []accounting.JournalLine, error) {
	e, ok := t.s.st.entries[entryID]
	if !ok {
		return accounting.JournalEntry{}, nil, shared.ErrJournalNotFound
	}
	var lines []accounting.JournalLine
	for _, line := range t.s.st.lines {
		if line.EntryID == entryID {
			lines = append(lines, line)
		}
	}
	return e, lines, nil
}

func (t *txn) ListJournalEntries(_ context.Context, filter accounting.JournalFilter) ([]accounting.JournalEntry, error) {
	var out []accounting.JournalEntry
	for _, e := range t.s.st.entries {
		if filter.ReferenceType != "" && e.ReferenceType != filter.ReferenceType {
			continue
		}
		if !filter.From.IsZero() && e.Date.Before(accounting.DateOnly(filter.From)) {
			continue
		}
		if !filter.To.IsZero() && e.Date.After(accounting.DateOnly(filter.To)) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b accounting.JournalEntry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetAccount reads an account outside a transaction.
func (s *Store) GetAccount(ctx context.Context, id int64) (a accounting.Account, err error) {
	s.read(func(t *txn) { a, err = t.GetAccount(ctx, id) })
	return a, err
}

// GetAccountByCode reads an account by code outside a transaction.
func (s *Store) GetAccountByCode(ctx context.Context, code string) (a accounting.Account, err error) {
	s.read(func(t *txn) { a, err = t.GetAccountByCode(ctx, code) })
	return a, err
}

// ListAccounts reads the chart of accounts ordered by code.
func (s *Store) ListAccounts(ctx context.Context) (accounts []accounting.Account, err error) {
	s.read(func(t *txn) { accounts, err = t.ListAccounts(ctx) })
	return accounts, err
}

// postedLines yields the posted, non-opening lines matching keep together
// with their entry.
func (t *txn) postedLines(keep func(accounting.JournalLine, accounting.JournalEntry) bool) []accounting.LedgerLine {
	var out []accounting.LedgerLine
	for _, line := range t.s.st.lines {
		e := t.s.st.entries[line.EntryID]
		if line.Opening || e.Status != accounting.JournalStatusPosted || !keep(line, e) {
			continue
		}
		desc := line.Description
		if desc == "" {
			desc = e.Description
		}
		out = append(out, accounting.LedgerLine{
			LineID:      line.ID,
			EntryID:     e.ID,
			EntryNumber: e.Number,
			Date:        e.Date,
			Description: desc,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return out
}

func before(date, cutoff time.Time) bool {
	return cutoff.IsZero() || date.Before(accounting.DateOnly(cutoff))
}

// SumPostedLines totals an account's posted lines dated before the cutoff.
func (s *Store) SumPostedLines(_ context.Context, accountID int64, cutoff time.Time) (accounting.LineTotals, error) {
	totals := accounting.LineTotals{Debit: decimal.Zero, Credit: decimal.Zero}
	s.read(func(t *txn) {
		for _, line := range t.postedLines(func(l accounting.JournalLine, e accounting.JournalEntry) bool {
			return l.AccountID == accountID && before(e.Date, cutoff)
		}) {
			totals.Debit = totals.Debit.Add(line.Debit)
			totals.Credit = totals.Credit.Add(line.Credit)
		}
	})
	return totals, nil
}

// SumPostedLinesByAccount totals posted lines per account before the cutoff.
func (s *Store) SumPostedLinesByAccount(_ context.Context, cutoff time.Time) (map[int64]accounting.LineTotals, error) {
	totals := make(map[int64]accounting.LineTotals)
	s.read(func(t *txn) {
		for _, l := range t.s.st.lines {
			e := t.s.st.entries[l.EntryID]
			if l.Opening || e.Status != accounting.JournalStatusPosted || !before(e.Date, cutoff) {
				continue
			}
			cur := totals[l.AccountID]
			cur.Debit = cur.Debit.Add(l.Debit)
			cur.Credit = cur.Credit.Add(l.Credit)
			totals[l.AccountID] = cur
		}
	})
	return totals, nil
}

// ListPostedLines returns an account's posted lines within [from, to]
// ordered by entry date, entry id and line id.
func (s *Store) ListPostedLines(_ context.Context, accountID int64, from, to time.Time) ([]accounting.LedgerLine, error) {
	var lines []accounting.LedgerLine
	s.read(func(t *txn) {
		lines = t.postedLines(func(l accounting.JournalLine, e accounting.JournalEntry) bool {
			if l.AccountID != accountID {
				return false
			}
			if !from.IsZero() && e.Date.Before(accounting.DateOnly(from)) {
				return false
			}
			return to.IsZero() || !e.Date.After(accounting.DateOnly(to))
		})
	})
	slices.SortFunc(lines, func(a, b accounting.LedgerLine) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.EntryID, b.EntryID); c != 0 {
			return c
		}
		return cmp.Compare(a.LineID, b.LineID)
	})
	return lines, nil
}

// ListUnbalancedEntries returns the numbers of posted entries whose lines
// do not balance.
func (s *Store) ListUnbalancedEntries(context.Context) ([]string, error) {
	var numbers []string
	s.read(func(t *txn) {
		sums := make(map[int64]decimal.Decimal)
		for _, l := range t.s.st.lines {
			sums[l.EntryID] = sums[l.EntryID].Add(l.Debit).Sub(l.Credit)
		}
		ids := make([]int64, 0, len(sums))
		for id, sum := range sums {
			if !sum.IsZero() && t.s.st.entries[id].Status == accounting.JournalStatusPosted {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
		for _, id := range ids {
			numbers = append(numbers, t.s.st.entries[id].Number)
		}
	})
	return numbers, nil
}
