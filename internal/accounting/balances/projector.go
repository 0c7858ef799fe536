package balances

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Reader exposes the posted ledger data projections are folded from.
type Reader interface {
	GetAccount(ctx context.Context, id int64) (accounting.Account, error)
	ListAccounts(ctx context.Context) ([]accounting.Account, error)
	SumPostedLines(ctx context.Context, accountID int64, before time.Time) (accounting.LineTotals, error)
	SumPostedLinesByAccount(ctx context.Context, before time.Time) (map[int64]accounting.LineTotals, error)
	ListPostedLines(ctx context.Context, accountID int64, from, to time.Time) ([]accounting.LedgerLine, error)
}

// AccountBalance is an account's signed balance at a date.
type AccountBalance struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	AsOf      *time.Time      `json:"as_of,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

// StatementLine is a posted line annotated with the running balance.
type StatementLine struct {
	LineID      int64           `json:"line_id"`
	EntryID     int64           `json:"entry_id"`
	EntryNumber string          `json:"entry_number"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// Statement lists an account's activity over a date range.
type Statement struct {
	AccountID   int64           `json:"account_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	From        *time.Time      `json:"from,omitempty"`
	To          *time.Time      `json:"to,omitempty"`
	Opening     decimal.Decimal `json:"opening_balance"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Closing     decimal.Decimal `json:"closing_balance"`
	Lines       []StatementLine `json:"lines"`
}

// Projector derives balances, statements and trial balances from posted lines.
type Projector struct {
	reader  Reader
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
	observe func(result string)
}

// NewProjector constructs a Projector. cache may be nil.
func NewProjector(reader Reader, cache *Cache, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{reader: reader, cache: cache, logger: logger}
}

// WithCacheObserver reports each cache lookup as hit, miss or bypass.
func (p *Projector) WithCacheObserver(fn func(result string)) {
	p.observe = fn
}

func (p *Projector) observeCache(result string) {
	if p.observe != nil && p.cache != nil {
		p.observe(result)
	}
}

// Fold applies signed line totals to the account's opening balance.
func Fold(account accounting.Account, totals accounting.LineTotals) decimal.Decimal {
	return shared.Round2(account.OpeningBalance.Add(account.Type.Signed(totals.Debit, totals.Credit)))
}

// openingBefore is the single balance fold: opening balance plus every
// posted line dated strictly before cutoff. A zero cutoff folds all lines.
func (p *Projector) openingBefore(ctx context.Context, account accounting.Account, cutoff time.Time) (decimal.Decimal, error) {
	totals, err := p.reader.SumPostedLines(ctx, account.ID, cutoff)
	if err != nil {
		return decimal.Zero, err
	}
	return Fold(account, totals), nil
}

// OpeningAsOf returns the balance carried into date.
func (p *Projector) OpeningAsOf(ctx context.Context, accountID int64, date time.Time) (decimal.Decimal, error) {
	account, err := p.reader.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if date.IsZero() {
		return account.OpeningBalance, nil
	}
	return p.openingBefore(ctx, account, accounting.DateOnly(date))
}

// Balance returns the balance including every line dated on or before asOf.
// A zero asOf includes every posted line.
func (p *Projector) Balance(ctx context.Context, accountID int64, asOf time.Time) (AccountBalance, error) {
	account, err := p.reader.GetAccount(ctx, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	out := AccountBalance{AccountID: account.ID, Code: account.Code, Name: account.Name, Type: string(account.Type)}
	var cutoff time.Time
	if !asOf.IsZero() {
		day := accounting.DateOnly(asOf)
		out.AsOf = &day
		cutoff = day.AddDate(0, 0, 1)
	}
	out.Balance, err = p.openingBefore(ctx, account, cutoff)
	if err != nil {
		return AccountBalance{}, err
	}
	return out, nil
}

// Statement folds the account's lines between from and to (inclusive) over
// the balance carried into from.
func (p *Projector) Statement(ctx context.Context, accountID int64, from, to time.Time) (Statement, error) {
	from, to = accounting.DateOnly(from), accounting.DateOnly(to)
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Statement{}, shared.Errorf(shared.KindValidation, "balances: statement range ends before it starts")
	}
	key := fmt.Sprintf("statement:%d:%s:%s", accountID, dayToken(from), dayToken(to))
	var stmt Statement
	err := p.cached(ctx, key, &stmt, func(ctx context.Context) (any, error) {
		return p.buildStatement(ctx, accountID, from, to)
	})
	return stmt, err
}

func (p *Projector) buildStatement(ctx context.Context, accountID int64, from, to time.Time) (Statement, error) {
	account, err := p.reader.GetAccount(ctx, accountID)
	if err != nil {
		return Statement{}, err
	}
	opening := account.OpeningBalance
	if !from.IsZero() {
		if opening, err = p.openingBefore(ctx, account, from); err != nil {
			return Statement{}, err
		}
	}
	lines, err := p.reader.ListPostedLines(ctx, accountID, from, to)
	if err != nil {
		return Statement{}, err
	}
	stmt := Statement{
		AccountID:   account.ID,
		Code:        account.Code,
		Name:        account.Name,
		Type:        string(account.Type),
		Opening:     opening,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		Lines:       make([]StatementLine, 0, len(lines)),
	}
	if !from.IsZero() {
		stmt.From = &from
	}
	if !to.IsZero() {
		stmt.To = &to
	}
	running := opening
	for _, line := range lines {
		running = running.Add(account.Type.Signed(line.Debit, line.Credit))
		stmt.TotalDebit = stmt.TotalDebit.Add(line.Debit)
		stmt.TotalCredit = stmt.TotalCredit.Add(line.Credit)
		stmt.Lines = append(stmt.Lines, StatementLine{
			LineID:      line.LineID,
			EntryID:     line.EntryID,
			EntryNumber: line.EntryNumber,
			Date:        line.Date,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Balance:     running,
		})
	}
	stmt.Closing = running
	return stmt, nil
}

// TrialBalance lists every account's totals and closing balance as of asOf.
func (p *Projector) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	asOf = accounting.DateOnly(asOf)
	key := "trial_balance:" + dayToken(asOf)
	var tb TrialBalance
	err := p.cached(ctx, key, &tb, func(ctx context.Context) (any, error) {
		return p.buildTrialBalance(ctx, asOf)
	})
	return tb, err
}

func (p *Projector) buildTrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	accounts, err := p.reader.ListAccounts(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	var cutoff time.Time
	if !asOf.IsZero() {
		cutoff = asOf.AddDate(0, 0, 1)
	}
	totals, err := p.reader.SumPostedLinesByAccount(ctx, cutoff)
	if err != nil {
		return TrialBalance{}, err
	}
	rows := make([]AccountTotals, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, AccountTotals{Account: account, Totals: totals[account.ID]})
	}
	tb := BuildTrialBalance(rows)
	if !asOf.IsZero() {
		tb.AsOf = &asOf
	}
	return tb, nil
}

// BalanceDrift is an account whose cached balance disagrees with its fold.
type BalanceDrift struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Cached    decimal.Decimal `json:"cached"`
	Folded    decimal.Decimal `json:"folded"`
}

// Drift compares every account's cached current balance with the fold over
// all posted lines. It bypasses the projection cache.
func (p *Projector) Drift(ctx context.Context) ([]BalanceDrift, error) {
	accounts, err := p.reader.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := p.reader.SumPostedLinesByAccount(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	var drift []BalanceDrift
	for _, account := range accounts {
		folded := Fold(account, totals[account.ID])
		if !folded.Equal(account.CurrentBalance) {
			drift = append(drift, BalanceDrift{AccountID: account.ID, Code: account.Code, Cached: account.CurrentBalance, Folded: folded})
		}
	}
	return drift, nil
}

// cached serves key from the projection cache, collapsing concurrent builds.
// Cache failures degrade to a direct build.
func (p *Projector) cached(ctx context.Context, key string, dest any, build func(context.Context) (any, error)) error {
	var (
		buildErr error
		missed   bool
	)
	load := func(ctx context.Context) (any, error) {
		missed = true
		res := p.group.DoChan(key, func() (any, error) {
			return build(ctx)
		})
		select {
		case <-ctx.Done():
			buildErr = ctx.Err()
		case r := <-res:
			if r.Err == nil {
				return r.Val, nil
			}
			buildErr = r.Err
		}
		return nil, buildErr
	}

	versioned, err := p.cache.BuildKey(ctx, "ledger", key)
	if err != nil {
		p.logger.Warn("projection cache unavailable", slog.String("key", key), slog.Any("error", err))
		p.observeCache("bypass")
		value, err := load(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	err = p.cache.FetchJSON(ctx, versioned, dest, load)
	if err == nil {
		if missed {
			p.observeCache("miss")
		} else {
			p.observeCache("hit")
		}
		return nil
	}
	if buildErr != nil {
		return err
	}
	p.observeCache("bypass")
	p.logger.Warn("projection cache fetch", slog.String("key", versioned), slog.Any("error", err))
	value, err := load(ctx)
	if err != nil {
		return err
	}
	return roundTrip(value, dest)
}

func dayToken(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return strconv.FormatInt(t.Unix()/86400, 10)
}
