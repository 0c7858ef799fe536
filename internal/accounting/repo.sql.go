package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	UpdateAccount(ctx context.Context, id int64, in UpdateAccountInput) (Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	DeleteAccount(ctx context.Context, id int64) error
	CountAccountLines(ctx context.Context, id int64) (int, error)
	CountChildAccounts(ctx context.Context, id int64) (int, error)
	AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) error

	FindJournalByReference(ctx context.Context, refType ReferenceType, refID string) (JournalEntry, error)
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	ListJournalEntries(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
}

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules can post
// journals inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const accountColumns = `id, code, name, type, subtype, parent_id, opening_balance, current_balance, is_system, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a                Account
		opening, current pgtype.Numeric
	)
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &opening, &current, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, shared.Infra("accounting: scan account", err)
	}
	a.OpeningBalance = db.Decimal(opening)
	a.CurrentBalance = db.Decimal(current)
	return a, nil
}

func getAccount(ctx context.Context, q querier, id int64) (Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func getAccountByCode(ctx context.Context, q querier, code string) (Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func listAccounts(ctx context.Context, q querier) ([]Account, error) {
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, shared.Infra("accounting: list accounts", err)
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, shared.Infra("accounting: list accounts", rows.Err())
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.tx, id)
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return getAccountByCode(ctx, r.tx, code)
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	return listAccounts(ctx, r.tx)
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, subtype, parent_id, opening_balance, current_balance, is_system)
VALUES ($1,$2,$3,$4,$5,$6,$6,$7) RETURNING `+accountColumns,
		in.Code, in.Name, in.Type, in.Subtype, db.NullIntPtr(in.ParentID), db.Numeric(in.OpeningBalance), in.IsSystem)
	account, err := scanAccount(row)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok && constraint == "uq_accounts_code" {
			return Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, in.Code)
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, id int64, in UpdateAccountInput) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `UPDATE accounts SET name=$2, subtype=$3, updated_at=NOW() WHERE id=$1 RETURNING `+accountColumns, id, in.Name, in.Subtype))
}

func (r *txRepository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return shared.Infra("accounting: set account active", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return shared.Infra("accounting: delete account", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) CountAccountLines(ctx context.Context, id int64) (int, error) {
	var n int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entry_lines WHERE account_id=$1`, id).Scan(&n); err != nil {
		return 0, shared.Infra("accounting: count account lines", err)
	}
	return n, nil
}

func (r *txRepository) CountChildAccounts(ctx context.Context, id int64) (int, error) {
	var n int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE parent_id=$1`, id).Scan(&n); err != nil {
		return 0, shared.Infra("accounting: count child accounts", err)
	}
	return n, nil
}

func (r *txRepository) AdjustAccountBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $2, updated_at=NOW() WHERE id=$1`, id, db.Numeric(delta))
	if err != nil {
		return shared.Infra("accounting: adjust balance", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

const entryColumns = `id, number, date, description, status, reference_type, reference_id, COALESCE(created_by, 0), created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	if err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &e.Status, &e.ReferenceType, &e.ReferenceID, &e.CreatedBy, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, shared.Infra("accounting: scan journal entry", err)
	}
	return e, nil
}

func (r *txRepository) FindJournalByReference(ctx context.Context, refType ReferenceType, refID string) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reference_type=$1 AND reference_id=$2`, refType, refID))
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, description, status, reference_type, reference_id, created_by)
VALUES ($1,$2,'POSTED',$3,$4,$5) RETURNING `+entryColumns, in.Date, in.Description, in.ReferenceType, in.ReferenceID, db.NullInt(in.CreatedBy))
	entry, err := scanEntry(row)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok && constraint == "uq_journal_entries_reference" {
			return JournalEntry{}, fmt.Errorf("%w: %s %s", shared.ErrDuplicateReference, in.ReferenceType, in.ReferenceID)
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_entry_lines (entry_id, account_id, debit, credit, description, is_opening)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.AccountID, db.Numeric(line.Debit), db.Numeric(line.Credit), line.Description, line.Opening); err != nil {
			return shared.Infra("accounting: insert journal line", err)
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description, is_opening
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, shared.Infra("accounting: journal lines", err)
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var (
			line          JournalLine
			debit, credit pgtype.Numeric
		)
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &debit, &credit, &line.Description, &line.Opening); err != nil {
			return JournalEntry{}, nil, shared.Infra("accounting: scan journal line", err)
		}
		line.Debit = db.Decimal(debit)
		line.Credit = db.Decimal(credit)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return JournalEntry{}, nil, shared.Infra("accounting: journal lines", err)
	}
	return entry, lines, nil
}

func (r *txRepository) ListJournalEntries(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ReferenceType != "" {
		args = append(args, filter.ReferenceType)
		clauses = append(clauses, fmt.Sprintf("reference_type=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("date <= $%d", len(args)))
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY date DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Infra("accounting: list journal entries", err)
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, shared.Infra("accounting: list journal entries", rows.Err())
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// GetAccount reads an account outside a transaction.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return getAccount(ctx, r.pool, id)
}

// GetAccountByCode reads an account by business code outside a transaction.
func (r *Repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return getAccountByCode(ctx, r.pool, code)
}

// ListAccounts reads the chart of accounts outside a transaction.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	return listAccounts(ctx, r.pool)
}

// SumPostedLines totals the posted, non-opening lines of an account dated
// strictly before the cutoff. A zero cutoff includes every line.
func (r *Repository) SumPostedLines(ctx context.Context, accountID int64, before time.Time) (LineTotals, error) {
	var debit, credit pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entry_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status='POSTED' AND NOT l.is_opening AND ($2::date IS NULL OR e.date < $2::date)`,
		accountID, nullDate(before)).Scan(&debit, &credit)
	if err != nil {
		return LineTotals{}, shared.Infra("accounting: sum posted lines", err)
	}
	return LineTotals{Debit: db.Decimal(debit), Credit: db.Decimal(credit)}, nil
}

// SumPostedLinesByAccount totals posted, non-opening lines per account dated
// strictly before the cutoff. A zero cutoff includes every line.
func (r *Repository) SumPostedLinesByAccount(ctx context.Context, before time.Time) (map[int64]LineTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.account_id, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entry_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.status='POSTED' AND NOT l.is_opening AND ($1::date IS NULL OR e.date < $1::date)
GROUP BY l.account_id`, nullDate(before))
	if err != nil {
		return nil, shared.Infra("accounting: sum lines by account", err)
	}
	defer rows.Close()
	totals := make(map[int64]LineTotals)
	for rows.Next() {
		var (
			id            int64
			debit, credit pgtype.Numeric
		)
		if err := rows.Scan(&id, &debit, &credit); err != nil {
			return nil, shared.Infra("accounting: scan line totals", err)
		}
		totals[id] = LineTotals{Debit: db.Decimal(debit), Credit: db.Decimal(credit)}
	}
	return totals, shared.Infra("accounting: sum lines by account", rows.Err())
}

// ListPostedLines returns the posted, non-opening lines of an account dated
// within [from, to], ordered by entry date, entry id and line id. Zero bounds
// are open.
func (r *Repository) ListPostedLines(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, e.id, e.number, e.date, COALESCE(NULLIF(l.description, ''), e.description), l.debit, l.credit
FROM journal_entry_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status='POSTED' AND NOT l.is_opening
  AND ($2::date IS NULL OR e.date >= $2::date)
  AND ($3::date IS NULL OR e.date <= $3::date)
ORDER BY e.date, e.id, l.id`, accountID, nullDate(from), nullDate(to))
	if err != nil {
		return nil, shared.Infra("accounting: list posted lines", err)
	}
	defer rows.Close()
	var lines []LedgerLine
	for rows.Next() {
		var (
			line          LedgerLine
			debit, credit pgtype.Numeric
		)
		if err := rows.Scan(&line.LineID, &line.EntryID, &line.EntryNumber, &line.Date, &line.Description, &debit, &credit); err != nil {
			return nil, shared.Infra("accounting: scan posted line", err)
		}
		line.Debit = db.Decimal(debit)
		line.Credit = db.Decimal(credit)
		lines = append(lines, line)
	}
	return lines, shared.Infra("accounting: list posted lines", rows.Err())
}

// ListUnbalancedEntries returns the numbers of posted entries whose lines do
// not sum to zero.
func (r *Repository) ListUnbalancedEntries(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.number FROM journal_entries e
JOIN journal_entry_lines l ON l.entry_id = e.id
WHERE e.status='POSTED'
GROUP BY e.id, e.number
HAVING SUM(l.debit) <> SUM(l.credit)
ORDER BY e.id`)
	if err != nil {
		return nil, shared.Infra("accounting: unbalanced entries", err)
	}
	defer rows.Close()
	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, shared.Infra("accounting: scan unbalanced entry", err)
		}
		numbers = append(numbers, number)
	}
	return numbers, shared.Infra("accounting: unbalanced entries", rows.Err())
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return DateOnly(t)
}
