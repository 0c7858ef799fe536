package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Invalidator drops cached projections after balances move.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates the chart of accounts and journal postings.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	cache    Invalidator
	defaults DefaultAccounts
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithInvalidator registers the projection cache to bump after commits.
func (s *Service) WithInvalidator(cache Invalidator) {
	s.cache = cache
}

// WithDefaults injects the resolved default accounts.
func (s *Service) WithDefaults(defaults DefaultAccounts) {
	s.defaults = defaults
}

// Defaults returns the injected default accounts.
func (s *Service) Defaults() DefaultAccounts {
	return s.defaults
}

// Today returns the current calendar date.
func (s *Service) Today() time.Time {
	return DateOnly(s.now())
}

// PostJournal validates and persists a manual journal entry in its own
// transaction. Domain reference types are posted only by their owning
// services through PostInTx.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if input.ReferenceType == "" {
		input.ReferenceType = RefManual
	}
	if !input.ReferenceType.Valid() {
		return JournalEntry{}, fmt.Errorf("%w: %q", shared.ErrUnknownReference, input.ReferenceType)
	}
	if input.ReferenceType != RefManual {
		return JournalEntry{}, fmt.Errorf("%w: %s", shared.ErrReservedReference, input.ReferenceType)
	}
	if input.ReferenceID == "" {
		input.ReferenceID = uuid.NewString()
	}
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  input.CreatedBy,
		Action:   "journal.post",
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta: map[string]any{
			"number":         entry.Number,
			"reference_type": string(entry.ReferenceType),
			"reference_id":   entry.ReferenceID,
		},
	})
	return entry, nil
}

// PostInTx posts a journal entry inside a transaction owned by the caller.
// The caller is responsible for AfterCommit once its transaction commits.
func (s *Service) PostInTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	if input.ReferenceType == "" {
		input.ReferenceType = RefManual
	}
	if !input.ReferenceType.Valid() {
		return JournalEntry{}, fmt.Errorf("%w: %q", shared.ErrUnknownReference, input.ReferenceType)
	}
	if input.ReferenceID == "" {
		if input.ReferenceType != RefManual {
			return JournalEntry{}, shared.Errorf(shared.KindValidation, "accounting: reference id required for %s", input.ReferenceType)
		}
		input.ReferenceID = uuid.NewString()
	}
	input.Date = DateOnly(input.Date)
	for i := range input.Lines {
		input.Lines[i].Debit = shared.Round2(input.Lines[i].Debit)
		input.Lines[i].Credit = shared.Round2(input.Lines[i].Credit)
	}
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}

	if existing, err := tx.FindJournalByReference(ctx, input.ReferenceType, input.ReferenceID); err == nil {
		return JournalEntry{}, fmt.Errorf("%w: %s %s already posted as %s", shared.ErrDuplicateReference, input.ReferenceType, input.ReferenceID, existing.Number)
	} else if !errors.Is(err, shared.ErrJournalNotFound) {
		return JournalEntry{}, err
	}

	deltas, err := s.lockAccounts(ctx, tx, input.Lines)
	if err != nil {
		return JournalEntry{}, err
	}

	entry, err := tx.InsertJournalEntry(ctx, input)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertJournalLines(ctx, entry.ID, input.Lines); err != nil {
		return JournalEntry{}, err
	}
	for _, d := range deltas {
		if d.amount.IsZero() {
			continue
		}
		if err := tx.AdjustAccountBalance(ctx, d.accountID, d.amount); err != nil {
			return JournalEntry{}, err
		}
	}
	entry.Lines = toJournalLines(entry.ID, input.Lines)
	return entry, nil
}

type balanceDelta struct {
	accountID int64
	amount    decimal.Decimal
}

// lockAccounts locks every referenced account in id order and returns the
// signed balance movement per account.
func (s *Service) lockAccounts(ctx context.Context, tx TxRepository, lines []PostingLineInput) ([]balanceDelta, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	types := make(map[int64]AccountType, len(ids))
	for _, id := range ids {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, id)
			}
			return nil, err
		}
		if !account.IsActive {
			return nil, fmt.Errorf("%w: %s", shared.ErrAccountInactive, account.Code)
		}
		types[id] = account.Type
	}

	sums := make(map[int64]decimal.Decimal, len(ids))
	for _, line := range lines {
		if line.Opening {
			continue
		}
		sums[line.AccountID] = sums[line.AccountID].Add(types[line.AccountID].Signed(line.Debit, line.Credit))
	}
	out := make([]balanceDelta, 0, len(ids))
	for _, id := range ids {
		out = append(out, balanceDelta{accountID: id, amount: sums[id]})
	}
	return out, nil
}

// ReverseJournal creates a compensating entry; the original is left untouched.
func (s *Service) ReverseJournal(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, shared.Errorf(shared.KindValidation, "accounting: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = s.ReverseInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "journal.reverse",
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(input.EntryID, 10),
		Meta: map[string]any{
			"reversal_id":     reversal.ID,
			"reversal_number": reversal.Number,
		},
	})
	return reversal, nil
}

// ReverseInTx reverses an entry inside a transaction owned by the caller.
func (s *Service) ReverseInTx(ctx context.Context, tx TxRepository, input ReverseInput) (JournalEntry, error) {
	original, lines, err := tx.GetJournalWithLines(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if original.Status != JournalStatusPosted {
		return JournalEntry{}, fmt.Errorf("%w: entry %s is %s", shared.ErrInvalidStatus, original.Number, original.Status)
	}
	refID := strconv.FormatInt(original.ID, 10)
	if prior, err := tx.FindJournalByReference(ctx, RefReversal, refID); err == nil {
		return JournalEntry{}, fmt.Errorf("%w: %s reversed by %s", shared.ErrAlreadyReversed, original.Number, prior.Number)
	} else if !errors.Is(err, shared.ErrJournalNotFound) {
		return JournalEntry{}, err
	}
	date := original.Date
	if input.Date != nil && !input.Date.IsZero() {
		date = *input.Date
	}
	return s.PostInTx(ctx, tx, PostingInput{
		Date:          date,
		Description:   defaultReversalMemo(input.Description, original.Number),
		ReferenceType: RefReversal,
		ReferenceID:   refID,
		CreatedBy:     input.ActorID,
		Lines:         reverseLines(lines),
	})
}

// AfterCommit runs the fire-and-forget side effects of a committed posting.
func (s *Service) AfterCommit(ctx context.Context, log internalShared.AuditLog) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump projection cache", slog.Any("error", err))
		}
	}
	if s.audit == nil || log.Action == "" {
		return
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record activity", slog.String("action", log.Action), slog.Any("error", err))
	}
}

// GetJournal returns an entry with its lines.
func (s *Service) GetJournal(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, lines, err := tx.GetJournalWithLines(ctx, id)
		if err != nil {
			return err
		}
		e.Lines = lines
		entry = e
		return nil
	})
	return entry, err
}

// ListJournalEntries retrieves journal headers matching the filter.
func (s *Service) ListJournalEntries(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx, filter)
		return err
	})
	return entries, err
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			Opening:     line.Opening,
		})
	}
	return out
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", number)
}
