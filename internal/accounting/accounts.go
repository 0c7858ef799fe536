package accounting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// CreateAccount registers a new account. A non-zero opening balance is
// mirrored by a balancing opening entry against the equity account in the
// same transaction.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	input.Type = AccountType(strings.ToUpper(string(input.Type)))
	input.OpeningBalance = shared.Round2(input.OpeningBalance)
	if input.OpeningDate.IsZero() {
		input.OpeningDate = s.now()
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Account{}, err
	}
	if !input.Type.Valid() {
		return Account{}, shared.Errorf(shared.KindValidation, "accounting: unknown account type %q", input.Type)
	}
	if !input.OpeningBalance.IsZero() && s.defaults.Equity == 0 {
		return Account{}, fmt.Errorf("%w: equity counter-account not configured", shared.ErrMappingNotFound)
	}

	var account Account
	var opening JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountByCode(ctx, input.Code); err == nil {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateCode, input.Code)
		} else if !errors.Is(err, shared.ErrAccountNotFound) {
			return err
		}
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, *input.ParentID)
			if err != nil {
				if errors.Is(err, shared.ErrAccountNotFound) {
					return shared.Errorf(shared.KindValidation, "accounting: parent account %d not found", *input.ParentID)
				}
				return err
			}
			if parent.Type != input.Type {
				return fmt.Errorf("%w: parent %s is %s", shared.ErrParentTypeMismatch, parent.Code, parent.Type)
			}
		}
		var err error
		account, err = tx.InsertAccount(ctx, input)
		if err != nil {
			return err
		}
		if input.OpeningBalance.IsZero() {
			return nil
		}
		opening, err = s.PostInTx(ctx, tx, openingEntry(account, s.defaults.Equity, input))
		return err
	})
	if err != nil {
		return Account{}, err
	}
	meta := map[string]any{"code": account.Code, "type": string(account.Type)}
	if opening.ID != 0 {
		meta["opening_entry"] = opening.Number
	}
	s.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  input.CreatedBy,
		Action:   "account.create",
		Entity:   "account",
		EntityID: strconv.FormatInt(account.ID, 10),
		Meta:     meta,
	})
	return account, nil
}

func openingEntry(account Account, equityID int64, input CreateAccountInput) PostingInput {
	amount := input.OpeningBalance.Abs()
	self := PostingLineInput{AccountID: account.ID, Opening: true, Description: "Opening balance"}
	counter := PostingLineInput{AccountID: equityID, Description: "Opening balance " + account.Code}
	if account.Type.DebitNormal() == input.OpeningBalance.IsPositive() {
		self.Debit, counter.Credit = amount, amount
	} else {
		self.Credit, counter.Debit = amount, amount
	}
	return PostingInput{
		Date:          input.OpeningDate,
		Description:   fmt.Sprintf("Opening balance for %s %s", account.Code, account.Name),
		ReferenceType: RefOpeningBalance,
		ReferenceID:   strconv.FormatInt(account.ID, 10),
		CreatedBy:     input.CreatedBy,
		Lines:         []PostingLineInput{self, counter},
	}
}

// UpdateAccount edits name and subtype of a non-system account.
func (s *Service) UpdateAccount(ctx context.Context, id int64, input UpdateAccountInput, actorID int64) (Account, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("%w: %s", shared.ErrSystemAccount, current.Code)
		}
		account, err = tx.UpdateAccount(ctx, id, input)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "account.update",
		Entity:   "account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"name": account.Name, "subtype": account.Subtype},
	})
	return account, nil
}

// DeactivateAccount retires an account so it no longer accepts postings.
func (s *Service) DeactivateAccount(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("%w: %s", shared.ErrSystemAccount, current.Code)
		}
		if !current.IsActive {
			return nil
		}
		return tx.SetAccountActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "account.deactivate",
		Entity:   "account",
		EntityID: strconv.FormatInt(id, 10),
	})
	return nil
}

// DeleteAccount hard-deletes an account that nothing depends on.
func (s *Service) DeleteAccount(ctx context.Context, id, actorID int64) error {
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		code = account.Code
		if account.IsSystem {
			return fmt.Errorf("%w: %s", shared.ErrSystemAccount, account.Code)
		}
		if !account.CurrentBalance.IsZero() {
			return fmt.Errorf("%w: %s carries %s", shared.ErrNonZeroBalance, account.Code, account.CurrentBalance.StringFixed(2))
		}
		lines, err := tx.CountAccountLines(ctx, id)
		if err != nil {
			return err
		}
		if lines > 0 {
			return fmt.Errorf("%w: %s has %d journal lines", shared.ErrAccountInUse, account.Code, lines)
		}
		children, err := tx.CountChildAccounts(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return fmt.Errorf("%w: %s has %d child accounts", shared.ErrAccountInUse, account.Code, children)
		}
		return tx.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	s.AfterCommit(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "account.delete",
		Entity:   "account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"code": code},
	})
	return nil
}

// GetAccount returns a single account.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, id)
		return err
	})
	return account, err
}

// GetAccountByCode returns the account registered under code.
func (s *Service) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, strings.TrimSpace(code))
		return err
	})
	return account, err
}

// ListAccounts returns the chart of accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}
