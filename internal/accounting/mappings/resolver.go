package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Codes lists the configured account code per role.
type Codes struct {
	Receivable  string
	Revenue     string
	TaxPayable  string
	Cash        string
	Equity      string
	HallRevenue string
}

// AccountLookup finds accounts by id or code.
type AccountLookup interface {
	GetAccount(ctx context.Context, id int64) (accounting.Account, error)
	GetAccountByCode(ctx context.Context, code string) (accounting.Account, error)
}

// Resolver turns configured codes and stored overrides into account ids.
type Resolver struct {
	accounts AccountLookup
	repo     Repository
}

// NewResolver builds a Resolver. repo may be nil to skip overrides.
func NewResolver(accounts AccountLookup, repo Repository) *Resolver {
	return &Resolver{accounts: accounts, repo: repo}
}

// Resolve returns the default accounts. A role without an override or a
// resolvable code fails with ErrMappingNotFound naming it; the hall revenue
// role is optional.
func (r *Resolver) Resolve(ctx context.Context, codes Codes) (accounting.DefaultAccounts, error) {
	var (
		out accounting.DefaultAccounts
		err error
	)
	roles := []struct {
		key      string
		code     string
		target   *int64
		optional bool
	}{
		{KeyReceivable, codes.Receivable, &out.Receivable, false},
		{KeyRevenue, codes.Revenue, &out.Revenue, false},
		{KeyTaxPayable, codes.TaxPayable, &out.TaxPayable, false},
		{KeyCash, codes.Cash, &out.Cash, false},
		{KeyEquity, codes.Equity, &out.Equity, false},
		{KeyHallRevenue, codes.HallRevenue, &out.HallRevenue, true},
	}
	for _, role := range roles {
		*role.target, err = r.resolve(ctx, role.key, role.code, role.optional)
		if err != nil {
			return accounting.DefaultAccounts{}, err
		}
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, key, code string, optional bool) (int64, error) {
	if r.repo != nil {
		mapping, err := r.repo.Get(ctx, ModuleLedger, key)
		switch {
		case err == nil:
			account, err := r.accounts.GetAccount(ctx, mapping.AccountID)
			if err != nil {
				return 0, fmt.Errorf("%w: %s override points at account %d: %v", shared.ErrMappingNotFound, key, mapping.AccountID, err)
			}
			return account.ID, nil
		case !errors.Is(err, shared.ErrMappingNotFound):
			return 0, err
		}
	}
	if code == "" {
		if optional {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: no account configured for %s", shared.ErrMappingNotFound, key)
	}
	account, err := r.accounts.GetAccountByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return 0, fmt.Errorf("%w: %s account %q does not exist", shared.ErrMappingNotFound, key, code)
		}
		return 0, err
	}
	return account.ID, nil
}
