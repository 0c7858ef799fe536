package balances

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// AccountTotals pairs an account with its posted line totals.
type AccountTotals struct {
	Account accounting.Account
	Totals  accounting.LineTotals
}

// TrialBalanceAccount represents a row inside a trial balance group.
// Opening and Closing are debit-positive; Balance is in the account's
// natural sign.
type TrialBalanceAccount struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Opening   decimal.Decimal `json:"opening"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Closing   decimal.Decimal `json:"closing"`
	Balance   decimal.Decimal `json:"balance"`
}

// TrialBalanceGroup aggregates accounts of one type.
type TrialBalanceGroup struct {
	Type     string                `json:"type"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Opening  decimal.Decimal       `json:"opening"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
	Closing  decimal.Decimal       `json:"closing"`
}

// TrialBalance is the full ledger summary at a date.
type TrialBalance struct {
	AsOf          *time.Time          `json:"as_of,omitempty"`
	Groups        []TrialBalanceGroup `json:"groups"`
	TotalOpening  decimal.Decimal     `json:"total_opening"`
	TotalDebit    decimal.Decimal     `json:"total_debit"`
	TotalCredit   decimal.Decimal     `json:"total_credit"`
	ClosingDebit  decimal.Decimal     `json:"closing_debit"`
	ClosingCredit decimal.Decimal     `json:"closing_credit"`
	Balanced      bool                `json:"balanced"`
}

var typeOrder = map[accounting.AccountType]int{
	accounting.AccountTypeAsset:     0,
	accounting.AccountTypeLiability: 1,
	accounting.AccountTypeEquity:    2,
	accounting.AccountTypeIncome:    3,
	accounting.AccountTypeExpense:   4,
}

// BuildTrialBalance converts account totals into grouped trial balance data.
func BuildTrialBalance(rows []AccountTotals) TrialBalance {
	groups := make(map[accounting.AccountType]*TrialBalanceGroup)
	keys := make([]accounting.AccountType, 0)
	for _, row := range rows {
		acc := row.Account
		grp, ok := groups[acc.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: string(acc.Type)}
			groups[acc.Type] = grp
			keys = append(keys, acc.Type)
		}
		opening := debitPositive(acc.Type, acc.OpeningBalance)
		line := TrialBalanceAccount{
			AccountID: acc.ID,
			Code:      acc.Code,
			Name:      acc.Name,
			Opening:   opening,
			Debit:     row.Totals.Debit,
			Credit:    row.Totals.Credit,
			Closing:   opening.Add(row.Totals.Debit).Sub(row.Totals.Credit),
			Balance:   Fold(acc, row.Totals),
		}
		grp.Accounts = append(grp.Accounts, line)
		grp.Opening = grp.Opening.Add(line.Opening)
		grp.Debit = grp.Debit.Add(line.Debit)
		grp.Credit = grp.Credit.Add(line.Credit)
		grp.Closing = grp.Closing.Add(line.Closing)
	}

	sort.Slice(keys, func(i, j int) bool { return typeOrder[keys[i]] < typeOrder[keys[j]] })
	result := TrialBalance{Groups: make([]TrialBalanceGroup, 0, len(keys))}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		for _, acc := range grp.Accounts {
			if acc.Closing.IsPositive() {
				result.ClosingDebit = result.ClosingDebit.Add(acc.Closing)
			} else {
				result.ClosingCredit = result.ClosingCredit.Sub(acc.Closing)
			}
		}
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening = result.TotalOpening.Add(grp.Opening)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	result.Balanced = result.ClosingDebit.Equal(result.ClosingCredit)
	return result
}

func debitPositive(t accounting.AccountType, amount decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return amount
	}
	return amount.Neg()
}
