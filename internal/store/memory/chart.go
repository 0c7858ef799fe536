package memory

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultCodes matches the default account codes of the configuration.
var DefaultCodes = mappings.Codes{
	Receivable:  "1100",
	Revenue:     "4010",
	TaxPayable:  "2210",
	Cash:        "1010",
	Equity:      "3010",
	HallRevenue: "4020",
}

// DefaultChart is the system chart an empty memory store starts with.
var DefaultChart = []accounting.CreateAccountInput{
	{Code: "1010", Name: "Cash and Bank", Type: accounting.AccountTypeAsset, IsSystem: true},
	{Code: "1100", Name: "Accounts Receivable", Type: accounting.AccountTypeAsset, IsSystem: true},
	{Code: "2210", Name: "Tax Payable", Type: accounting.AccountTypeLiability, IsSystem: true},
	{Code: "3010", Name: "Owner Equity", Type: accounting.AccountTypeEquity, IsSystem: true},
	{Code: "4010", Name: "Sales Revenue", Type: accounting.AccountTypeIncome, IsSystem: true},
	{Code: "4020", Name: "Hall Rental Revenue", Type: accounting.AccountTypeIncome, IsSystem: true},
	{Code: "5010", Name: "Operating Expenses", Type: accounting.AccountTypeExpense},
}

// Seed creates the chart accounts that do not exist yet.
func Seed(ctx context.Context, svc *accounting.Service, chart []accounting.CreateAccountInput) error {
	for _, in := range chart {
		if _, err := svc.GetAccountByCode(ctx, in.Code); err == nil {
			continue
		} else if !errors.Is(err, shared.ErrAccountNotFound) {
			return err
		}
		if _, err := svc.CreateAccount(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
