package mappings

import (
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ModuleLedger scopes the default account overrides.
const ModuleLedger = "LEDGER"

// Mapping keys for the default account roles.
const (
	KeyReceivable  = "receivable"
	KeyRevenue     = "revenue"
	KeyTaxPayable  = "tax_payable"
	KeyCash        = "cash"
	KeyEquity      = "equity"
	KeyHallRevenue = "hall_revenue"
)

var ledgerKeys = map[string]struct{}{
	KeyReceivable:  {},
	KeyRevenue:     {},
	KeyTaxPayable:  {},
	KeyCash:        {},
	KeyEquity:      {},
	KeyHallRevenue: {},
}

// AccountMapping points one default account role at a ledger account,
// taking precedence over the configured account code. Module is stored
// upper case.
type AccountMapping struct {
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeModule upper-cases module the way mappings are stored.
func NormalizeModule(module string) string {
	return strings.ToUpper(strings.TrimSpace(module))
}

// ValidateKey checks a module/key pair. Keys under ModuleLedger must name a
// default account role.
func ValidateKey(module, key string) error {
	module = NormalizeModule(module)
	if module == "" || key == "" {
		return shared.Errorf(shared.KindValidation, "mappings: module and key required")
	}
	if module == ModuleLedger {
		if _, ok := ledgerKeys[key]; !ok {
			return shared.Errorf(shared.KindValidation, "mappings: unknown ledger role %q", key)
		}
	}
	return nil
}
