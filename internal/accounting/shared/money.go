package shared

import "github.com/shopspring/decimal"

// MoneyScale is the number of fraction digits kept for monetary values.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to two decimals.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// IsMoney reports whether d carries no more than two fraction digits.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// Percent returns rate% of base rounded to two decimals.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(rate).Div(hundred))
}

// Sum adds amounts, rounding once at the end.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round2(total)
}
