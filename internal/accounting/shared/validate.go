package shared

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	accountCodePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with ledger tags registered.
//
// Decimal fields are validated through their string form, so the numeric
// tags are money (at most two fraction digits), dgt0, dgte0 and percent
// (0 to 100 with at most four fraction digits, matching NUMERIC(7,4)).
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("acctcode", func(fl validator.FieldLevel) bool {
			return accountCodePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("money", decimalRule(IsMoney))
		_ = v.RegisterValidation("dgt0", decimalRule(func(d decimal.Decimal) bool { return d.IsPositive() }))
		_ = v.RegisterValidation("dgte0", decimalRule(func(d decimal.Decimal) bool { return !d.IsNegative() }))
		_ = v.RegisterValidation("percent", decimalRule(IsPercent))
		validate = v
	})
	return validate
}

func decimalRule(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return ok(d)
	}
}

// IsPercent reports whether d is a rate between 0 and 100 with at most four
// fraction digits.
func IsPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred) && d.Equal(d.Round(4))
}

// ValidAccountCode reports whether code matches the account code pattern.
func ValidAccountCode(code string) bool {
	return accountCodePattern.MatchString(code)
}

// ValidateStruct runs struct tags and converts failures into a validation error.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Errorf(KindValidation, "accounting: %v", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return Errorf(KindValidation, "accounting: invalid input: %s", strings.Join(parts, ", "))
}
