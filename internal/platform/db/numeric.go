package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Numeric renders a decimal as a NUMERIC(18,2) argument.
func Numeric(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Decimal converts a scanned NUMERIC into a decimal. NULL and NaN read as zero.
func Decimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// UniqueViolation reports whether err is a unique constraint violation and
// returns the violated constraint name.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// NullInt maps zero ids to SQL NULL.
func NullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

// NullIntPtr maps nil or zero id pointers to SQL NULL.
func NullIntPtr(val *int64) any {
	if val == nil || *val == 0 {
		return nil
	}
	return *val
}
