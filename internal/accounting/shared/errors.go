package shared

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures so callers can decide how to react.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindImbalance      Kind = "imbalance"
	KindState          Kind = "state"
	KindNotFound       Kind = "not_found"
	KindInfrastructure Kind = "infrastructure"
)

// Error is a ledger error tagged with its kind.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New builds a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Errorf builds an ad-hoc error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Infra wraps an unexpected storage failure.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return err
	}
	return &Error{kind: KindInfrastructure, msg: op, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the error classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of err. Errors that did not originate in the
// ledger are treated as infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return ledgerErr.kind
	}
	return KindInfrastructure
}

// Retryable reports whether err is an infrastructure failure.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindInfrastructure
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = New(KindImbalance, "accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = New(KindValidation, "accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a line carrying both or neither side.
	ErrInvalidLine = New(KindValidation, "accounting: journal line must carry a debit or a credit")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = New(KindNotFound, "accounting: journal entry not found")
	// ErrDuplicateReference indicates the source object was already posted.
	ErrDuplicateReference = New(KindConflict, "accounting: reference already posted")
	// ErrUnknownReference indicates a reference type the ledger does not post.
	ErrUnknownReference = New(KindValidation, "accounting: unknown reference type")
	// ErrReservedReference indicates a manual entry claiming a domain reference.
	ErrReservedReference = New(KindValidation, "accounting: reference type is reserved for ledger postings")
	// ErrAlreadyReversed indicates a second reversal of the same entry.
	ErrAlreadyReversed = New(KindConflict, "accounting: journal entry already reversed")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = New(KindState, "accounting: invalid status transition")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = New(KindNotFound, "accounting: account not found")
	// ErrAccountInactive indicates posting to a retired account.
	ErrAccountInactive = New(KindValidation, "accounting: account is inactive")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = New(KindValidation, "accounting: account code already exists")
	// ErrParentTypeMismatch indicates parent and child types differ.
	ErrParentTypeMismatch = New(KindValidation, "accounting: parent account type differs")
	// ErrSystemAccount indicates a protected account.
	ErrSystemAccount = New(KindConflict, "accounting: system account is protected")
	// ErrAccountInUse indicates dependents block deletion.
	ErrAccountInUse = New(KindConflict, "accounting: account has dependents")
	// ErrNonZeroBalance indicates deletion of an account carrying a balance.
	ErrNonZeroBalance = New(KindConflict, "accounting: account balance is not zero")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = New(KindNotFound, "accounting: account mapping not found")
)
