// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrBadRequest   = errors.New("malformed request")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps ledger error kinds to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "bad_request", "Bad Request", err.Error())
		return
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", err.Error())
		return
	}
	kind := shared.KindOf(err)
	switch kind {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, string(kind), "Validation Failed", err.Error())
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, string(kind), "Not Found", err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, string(kind), "Conflict", err.Error())
	case shared.KindState:
		Problem(w, http.StatusConflict, string(kind), "Invalid State", err.Error())
	case shared.KindImbalance:
		Problem(w, http.StatusUnprocessableEntity, string(kind), "Unbalanced Entry", err.Error())
	default:
		Problem(w, http.StatusServiceUnavailable, string(shared.KindInfrastructure), "Service Unavailable", "")
	}
}
