package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/ar"
	"github.com/odyssey-erp/odyssey-ledger/internal/hall"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

func memoryConfig() *Config {
	return &Config{
		AppEnv:            "test",
		StoreDriver:       StoreDriverMemory,
		ReceivableAccount: "1100",
		RevenueAccount:    "4010",
		TaxPayableAccount: "2210",
		CashAccount:       "1010",
		EquityAccount:     "3010",
	}
}

func TestBuildLedgerMemoryDriver(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := BuildLedger(context.Background(), memoryConfig(), logger, nil)
	require.NoError(t, err)
	t.Cleanup(ledger.Close)

	defaults := ledger.Accounting.Defaults()
	require.NotZero(t, defaults.Receivable)
	require.Equal(t, defaults.Revenue, defaults.HallRevenueAccount())
}

func TestBuildLedgerFailsOnUnknownAccount(t *testing.T) {
	cfg := memoryConfig()
	cfg.CashAccount = "9999"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := BuildLedger(context.Background(), cfg, logger, nil)
	require.ErrorContains(t, err, "cash")
}

func TestRouterServesLedger(t *testing.T) {
	cfg := memoryConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	ledger, err := BuildLedger(context.Background(), cfg, logger, metrics)
	require.NoError(t, err)
	t.Cleanup(ledger.Close)

	router := NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, ledger.Accounting),
		BalancesHandler:   balances.NewHandler(logger, ledger.Projector),
		ARHandler:         ar.NewHandler(logger, ledger.AR),
		HallHandler:       hall.NewHandler(logger, ledger.Hall),
		Metrics:           metrics,
	})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(ActorHeader, "3")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	defaults := ledger.Accounting.Defaults()
	rr = do(http.MethodPost, "/journals", map[string]any{
		"date":        "2025-02-01",
		"description": "unbalanced",
		"lines": []map[string]any{
			{"account_id": defaults.Cash, "debit": "100"},
			{"account_id": defaults.Revenue, "credit": "90"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")

	rr = do(http.MethodPost, "/journals", map[string]any{
		"date":        "2025-02-01",
		"description": "cash sale",
		"lines": []map[string]any{
			{"account_id": defaults.Cash, "debit": "100"},
			{"account_id": defaults.Revenue, "credit": "100"},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(http.MethodGet, "/accounts/999/balance", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(http.MethodGet, "/reports/trial-balance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var tb balances.TrialBalance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tb))
	require.True(t, tb.Balanced)

	rr = do(http.MethodGet, "/metrics", nil)
	require.Contains(t, rr.Body.String(), `odyssey_http_requests_total{code="201",route="/journals"} 1`)
}

func TestRouterGuardsSystemAccountsAndBookingPayments(t *testing.T) {
	cfg := memoryConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger, err := BuildLedger(context.Background(), cfg, logger, nil)
	require.NoError(t, err)
	t.Cleanup(ledger.Close)

	router := NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, ledger.Accounting),
		BalancesHandler:   balances.NewHandler(logger, ledger.Projector),
		ARHandler:         ar.NewHandler(logger, ledger.AR),
		HallHandler:       hall.NewHandler(logger, ledger.Hall),
	})
	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(ActorHeader, "3")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/accounts", map[string]any{
		"code": "1300", "name": "Petty Cash", "type": "ASSET", "is_system": true,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, "/accounts", map[string]any{
		"code": "1300", "name": "Petty Cash", "type": "ASSET",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var account accounting.Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &account))
	require.False(t, account.IsSystem)

	customer, err := ledger.AR.CreateCustomer(context.Background(), ar.CreateCustomerInput{Code: "C-900", Name: "Wedding Co"}, 3)
	require.NoError(t, err)
	rr = do(http.MethodPost, "/bookings", map[string]any{
		"customer_id": customer.ID, "hall_name": "Grand Hall", "event_date": "2099-06-01", "total_amount": "500",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var booking hall.Booking
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &booking))
	rr = do(http.MethodPost, "/bookings/"+strconv.FormatInt(booking.ID, 10)+"/confirm", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodPost, "/bookings/"+strconv.FormatInt(booking.ID, 10)+"/payments", map[string]any{"amount": "200"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var payment ar.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payment))

	rr = do(http.MethodDelete, "/payments/"+strconv.FormatInt(payment.ID, 10), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(http.MethodGet, "/bookings/"+strconv.FormatInt(booking.ID, 10), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &booking))
	require.True(t, booking.AmountPaid.IsZero())
	require.Equal(t, "500.00", booking.BalanceDue.StringFixed(2))
}
