package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strconv.FormatInt(shared.ActorFromContext(r.Context()), 10)))
	})
}

func serveActor(t *testing.T, secret string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := ActorMiddleware([]byte(secret), logger)(actorEcho())
	req := httptest.NewRequest(http.MethodPost, "/journals", nil)
	mutate(req)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func signed(t *testing.T, secret, subject string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestActorFromHeaderWithoutSecret(t *testing.T) {
	rr := serveActor(t, "", func(r *http.Request) { r.Header.Set(ActorHeader, "42") })
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "42", rr.Body.String())

	rr = serveActor(t, "", func(*http.Request) {})
	require.Equal(t, "0", rr.Body.String())

	rr = serveActor(t, "", func(r *http.Request) { r.Header.Set(ActorHeader, "abc") })
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestActorFromBearerToken(t *testing.T) {
	const secret = "ledger-secret"
	rr := serveActor(t, secret, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed(t, secret, "17", jwt.SigningMethodHS256))
	})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "17", rr.Body.String())

	rr = serveActor(t, secret, func(r *http.Request) {
		r.Header.Set(ActorHeader, "5")
	})
	require.Equal(t, "0", rr.Body.String())

	rr = serveActor(t, secret, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed(t, "other", "17", jwt.SigningMethodHS256))
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serveActor(t, secret, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed(t, secret, "17", jwt.SigningMethodHS512))
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serveActor(t, secret, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed(t, secret, "root", jwt.SigningMethodHS256))
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
