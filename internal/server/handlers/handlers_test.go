package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/horaciolidity/worldcoin-sell/internal/aliasdir"
	"github.com/horaciolidity/worldcoin-sell/internal/pricefeed"
	"github.com/horaciolidity/worldcoin-sell/internal/server/models"
	"github.com/horaciolidity/worldcoin-sell/internal/server/router"
	"github.com/horaciolidity/worldcoin-sell/internal/storage/localstore"
	"github.com/shopspring/decimal"
)

var testSecret = []byte("test-secret")

type stubRates struct {
	rates     pricefeed.Rates
	refreshed bool
}

func (s *stubRates) Snapshot() pricefeed.Rates { return s.rates }

func (s *stubRates) Refresh() { s.refreshed = true }

func resolvedRates() pricefeed.Rates {
	return pricefeed.Rates{
		USD:    decimal.RequireFromString("2.45"),
		ARS:    decimal.RequireFromString("2940"),
		HasUSD: true,
		HasARS: true,
	}
}

type stubVerifier struct {
	status aliasdir.Status
}

func (s stubVerifier) Verify(_ context.Context, _ string) aliasdir.Status { return s.status }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, opts ...router.Option) chi.Router {
	t.Helper()

	store := localstore.NewStorage(localstore.WithLogger(discardLogger()))
	t.Cleanup(func() { store.Close() })

	opts = append([]router.Option{
		router.WithLogger(discardLogger()),
		router.WithSecret(testSecret),
		router.WithRateSource(&stubRates{rates: resolvedRates()}),
	}, opts...)

	return router.NewRouter(store, opts...)
}

func doRequest(t *testing.T, r chi.Router, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

// registerUser registers an account and returns its bearer token.
func registerUser(t *testing.T, r chi.Router, email string) string {
	t.Helper()

	body := `{"email": "` + email + `", "password": "secret"}`

	w := doRequest(t, r, http.MethodPost, "/api/user/register", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", w.Code, w.Body.String())
	}

	token := w.Body.String()
	if token == "" {
		t.Fatal("register returned an empty token")
	}

	return token
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", w.Body.String(), err)
	}

	return v
}

func TestRegisterAndLogin(t *testing.T) {
	r := newTestRouter(t)

	registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodPost, "/api/user/register", "", `{"email": "juan@example.com", "password": "secret"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = doRequest(t, r, http.MethodPost, "/api/user/login", "", `{"email": "juan@example.com", "password": "secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodPost, "/api/user/login", "", `{"email": "juan@example.com", "password": "wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = doRequest(t, r, http.MethodPost, "/api/user/login", "", `{"email": "ghost@example.com", "password": "secret"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestOpenLoginProvisionsAccount(t *testing.T) {
	r := newTestRouter(t, router.WithOpenLogin(true))

	w := doRequest(t, r, http.MethodPost, "/api/user/login", "", `{"email": "anyone@example.com", "password": "whatever"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("open login status = %d, body %s", w.Code, w.Body.String())
	}

	token := w.Body.String()

	w = doRequest(t, r, http.MethodGet, "/api/user/balance", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}

	balance := decodeJSON[models.BalanceResponse](t, w)
	if balance.Balance != 25.5 {
		t.Fatalf("seed balance = %v, want 25.5", balance.Balance)
	}

	// A second login with different credentials reuses the account.
	w = doRequest(t, r, http.MethodPost, "/api/user/login", "", `{"email": "anyone@example.com", "password": "other"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("open relogin status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/user/session", "/api/user/balance", "/api/transactions", "/api/rates"} {
		w := doRequest(t, r, http.MethodGet, path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without token status = %d, want %d", path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodGet, "/api/user/session", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d", w.Code)
	}

	session := decodeJSON[models.SessionResponse](t, w)
	if !session.Authenticated || session.User == nil || session.User.Email != "juan@example.com" {
		t.Fatalf("session = %+v, want authenticated juan@example.com", session)
	}

	if session.User.Name != "juan" {
		t.Fatalf("session user name = %q, want juan", session.User.Name)
	}

	w = doRequest(t, r, http.MethodPost, "/api/user/logout", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/user/session", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d", w.Code)
	}

	session = decodeJSON[models.SessionResponse](t, w)
	if session.Authenticated || session.User != nil {
		t.Fatalf("session after logout = %+v, want empty", session)
	}
}

func TestBalanceUpdate(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodPut, "/api/user/balance", token, `{"balance": 100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set balance status = %d, body %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodGet, "/api/user/balance", token, "")
	balance := decodeJSON[models.BalanceResponse](t, w)

	if balance.Balance != 100 {
		t.Fatalf("balance = %v, want 100", balance.Balance)
	}

	w = doRequest(t, r, http.MethodPut, "/api/user/balance", token, `{"balance": -1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative balance status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPayoutMethodPartialUpdate(t *testing.T) {
	r := newTestRouter(t, router.WithAliasVerifier(stubVerifier{status: aliasdir.StatusValid}))

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodGet, "/api/user/payout", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get payout status = %d", w.Code)
	}

	method := decodeJSON[models.PayoutMethodResponse](t, w)
	if method.Configured {
		t.Fatalf("fresh account reports a configured payout method: %+v", method)
	}

	w = doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"alias": "juanperez.mp"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("save payout status = %d, body %s", w.Code, w.Body.String())
	}

	method = decodeJSON[models.PayoutMethodResponse](t, w)
	if !method.Configured || method.Alias != "juanperez.mp" {
		t.Fatalf("saved method = %+v", method)
	}

	if method.AliasVerification != "valid" {
		t.Fatalf("alias verification = %q, want valid", method.AliasVerification)
	}

	// Absent fields keep their stored values.
	w = doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"wallet_address": "0xabc"}`)
	method = decodeJSON[models.PayoutMethodResponse](t, w)

	if method.Alias != "juanperez.mp" || method.WalletAddress != "0xabc" {
		t.Fatalf("merged method = %+v", method)
	}

	// An explicit empty string clears the field.
	w = doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"alias": ""}`)
	method = decodeJSON[models.PayoutMethodResponse](t, w)

	if method.Alias != "" || method.WalletAddress != "0xabc" || !method.Configured {
		t.Fatalf("cleared method = %+v", method)
	}
}

func TestVerifyPayoutAlias(t *testing.T) {
	r := newTestRouter(t, router.WithAliasVerifier(stubVerifier{status: aliasdir.StatusInvalid}))

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodPost, "/api/user/payout/verify", token, `{"alias": "nobody.mp"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", w.Code, w.Body.String())
	}

	resp := decodeJSON[models.AliasVerifyResponse](t, w)
	if resp.Status != "invalid" || resp.Alias != "nobody.mp" {
		t.Fatalf("verify response = %+v", resp)
	}
}

func TestVerifyPayoutAliasWithoutDirectory(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodPost, "/api/user/payout/verify", token, `{"alias": "nobody.mp"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("verify without directory status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestGetRates(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodGet, "/api/rates", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("rates status = %d", w.Code)
	}

	rates := decodeJSON[models.RatesResponse](t, w)
	if rates.USD == nil || *rates.USD != 2.45 {
		t.Fatalf("rates USD = %v, want 2.45", rates.USD)
	}

	if rates.ARS == nil || *rates.ARS != 2940 {
		t.Fatalf("rates ARS = %v, want 2940", rates.ARS)
	}
}

func TestGetRatesUnresolved(t *testing.T) {
	r := newTestRouter(t, router.WithRateSource(&stubRates{rates: pricefeed.Rates{Loading: true}}))

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodGet, "/api/rates", token, "")
	rates := decodeJSON[models.RatesResponse](t, w)

	if rates.USD != nil || rates.ARS != nil {
		t.Fatalf("unresolved rates = %+v, want null values", rates)
	}

	if !rates.Loading {
		t.Fatal("loading flag lost")
	}
}

func TestRefreshRates(t *testing.T) {
	stub := &stubRates{rates: resolvedRates()}
	r := newTestRouter(t, router.WithRateSource(stub))

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodPost, "/api/rates/refresh", token, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("refresh status = %d, want %d", w.Code, http.StatusAccepted)
	}

	if !stub.refreshed {
		t.Fatal("refresh request did not reach the feed")
	}
}

func TestQuoteExchange(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	w := doRequest(t, r, http.MethodPost, "/api/exchange/quote", token, `{"amount": 10, "currency": "USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("quote status = %d, body %s", w.Code, w.Body.String())
	}

	quote := decodeJSON[models.QuoteResponse](t, w)
	if quote.ConvertedAmount != "24.50" {
		t.Fatalf("converted amount = %s, want 24.50", quote.ConvertedAmount)
	}

	if quote.WalletAddress == "" {
		t.Fatal("quote is missing the destination wallet address")
	}

	w = doRequest(t, r, http.MethodPost, "/api/exchange/quote", token, `{"amount": 10, "currency": "EUR"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad currency status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}

	w = doRequest(t, r, http.MethodPost, "/api/exchange/quote", token, `{"amount": 0, "currency": "USD"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero amount status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestCreateExchange(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	doRequest(t, r, http.MethodPut, "/api/user/balance", token, `{"balance": 100}`)
	doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"alias": "juanperez.mp"}`)

	w := doRequest(t, r, http.MethodPost, "/api/exchange", token, `{"amount": 10, "currency": "USD", "acknowledged": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("exchange status = %d, body %s", w.Code, w.Body.String())
	}

	tx := decodeJSON[models.TransactionResponse](t, w)
	if tx.Status != "pending" {
		t.Fatalf("new transaction status = %s, want pending", tx.Status)
	}

	if tx.ConvertedAmount != "24.50" {
		t.Fatalf("converted amount = %s, want 24.50", tx.ConvertedAmount)
	}

	if tx.Method != "juanperez.mp" {
		t.Fatalf("transaction method = %s, want juanperez.mp", tx.Method)
	}

	w = doRequest(t, r, http.MethodGet, "/api/transactions", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("transactions status = %d", w.Code)
	}

	txs := decodeJSON[[]models.TransactionResponse](t, w)
	if len(txs) != 1 || txs[0].ID != tx.ID {
		t.Fatalf("ledger = %+v, want the single created transaction", txs)
	}
}

func TestCreateExchangeGuards(t *testing.T) {
	r := newTestRouter(t)

	token := registerUser(t, r, "juan@example.com")

	// No payout method configured yet.
	w := doRequest(t, r, http.MethodPost, "/api/exchange", token, `{"amount": 10, "currency": "USD", "acknowledged": true}`)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("no payout method status = %d, want %d", w.Code, http.StatusPreconditionFailed)
	}

	doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"alias": "juanperez.mp"}`)
	doRequest(t, r, http.MethodPut, "/api/user/balance", token, `{"balance": 5}`)

	w = doRequest(t, r, http.MethodPost, "/api/exchange", token, `{"amount": 10, "currency": "USD", "acknowledged": true}`)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("insufficient balance status = %d, want %d", w.Code, http.StatusPaymentRequired)
	}

	w = doRequest(t, r, http.MethodPost, "/api/exchange", token, `{"amount": 5, "currency": "USD", "acknowledged": false}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unacknowledged status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}

	// None of the blocked attempts may have reached the ledger.
	w = doRequest(t, r, http.MethodGet, "/api/transactions", token, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("transactions status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestCreateExchangeRateUnavailable(t *testing.T) {
	r := newTestRouter(t, router.WithRateSource(&stubRates{rates: pricefeed.Rates{Loading: true}}))

	token := registerUser(t, r, "juan@example.com")

	doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"alias": "juanperez.mp"}`)
	doRequest(t, r, http.MethodPut, "/api/user/balance", token, `{"balance": 100}`)

	w := doRequest(t, r, http.MethodPost, "/api/exchange", token, `{"amount": 10, "currency": "USD", "acknowledged": true}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unresolved rate status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestBalanceCheckDisabled(t *testing.T) {
	r := newTestRouter(t, router.WithBalanceCheck(false))

	token := registerUser(t, r, "juan@example.com")

	doRequest(t, r, http.MethodPut, "/api/user/payout", token, `{"alias": "juanperez.mp"}`)

	// Zero balance, but the guard is off.
	w := doRequest(t, r, http.MethodPost, "/api/exchange", token, `{"amount": 10, "currency": "USD", "acknowledged": true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("exchange status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestPing(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(t, r, http.MethodGet, "/ping", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ping status = %d", w.Code)
	}
}
