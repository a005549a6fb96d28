package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/horaciolidity/worldcoin-sell/internal/aliasdir"
	"github.com/horaciolidity/worldcoin-sell/internal/auth"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/payout"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/users"
	"github.com/horaciolidity/worldcoin-sell/internal/errmsg"
	"github.com/horaciolidity/worldcoin-sell/internal/exchange"
	"github.com/horaciolidity/worldcoin-sell/internal/pricefeed"
	"github.com/horaciolidity/worldcoin-sell/internal/server/models"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// seedBalance is the balance granted to accounts provisioned by open login,
// matching the prototype's demo wallet.
var seedBalance = decimal.NewFromFloat(25.5)

// RateSource is the price feed surface the handlers need.
type RateSource interface {
	Snapshot() pricefeed.Rates
	Refresh()
}

// AliasVerifier reports the advisory outcome of an alias directory lookup.
type AliasVerifier interface {
	Verify(ctx context.Context, alias string) aliasdir.Status
}

type Handlers struct {
	storage       storage.Storage
	log           *slog.Logger
	auth          *auth.JWTAuth
	rates         RateSource
	aliasVerifier AliasVerifier
	openLogin     bool
	balanceCheck  bool
}

// NewHandlers returns a new Handlers instance.
func NewHandlers(store storage.Storage, opts ...Option) *Handlers {
	handlers := &Handlers{
		storage:      store,
		log:          slog.New(&slog.JSONHandler{}),
		auth:         auth.NewJWTAuth([]byte("")),
		balanceCheck: true,
	}

	for _, opt := range opts {
		opt(handlers)
	}

	return handlers
}

// Option is a functional option for Handlers.
type Option func(h *Handlers)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		h.log = logger
	}
}

func WithAuth(auth *auth.JWTAuth) Option {
	return func(h *Handlers) {
		h.auth = auth
	}
}

func WithRateSource(rates RateSource) Option {
	return func(h *Handlers) {
		h.rates = rates
	}
}

func WithAliasVerifier(verifier AliasVerifier) Option {
	return func(h *Handlers) {
		h.aliasVerifier = verifier
	}
}

// WithOpenLogin switches login to the prototype policy: any credentials are
// accepted and unknown accounts are provisioned with a seed balance.
func WithOpenLogin(openLogin bool) Option {
	return func(h *Handlers) {
		h.openLogin = openLogin
	}
}

func WithBalanceCheck(balanceCheck bool) Option {
	return func(h *Handlers) {
		h.balanceCheck = balanceCheck
	}
}

type JSONResponse struct {
	Message any `json:"message,omitempty"`
	Error   any `json:"error,omitempty"`
}

func handleJSONResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func handleError(w http.ResponseWriter, err errmsg.HTTPError) {
	resp := &JSONResponse{
		Error: err.Error(),
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(err.Code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.log.Error("storage.Ping", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

func (h *Handlers) UserRegister(w http.ResponseWriter, r *http.Request) {
	var payload models.RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	user, err := users.NewUser(payload.Email, payload.Name, payload.Password)
	if err != nil {
		h.log.Error("users.NewUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusBadRequest, err))

		return
	}

	if err := h.storage.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.log.Error("storage.CreateUser()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserAlreadyExists)

			return
		}

		h.log.Error("storage.CreateUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	h.issueSession(w, r, user)
}

func (h *Handlers) UserLogin(w http.ResponseWriter, r *http.Request) {
	var payload models.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	user, err := h.storage.GetUser(r.Context(), payload.Email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			h.log.Error("storage.GetUser()", slog.Any("error", err))
			handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

			return
		}

		if !h.openLogin {
			h.log.Error("storage.GetUser()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserNotFound)

			return
		}

		user, err = h.provisionUser(r.Context(), payload.Email, payload.Password)
		if err != nil {
			h.log.Error("provisionUser", slog.Any("error", err))
			handleError(w, errmsg.NewHTTPError(http.StatusBadRequest, err))

			return
		}
	}

	// Open login skips credential verification entirely.
	if !h.openLogin {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(payload.Password))
		if err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				h.log.Error("bcrypt.CompareHashAndPassword()", slog.Any("error", err))
				handleError(w, errmsg.ErrUserCredentialsInvalid)

				return
			}

			h.log.Error("bcrypt.CompareHashAndPassword()", slog.Any("error", err))
			handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

			return
		}
	}

	h.issueSession(w, r, user)
}

// provisionUser creates an account for unknown open-login credentials,
// seeded with the demo balance.
func (h *Handlers) provisionUser(ctx context.Context, email, password string) (*users.User, error) {
	user, err := users.NewUser(email, "", password)
	if err != nil {
		return nil, err
	}

	user.SetBalance(seedBalance)

	if err := h.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// issueSession persists the active-user snapshot and writes the JWT back.
func (h *Handlers) issueSession(w http.ResponseWriter, r *http.Request, user *users.User) {
	if err := h.storage.SaveSession(r.Context(), user); err != nil {
		h.log.Error("storage.SaveSession()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	token, err := h.auth.CreateJWTString(user.Email())
	if err != nil {
		h.log.Error("auth.CreateJWTString()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.Header().Set("content-type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token)) //nolint:errcheck
}

func (h *Handlers) UserLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.ClearSession(r.Context()); err != nil {
		h.log.Error("storage.ClearSession()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

func (h *Handlers) GetUserSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.storage.GetSession(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			handleJSONResponse(w, http.StatusOK, models.SessionResponse{})

			return
		}

		h.log.Error("storage.GetSession()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, models.SessionResponse{
		Authenticated: true,
		User: &models.UserResponse{
			Email:      user.Email(),
			Name:       user.Name(),
			Balance:    user.Balance().InexactFloat64(),
			Subscribed: user.Subscribed(),
		},
	})
}

func (h *Handlers) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	handleJSONResponse(w, http.StatusOK, models.BalanceResponse{
		Balance: user.Balance().InexactFloat64(),
	})
}

func (h *Handlers) SetUserBalance(w http.ResponseWriter, r *http.Request) {
	var payload models.BalanceRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	if payload.Balance.IsNegative() {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	user.SetBalance(payload.Balance)

	if err := h.storage.UpdateUser(r.Context(), user); err != nil {
		h.log.Error("storage.UpdateUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	h.refreshSession(r.Context(), user)

	handleJSONResponse(w, http.StatusOK, models.BalanceResponse{
		Balance: user.Balance().InexactFloat64(),
	})
}

// refreshSession keeps the durable snapshot aligned with a user mutation.
// Best effort: a stale snapshot is rewritten on the next login.
func (h *Handlers) refreshSession(ctx context.Context, user *users.User) {
	sess, err := h.storage.GetSession(ctx)
	if err != nil || sess.Email() != user.Email() {
		return
	}

	if err := h.storage.SaveSession(ctx, user); err != nil {
		h.log.Error("storage.SaveSession()", slog.Any("error", err))
	}
}

func (h *Handlers) GetPayoutMethod(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	method, err := h.storage.GetPayoutMethod(r.Context(), user.Email())
	if err != nil {
		if errors.Is(err, storage.ErrPayoutMethodNotFound) {
			handleJSONResponse(w, http.StatusOK, models.PayoutMethodResponse{})

			return
		}

		h.log.Error("storage.GetPayoutMethod()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, models.PayoutMethodResponse{
		Alias:         method.Alias(),
		BankID:        method.BankID(),
		WalletAddress: method.WalletAddress(),
		Configured:    method.Configured(),
	})
}

func (h *Handlers) SavePayoutMethod(w http.ResponseWriter, r *http.Request) {
	var payload models.PayoutMethodRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	// Merge happens here; the storage layer overwrites the whole record.
	existing, err := h.storage.GetPayoutMethod(r.Context(), user.Email())
	if err != nil {
		if !errors.Is(err, storage.ErrPayoutMethodNotFound) {
			h.log.Error("storage.GetPayoutMethod()", slog.Any("error", err))
			handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

			return
		}

		existing = payout.NewMethod("", "", "")
	}

	alias := existing.Alias()
	if payload.Alias != nil {
		alias = *payload.Alias
	}

	bankID := existing.BankID()
	if payload.BankID != nil {
		bankID = *payload.BankID
	}

	walletAddress := existing.WalletAddress()
	if payload.WalletAddress != nil {
		walletAddress = *payload.WalletAddress
	}

	method := payout.NewMethod(alias, bankID, walletAddress)

	if err := h.storage.SavePayoutMethod(r.Context(), user.Email(), method); err != nil {
		h.log.Error("storage.SavePayoutMethod()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	resp := models.PayoutMethodResponse{
		Alias:         method.Alias(),
		BankID:        method.BankID(),
		WalletAddress: method.WalletAddress(),
		Configured:    method.Configured(),
	}

	// Advisory only: a failed or negative lookup never blocks the save.
	if h.aliasVerifier != nil && method.Alias() != "" {
		resp.AliasVerification = string(h.aliasVerifier.Verify(r.Context(), method.Alias()))
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) VerifyPayoutAlias(w http.ResponseWriter, r *http.Request) {
	var payload models.AliasVerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	if h.aliasVerifier == nil {
		handleError(w, errmsg.ErrAliasDirectoryDisabled)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.AliasVerifyResponse{
		Alias:  payload.Alias,
		Status: string(h.aliasVerifier.Verify(r.Context(), payload.Alias)),
	})
}

func (h *Handlers) GetRates(w http.ResponseWriter, r *http.Request) {
	rates := h.rates.Snapshot()

	resp := models.RatesResponse{
		Loading: rates.Loading,
	}

	if rates.HasUSD {
		usd := rates.USD.InexactFloat64()
		resp.USD = &usd
	}

	if rates.HasARS {
		ars := rates.ARS.InexactFloat64()
		resp.ARS = &ars
	}

	if !rates.UpdatedAt.IsZero() {
		resp.UpdatedAt = rates.UpdatedAt.Format(time.RFC3339)
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) RefreshRates(w http.ResponseWriter, _ *http.Request) {
	h.rates.Refresh()

	handleJSONResponse(w, http.StatusAccepted, &JSONResponse{Message: "ok"})
}

func (h *Handlers) QuoteExchange(w http.ResponseWriter, r *http.Request) {
	var payload models.QuoteRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	currency, err := transactions.ParseCurrency(payload.Currency)
	if err != nil {
		handleError(w, errmsg.ErrExchangeCurrencyInvalid)

		return
	}

	// A quote is rate arithmetic only; the balance guard belongs to the
	// submission path.
	wizard := exchange.NewWizard(decimal.Zero, exchange.WithBalanceCheck(false))

	if err := wizard.EnterAmount(payload.Amount); err != nil {
		handleError(w, errmsg.ErrExchangeAmountInvalid)

		return
	}

	if err := wizard.SelectCurrency(currency, h.rates.Snapshot()); err != nil {
		handleError(w, errmsg.ErrExchangeRateUnavailable)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.QuoteResponse{
		Amount:          wizard.Amount().InexactFloat64(),
		Currency:        wizard.Currency().String(),
		Rate:            wizard.Rate().InexactFloat64(),
		ConvertedAmount: wizard.Converted().StringFixed(2),
		WalletAddress:   exchange.WalletAddress,
	})
}

func (h *Handlers) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var payload models.ExchangeRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		h.log.Error("json.NewDecoder().Decode()", slog.Any("error", err))
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	currency, err := transactions.ParseCurrency(payload.Currency)
	if err != nil {
		handleError(w, errmsg.ErrExchangeCurrencyInvalid)

		return
	}

	method, err := h.storage.GetPayoutMethod(r.Context(), user.Email())
	if err != nil && !errors.Is(err, storage.ErrPayoutMethodNotFound) {
		h.log.Error("storage.GetPayoutMethod()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	if err != nil || !method.Configured() {
		handleError(w, errmsg.ErrPayoutMethodNotConfigured)

		return
	}

	wizard := exchange.NewWizard(user.Balance(), exchange.WithBalanceCheck(h.balanceCheck))

	if err := wizard.EnterAmount(payload.Amount); err != nil {
		if errors.Is(err, exchange.ErrAmountExceedsBalance) {
			handleError(w, errmsg.ErrUserBalanceNotEnough)

			return
		}

		handleError(w, errmsg.ErrExchangeAmountInvalid)

		return
	}

	if err := wizard.SelectCurrency(currency, h.rates.Snapshot()); err != nil {
		handleError(w, errmsg.ErrExchangeRateUnavailable)

		return
	}

	if !payload.Acknowledged {
		handleError(w, errmsg.ErrExchangeNotAcknowledged)

		return
	}

	if err := wizard.Acknowledge(); err != nil {
		h.log.Error("wizard.Acknowledge()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	tx, err := wizard.Transaction(user.Email(), method.Label(), payload.Note)
	if err != nil {
		h.log.Error("wizard.Transaction()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	if err := h.storage.AppendTransaction(r.Context(), tx); err != nil {
		h.log.Error("storage.AppendTransaction()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusCreated, transactionResponse(tx))
}

func (h *Handlers) GetTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	txs, err := h.storage.ListTransactions(r.Context(), user.Email())
	if err != nil {
		h.log.Error("storage.ListTransactions()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	if len(txs) == 0 {
		handleJSONResponse(w, http.StatusNoContent, []models.TransactionResponse{})

		return
	}

	resp := make([]models.TransactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = transactionResponse(tx)
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

// requestUser resolves the JWT subject to a stored user, writing the error
// response itself on failure.
func (h *Handlers) requestUser(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	token, _, err := jwtauth.FromContext(r.Context())
	if err != nil {
		h.log.Error("jwtauth.FromContext()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return nil, false
	}

	user, err := h.storage.GetUser(r.Context(), token.Subject())
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.log.Error("storage.GetUser()", slog.Any("error", err))
			handleError(w, errmsg.ErrUserNotFound)

			return nil, false
		}

		h.log.Error("storage.GetUser()", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return nil, false
	}

	return user, true
}

func transactionResponse(tx *transactions.Transaction) models.TransactionResponse {
	return models.TransactionResponse{
		ID:              tx.ID().String(),
		Amount:          tx.Amount().InexactFloat64(),
		Currency:        tx.Currency().String(),
		ConvertedAmount: tx.ConvertedString(),
		Method:          tx.Method(),
		Status:          tx.Status().String(),
		CreatedAt:       tx.CreatedAt().Format(time.RFC3339),
		Note:            tx.Note(),
	}
}
