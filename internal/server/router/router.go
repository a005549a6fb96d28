package router

import (
	"log/slog"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/horaciolidity/worldcoin-sell/internal/auth"
	"github.com/horaciolidity/worldcoin-sell/internal/server/handlers"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
)

type Options struct {
	log           *slog.Logger
	secret        []byte
	rates         handlers.RateSource
	aliasVerifier handlers.AliasVerifier
	openLogin     bool
	balanceCheck  bool
}

func NewRouter(store storage.Storage, opts ...Option) chi.Router {
	r := chi.NewRouter()

	rOpts := Options{
		log:          slog.New(&slog.JSONHandler{}),
		secret:       []byte(""),
		balanceCheck: true,
	}

	for _, opt := range opts {
		opt(&rOpts)
	}

	tokenAuth := jwtauth.New("HS256", rOpts.secret, nil)

	r.Use(
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Logger,
	)

	h := handlers.NewHandlers(store,
		handlers.WithLogger(rOpts.log),
		handlers.WithAuth(auth.NewJWTAuth(rOpts.secret)),
		handlers.WithRateSource(rOpts.rates),
		handlers.WithAliasVerifier(rOpts.aliasVerifier),
		handlers.WithOpenLogin(rOpts.openLogin),
		handlers.WithBalanceCheck(rOpts.balanceCheck),
	)

	r.Get("/ping", h.Ping)

	r.Group(func(r chi.Router) {
		r.Post("/api/user/register", h.UserRegister)
		r.Post("/api/user/login", h.UserLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(
			jwtauth.Verifier(tokenAuth),
			jwtauth.Authenticator(tokenAuth),
		)

		r.Get("/api/user/session", h.GetUserSession)
		r.Post("/api/user/logout", h.UserLogout)
		r.Get("/api/user/balance", h.GetUserBalance)
		r.Put("/api/user/balance", h.SetUserBalance)
		r.Get("/api/user/payout", h.GetPayoutMethod)
		r.Put("/api/user/payout", h.SavePayoutMethod)
		r.Post("/api/user/payout/verify", h.VerifyPayoutAlias)
		r.Get("/api/rates", h.GetRates)
		r.Post("/api/rates/refresh", h.RefreshRates)
		r.Post("/api/exchange/quote", h.QuoteExchange)
		r.Post("/api/exchange", h.CreateExchange)
		r.Get("/api/transactions", h.GetTransactions)
	})

	return r
}

type Option func(r *Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.log = logger
	}
}

func WithSecret(secret []byte) Option {
	return func(o *Options) {
		o.secret = secret
	}
}

func WithRateSource(rates handlers.RateSource) Option {
	return func(o *Options) {
		o.rates = rates
	}
}

func WithAliasVerifier(verifier handlers.AliasVerifier) Option {
	return func(o *Options) {
		o.aliasVerifier = verifier
	}
}

func WithOpenLogin(openLogin bool) Option {
	return func(o *Options) {
		o.openLogin = openLogin
	}
}

func WithBalanceCheck(balanceCheck bool) Option {
	return func(o *Options) {
		o.balanceCheck = balanceCheck
	}
}
