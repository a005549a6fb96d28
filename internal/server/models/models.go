package models

import (
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
	Subscribed bool    `json:"is_subscribed"`
}

type SessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *UserResponse `json:"user"`
}

type BalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

type BalanceResponse struct {
	Balance float64 `json:"balance"`
}

// PayoutMethodRequest carries a partial update: absent fields keep their
// stored values, present fields overwrite them.
type PayoutMethodRequest struct {
	Alias         *string `json:"alias"`
	BankID        *string `json:"bank_id"`
	WalletAddress *string `json:"wallet_address"`
}

type PayoutMethodResponse struct {
	Alias             string `json:"alias,omitempty"`
	BankID            string `json:"bank_id,omitempty"`
	WalletAddress     string `json:"wallet_address,omitempty"`
	Configured        bool   `json:"configured"`
	AliasVerification string `json:"alias_verification,omitempty"`
}

type AliasVerifyRequest struct {
	Alias string `json:"alias"`
}

type AliasVerifyResponse struct {
	Alias  string `json:"alias"`
	Status string `json:"status"`
}

type RatesResponse struct {
	USD       *float64 `json:"usd"`
	ARS       *float64 `json:"ars"`
	Loading   bool     `json:"loading"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type QuoteRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type QuoteResponse struct {
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Rate            float64 `json:"rate"`
	ConvertedAmount string  `json:"converted_amount"`
	WalletAddress   string  `json:"wallet_address"`
}

type ExchangeRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Acknowledged bool            `json:"acknowledged"`
	Note         string          `json:"note,omitempty"`
}

type TransactionResponse struct {
	ID              string  `json:"id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	ConvertedAmount string  `json:"converted_amount"`
	Method          string  `json:"method"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	Note            string  `json:"note,omitempty"`
}
