package dbmodels

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	Email        string
	Name         string
	PasswordHash string
	Balance      decimal.Decimal
	Subscribed   bool
}

type PayoutMethod struct {
	UserEmail     string
	Alias         string
	BankID        string
	WalletAddress string
}

type Transaction struct {
	ID        uuid.UUID
	UserEmail string
	Amount    decimal.Decimal
	Currency  string
	Converted decimal.Decimal
	Method    string
	Status    string
	CreatedAt time.Time
	Note      string
}
