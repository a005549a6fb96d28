//nolint:wrapcheck
package transactions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/users"
	"github.com/shopspring/decimal"
)

var ErrTransactionMethodEmpty = errors.New("transaction payout method is empty")

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyARS Currency = "ARS"
)

func ParseCurrency(currency string) (Currency, error) {
	switch currency {
	case "USD":
		return CurrencyUSD, nil
	case "ARS":
		return CurrencyARS, nil
	default:
		return "", fmt.Errorf("unknown currency: %s", currency)
	}
}

func (c Currency) String() string {
	return string(c)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusVerifying Status = "verifying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func ParseStatus(status string) (Status, error) {
	switch status {
	case "pending":
		return StatusPending, nil
	case "verifying":
		return StatusVerifying, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown transaction status: %s", status)
	}
}

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further status transition exists.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Transaction struct {
	id        uuid.UUID
	userEmail string
	amount    decimal.Decimal
	currency  Currency
	converted decimal.Decimal
	method    string
	status    Status
	createdAt time.Time
	note      string
}

// NewTransaction records a freshly confirmed exchange. Every transaction
// starts out pending; only the settlement reconciler advances it.
func NewTransaction(userEmail string, amount decimal.Decimal, currency Currency, converted decimal.Decimal, method, note string) (*Transaction, error) {
	if err := users.ValidateEmail(userEmail); err != nil {
		return nil, err
	}

	if err := validateMethod(method); err != nil {
		return nil, err
	}

	return &Transaction{
		id:        uuid.New(),
		userEmail: userEmail,
		amount:    amount,
		currency:  currency,
		converted: converted,
		method:    method,
		status:    StatusPending,
		createdAt: time.Now(),
		note:      note,
	}, nil
}

// RestoreTransaction rebuilds a transaction from stored fields.
func RestoreTransaction(id uuid.UUID, userEmail string, amount decimal.Decimal, currency Currency, converted decimal.Decimal, method string, status Status, createdAt time.Time, note string) (*Transaction, error) {
	if err := users.ValidateEmail(userEmail); err != nil {
		return nil, err
	}

	return &Transaction{
		id:        id,
		userEmail: userEmail,
		amount:    amount,
		currency:  currency,
		converted: converted,
		method:    method,
		status:    status,
		createdAt: createdAt,
		note:      note,
	}, nil
}

func (t *Transaction) ID() uuid.UUID {
	return t.id
}

func (t *Transaction) UserEmail() string {
	return t.userEmail
}

func (t *Transaction) Amount() decimal.Decimal {
	return t.amount
}

func (t *Transaction) Currency() Currency {
	return t.currency
}

func (t *Transaction) Converted() decimal.Decimal {
	return t.converted
}

// ConvertedString formats the converted amount with two fractional digits.
func (t *Transaction) ConvertedString() string {
	return t.converted.StringFixed(2)
}

func (t *Transaction) Method() string {
	return t.method
}

func (t *Transaction) Status() Status {
	return t.status
}

func (t *Transaction) CreatedAt() time.Time {
	return t.createdAt
}

func (t *Transaction) Note() string {
	return t.note
}

func (t *Transaction) SetStatus(status Status) {
	t.status = status
}

func validateMethod(method string) error {
	if method == "" {
		return ErrTransactionMethodEmpty
	}

	return nil
}
