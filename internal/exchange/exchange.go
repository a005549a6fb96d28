package exchange

import (
	"errors"
	"fmt"

	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/pricefeed"
	"github.com/shopspring/decimal"
)

// WalletAddress is the fixed destination shown for the manual fund transfer.
// It is display-only and never validated against any network.
const WalletAddress = "0xc46f4a60b9bac52c1583abeb4f956d5d798a02e8"

var (
	ErrAmountNotPositive    = errors.New("exchange amount must be greater than zero")
	ErrAmountExceedsBalance = errors.New("exchange amount exceeds user balance")
	ErrRateUnresolved       = errors.New("exchange rate is not resolved yet")
	ErrWrongStep            = errors.New("operation not allowed at this step")
)

type Step string

const (
	StepAmountEntry      Step = "AMOUNT_ENTRY"
	StepCurrencySelect   Step = "CURRENCY_SELECT"
	StepSendInstructions Step = "SEND_INSTRUCTIONS"
	StepAcknowledged     Step = "ACKNOWLEDGED"
)

// Quote converts an amount of the source asset into the target currency,
// rounded to two fractional digits.
func Quote(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// Wizard is the linear exchange flow: amount entry, currency selection,
// send instructions, acknowledgement. No backward transitions exist; a run
// that reaches the terminal step emits exactly one transaction.
type Wizard struct {
	step         Step
	balance      decimal.Decimal
	balanceCheck bool
	amount       decimal.Decimal
	currency     transactions.Currency
	rate         decimal.Decimal
	converted    decimal.Decimal
}

func NewWizard(balance decimal.Decimal, opts ...Option) *Wizard {
	w := &Wizard{
		step:         StepAmountEntry,
		balance:      balance,
		balanceCheck: true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

type Option func(w *Wizard)

// WithBalanceCheck toggles the amount-within-balance guard. The prototype
// tier runs without it.
func WithBalanceCheck(check bool) Option {
	return func(w *Wizard) {
		w.balanceCheck = check
	}
}

func (w *Wizard) Step() Step {
	return w.step
}

func (w *Wizard) Amount() decimal.Decimal {
	return w.amount
}

func (w *Wizard) Currency() transactions.Currency {
	return w.currency
}

func (w *Wizard) Rate() decimal.Decimal {
	return w.rate
}

func (w *Wizard) Converted() decimal.Decimal {
	return w.converted
}

// EnterAmount guards the first transition: the amount must be positive and,
// when balance checking is on, within the user balance.
func (w *Wizard) EnterAmount(amount decimal.Decimal) error {
	if w.step != StepAmountEntry {
		return ErrWrongStep
	}

	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}

	if w.balanceCheck && amount.GreaterThan(w.balance) {
		return ErrAmountExceedsBalance
	}

	w.amount = amount
	w.step = StepCurrencySelect

	return nil
}

// SelectCurrency computes the converted amount from the feed's current rate.
// An unresolved rate blocks progression: a zero read from a source that has
// never answered must not pass for a valid quote.
func (w *Wizard) SelectCurrency(currency transactions.Currency, rates pricefeed.Rates) error {
	if w.step != StepCurrencySelect {
		return ErrWrongStep
	}

	rate, ok := rates.Rate(currency)
	if !ok {
		return ErrRateUnresolved
	}

	w.currency = currency
	w.rate = rate
	w.converted = Quote(w.amount, rate)
	w.step = StepSendInstructions

	return nil
}

// Acknowledge records the explicit user affirmation to send the exact
// amount to the displayed wallet address.
func (w *Wizard) Acknowledge() error {
	if w.step != StepSendInstructions {
		return ErrWrongStep
	}

	w.step = StepAcknowledged

	return nil
}

// Transaction emits the single ledger record of an acknowledged run.
func (w *Wizard) Transaction(userEmail, method, note string) (*transactions.Transaction, error) {
	if w.step != StepAcknowledged {
		return nil, ErrWrongStep
	}

	tx, err := transactions.NewTransaction(userEmail, w.amount, w.currency, w.converted, method, note)
	if err != nil {
		return nil, fmt.Errorf("transactions.NewTransaction: %w", err)
	}

	return tx, nil
}
