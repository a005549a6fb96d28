package users

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserEmailEmpty   = errors.New("user email is empty")
	ErrUserEmailInvalid = errors.New("user email is invalid")
	ErrUserPasswdEmpty  = errors.New("user password is empty")
)

type User struct {
	email        string
	name         string
	passwordHash string
	balance      decimal.Decimal
	subscribed   bool
}

// NewUser creates a user account with a zero balance and a bcrypt
// password hash at rest.
func NewUser(email, name, password string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	if err := validatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := getPasswordHash(password)
	if err != nil {
		return nil, fmt.Errorf("getPasswordHash: %w", err)
	}

	if name == "" {
		name = DisplayName(email)
	}

	return &User{
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		balance:      decimal.Zero,
	}, nil
}

// RestoreUser rebuilds a user from stored fields.
func RestoreUser(email, name, passwordHash string, balance decimal.Decimal, subscribed bool) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	return &User{
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		balance:      balance,
		subscribed:   subscribed,
	}, nil
}

func (u *User) Email() string {
	return u.email
}

func (u *User) Name() string {
	return u.name
}

func (u *User) PasswordHash() string {
	return u.passwordHash
}

func (u *User) Balance() decimal.Decimal {
	return u.balance
}

func (u *User) Subscribed() bool {
	return u.subscribed
}

func (u *User) SetBalance(balance decimal.Decimal) {
	u.balance = balance
}

func (u *User) SetSubscribed(subscribed bool) {
	u.subscribed = subscribed
}

// DisplayName derives a fallback display name from the email local part.
func DisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}

	return email
}

func getPasswordHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}

	return string(hash), nil
}

func ValidateEmail(email string) error {
	if email == "" {
		return ErrUserEmailEmpty
	}

	if !strings.Contains(email, "@") {
		return ErrUserEmailInvalid
	}

	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return ErrUserPasswdEmpty
	}

	return nil
}
