package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/payout"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/users"
)

var (
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrPayoutMethodNotFound = errors.New("payout method not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
)

type UserStorage interface {
	CreateUser(ctx context.Context, usr *users.User) error
	GetUser(ctx context.Context, email string) (*users.User, error)
	UpdateUser(ctx context.Context, usr *users.User) error
}

// SessionStorage holds the single active-user snapshot. A save overwrites
// any prior record.
type SessionStorage interface {
	SaveSession(ctx context.Context, usr *users.User) error
	GetSession(ctx context.Context) (*users.User, error)
	ClearSession(ctx context.Context) error
}

type PayoutStorage interface {
	SavePayoutMethod(ctx context.Context, email string, method *payout.Method) error
	GetPayoutMethod(ctx context.Context, email string) (*payout.Method, error)
}

// LedgerStorage is append-only from the HTTP surface; status updates belong
// to the settlement reconciler alone.
type LedgerStorage interface {
	AppendTransaction(ctx context.Context, tx *transactions.Transaction) error
	ListTransactions(ctx context.Context, email string) ([]*transactions.Transaction, error)
	GetTransactionsByStatus(ctx context.Context, statuses ...transactions.Status) ([]*transactions.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status transactions.Status) error
}

type Storage interface {
	UserStorage
	SessionStorage
	PayoutStorage
	LedgerStorage
	Close() error
	Ping(ctx context.Context) error
}

func NewStorage(store Storage) Storage {
	return store
}
