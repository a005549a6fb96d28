package pgstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/payout"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/users"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
	"github.com/horaciolidity/worldcoin-sell/internal/storage/dbmodels"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	// Postgres driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	db *sql.DB
}

type Config struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxIdleTime time.Duration
	connMaxLifetime time.Duration
}

type Option func(s *Config)

func WithMaxOpenConns(conns int) Option {
	return func(c *Config) {
		c.maxOpenConns = conns
	}
}

func WithMaxIdleConns(conns int) Option {
	return func(c *Config) {
		c.maxIdleConns = conns
	}
}

func WithConnMaxIdleTime(idleTime time.Duration) Option {
	return func(c *Config) {
		c.connMaxIdleTime = idleTime
	}
}

func WithConnMaxLifetime(lifetime time.Duration) Option {
	return func(c *Config) {
		c.connMaxLifetime = lifetime
	}
}

func NewStorage(connStr string, opts ...Option) (*Storage, error) {
	cfg := &Config{
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxIdleTime: 180 * time.Second,
		connMaxLifetime: 3600 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxIdleTime(cfg.connMaxIdleTime)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)

	return &Storage{
		db: db,
	}, nil
}

func (s *Storage) Bootstrap(ctx context.Context) error {
	provider, err := goose.NewProvider(
		goose.DialectPostgres,
		s.db,
		os.DirFS("internal/storage/pgstorage/migrations"),
	)
	if err != nil {
		return fmt.Errorf("goose.NewProvider: %w", err)
	}

	_, err = provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("provider.Up: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("db.Close: %w", err)
	}

	return nil
}

// isRetryableError checks if error is retryable.
func isRetryableError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return true
	}

	return false
}

// WithRetry retries operations in case of retryable errors.
func WithRetry(operation func() error) error {
	retryCount := 3

	var retryWaitTime time.Duration

	retryWaitInterval := 2

	var err error

	for i := 0; i < retryCount; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if isRetryableError(err) {
			retryWaitTime = time.Duration((i*retryWaitInterval + 1)) * time.Second // 1s, 3s, 5s, etc.

			time.Sleep(retryWaitTime)
		} else {
			return fmt.Errorf("%w", err)
		}
	}

	return fmt.Errorf("retry attempts exceeded: %w", err)
}

func (s *Storage) Ping(ctx context.Context) error {
	err := WithRetry(func() error {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("db.PingContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) CreateUser(ctx context.Context, usr *users.User) error {
	err := WithRetry(func() error {
		query := `INSERT INTO users (email, name, password_hash, balance, subscribed) VALUES ($1, $2, $3, $4, $5)`

		if _, err := s.db.ExecContext(ctx, query,
			usr.Email(), usr.Name(), usr.PasswordHash(), usr.Balance(), usr.Subscribed(),
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
				return storage.ErrUserAlreadyExists
			}

			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetUser(ctx context.Context, email string) (*users.User, error) {
	dbUser := new(dbmodels.User)

	err := WithRetry(func() error {
		query := `SELECT email, name, password_hash, balance, subscribed FROM users WHERE email = $1`

		row := s.db.QueryRowContext(ctx, query, email)

		if err := row.Scan(
			&dbUser.Email, &dbUser.Name, &dbUser.PasswordHash, &dbUser.Balance, &dbUser.Subscribed,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrUserNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := users.RestoreUser(dbUser.Email, dbUser.Name, dbUser.PasswordHash, dbUser.Balance, dbUser.Subscribed)
	if err != nil {
		return nil, fmt.Errorf("users.RestoreUser: %w", err)
	}

	return user, nil
}

func (s *Storage) UpdateUser(ctx context.Context, usr *users.User) error {
	err := WithRetry(func() error {
		query := `UPDATE users SET name = $1, password_hash = $2, balance = $3, subscribed = $4 WHERE email = $5`

		res, err := s.db.ExecContext(ctx, query,
			usr.Name(), usr.PasswordHash(), usr.Balance(), usr.Subscribed(), usr.Email(),
		)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("res.RowsAffected: %w", err)
		}

		if rows == 0 {
			return storage.ErrUserNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) SaveSession(ctx context.Context, usr *users.User) error {
	err := WithRetry(func() error {
		query := `INSERT INTO sessions (id, user_email) VALUES (1, $1)` +
			` ON CONFLICT (id) DO UPDATE SET user_email = EXCLUDED.user_email`

		if _, err := s.db.ExecContext(ctx, query, usr.Email()); err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetSession(ctx context.Context) (*users.User, error) {
	dbUser := new(dbmodels.User)

	err := WithRetry(func() error {
		query := `SELECT u.email, u.name, u.password_hash, u.balance, u.subscribed` +
			` FROM sessions s JOIN users u ON u.email = s.user_email WHERE s.id = 1`

		row := s.db.QueryRowContext(ctx, query)

		if err := row.Scan(
			&dbUser.Email, &dbUser.Name, &dbUser.PasswordHash, &dbUser.Balance, &dbUser.Subscribed,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrSessionNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := users.RestoreUser(dbUser.Email, dbUser.Name, dbUser.PasswordHash, dbUser.Balance, dbUser.Subscribed)
	if err != nil {
		return nil, fmt.Errorf("users.RestoreUser: %w", err)
	}

	return user, nil
}

func (s *Storage) ClearSession(ctx context.Context) error {
	err := WithRetry(func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = 1`); err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) SavePayoutMethod(ctx context.Context, email string, method *payout.Method) error {
	err := WithRetry(func() error {
		query := `INSERT INTO payout_methods (user_email, alias, bank_id, wallet_address) VALUES ($1, $2, $3, $4)` +
			` ON CONFLICT (user_email) DO UPDATE SET alias = EXCLUDED.alias, bank_id = EXCLUDED.bank_id,` +
			` wallet_address = EXCLUDED.wallet_address`

		if _, err := s.db.ExecContext(ctx, query,
			email, method.Alias(), method.BankID(), method.WalletAddress(),
		); err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetPayoutMethod(ctx context.Context, email string) (*payout.Method, error) {
	dbMethod := new(dbmodels.PayoutMethod)

	err := WithRetry(func() error {
		query := `SELECT user_email, alias, bank_id, wallet_address FROM payout_methods WHERE user_email = $1`

		row := s.db.QueryRowContext(ctx, query, email)

		if err := row.Scan(
			&dbMethod.UserEmail, &dbMethod.Alias, &dbMethod.BankID, &dbMethod.WalletAddress,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrPayoutMethodNotFound
			}

			return fmt.Errorf("db.QueryRowContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return payout.NewMethod(dbMethod.Alias, dbMethod.BankID, dbMethod.WalletAddress), nil
}

func (s *Storage) AppendTransaction(ctx context.Context, tx *transactions.Transaction) error {
	err := WithRetry(func() error {
		query := `INSERT INTO transactions (id, user_email, amount, currency, converted, method, status, created_at, note)` +
			` VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		if _, err := s.db.ExecContext(ctx, query,
			tx.ID(), tx.UserEmail(), tx.Amount(), tx.Currency().String(), tx.Converted(),
			tx.Method(), tx.Status().String(), tx.CreatedAt(), tx.Note(),
		); err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Storage) ListTransactions(ctx context.Context, email string) ([]*transactions.Transaction, error) {
	dbTxs := make([]*dbmodels.Transaction, 0)

	err := WithRetry(func() error {
		query := `SELECT id, user_email, amount, currency, converted, method, status, created_at, note` +
			` FROM transactions WHERE user_email = $1 ORDER BY created_at DESC`

		rows, err := s.db.QueryContext(ctx, query, email)
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}

		defer rows.Close()

		for rows.Next() {
			dbTx := new(dbmodels.Transaction)

			if err := rows.Scan(
				&dbTx.ID, &dbTx.UserEmail, &dbTx.Amount, &dbTx.Currency, &dbTx.Converted,
				&dbTx.Method, &dbTx.Status, &dbTx.CreatedAt, &dbTx.Note,
			); err != nil {
				return fmt.Errorf("rows.Scan: %w", err)
			}

			dbTxs = append(dbTxs, dbTx)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows.Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restoreTransactions(dbTxs)
}

func (s *Storage) GetTransactionsByStatus(ctx context.Context, statuses ...transactions.Status) ([]*transactions.Transaction, error) {
	dbTxs := make([]*dbmodels.Transaction, 0)

	statusSet := make([]string, len(statuses))
	for i, status := range statuses {
		statusSet[i] = status.String()
	}

	err := WithRetry(func() error {
		query := `SELECT id, user_email, amount, currency, converted, method, status, created_at, note` +
			` FROM transactions WHERE status = ANY($1) ORDER BY created_at DESC`

		rows, err := s.db.QueryContext(ctx, query, pq.Array(statusSet))
		if err != nil {
			return fmt.Errorf("db.QueryContext: %w", err)
		}

		defer rows.Close()

		for rows.Next() {
			dbTx := new(dbmodels.Transaction)

			if err := rows.Scan(
				&dbTx.ID, &dbTx.UserEmail, &dbTx.Amount, &dbTx.Currency, &dbTx.Converted,
				&dbTx.Method, &dbTx.Status, &dbTx.CreatedAt, &dbTx.Note,
			); err != nil {
				return fmt.Errorf("rows.Scan: %w", err)
			}

			dbTxs = append(dbTxs, dbTx)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows.Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return restoreTransactions(dbTxs)
}

func (s *Storage) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status transactions.Status) error {
	err := WithRetry(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE transactions SET status = $1 WHERE id = $2`, status.String(), id,
		)
		if err != nil {
			return fmt.Errorf("db.ExecContext: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("res.RowsAffected: %w", err)
		}

		if rows == 0 {
			return storage.ErrTransactionNotFound
		}

		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func restoreTransactions(dbTxs []*dbmodels.Transaction) ([]*transactions.Transaction, error) {
	txs := make([]*transactions.Transaction, 0, len(dbTxs))

	for _, dbTx := range dbTxs {
		currency, err := transactions.ParseCurrency(dbTx.Currency)
		if err != nil {
			return nil, fmt.Errorf("transactions.ParseCurrency: %w", err)
		}

		status, err := transactions.ParseStatus(dbTx.Status)
		if err != nil {
			return nil, fmt.Errorf("transactions.ParseStatus: %w", err)
		}

		tx, err := transactions.RestoreTransaction(
			dbTx.ID, dbTx.UserEmail, dbTx.Amount, currency, dbTx.Converted,
			dbTx.Method, status, dbTx.CreatedAt, dbTx.Note,
		)
		if err != nil {
			return nil, fmt.Errorf("transactions.RestoreTransaction: %w", err)
		}

		txs = append(txs, tx)
	}

	return txs, nil
}
