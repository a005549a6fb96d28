// Package localstore keeps the whole application state in a single
// JSON-serialized blob, mirrored to a file on every mutation. A missing,
// corrupt or version-mismatched blob loads as empty state. With no file
// path configured the store is memory-only.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/payout"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/users"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
	"github.com/shopspring/decimal"
)

var _ storage.Storage = (*Storage)(nil)

const schemaVersion = 1

type userRecord struct {
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"password_hash"`
	Balance      decimal.Decimal `json:"balance"`
	Subscribed   bool            `json:"is_subscribed"`
}

type payoutRecord struct {
	Alias         string `json:"alias,omitempty"`
	BankID        string `json:"bank_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

type txRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserEmail string          `json:"user_email"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Converted decimal.Decimal `json:"converted_amount"`
	Method    string          `json:"method"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Note      string          `json:"note,omitempty"`
}

// snapshot is the serialized blob. Transactions are kept newest-first, the
// order they are displayed in.
type snapshot struct {
	SchemaVersion int                     `json:"schema_version"`
	Users         map[string]userRecord   `json:"users"`
	Session       *userRecord             `json:"session,omitempty"`
	Payouts       map[string]payoutRecord `json:"payout_methods"`
	Transactions  []txRecord              `json:"transactions"`
}

func newSnapshot() snapshot {
	return snapshot{
		SchemaVersion: schemaVersion,
		Users:         make(map[string]userRecord),
		Payouts:       make(map[string]payoutRecord),
		Transactions:  make([]txRecord, 0),
	}
}

type Storage struct {
	log  *slog.Logger
	path string

	mu   sync.Mutex
	data snapshot
}

type Config struct {
	logger   *slog.Logger
	filePath string
}

func NewStorage(opts ...Option) *Storage {
	cfg := &Config{
		logger: slog.New(&slog.JSONHandler{}),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	s := &Storage{
		log:  cfg.logger.With(slog.String("module", "localstore")),
		path: cfg.filePath,
		data: newSnapshot(),
	}

	s.load()

	return s
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithFilePath(path string) Option {
	return func(c *Config) {
		c.filePath = path
	}
}

// load rehydrates the blob from disk. Any defect in the stored data is
// treated as absence, never as a startup failure.
func (s *Storage) load() {
	if s.path == "" {
		return
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("os.ReadFile, starting empty", slog.Any("error", err))
		}

		return
	}

	var data snapshot
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Warn("json.Unmarshal, starting empty", slog.Any("error", err))

		return
	}

	if data.SchemaVersion != schemaVersion {
		s.log.Warn("schema version mismatch, starting empty",
			slog.Int("stored", data.SchemaVersion),
			slog.Int("expected", schemaVersion),
		)

		return
	}

	if data.Users == nil {
		data.Users = make(map[string]userRecord)
	}

	if data.Payouts == nil {
		data.Payouts = make(map[string]payoutRecord)
	}

	s.data = data
}

// persist flushes the blob. Callers hold the mutex.
func (s *Storage) persist() error {
	if s.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("json.MarshalIndent: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("os.WriteFile: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persist()
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

func (s *Storage) CreateUser(_ context.Context, usr *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[usr.Email()]; ok {
		return storage.ErrUserAlreadyExists
	}

	s.data.Users[usr.Email()] = userToRecord(usr)

	return s.persist()
}

func (s *Storage) GetUser(_ context.Context, email string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return recordToUser(rec)
}

func (s *Storage) UpdateUser(_ context.Context, usr *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[usr.Email()]; !ok {
		return storage.ErrUserNotFound
	}

	s.data.Users[usr.Email()] = userToRecord(usr)

	return s.persist()
}

func (s *Storage) SaveSession(_ context.Context, usr *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := userToRecord(usr)
	s.data.Session = &rec

	return s.persist()
}

func (s *Storage) GetSession(_ context.Context) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Session == nil {
		return nil, storage.ErrSessionNotFound
	}

	return recordToUser(*s.data.Session)
}

func (s *Storage) ClearSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Session = nil

	return s.persist()
}

func (s *Storage) SavePayoutMethod(_ context.Context, email string, method *payout.Method) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Payouts[email] = payoutRecord{
		Alias:         method.Alias(),
		BankID:        method.BankID(),
		WalletAddress: method.WalletAddress(),
	}

	return s.persist()
}

func (s *Storage) GetPayoutMethod(_ context.Context, email string) (*payout.Method, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Payouts[email]
	if !ok {
		return nil, storage.ErrPayoutMethodNotFound
	}

	return payout.NewMethod(rec.Alias, rec.BankID, rec.WalletAddress), nil
}

func (s *Storage) AppendTransaction(_ context.Context, tx *transactions.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := txRecord{
		ID:        tx.ID(),
		UserEmail: tx.UserEmail(),
		Amount:    tx.Amount(),
		Currency:  tx.Currency().String(),
		Converted: tx.Converted(),
		Method:    tx.Method(),
		Status:    tx.Status().String(),
		CreatedAt: tx.CreatedAt(),
		Note:      tx.Note(),
	}

	// Newest entries go first.
	s.data.Transactions = append([]txRecord{rec}, s.data.Transactions...)

	return s.persist()
}

func (s *Storage) ListTransactions(_ context.Context, email string) ([]*transactions.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]*transactions.Transaction, 0)

	for _, rec := range s.data.Transactions {
		if rec.UserEmail != email {
			continue
		}

		tx, err := recordToTransaction(rec)
		if err != nil {
			return nil, err
		}

		txs = append(txs, tx)
	}

	return txs, nil
}

func (s *Storage) GetTransactionsByStatus(_ context.Context, statuses ...transactions.Status) ([]*transactions.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status.String()] = struct{}{}
	}

	txs := make([]*transactions.Transaction, 0)

	for _, rec := range s.data.Transactions {
		if _, ok := wanted[rec.Status]; !ok {
			continue
		}

		tx, err := recordToTransaction(rec)
		if err != nil {
			return nil, err
		}

		txs = append(txs, tx)
	}

	return txs, nil
}

func (s *Storage) UpdateTransactionStatus(_ context.Context, id uuid.UUID, status transactions.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Transactions {
		if s.data.Transactions[i].ID == id {
			s.data.Transactions[i].Status = status.String()

			return s.persist()
		}
	}

	return storage.ErrTransactionNotFound
}

func userToRecord(usr *users.User) userRecord {
	return userRecord{
		Email:        usr.Email(),
		Name:         usr.Name(),
		PasswordHash: usr.PasswordHash(),
		Balance:      usr.Balance(),
		Subscribed:   usr.Subscribed(),
	}
}

func recordToUser(rec userRecord) (*users.User, error) {
	usr, err := users.RestoreUser(rec.Email, rec.Name, rec.PasswordHash, rec.Balance, rec.Subscribed)
	if err != nil {
		return nil, fmt.Errorf("users.RestoreUser: %w", err)
	}

	return usr, nil
}

func recordToTransaction(rec txRecord) (*transactions.Transaction, error) {
	currency, err := transactions.ParseCurrency(rec.Currency)
	if err != nil {
		return nil, fmt.Errorf("transactions.ParseCurrency: %w", err)
	}

	status, err := transactions.ParseStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("transactions.ParseStatus: %w", err)
	}

	tx, err := transactions.RestoreTransaction(
		rec.ID, rec.UserEmail, rec.Amount, currency, rec.Converted,
		rec.Method, status, rec.CreatedAt, rec.Note,
	)
	if err != nil {
		return nil, fmt.Errorf("transactions.RestoreTransaction: %w", err)
	}

	return tx, nil
}
