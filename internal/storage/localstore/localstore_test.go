package localstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/payout"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/users"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()

	opts = append([]Option{WithLogger(discardLogger())}, opts...)

	s := NewStorage(opts...)

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})

	return s
}

func mustUser(t *testing.T, email string) *users.User {
	t.Helper()

	usr, err := users.NewUser(email, "", "secret")
	if err != nil {
		t.Fatalf("users.NewUser returned error: %v", err)
	}

	return usr
}

func mustTransaction(t *testing.T, email string, createdAt time.Time, status transactions.Status) *transactions.Transaction {
	t.Helper()

	tx, err := transactions.RestoreTransaction(
		uuid.New(), email,
		decimal.NewFromInt(10), transactions.CurrencyUSD, decimal.RequireFromString("24.50"),
		"juanperez.mp", status, createdAt, "",
	)
	if err != nil {
		t.Fatalf("transactions.RestoreTransaction returned error: %v", err)
	}

	return tx
}

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	usr := mustUser(t, "juan@example.com")

	if err := s.CreateUser(ctx, usr); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if err := s.CreateUser(ctx, usr); !errors.Is(err, storage.ErrUserAlreadyExists) {
		t.Fatalf("duplicate CreateUser error = %v, want %v", err, storage.ErrUserAlreadyExists)
	}

	got, err := s.GetUser(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}

	if got.Email() != usr.Email() || got.Name() != usr.Name() {
		t.Fatalf("GetUser returned %s/%s, want %s/%s", got.Email(), got.Name(), usr.Email(), usr.Name())
	}

	usr.SetBalance(decimal.RequireFromString("25.5"))

	if err := s.UpdateUser(ctx, usr); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}

	got, err = s.GetUser(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}

	if got.Balance().StringFixed(1) != "25.5" {
		t.Fatalf("balance after update = %s, want 25.5", got.Balance())
	}

	if _, err := s.GetUser(ctx, "ghost@example.com"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("GetUser for unknown user error = %v, want %v", err, storage.ErrUserNotFound)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if _, err := s.GetSession(ctx); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("empty GetSession error = %v, want %v", err, storage.ErrSessionNotFound)
	}

	first := mustUser(t, "first@example.com")
	if err := s.SaveSession(ctx, first); err != nil {
		t.Fatalf("SaveSession returned error: %v", err)
	}

	// A second login replaces the snapshot: one active session at a time.
	second := mustUser(t, "second@example.com")
	if err := s.SaveSession(ctx, second); err != nil {
		t.Fatalf("SaveSession returned error: %v", err)
	}

	got, err := s.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}

	if got.Email() != "second@example.com" {
		t.Fatalf("session email = %s, want second@example.com", got.Email())
	}

	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession returned error: %v", err)
	}

	if _, err := s.GetSession(ctx); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("cleared GetSession error = %v, want %v", err, storage.ErrSessionNotFound)
	}
}

func TestPayoutMethodRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if _, err := s.GetPayoutMethod(ctx, "juan@example.com"); !errors.Is(err, storage.ErrPayoutMethodNotFound) {
		t.Fatalf("GetPayoutMethod error = %v, want %v", err, storage.ErrPayoutMethodNotFound)
	}

	// Wallet-only configuration survives with the other fields still empty.
	method := payout.NewMethod("", "", "0xabc")
	if err := s.SavePayoutMethod(ctx, "juan@example.com", method); err != nil {
		t.Fatalf("SavePayoutMethod returned error: %v", err)
	}

	got, err := s.GetPayoutMethod(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("GetPayoutMethod returned error: %v", err)
	}

	if got.Alias() != "" || got.BankID() != "" || got.WalletAddress() != "0xabc" {
		t.Fatalf("round-tripped method = %q/%q/%q", got.Alias(), got.BankID(), got.WalletAddress())
	}

	if _, err := s.GetPayoutMethod(ctx, "other@example.com"); !errors.Is(err, storage.ErrPayoutMethodNotFound) {
		t.Fatalf("method leaked across users: error = %v", err)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	base := time.Now().Add(-time.Hour)

	older := mustTransaction(t, "juan@example.com", base, transactions.StatusPending)
	newer := mustTransaction(t, "juan@example.com", base.Add(time.Minute), transactions.StatusPending)
	other := mustTransaction(t, "other@example.com", base, transactions.StatusPending)

	for _, tx := range []*transactions.Transaction{older, newer, other} {
		if err := s.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendTransaction returned error: %v", err)
		}
	}

	txs, err := s.ListTransactions(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}

	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}

	if txs[0].ID() != newer.ID() || txs[1].ID() != older.ID() {
		t.Fatal("transactions are not listed newest-first")
	}

	// Reading back must not reorder or mutate anything.
	again, err := s.ListTransactions(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}

	if len(again) != 2 || again[0].ID() != txs[0].ID() {
		t.Fatal("repeated listing changed the result")
	}
}

func TestTransactionStatusUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	pending := mustTransaction(t, "juan@example.com", time.Now(), transactions.StatusPending)
	completed := mustTransaction(t, "juan@example.com", time.Now(), transactions.StatusCompleted)

	for _, tx := range []*transactions.Transaction{pending, completed} {
		if err := s.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("AppendTransaction returned error: %v", err)
		}
	}

	open, err := s.GetTransactionsByStatus(ctx, transactions.StatusPending, transactions.StatusVerifying)
	if err != nil {
		t.Fatalf("GetTransactionsByStatus returned error: %v", err)
	}

	if len(open) != 1 || open[0].ID() != pending.ID() {
		t.Fatalf("got %d open transactions, want the pending one", len(open))
	}

	if err := s.UpdateTransactionStatus(ctx, pending.ID(), transactions.StatusVerifying); err != nil {
		t.Fatalf("UpdateTransactionStatus returned error: %v", err)
	}

	open, err = s.GetTransactionsByStatus(ctx, transactions.StatusVerifying)
	if err != nil {
		t.Fatalf("GetTransactionsByStatus returned error: %v", err)
	}

	if len(open) != 1 || open[0].ID() != pending.ID() {
		t.Fatal("status update not visible")
	}

	err = s.UpdateTransactionStatus(ctx, uuid.New(), transactions.StatusFailed)
	if !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Fatalf("UpdateTransactionStatus for unknown id error = %v, want %v", err, storage.ErrTransactionNotFound)
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s := NewStorage(WithLogger(discardLogger()), WithFilePath(path))

	usr := mustUser(t, "juan@example.com")
	if err := s.CreateUser(ctx, usr); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if err := s.SaveSession(ctx, usr); err != nil {
		t.Fatalf("SaveSession returned error: %v", err)
	}

	tx := mustTransaction(t, "juan@example.com", time.Now(), transactions.StatusPending)
	if err := s.AppendTransaction(ctx, tx); err != nil {
		t.Fatalf("AppendTransaction returned error: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened := newTestStorage(t, WithFilePath(path))

	if _, err := reopened.GetUser(ctx, "juan@example.com"); err != nil {
		t.Fatalf("GetUser after restart returned error: %v", err)
	}

	session, err := reopened.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession after restart returned error: %v", err)
	}

	if session.Email() != "juan@example.com" {
		t.Fatalf("restored session email = %s", session.Email())
	}

	txs, err := reopened.ListTransactions(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("ListTransactions after restart returned error: %v", err)
	}

	if len(txs) != 1 || txs[0].ID() != tx.ID() {
		t.Fatal("transactions lost across restart")
	}
}

func TestCorruptStateLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("os.WriteFile returned error: %v", err)
	}

	s := newTestStorage(t, WithFilePath(path))

	if _, err := s.GetSession(ctx); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("GetSession error = %v, want %v", err, storage.ErrSessionNotFound)
	}

	txs, err := s.ListTransactions(ctx, "juan@example.com")
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}

	if len(txs) != 0 {
		t.Fatalf("got %d transactions from corrupt state, want 0", len(txs))
	}
}

func TestSchemaVersionMismatchLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	stale := `{"schema_version": 99, "users": {"juan@example.com": {"email": "juan@example.com"}}}`
	if err := os.WriteFile(path, []byte(stale), 0o600); err != nil {
		t.Fatalf("os.WriteFile returned error: %v", err)
	}

	s := newTestStorage(t, WithFilePath(path))

	if _, err := s.GetUser(ctx, "juan@example.com"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("GetUser error = %v, want %v", err, storage.ErrUserNotFound)
	}
}
