// Package settlement owns transaction status transitions. The ledger is
// append-only from the HTTP surface; this reconciler is the only writer of
// status, advancing records on a fabricated timetable that matches the
// "credited within minutes" narrative of the exchange flow.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/horaciolidity/worldcoin-sell/internal/domain/payout"
	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
)

type Settlement struct {
	log          *slog.Logger
	storage      storage.Storage
	pollInterval time.Duration
	verifyDelay  time.Duration
	settleDelay  time.Duration
}

type Config struct {
	logger       *slog.Logger
	pollInterval time.Duration
	verifyDelay  time.Duration
	settleDelay  time.Duration
}

func NewSettlement(store storage.Storage, opts ...Option) *Settlement {
	cfg := &Config{
		logger:       slog.New(&slog.JSONHandler{}),
		pollInterval: 30 * time.Second,
		verifyDelay:  1 * time.Minute,
		settleDelay:  5 * time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Settlement{
		log:          cfg.logger.With(slog.String("module", "settlement")),
		storage:      store,
		pollInterval: cfg.pollInterval,
		verifyDelay:  cfg.verifyDelay,
		settleDelay:  cfg.settleDelay,
	}
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

func WithVerifyDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.verifyDelay = delay
	}
}

func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.settleDelay = delay
	}
}

func (s *Settlement) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.log.Info("Start settlement daemon")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Context done, stopping settlement daemon")

			return nil

		case <-ticker.C:
			if err := s.Process(ctx); err != nil {
				s.log.Error("settlement.Process", slog.Any("error", err))
			}
		}
	}
}

func (s *Settlement) Process(ctx context.Context) error {
	txs, err := s.storage.GetTransactionsByStatus(ctx,
		transactions.StatusPending,
		transactions.StatusVerifying,
	)
	if err != nil {
		return fmt.Errorf("storage.GetTransactionsByStatus: %w", err)
	}

	if len(txs) == 0 {
		return nil
	}

	txCh := transactionGenerator(ctx, txs)

	s.transactionProcessor(ctx, txCh)

	return nil
}

func transactionGenerator(ctx context.Context, txs []*transactions.Transaction) chan transactions.Transaction {
	txCh := make(chan transactions.Transaction)

	go func() {
		defer close(txCh)

		for _, tx := range txs {
			select {
			case <-ctx.Done():
				return
			case txCh <- *tx:
			}
		}
	}()

	return txCh
}

func (s *Settlement) transactionProcessor(ctx context.Context, txCh chan transactions.Transaction) {
	poolSize := 1

	wg := &sync.WaitGroup{}

	for w := 1; w <= poolSize; w++ {
		wg.Add(1)
		go s.transactionProcessorWorker(ctx, wg, txCh)
	}

	wg.Wait()
}

func (s *Settlement) transactionProcessorWorker(ctx context.Context, wg *sync.WaitGroup, txCh chan transactions.Transaction) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Context done, stopping processing")

			return

		case tx, ok := <-txCh:
			if !ok {
				return
			}

			status, advanced := s.Advance(&tx, time.Now())
			if !advanced {
				continue
			}

			if err := s.storage.UpdateTransactionStatus(ctx, tx.ID(), status); err != nil {
				s.log.Error("storage.UpdateTransactionStatus", slog.Any("error", err))

				continue
			}

			s.log.Info("Transaction advanced",
				slog.String("transaction_id", tx.ID().String()),
				slog.String("status", status.String()),
			)
		}
	}
}

// Advance computes the next status of a non-terminal transaction at the
// given instant. A transaction recorded without a configured payout method
// fails at the verify step instead of entering verification.
func (s *Settlement) Advance(tx *transactions.Transaction, now time.Time) (transactions.Status, bool) {
	age := now.Sub(tx.CreatedAt())

	switch tx.Status() {
	case transactions.StatusPending:
		if age < s.verifyDelay {
			return tx.Status(), false
		}

		if tx.Method() == payout.LabelUnconfigured {
			return transactions.StatusFailed, true
		}

		return transactions.StatusVerifying, true

	case transactions.StatusVerifying:
		if age < s.verifyDelay+s.settleDelay {
			return tx.Status(), false
		}

		return transactions.StatusCompleted, true
	}

	return tx.Status(), false
}
