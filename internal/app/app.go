package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/horaciolidity/worldcoin-sell/internal/aliasdir"
	"github.com/horaciolidity/worldcoin-sell/internal/config"
	"github.com/horaciolidity/worldcoin-sell/internal/httpclient"
	"github.com/horaciolidity/worldcoin-sell/internal/logger"
	"github.com/horaciolidity/worldcoin-sell/internal/pricefeed"
	"github.com/horaciolidity/worldcoin-sell/internal/server"
	"github.com/horaciolidity/worldcoin-sell/internal/server/router"
	"github.com/horaciolidity/worldcoin-sell/internal/settlement"
	"github.com/horaciolidity/worldcoin-sell/internal/storage"
	"github.com/horaciolidity/worldcoin-sell/internal/storage/localstore"
	"github.com/horaciolidity/worldcoin-sell/internal/storage/pgstorage"
)

type Application struct {
	log        *slog.Logger
	store      storage.Storage
	server     *server.Server
	pricefeed  *pricefeed.PriceFeed
	settlement *settlement.Settlement
}

func New() (*Application, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config.NewConfig: %w", err)
	}

	logLevel, err := logger.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger.ParseLogLevel: %w", err)
	}

	logg := logger.NewLogger(
		logger.WithLevel(logLevel),
		logger.WithFormat(logger.LogFormatJSON),
		logger.WithAddSource(false),
	)

	store, err := newStorage(cfg, logg)
	if err != nil {
		return nil, fmt.Errorf("newStorage: %w", err)
	}

	feed := pricefeed.NewPriceFeed(
		pricefeed.WithLogger(logg),
		pricefeed.WithAssetID(cfg.AssetID),
		pricefeed.WithAssetPriceURI(cfg.AssetPriceURI),
		pricefeed.WithFxRateURI(cfg.FxRateURI),
		pricefeed.WithPollInterval(cfg.PricePollInterval),
	)

	routerOpts := []router.Option{
		router.WithLogger(logg),
		router.WithSecret([]byte(cfg.JWTSecretKey)),
		router.WithRateSource(feed),
		router.WithOpenLogin(cfg.OpenLogin),
		router.WithBalanceCheck(cfg.BalanceCheck),
	}

	if cfg.AliasDirectoryURI != "" {
		verifier := aliasdir.New(
			aliasdir.WithLogger(logg),
			aliasdir.WithClient(httpclient.New(httpclient.WithBaseURL(cfg.AliasDirectoryURI))),
		)

		routerOpts = append(routerOpts, router.WithAliasVerifier(verifier))
	}

	srv := server.NewServer(
		router.NewRouter(store, routerOpts...),
		server.WithServerAddr(cfg.ServerAddr),
		server.WithLogger(logg),
	)

	app := &Application{
		log:       logg,
		store:     store,
		server:    srv,
		pricefeed: feed,
	}

	if cfg.SettlementInterval > 0 {
		app.settlement = settlement.NewSettlement(store,
			settlement.WithLogger(logg),
			settlement.WithPollInterval(cfg.SettlementInterval),
			settlement.WithVerifyDelay(cfg.SettlementVerifyDelay),
			settlement.WithSettleDelay(cfg.SettlementSettleDelay),
		)
	}

	return app, nil
}

func newStorage(cfg config.Config, logg *slog.Logger) (storage.Storage, error) {
	if cfg.DatabaseURI == "" {
		return storage.NewStorage(localstore.NewStorage(
			localstore.WithLogger(logg),
			localstore.WithFilePath(cfg.StateFilePath),
		)), nil
	}

	pgstore, err := pgstorage.NewStorage(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("pgstorage.NewStorage: %w", err)
	}

	if err := pgstore.Bootstrap(context.Background()); err != nil {
		return nil, fmt.Errorf("pgstore.Bootstrap: %w", err)
	}

	return storage.NewStorage(pgstore), nil
}

func (a *Application) Run() error {
	errChan := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := a.server.Start(); err != nil {
			errChan <- fmt.Errorf("server.Start: %w", err)
		}
	}()

	go func() {
		if err := a.pricefeed.Run(ctx); err != nil {
			errChan <- fmt.Errorf("pricefeed.Run: %w", err)
		}
	}()

	if a.settlement != nil {
		go func() {
			if err := a.settlement.Run(ctx); err != nil {
				errChan <- fmt.Errorf("settlement.Run: %w", err)
			}
		}()
	}

	// Graceful shutdown handler
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case err := <-errChan:
			return err

		case <-quit:
			a.log.Info("Gracefully shutting down application...")

			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.log.Error("server.Shutdown", slog.Any("error", err))
			}

			if err := a.store.Close(); err != nil {
				a.log.Error("store.Close", slog.Any("error", err))
			}

			return nil
		}
	}
}
