package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	ServerAddr            string        `env:"RUN_ADDRESS"`
	LogLevel              string        `env:"LOG_LEVEL"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	StateFilePath         string        `env:"STATE_FILE"`
	JWTSecretKey          string        `env:"JWT_SECRET_KEY"`
	AssetID               string        `env:"ASSET_ID"`
	AssetPriceURI         string        `env:"ASSET_PRICE_URI"`
	FxRateURI             string        `env:"FX_RATE_URI"`
	AliasDirectoryURI     string        `env:"ALIAS_DIRECTORY_URI"`
	PricePollInterval     time.Duration `env:"PRICE_POLL_INTERVAL"`
	OpenLogin             bool          `env:"OPEN_LOGIN"`
	BalanceCheck          bool          `env:"BALANCE_CHECK"`
	SettlementInterval    time.Duration `env:"SETTLEMENT_INTERVAL"`
	SettlementVerifyDelay time.Duration `env:"SETTLEMENT_VERIFY_DELAY"`
	SettlementSettleDelay time.Duration `env:"SETTLEMENT_SETTLE_DELAY"`
}

func NewConfig() (Config, error) {
	cfg := Config{}

	flag.StringVar(&cfg.ServerAddr, "a", "0.0.0.0:8080", "server listening address [env:RUN_ADDRESS]")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log output level [env:LOG_LEVEL]")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database connection string [env:DATABASE_URI]")
	flag.StringVar(&cfg.StateFilePath, "f", "worldcoin-sell-state.json", "durable state file path, empty for in-memory only [env:STATE_FILE]")
	flag.StringVar(&cfg.JWTSecretKey, "s", "secretkey", "JWT secret to sign tokens [env:JWT_SECRET_KEY]")
	flag.StringVar(&cfg.AssetID, "asset", "worldcoin-wld", "asset identifier in the price source [env:ASSET_ID]")
	flag.StringVar(&cfg.AssetPriceURI, "price-uri", "https://api.coingecko.com", "asset price source URI [env:ASSET_PRICE_URI]")
	flag.StringVar(&cfg.FxRateURI, "fx-uri", "https://api.bluelytics.com.ar", "local currency rate source URI [env:FX_RATE_URI]")
	flag.StringVar(&cfg.AliasDirectoryURI, "alias-uri", "", "alias directory URI, empty disables verification [env:ALIAS_DIRECTORY_URI]")
	flag.DurationVar(&cfg.PricePollInterval, "i", 60*time.Second, "price feed poll interval [env:PRICE_POLL_INTERVAL]")
	flag.BoolVar(&cfg.OpenLogin, "open-login", false, "accept any credentials, provisioning unknown accounts [env:OPEN_LOGIN]")
	flag.BoolVar(&cfg.BalanceCheck, "balance-check", true, "reject exchanges above the user balance [env:BALANCE_CHECK]")
	flag.DurationVar(&cfg.SettlementInterval, "settle-interval", 30*time.Second, "settlement scan interval, 0 disables settlement [env:SETTLEMENT_INTERVAL]")
	flag.DurationVar(&cfg.SettlementVerifyDelay, "verify-delay", 1*time.Minute, "delay before a pending transaction enters verification [env:SETTLEMENT_VERIFY_DELAY]")
	flag.DurationVar(&cfg.SettlementSettleDelay, "settle-delay", 5*time.Minute, "delay before a verifying transaction completes [env:SETTLEMENT_SETTLE_DELAY]")
	flag.Parse()

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env.Parse: %w", err)
	}

	return cfg, nil
}
