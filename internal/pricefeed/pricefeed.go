package pricefeed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/horaciolidity/worldcoin-sell/internal/domain/transactions"
	"github.com/horaciolidity/worldcoin-sell/internal/httpclient"
	"github.com/horaciolidity/worldcoin-sell/internal/pricefeed/bluelytics"
	"github.com/horaciolidity/worldcoin-sell/internal/pricefeed/coingecko"
	"github.com/shopspring/decimal"
)

// Rates is a point-in-time view of the feed. A currency whose upstream has
// never answered stays unresolved rather than reading as zero.
type Rates struct {
	USD       decimal.Decimal
	ARS       decimal.Decimal
	HasUSD    bool
	HasARS    bool
	Loading   bool
	UpdatedAt time.Time
}

// Rate returns the rate for the given target currency and whether it is
// resolved.
func (r Rates) Rate(currency transactions.Currency) (decimal.Decimal, bool) {
	switch currency {
	case transactions.CurrencyUSD:
		return r.USD, r.HasUSD
	case transactions.CurrencyARS:
		return r.ARS, r.HasARS
	}

	return decimal.Decimal{}, false
}

type PriceFeed struct {
	log          *slog.Logger
	assets       *coingecko.Client
	fx           *bluelytics.Client
	assetID      string
	pollInterval time.Duration
	refreshCh    chan struct{}

	mu        sync.RWMutex
	usd       decimal.Decimal
	blue      decimal.Decimal
	ars       decimal.Decimal
	hasUSD    bool
	hasBlue   bool
	loading   bool
	updatedAt time.Time
}

type Config struct {
	logger        *slog.Logger
	assetID       string
	assetPriceURI string
	fxRateURI     string
	pollInterval  time.Duration
}

func NewPriceFeed(opts ...Option) *PriceFeed {
	cfg := &Config{
		logger:        slog.New(&slog.JSONHandler{}),
		assetID:       "worldcoin-wld",
		assetPriceURI: "https://api.coingecko.com",
		fxRateURI:     "https://api.bluelytics.com.ar",
		pollInterval:  60 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	assetClient := coingecko.New(
		coingecko.WithLogger(cfg.logger),
		coingecko.WithClient(httpclient.New(httpclient.WithBaseURL(cfg.assetPriceURI))),
	)

	fxClient := bluelytics.New(
		bluelytics.WithLogger(cfg.logger),
		bluelytics.WithClient(httpclient.New(httpclient.WithBaseURL(cfg.fxRateURI))),
	)

	return &PriceFeed{
		log:          cfg.logger.With(slog.String("module", "pricefeed")),
		assets:       assetClient,
		fx:           fxClient,
		assetID:      cfg.assetID,
		pollInterval: cfg.pollInterval,
		refreshCh:    make(chan struct{}, 1),
		loading:      true,
	}
}

type Option func(c *Config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func WithAssetID(assetID string) Option {
	return func(c *Config) {
		c.assetID = assetID
	}
}

func WithAssetPriceURI(uri string) Option {
	return func(c *Config) {
		c.assetPriceURI = uri
	}
}

func WithFxRateURI(uri string) Option {
	return func(c *Config) {
		c.fxRateURI = uri
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// Run polls both price sources on the configured interval until the context
// is done. A manual Refresh nudges an out-of-band poll; overlapping polls
// are not deduplicated, the last write wins.
func (f *PriceFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	f.log.Info("Start price feed daemon")

	f.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			f.log.Info("Context done, stopping price feed daemon")

			return nil

		case <-ticker.C:
			f.Poll(ctx)

		case <-f.refreshCh:
			f.Poll(ctx)
		}
	}
}

// Refresh requests an out-of-band poll. It never blocks; a refresh already
// queued is enough.
func (f *PriceFeed) Refresh() {
	select {
	case f.refreshCh <- struct{}{}:
	default:
	}
}

// Poll queries both sources once. A failed source keeps its prior value
// (stale-but-available); failures are logged, never surfaced to callers.
func (f *PriceFeed) Poll(ctx context.Context) {
	f.setLoading(true)
	defer f.setLoading(false)

	usd, usdErr := f.assets.AssetPrice(ctx, f.assetID)
	if usdErr != nil {
		f.log.Error("assets.AssetPrice", slog.Any("error", usdErr))
	}

	blue, blueErr := f.fx.ReferenceRate(ctx)
	if blueErr != nil {
		f.log.Error("fx.ReferenceRate", slog.Any("error", blueErr))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if usdErr == nil {
		f.usd = usd.Round(2)
		f.hasUSD = true
	}

	if blueErr == nil {
		f.blue = blue
		f.hasBlue = true
	}

	if f.hasUSD && f.hasBlue {
		f.ars = f.usd.Mul(f.blue).Round(2)
	}

	f.updatedAt = time.Now()
}

// Snapshot returns the last-known rates.
func (f *PriceFeed) Snapshot() Rates {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Rates{
		USD:       f.usd,
		ARS:       f.ars,
		HasUSD:    f.hasUSD,
		HasARS:    f.hasUSD && f.hasBlue,
		Loading:   f.loading,
		UpdatedAt: f.updatedAt,
	}
}

func (f *PriceFeed) setLoading(loading bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loading = loading
}
