package coingecko

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/horaciolidity/worldcoin-sell/internal/httpclient"
	"github.com/shopspring/decimal"
)

var (
	ErrAssetNotFound      = errors.New("asset not found")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrSomethingWentWrong = errors.New("something went wrong")
)

// priceModel mirrors the simple-price payload: { "<asset-id>": { "usd": n } }.
type priceModel map[string]struct {
	USD decimal.Decimal `json:"usd"`
}

type Client struct {
	log    *slog.Logger
	client *resty.Client
}

func New(opts ...Option) *Client {
	c := &Client{
		log:    slog.New(&slog.JSONHandler{}),
		client: httpclient.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type Option func(c *Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

func WithClient(client *resty.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// AssetPrice queries the USD price of the named asset.
func (c *Client) AssetPrice(ctx context.Context, assetID string) (decimal.Decimal, error) {
	priceData := make(priceModel)

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&priceData).
		SetQueryParams(map[string]string{
			"ids":           assetID,
			"vs_currencies": "usd",
		}).
		Get("/api/v3/simple/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("client.R: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		return decimal.Zero, ErrTooManyRequests
	case http.StatusInternalServerError:
		return decimal.Zero, ErrSomethingWentWrong
	}

	price, ok := priceData[assetID]
	if !ok {
		return decimal.Zero, ErrAssetNotFound
	}

	return price.USD, nil
}
