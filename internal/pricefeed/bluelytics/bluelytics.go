package bluelytics

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

var ErrSomethingWentWrong = errors.New("something went wrong")

// ratesModel mirrors the latest-rates payload: { "blue": { "value_avg": n } }.
type ratesModel struct {
	Blue struct {
		ValueAvg decimal.Decimal `json:"value_avg"`
	} `json:"blue"`
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

// ReferenceRate queries the informal USD reference rate (blue average).
func (c *Client) ReferenceRate(ctx context.Context) (decimal.Decimal, error) {
	ratesData := new(ratesModel)

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(ratesData).
		Get("/v2/latest")
	if err != nil {
		return decimal.Zero, fmt.Errorf("client.R: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, ErrSomethingWentWrong
	}

	return ratesData.Blue.ValueAvg, nil
}
