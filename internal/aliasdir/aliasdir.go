package aliasdir

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/horaciolidity/worldcoin-sell/internal/httpclient"
)

// Status is the advisory outcome of an alias lookup. Verification never
// blocks a payout method save.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// lookupModel mirrors the directory payload: { "results": [...] }.
// Any result at all means the alias resolves.
type lookupModel struct {
	Results []json.RawMessage `json:"results"`
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

// Verify looks the alias up in the directory. Lookup failures degrade to
// StatusError rather than an error return.
func (c *Client) Verify(ctx context.Context, alias string) Status {
	lookupData := new(lookupModel)

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(lookupData).
		SetQueryParam("q", alias).
		Get("/search")
	if err != nil {
		c.log.Error("client.R", slog.Any("error", err))

		return StatusError
	}

	if resp.StatusCode() != http.StatusOK {
		c.log.Error("alias lookup failed", slog.Int("status", resp.StatusCode()))

		return StatusError
	}

	if len(lookupData.Results) == 0 {
		return StatusInvalid
	}

	return StatusValid
}
