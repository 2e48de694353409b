// Package notion exports lead sets to a Notion database.
package notion

import (
	"context"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRatePerSec is Notion's documented average request rate.
const DefaultRatePerSec = 3

// Client is the part of the Notion API that lead export needs: listing the
// pages already in the lead database and adding one page per new lead.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	rps     float64
	retries int
	http    *http.Client
}

// WithRateLimit sets the request rate shared by all calls. Zero or less
// disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *clientConfig) { c.rps = rps }
}

// WithRetries sets how many times notionapi retries a 429 response.
func WithRetries(n int) ClientOption {
	return func(c *clientConfig) { c.retries = n }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.http = hc }
}

type notionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the integration token. Calls are throttled
// to DefaultRatePerSec unless WithRateLimit says otherwise.
func NewClient(token string, opts ...ClientOption) Client {
	cfg := clientConfig{rps: DefaultRatePerSec}
	for _, opt := range opts {
		opt(&cfg)
	}

	var apiOpts []notionapi.ClientOption
	if cfg.http != nil {
		apiOpts = append(apiOpts, notionapi.WithHTTPClient(cfg.http))
	}
	if cfg.retries > 0 {
		apiOpts = append(apiOpts, notionapi.WithRetry(cfg.retries))
	}

	c := &notionClient{api: notionapi.NewClient(notionapi.Token(token), apiOpts...)}
	if cfg.rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.rps), max(int(cfg.rps), 1))
	}
	return c
}

func (c *notionClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "notion: rate limit")
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query lead database %s", dbID)
	}
	return resp, nil
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: create lead page")
	}
	return page, nil
}
