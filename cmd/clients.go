package main

import (
	"context"
	"net/http"
	"net/http/cookiejar"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/finder"
	"github.com/sells-group/lead-finder/internal/progress"
	"github.com/sells-group/lead-finder/internal/store"
	"github.com/sells-group/lead-finder/internal/stream"
	"github.com/sells-group/lead-finder/pkg/leadapi"
	"github.com/sells-group/lead-finder/pkg/notion"
	sfpkg "github.com/sells-group/lead-finder/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// backend holds the clients that talk to the lead backend. Both share one
// cookie jar so the login session applies to streaming and REST calls.
type backend struct {
	api      leadapi.Client
	streamer *stream.Client
}

func newBackend(baseURL string, streaming bool) (*backend, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "cookie jar")
	}

	rest := &http.Client{Jar: jar, Timeout: cfg.API.Timeout()}
	// Streaming sessions run as long as the backend keeps sending events.
	long := &http.Client{Jar: jar}

	return &backend{
		api: leadapi.NewClient(leadapi.WithBaseURL(baseURL), leadapi.WithHTTPClient(rest)),
		streamer: stream.NewClient(baseURL,
			stream.WithHTTPClient(long),
			stream.WithStreaming(streaming),
		),
	}, nil
}

func (b *backend) controller(opts ...finder.Option) *finder.Controller {
	base := []finder.Option{
		finder.WithMaxResults(cfg.Search.MaxResults),
		finder.WithDomains(cfg.Search.Domains),
		finder.WithProgressOptions(
			progress.WithTick(cfg.Progress.Tick()),
			progress.WithSettle(cfg.Progress.Settle()),
		),
		finder.WithReprocessLimits(cfg.Reprocess.Concurrency, cfg.Reprocess.RatePerSec),
	}
	return finder.New(b.streamer, b.api, append(base, opts...)...)
}

func initNotion() (notion.Client, error) {
	if err := cfg.Validate("notion"); err != nil {
		return nil, err
	}
	return notion.NewClient(cfg.Notion.Token,
		notion.WithRateLimit(cfg.Notion.RatePerSec),
		notion.WithRetries(cfg.Notion.Retries),
	), nil
}

func initSalesforce() (sfpkg.Client, error) {
	if err := cfg.Validate("salesforce"); err != nil {
		return nil, err
	}
	return sfpkg.Connect(sfpkg.JWTConfig(cfg.Salesforce), sfpkg.WithRateLimit(5))
}
