package leadapi

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
)

const (
	defaultLoginInterval = 500 * time.Millisecond
	defaultLoginTimeout  = 5 * time.Minute
)

// PollOption configures WaitForLogin.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
}

// WithPollInterval overrides the session poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WaitForLogin polls the session until it reports logged in or the context
// expires. Failed polls are logged and retried on the next tick.
func WaitForLogin(ctx context.Context, client Client, opts ...PollOption) (*model.SessionInfo, error) {
	cfg := pollConfig{interval: defaultLoginInterval, timeout: defaultLoginTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	for {
		info, err := client.Session(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			zap.L().Debug("leadapi: session poll failed", zap.Error(err))
		case err == nil && info.LoggedIn:
			return info, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "leadapi: wait for login")
		case <-time.After(cfg.interval):
		}
	}
}
