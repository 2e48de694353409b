package finder

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/reconcile"
)

// Reprocess re-enriches the lead stored under url and merges the result into
// its slot. On failure the lead's error field is set to EnrichFailedMessage
// and ErrEnrichFailed is returned; other leads and the search are untouched.
func (c *Controller) Reprocess(ctx context.Context, url string) (model.Lead, error) {
	gen := c.gen.Load()
	c.mu.Lock()
	lead, ok := c.set.Lookup(url)
	c.mu.Unlock()
	if !ok {
		return model.Lead{}, eris.Wrap(ErrLeadNotFound, url)
	}

	log := zap.L().With(zap.String("url", url))
	updated, err := c.api.Process(ctx, lead)

	c.mu.Lock()
	if c.gen.Load() != gen {
		c.mu.Unlock()
		return model.Lead{}, ErrSuperseded
	}
	// A done event may have replaced the set while the request was in flight.
	current, ok := c.set.Lookup(url)
	if !ok {
		c.mu.Unlock()
		log.Debug("finder: lead gone before enrichment finished")
		return model.Lead{}, eris.Wrap(ErrLeadNotFound, url)
	}
	if err != nil || updated == nil {
		log.Warn("finder: enrichment failed", zap.Error(err))
		c.set = reconcile.Merge(c.set, model.Lead{URL: current.URL, Error: model.String(EnrichFailedMessage)})
		out, _ := c.set.Lookup(url)
		c.mu.Unlock()
		c.notify()
		if err == nil {
			err = eris.New("empty response")
		}
		return out, eris.Wrap(ErrEnrichFailed, fmt.Sprintf("finder: process %s: %v", url, err))
	}

	merged := current.Merge(*updated)
	merged.URL = current.URL
	if updated.Error == nil {
		merged.Error = nil
	}
	c.set = reconcile.Put(c.set, merged)
	out, _ := c.set.Lookup(url)
	c.mu.Unlock()

	c.notify()
	log.Debug("finder: lead reprocessed")
	return out, nil
}

// ReprocessAll re-enriches every lead with a URL, bounded by the configured
// concurrency and rate. Per-lead failures do not stop the others; when any
// occur the returned error wraps ErrEnrichFailed.
func (c *Controller) ReprocessAll(ctx context.Context) error {
	var urls []string
	for _, l := range c.Snapshot().Leads {
		if k := l.Key(); k != "" {
			urls = append(urls, k)
		}
	}

	var failed atomic.Int64
	g := new(errgroup.Group)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}

	for _, u := range urls {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				_ = g.Wait()
				return eris.Wrap(err, "finder: reprocess all")
			}
		} else if ctx.Err() != nil {
			_ = g.Wait()
			return eris.Wrap(ctx.Err(), "finder: reprocess all")
		}

		g.Go(func() error {
			_, err := c.Reprocess(ctx, u)
			switch {
			case err == nil:
			case eris.Is(err, ErrSuperseded):
				return err
			default:
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "finder: reprocess all")
	}
	if n := failed.Load(); n > 0 {
		return eris.Wrapf(ErrEnrichFailed, "finder: %d of %d leads failed", n, len(urls))
	}
	return nil
}
