// Package finder owns one search session at a time: it opens the stream,
// folds its events into the result set, drives progress and falls back to a
// single request when streaming is unavailable.
package finder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/progress"
	"github.com/sells-group/lead-finder/internal/reconcile"
	"github.com/sells-group/lead-finder/internal/stream"
	"github.com/sells-group/lead-finder/pkg/leadapi"
)

var (
	// ErrSuperseded is returned to a search or enrichment overtaken by a newer search.
	ErrSuperseded = eris.New("finder: superseded by a newer search")

	// ErrEnrichFailed is returned when re-enriching a lead fails.
	ErrEnrichFailed = eris.New("finder: enrichment failed")

	// ErrLeadNotFound is returned when reprocessing a URL that is not in the result set.
	ErrLeadNotFound = eris.New("finder: lead not found")
)

// EnrichFailedMessage is stored on a lead whose enrichment call failed.
const EnrichFailedMessage = "Failed to process lead"

// Streamer opens streaming search channels.
type Streamer interface {
	Open(ctx context.Context, req stream.Request) (*stream.Channel, error)
}

// State is a point-in-time copy of the current search.
type State struct {
	model.Search
	Progress int `json:"progress" yaml:"progress"`
}

// Option configures the Controller.
type Option func(*Controller)

// WithMaxResults sets the max_results sent with each streaming search.
func WithMaxResults(n int) Option {
	return func(c *Controller) {
		c.maxResults = n
	}
}

// WithDomains sets the domain scope sent with each streaming search.
func WithDomains(domains []string) Option {
	return func(c *Controller) {
		c.domains = domains
	}
}

// WithProgressOptions sets the options of the per-search progress estimator.
func WithProgressOptions(opts ...progress.Option) Option {
	return func(c *Controller) {
		c.progressOpts = opts
	}
}

// WithOnUpdate registers a callback invoked with a snapshot after every state change.
func WithOnUpdate(fn func(State)) Option {
	return func(c *Controller) {
		c.onUpdate = fn
	}
}

// WithOnProgress registers a callback invoked with every progress value of the
// current search. It runs synchronously and must not call back into the Controller.
func WithOnProgress(fn func(int)) Option {
	return func(c *Controller) {
		c.onProgress = fn
	}
}

// WithReprocessLimits bounds ReprocessAll to concurrency calls in flight and
// perSecond calls per second. Zero leaves the respective limit off.
func WithReprocessLimits(concurrency int, perSecond float64) Option {
	return func(c *Controller) {
		c.concurrency = concurrency
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller is the single owner of one result set and at most one open channel.
type Controller struct {
	streamer Streamer
	api      leadapi.Client

	maxResults   int
	domains      []string
	progressOpts []progress.Option
	onUpdate     func(State)
	onProgress   func(int)
	concurrency  int
	limiter      *rate.Limiter
	now          func() time.Time

	gen atomic.Uint64

	mu      sync.Mutex
	search  model.Search
	set     reconcile.Set
	est     *progress.Estimator
	channel *stream.Channel
	cancel  context.CancelFunc
}

// New creates a Controller.
func New(streamer Streamer, api leadapi.Client, opts ...Option) *Controller {
	c := &Controller{
		streamer:    streamer,
		api:         api,
		concurrency: 4,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.search = model.Search{Status: model.SearchStatusIdle}
	c.est = progress.New()
	return c
}

// Search runs one search to its terminal state. Any previous channel is
// closed before the new one opens. The returned State is final for this
// search; the error is the reason it failed, if it did.
func (c *Controller) Search(ctx context.Context, query string) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen := c.begin(query, cancel)
	log := zap.L().With(zap.String("search_id", c.Snapshot().ID), zap.String("query", query))

	req := stream.Request{Query: query, MaxResults: c.maxResults, Domains: c.domains}
	ch, err := c.streamer.Open(ctx, req)
	switch {
	case errors.Is(err, stream.ErrStreamingUnavailable):
		log.Info("finder: streaming unavailable, falling back to single request")
		return c.fallback(ctx, gen, query)
	case err != nil:
		log.Warn("finder: open stream failed", zap.Error(err))
		return c.finish(gen, err)
	}

	if !c.attach(gen, ch) {
		ch.Close()
		return c.Snapshot(), ErrSuperseded
	}
	log.Debug("finder: stream open")

	for ev := range ch.Events() {
		if !c.apply(gen, ev) {
			ch.Close()
			return c.Snapshot(), ErrSuperseded
		}
	}

	err = ch.Err()
	if err != nil {
		log.Warn("finder: search ended with error", zap.Error(err))
	} else {
		log.Info("finder: search done", zap.Int("leads", c.Snapshot().Len()))
	}
	return c.finish(gen, err)
}

// Len returns the number of leads in the state.
func (s State) Len() int {
	return len(s.Leads)
}

// begin closes any previous search and installs an empty one.
func (c *Controller) begin(query string, cancel context.CancelFunc) uint64 {
	c.mu.Lock()
	prevCh, prevCancel := c.channel, c.cancel

	gen := c.gen.Add(1)
	c.channel = nil
	c.cancel = cancel
	c.set = reconcile.Set{}
	c.est.Reset()
	c.est = c.newEstimator(gen)
	c.search = model.Search{
		ID:         uuid.NewString(),
		Query:      query,
		MaxResults: c.maxResults,
		Domains:    c.domains,
		Status:     model.SearchStatusStreaming,
		Mode:       model.SearchModeStream,
		Leads:      []model.Lead{},
		CreatedAt:  c.now().UTC(),
	}
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevCh != nil {
		prevCh.Close()
	}
	c.notify()
	return gen
}

func (c *Controller) newEstimator(gen uint64) *progress.Estimator {
	opts := append([]progress.Option{}, c.progressOpts...)
	if c.onProgress != nil {
		opts = append(opts, progress.WithOnChange(func(v int) {
			if c.gen.Load() == gen {
				c.onProgress(v)
			}
		}))
	}
	return progress.New(opts...)
}

func (c *Controller) attach(gen uint64, ch *stream.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return false
	}
	c.channel = ch
	return true
}

// apply folds one event into the state. It reports false when gen is stale.
func (c *Controller) apply(gen uint64, ev stream.Event) bool {
	c.mu.Lock()
	if c.gen.Load() != gen {
		c.mu.Unlock()
		return false
	}

	c.set = reconcile.Fold(c.set, ev)
	switch ev.Kind {
	case stream.KindProgress, stream.KindItem:
		if ev.Percent != nil {
			_ = c.est.Report(*ev.Percent)
		}
	case stream.KindDone:
		// Simulate has already completed the estimator in fallback mode.
		if c.search.Mode != model.SearchModeFallback {
			if err := c.est.Complete(); err != nil {
				zap.L().Warn("finder: complete progress", zap.Error(err))
			}
		}
	case stream.KindError:
		c.est.Reset()
	}
	c.mu.Unlock()

	c.notify()
	return true
}

func (c *Controller) fallback(ctx context.Context, gen uint64, query string) (State, error) {
	c.mu.Lock()
	if c.gen.Load() != gen {
		c.mu.Unlock()
		return c.Snapshot(), ErrSuperseded
	}
	c.search.Mode = model.SearchModeFallback
	est := c.est
	c.mu.Unlock()
	c.notify()

	var leads []model.Lead
	err := est.Simulate(ctx, func(ctx context.Context) error {
		var err error
		leads, err = c.api.Scrape(ctx, query)
		return err
	})
	if err == nil {
		if leads == nil {
			leads = []model.Lead{}
		}
		if !c.apply(gen, stream.Event{Kind: stream.KindDone, Final: &leads}) {
			return c.Snapshot(), ErrSuperseded
		}
	} else if ctx.Err() != nil {
		err = stream.ErrClosed
	}
	return c.finish(gen, err)
}

// finish records the terminal status of search gen.
func (c *Controller) finish(gen uint64, err error) (State, error) {
	c.mu.Lock()
	if c.gen.Load() != gen {
		c.mu.Unlock()
		return c.Snapshot(), ErrSuperseded
	}

	finished := c.now().UTC()
	c.search.FinishedAt = &finished
	c.channel = nil
	c.cancel = nil
	if err == nil {
		c.search.Status = model.SearchStatusDone
		c.search.Error = ""
	} else {
		c.search.Status = model.SearchStatusFailed
		c.search.Error = err.Error()
		c.est.Reset()
	}
	c.mu.Unlock()

	c.notify()
	if err != nil {
		return c.Snapshot(), eris.Wrap(err, "finder: search")
	}
	return c.Snapshot(), nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.search
	s.Leads = c.set.Leads()
	if len(c.search.Domains) > 0 {
		s.Domains = append([]string(nil), c.search.Domains...)
	}
	return State{Search: s, Progress: c.est.Value()}
}

// Load replaces the state with a stored search, closing any open channel.
func (c *Controller) Load(s model.Search) {
	c.begin(s.Query, nil)
	c.mu.Lock()
	c.search = s
	c.set = reconcile.New(s.Leads)
	c.mu.Unlock()
	c.notify()
}

// Reset closes any open channel and discards the result set.
func (c *Controller) Reset() {
	c.begin("", nil)
	c.mu.Lock()
	c.search = model.Search{Status: model.SearchStatusIdle}
	c.mu.Unlock()
	c.notify()
}

// Close closes the open channel, if any. Events already folded stay in the state.
func (c *Controller) Close() {
	c.mu.Lock()
	ch, cancel := c.channel, c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
}

func (c *Controller) notify() {
	if c.onUpdate == nil {
		return
	}
	c.onUpdate(c.Snapshot())
}
