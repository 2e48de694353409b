// Package progress derives a 0-100 completion value for one search, either from
// percentages reported by the server or simulated while a single request runs.
package progress

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultTick   = 400 * time.Millisecond
	defaultSettle = time.Second

	simulatedStart = 5
	simulatedCap   = 90
	minIncrement   = 2
	maxIncrement   = 10
)

// ErrModeMixed is returned when server-driven and simulated progress are used
// on the same Estimator.
var ErrModeMixed = eris.New("progress: server and simulated modes cannot be mixed")

// Mode is how an Estimator derives its value. It is fixed by first use.
type Mode int

const (
	ModeUnset Mode = iota
	ModeServer
	ModeSimulated
)

// Option configures an Estimator.
type Option func(*Estimator)

// WithTick sets the simulated tick interval.
func WithTick(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithSettle sets how long 100 stays visible before the value returns to 0.
func WithSettle(d time.Duration) Option {
	return func(e *Estimator) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// WithRand sets the source of simulated increments.
func WithRand(r *rand.Rand) Option {
	return func(e *Estimator) {
		e.rng = r
	}
}

// WithOnChange registers a callback invoked with every new value, in order.
// The callback must not call back into the Estimator.
func WithOnChange(fn func(int)) Option {
	return func(e *Estimator) {
		e.onChange = fn
	}
}

// Estimator tracks the progress of one search.
type Estimator struct {
	tick     time.Duration
	settle   time.Duration
	rng      *rand.Rand
	onChange func(int)

	mu     sync.Mutex
	mode   Mode
	value  int
	resetT *time.Timer
	resetN int
}

// New creates an Estimator at 0.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		tick:   defaultTick,
		settle: defaultSettle,
	}
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e
}

// Value returns the current value in [0,100].
func (e *Estimator) Value() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Mode returns the mode fixed by first use.
func (e *Estimator) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Report records a server-reported percent, clamped to [0,100] and rounded.
func (e *Estimator) Report(pct float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.claim(ModeServer); err != nil {
		return err
	}
	e.set(Clamp(pct))
	return nil
}

// Complete forces 100 and schedules the return to 0 after the settle delay.
func (e *Estimator) Complete() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.claim(ModeServer); err != nil {
		return err
	}
	e.finish()
	return nil
}

// Simulate runs fn while advancing a simulated value: it starts at 5 and grows
// by a random 2-10 points per tick, capped at 90. Once fn returns the ticker
// is stopped; on success the value jumps to 100 and returns to 0 after the
// settle delay, on failure it returns to 0 at once. fn's error is returned.
func (e *Estimator) Simulate(ctx context.Context, fn func(context.Context) error) error {
	e.mu.Lock()
	if err := e.claim(ModeSimulated); err != nil {
		e.mu.Unlock()
		return err
	}
	e.stopReset()
	e.set(simulatedStart)
	e.mu.Unlock()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.mu.Lock()
				next := min(e.value+minIncrement+e.rng.IntN(maxIncrement-minIncrement+1), simulatedCap)
				e.set(next)
				e.mu.Unlock()
			}
		}
	}()

	err := fn(ctx)
	close(stop)
	wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.stopReset()
		e.set(0)
		return err
	}
	e.finish()
	return nil
}

// Reset stops any pending settle timer and returns the value to 0. The mode
// stays fixed.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopReset()
	e.set(0)
}

// Clamp rounds pct and bounds it to [0,100]. NaN is 0.
func Clamp(pct float64) int {
	if math.IsNaN(pct) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(pct))))
}

func (e *Estimator) claim(m Mode) error {
	if e.mode == ModeUnset {
		e.mode = m
		return nil
	}
	if e.mode != m {
		return ErrModeMixed
	}
	return nil
}

// finish sets 100 and arms the settle timer. Callers hold mu.
func (e *Estimator) finish() {
	e.stopReset()
	e.set(100)
	n := e.resetN
	e.resetT = time.AfterFunc(e.settle, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.resetN != n {
			return
		}
		e.resetT = nil
		e.set(0)
	})
}

func (e *Estimator) stopReset() {
	e.resetN++
	if e.resetT != nil {
		e.resetT.Stop()
		e.resetT = nil
	}
}

func (e *Estimator) set(v int) {
	if v == e.value {
		return
	}
	e.value = v
	if e.onChange != nil {
		e.onChange(v)
	}
}
