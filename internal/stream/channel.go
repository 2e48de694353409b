package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// State is the lifecycle state of a Channel.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateClosed    State = "closed"
)

// Channel is one live search stream. Events arrive in order on Events(), which
// is closed after the terminal event, a transport failure, or Close.
type Channel struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	ctx    context.Context
	body   io.ReadCloser

	mu    sync.Mutex
	state State
	err   error
}

func newChannel(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser) *Channel {
	ch := &Channel{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		cancel: cancel,
		ctx:    ctx,
		body:   body,
		state:  StateStreaming,
	}
	go ch.run()
	return ch
}

// Events returns the ordered event stream.
func (ch *Channel) Events() <-chan Event {
	return ch.events
}

// Done is closed once the reader has released the connection.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// State returns the current lifecycle state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Err returns why the channel ended: nil after done, *AppError after an error
// event, *ConnectionError after a transport failure, ErrClosed after Close.
func (ch *Channel) Err() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.err
}

// Close stops the stream and waits for the connection to be released. Events
// already delivered stay delivered. Close is idempotent.
func (ch *Channel) Close() {
	ch.cancel()
	<-ch.done
}

// finish moves the channel to a final state once; later calls are ignored.
func (ch *Channel) finish(state State, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != StateStreaming {
		return
	}
	ch.state = state
	ch.err = err
}

func (ch *Channel) run() {
	defer close(ch.done)
	defer close(ch.events)
	defer ch.cancel()
	defer ch.body.Close() //nolint:errcheck

	log := zap.L().With(zap.String("component", "stream"))
	frames := newFrameReader(ch.body)

	for {
		data, err := frames.Next()
		if errors.Is(err, errFrameTooLarge) {
			log.Warn("stream: skipping oversized frame", zap.Int("limit", maxFrameBytes))
			continue
		}
		if err != nil {
			switch {
			case ch.ctx.Err() != nil:
				ch.finish(StateClosed, ErrClosed)
			case errors.Is(err, io.EOF):
				ch.finish(StateFailed, &ConnectionError{Err: io.ErrUnexpectedEOF})
			default:
				ch.finish(StateFailed, &ConnectionError{Err: err})
			}
			return
		}

		ev, err := Decode(data)
		if errors.Is(err, ErrUnknownEvent) {
			log.Debug("stream: skipping unknown event", zap.Error(err))
			continue
		}
		if err != nil {
			log.Warn("stream: skipping malformed event", zap.Error(err), zap.ByteString("data", truncate(data, 256)))
			continue
		}

		select {
		case ch.events <- ev:
		case <-ch.ctx.Done():
			ch.finish(StateClosed, ErrClosed)
			return
		}

		switch ev.Kind {
		case KindDone:
			ch.finish(StateDone, nil)
			return
		case KindError:
			ch.finish(StateFailed, &AppError{Message: ev.Message, URL: ev.URL, Phase: ev.Phase})
			return
		}
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
