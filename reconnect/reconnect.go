// Package reconnect wraps a connection factory with an auto-reconnecting
// Service: Idle -> Connecting -> Ready -> Failed -> Connecting ..., with
// an explicit Reconnect operation and exponential backoff between
// connection attempts.
package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/exchg/excli/internal/logging"
	"github.com/exchg/excli/svc"
	"github.com/exchg/excli/xerrors"
)

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateReady
	stateFailed
)

// Connector produces a fresh child Service for one connection attempt.
type Connector[Req, Resp any] func(ctx context.Context) (svc.Service[Req, Resp], error)

// Channel is a reconnecting svc.Service[Req, Resp]. A single slot holds
// the current child service; calls route to it when Ready, wait briefly
// when Connecting, and fail-fast with Unavailable when Failed and the
// backoff delay has not yet elapsed.
type Channel[Req, Resp any] struct {
	connect Connector[Req, Resp]
	log     *logging.Logger

	mu          sync.Mutex
	state       connState
	current     svc.Service[Req, Resp]
	backoff     *backoff.Backoff
	failedUntil time.Time
	connecting  chan struct{} // closed when a Connecting attempt resolves
}

// Option configures a Channel.
type Option func(*channelConfig)

type channelConfig struct {
	min, max time.Duration
	log      *logging.Logger
}

// WithBackoff sets the min/max exponential backoff bounds between
// reconnect attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *channelConfig) { c.min, c.max = min, max }
}

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *channelConfig) { c.log = log }
}

// New builds a Channel and immediately starts the first connection
// attempt in the background.
func New[Req, Resp any](connect Connector[Req, Resp], opts ...Option) *Channel[Req, Resp] {
	cfg := channelConfig{min: time.Second, max: 60 * time.Second, log: logging.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	ch := &Channel[Req, Resp]{
		connect: connect,
		log:     cfg.log,
		backoff: &backoff.Backoff{Min: cfg.min, Max: cfg.max, Factor: 2},
	}
	ch.startConnecting()
	return ch
}

// startConnecting transitions to Connecting and kicks off the attempt in
// a goroutine; must be called with ch.mu unlocked.
func (ch *Channel[Req, Resp]) startConnecting() {
	ch.mu.Lock()
	if ch.state == stateConnecting {
		ch.mu.Unlock()
		return
	}
	ch.state = stateConnecting
	done := make(chan struct{})
	ch.connecting = done
	ch.mu.Unlock()

	go func() {
		defer close(done)
		svcImpl, err := ch.connect(context.Background())
		ch.mu.Lock()
		defer ch.mu.Unlock()
		if err != nil {
			ch.state = stateFailed
			ch.failedUntil = time.Now().Add(ch.backoff.Duration())
			ch.log.Errf(err, "reconnect: connection attempt failed")
			return
		}
		ch.state = stateReady
		ch.current = svcImpl
		ch.backoff.Reset()
	}()
}

// Ready blocks until the channel can admit a call, fails fast once Failed
// and the backoff delay has not elapsed, and waits for an in-flight
// Connecting attempt otherwise.
func (ch *Channel[Req, Resp]) Ready(ctx context.Context) error {
	for {
		ch.mu.Lock()
		state := ch.state
		var waitCh chan struct{}
		var failedUntil time.Time
		if state == stateConnecting {
			waitCh = ch.connecting
		}
		if state == stateFailed {
			failedUntil = ch.failedUntil
		}
		ch.mu.Unlock()

		switch state {
		case stateReady:
			return nil
		case stateIdle:
			ch.startConnecting()
		case stateConnecting:
			select {
			case <-waitCh:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case stateFailed:
			if time.Now().Before(failedUntil) {
				return xerrors.New(xerrors.Unavailable, "reconnect: backing off after failed connection")
			}
			ch.startConnecting()
		}
	}
}

// Call routes to the current child service, first calling Ready.
func (ch *Channel[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	if err := ch.Ready(ctx); err != nil {
		return zero, err
	}
	ch.mu.Lock()
	current := ch.current
	ch.mu.Unlock()
	if current == nil {
		return zero, xerrors.New(xerrors.Unavailable, "reconnect: no connection")
	}
	resp, err := current.Call(ctx, req)
	if xerrors.IsConnectionLevel(err) {
		ch.markBroken()
	}
	return resp, err
}

func (ch *Channel[Req, Resp]) markBroken() {
	ch.mu.Lock()
	if ch.state == stateReady {
		ch.state = stateIdle
		ch.current = nil
	}
	ch.mu.Unlock()
}

// Reconnect drops the current connection and starts a fresh attempt
// immediately, bypassing any backoff delay. The dropped service is not
// closed: the channel only releases its reference to it.
func (ch *Channel[Req, Resp]) Reconnect(ctx context.Context) error {
	ch.mu.Lock()
	ch.state = stateIdle
	ch.current = nil
	ch.backoff.Reset()
	ch.mu.Unlock()
	ch.startConnecting()
	return ch.Ready(ctx)
}
