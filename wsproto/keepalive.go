package wsproto

import (
	"context"
	"sync"
	"time"

	"github.com/exchg/excli/xerrors"
)

// KeepAlive wraps a Transport with two deadlines: message-idle (reset on
// any inbound frame) and ping-outstanding (reset only by traffic following
// a client ping). It is transparent to higher layers except for a single
// closed-stream signal: when the idle deadline fires it sends a client
// ping, and if the ping-outstanding deadline then fires with no traffic,
// ReadFrame returns a PingTimeout error and every subsequent call returns
// the same error.
type KeepAlive struct {
	inner       Transport
	idleTimeout time.Duration
	pongTimeout time.Duration

	mu        sync.Mutex
	broken    error
	closeOnce sync.Once

	frames chan ServerFrame
	errs   chan error
	done   chan struct{}
}

// NewKeepAlive starts the background read/ping loop over inner.
func NewKeepAlive(inner Transport, idleTimeout, pongTimeout time.Duration) *KeepAlive {
	k := &KeepAlive{
		inner:       inner,
		idleTimeout: idleTimeout,
		pongTimeout: pongTimeout,
		frames:      make(chan ServerFrame, 64),
		errs:        make(chan error, 1),
		done:        make(chan struct{}),
	}
	go k.loop()
	return k
}

func (k *KeepAlive) loop() {
	defer close(k.frames)

	readErrs := make(chan error, 1)
	read := func() {
		f, err := k.inner.ReadFrame(context.Background())
		if err != nil {
			readErrs <- err
			return
		}
		select {
		case k.frames <- f:
		case <-k.done:
		}
		readErrs <- nil
	}

	idle := time.NewTimer(k.idleTimeout)
	defer idle.Stop()
	var pingOutstanding *time.Timer

	go read()

	for {
		select {
		case <-k.done:
			return

		case err := <-readErrs:
			if err != nil {
				k.fail(xerrors.New(xerrors.TransportIsBroken, err.Error()))
				return
			}
			idle.Reset(k.idleTimeout)
			if pingOutstanding != nil {
				pingOutstanding.Stop()
				pingOutstanding = nil
			}
			go read()

		case <-idle.C:
			if err := k.inner.WritePing(context.Background()); err != nil {
				k.fail(xerrors.New(xerrors.TransportIsBroken, err.Error()))
				return
			}
			pingOutstanding = time.NewTimer(k.pongTimeout)

		case <-pingOutstandingC(pingOutstanding):
			k.fail(xerrors.New(xerrors.PingTimeout, "no traffic after client ping"))
			return
		}
	}
}

// pingOutstandingC returns t.C, or a nil channel (which blocks forever in
// a select) when no ping is outstanding.
func pingOutstandingC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (k *KeepAlive) fail(err error) {
	k.mu.Lock()
	if k.broken == nil {
		k.broken = err
	}
	k.mu.Unlock()
	select {
	case k.errs <- err:
	default:
	}
	k.closeOnce.Do(func() { close(k.done) })
	k.inner.Close()
}

// ReadFrame returns the next inbound application frame. Server-initiated
// pongs observed as traffic reset the idle deadline transparently and are
// not surfaced here; server-initiated pings are answered inline before the
// deadline is reset.
func (k *KeepAlive) ReadFrame(ctx context.Context) (ServerFrame, error) {
	for {
		select {
		case <-ctx.Done():
			return ServerFrame{}, ctx.Err()
		case err := <-k.errs:
			k.errs <- err // keep it available for subsequent callers
			return ServerFrame{}, err
		case f, ok := <-k.frames:
			if !ok {
				k.mu.Lock()
				err := k.broken
				k.mu.Unlock()
				if err == nil {
					err = xerrors.New(xerrors.TransportIsBroken, "keepalive: transport closed")
				}
				return ServerFrame{}, err
			}
			if f.Kind == pongFrameKind {
				continue
			}
			return f, nil
		}
	}
}

func (k *KeepAlive) WriteFrame(ctx context.Context, f RequestFrame) error {
	if err := k.checkBroken(); err != nil {
		return err
	}
	return k.inner.WriteFrame(ctx, f)
}

func (k *KeepAlive) WritePing(ctx context.Context) error {
	return k.inner.WritePing(ctx)
}

func (k *KeepAlive) WritePong(ctx context.Context) error {
	return k.inner.WritePong(ctx)
}

func (k *KeepAlive) checkBroken() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.broken
}

func (k *KeepAlive) Close() error {
	k.mu.Lock()
	if k.broken == nil {
		k.broken = xerrors.New(xerrors.TransportIsBroken, "keepalive: closed")
	}
	k.mu.Unlock()
	k.closeOnce.Do(func() { close(k.done) })
	return k.inner.Close()
}
