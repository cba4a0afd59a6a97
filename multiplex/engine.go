// Package multiplex is the core of the client: it demultiplexes one
// long-lived WebSocket connection into many independent logical streams
// (subscriptions and unary RPCs), coordinates their subscribe/unsubscribe
// lifecycles, enforces keep-alive, and tears down cleanly when any worker
// fails.
package multiplex

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exchg/excli/internal/logging"
	"github.com/exchg/excli/wsproto"
	"github.com/exchg/excli/xerrors"
)

// RequestKind selects a MultiplexRequest's variant.
type RequestKind int

const (
	// OpenSubStream opens a caller-driven sub-stream: the engine forwards
	// the caller's outgoing frames, rewriting each frame's id to the
	// assigned stream id, and delivers matching inbound frames back.
	OpenSubStream RequestKind = iota
	// SubscribeMainStream attaches a new fan-out listener to an already
	// permanently-open main-stream topic.
	SubscribeMainStream
)

// MultiplexRequest is the engine's single request type.
type MultiplexRequest struct {
	Kind RequestKind
	// Topic is required for both kinds: for OpenSubStream it names the
	// topic the first caller frame must subscribe to (admission hook);
	// for SubscribeMainStream it selects which permanently-open topic to
	// listen to.
	Topic string
	// CallerFrames is the caller-owned channel of outgoing frames for an
	// OpenSubStream request. The first frame must be a Subscribe for
	// Topic. Closing this channel signals caller-side closure, the
	// logical equivalent of dropping the response handle.
	CallerFrames <-chan wsproto.RequestFrame
}

// MultiplexResponse yields the inbound frames associated with one admitted
// request. Close cancels the sub-stream / detaches from the main-stream
// fan-out; it is safe to call more than once.
type MultiplexResponse struct {
	Frames <-chan Item
	close  func()
}

// Close ends the subscription. For a sub-stream this marks the entry
// LocalClosing and enqueues an unsubscribe frame (if it owned a topic);
// for a main-stream attachment it simply detaches the listener.
func (r MultiplexResponse) Close() {
	if r.close != nil {
		r.close()
	}
}

// Config configures an Engine.
type Config struct {
	// MainStreamTopics are subscribed permanently for the life of the
	// connection (e.g. a private order-update channel).
	MainStreamTopics []string
	// DefaultStreamTimeout is the LocalClosing grace period.
	DefaultStreamTimeout time.Duration
	// ZombieInterval is how often the zombie worker sweeps for expired
	// LocalClosing entries. Defaults to DefaultStreamTimeout / 4 if zero.
	ZombieInterval time.Duration
	// IsCloseFrame reports whether a response frame implicitly terminates
	// the sub-stream it correlates to. The policy is exchange-specific and
	// unspecified by default (never closes implicitly).
	IsCloseFrame func(wsproto.ServerFrame) bool
	Logger       *logging.Logger
}

func (c Config) isCloseFrame(f wsproto.ServerFrame) bool {
	if c.IsCloseFrame == nil {
		return false
	}
	return c.IsCloseFrame(f)
}

type admitRequest struct {
	req   MultiplexRequest
	reply chan admitReply
}

type admitReply struct {
	resp MultiplexResponse
	err  error
}

// Engine is the stream multiplex service: svc.Service[MultiplexRequest, MultiplexResponse].
type Engine struct {
	transport wsproto.Transport
	cfg       Config
	log       *logging.Logger

	table     *streamTable
	mainByTop map[string]*mainStream

	sinkCh  chan wsproto.RequestFrame
	admitCh chan admitRequest

	mu      sync.Mutex
	broken  error
	doneCh  chan struct{}
	once    sync.Once
}

// NewEngine starts the sink, stream, and zombie workers over transport and
// returns immediately; the workers run until ctx is cancelled or a fatal
// transport error occurs.
func NewEngine(ctx context.Context, transport wsproto.Transport, cfg Config) *Engine {
	if cfg.ZombieInterval <= 0 {
		cfg.ZombieInterval = cfg.DefaultStreamTimeout / 4
		if cfg.ZombieInterval <= 0 {
			cfg.ZombieInterval = time.Second
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	e := &Engine{
		transport: transport,
		cfg:       cfg,
		log:       log,
		table:     newStreamTable(),
		mainByTop: make(map[string]*mainStream),
		sinkCh:    make(chan wsproto.RequestFrame, 256),
		admitCh:   make(chan admitRequest),
		doneCh:    make(chan struct{}),
	}
	for _, topic := range cfg.MainStreamTopics {
		e.mainByTop[topic] = newMainStream()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sinkWorker(gctx) })
	g.Go(func() error { return e.streamWorker(gctx) })
	g.Go(func() error { return e.zombieWorker(gctx) })

	go func() {
		err := g.Wait()
		e.teardown(err)
	}()

	return e
}

// Ready reports whether the engine can still admit calls.
func (e *Engine) Ready(ctx context.Context) error {
	e.mu.Lock()
	broken := e.broken
	e.mu.Unlock()
	if broken != nil {
		return broken
	}
	return ctx.Err()
}

// Call admits one MultiplexRequest.
func (e *Engine) Call(ctx context.Context, req MultiplexRequest) (MultiplexResponse, error) {
	if err := e.Ready(ctx); err != nil {
		return MultiplexResponse{}, err
	}
	reply := make(chan admitReply, 1)
	select {
	case e.admitCh <- admitRequest{req: req, reply: reply}:
	case <-e.doneCh:
		return MultiplexResponse{}, e.Ready(ctx)
	case <-ctx.Done():
		return MultiplexResponse{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.resp, r.err
	case <-ctx.Done():
		return MultiplexResponse{}, ctx.Err()
	}
}

// streamIDTag formats a stream id as the wire correlation id.
func streamIDTag(id uint64) string { return strconv.FormatUint(id, 10) }

func parseStreamIDTag(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

// sinkWorker drains the single outbound frame queue into the transport.
// Backpressure here (a slow socket) propagates to every per-stream task
// blocked trying to push onto sinkCh.
func (e *Engine) sinkWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-e.sinkCh:
			if err := e.transport.WriteFrame(ctx, f); err != nil {
				return err
			}
		}
	}
}

// streamWorker is the main select loop: admits new streams and routes
// every inbound server frame. It is the only place that observes both
// sources, and it must make progress on whichever fires first.
func (e *Engine) streamWorker(ctx context.Context) error {
	frames := make(chan wsproto.ServerFrame)
	readErr := make(chan error, 1)
	go e.readLoop(ctx, frames, readErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case f := <-frames:
			e.routeInbound(f)
		case ar := <-e.admitCh:
			e.handleAdmit(ctx, ar)
		}
	}
}

func (e *Engine) readLoop(ctx context.Context, out chan<- wsproto.ServerFrame, errc chan<- error) {
	for {
		f, err := e.transport.ReadFrame(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleAdmit(ctx context.Context, ar admitRequest) {
	switch ar.req.Kind {
	case SubscribeMainStream:
		ms, ok := e.mainByTop[ar.req.Topic]
		if !ok {
			ar.reply <- admitReply{err: &ErrUnconfiguredMainStream{Topic: ar.req.Topic}}
			return
		}
		q, cancel := ms.subscribe()
		ar.reply <- admitReply{resp: MultiplexResponse{Frames: q.recv(), close: cancel}}

	case OpenSubStream:
		entry := e.table.insert(e.cfg.DefaultStreamTimeout)
		closeCh := make(chan struct{})
		var closeOnce sync.Once
		closeFn := func() { closeOnce.Do(func() { close(closeCh) }) }
		go e.perStreamTask(entry.id, ar.req.Topic, ar.req.CallerFrames, closeCh)
		ar.reply <- admitReply{resp: MultiplexResponse{Frames: entry.queue.recv(), close: closeFn}}
	}
}

// perStreamTask forwards caller frames (rewriting the id to the assigned
// stream id) to the sink and runs the subscribe admission hook on the
// first frame.
func (e *Engine) perStreamTask(id uint64, topic string, callerFrames <-chan wsproto.RequestFrame, closeCh <-chan struct{}) {
	admitted := false
	for {
		select {
		case <-closeCh:
			e.callerDropped(id)
			return
		case f, ok := <-callerFrames:
			if !ok {
				e.callerDropped(id)
				return
			}
			if !admitted {
				admitted = true
				if f.Op != wsproto.OpSubscribe {
					e.rejectStream(id, ErrEmptyStreamName{})
					return
				}
				if !e.admitTopic(id, topic, f) {
					return
				}
				continue
			}
			f.ID = streamIDTag(id)
			select {
			case e.sinkCh <- f:
			case <-closeCh:
				e.callerDropped(id)
				return
			}
		}
	}
}

// admitTopic runs the subscribe admission hook: reject duplicates,
// otherwise transition Idle->Open and forward the subscribe frame.
func (e *Engine) admitTopic(id uint64, topic string, f wsproto.RequestFrame) bool {
	if !e.table.admitTopic(id, topic) {
		e.rejectStream(id, &ErrStreamSubscribed{Topic: topic})
		return false
	}
	f.ID = streamIDTag(id)
	select {
	case e.sinkCh <- f:
		return true
	case <-e.doneCh:
		return false
	}
}

func (e *Engine) rejectStream(id uint64, err error) {
	if entry, ok := e.table.get(id); ok {
		entry.queue.push(Item{Err: err})
	}
	e.table.remove(id)
}

// callerDropped handles the caller dropping its response handle (or
// closing CallerFrames): a stream owning a topic enters LocalClosing with
// an unsubscribe frame enqueued; one owning no topic (never admitted, or a
// unary RPC already satisfied) is removed immediately.
func (e *Engine) callerDropped(id uint64) {
	entry, ok := e.table.get(id)
	if !ok {
		return
	}
	if entry.topic == "" {
		e.table.remove(id)
		return
	}
	deadline := time.Now().Add(entry.timeout)
	e.table.localClosing(id, deadline)

	unsub := wsproto.RequestFrame{ID: streamIDTag(id), Op: wsproto.OpUnsubscribe}
	select {
	case e.sinkCh <- unsub:
	case <-e.doneCh:
	}
}

// routeInbound dispatches one inbound server frame per the state table in
// 4.F: response frames correlate by id, stream frames resolve a topic and
// try main-stream publish first, then the topic index.
func (e *Engine) routeInbound(f wsproto.ServerFrame) {
	switch f.Kind {
	case wsproto.KindResponse, wsproto.KindError:
		e.routeResponse(f)
	case wsproto.KindStream:
		e.routeStream(f)
	default:
		e.log.Debugf("multiplex: dropping frame of unknown kind")
	}
}

func (e *Engine) routeResponse(f wsproto.ServerFrame) {
	id, ok := parseStreamIDTag(f.RequestID)
	if !ok {
		e.log.Debugf("multiplex: response frame with non-numeric id %q dropped", f.RequestID)
		return
	}
	entry, ok := e.table.get(id)
	if !ok {
		return
	}

	var itemErr error
	if f.Kind == wsproto.KindError {
		itemErr = xerrors.New(xerrors.Api, f.Msg)
	}

	switch entry.state {
	case stateIdle:
		// keep: the caller hasn't admitted a topic yet, ignore.
	case stateOpen:
		entry.queue.push(Item{Frame: f, Err: itemErr})
		if e.cfg.isCloseFrame(f) {
			entry.queue.closeQ()
			e.table.remoteClosed(id, time.Now().Add(e.cfg.DefaultStreamTimeout))
		}
	case stateLocalClosing:
		entry.queue.push(Item{Frame: f, Err: itemErr})
		e.table.remove(id)
	case stateRemoteClosed:
		// The caller's queue closed the instant this stream went
		// RemoteClosed; a frame arriving after that can no longer be
		// delivered through it, so surface the violation to the log
		// instead of silently dropping it.
		violation := &ErrProtocolViolation{
			Detail: fmt.Sprintf("response frame for remote-closed stream %d", id),
		}
		e.log.Errf(violation, "multiplex: protocol violation")
	}
}

func (e *Engine) routeStream(f wsproto.ServerFrame) {
	topic := f.Topic.String()

	if ms, ok := e.mainByTop[topic]; ok {
		ms.publish(Item{Frame: f})
		return
	}

	id, ok := e.table.topicOwner(topic)
	if !ok {
		e.log.Debugf("multiplex: stream frame for unknown topic %q dropped", topic)
		return
	}
	entry, ok := e.table.get(id)
	if !ok {
		return
	}
	entry.queue.push(Item{Frame: f})
}

// zombieWorker periodically walks the StreamTable and tears down streams
// whose LocalClosing or RemoteClosed deadline has elapsed.
func (e *Engine) zombieWorker(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.ZombieInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range e.table.expiredClosing(time.Now()) {
				e.table.remove(id)
			}
		}
	}
}

// teardown runs once, on fatal transport error, ping timeout, peer close,
// or context cancellation: every sender half in the table is dropped,
// propagating TransportIsBroken to every subscriber.
func (e *Engine) teardown(cause error) {
	e.once.Do(func() {
		err := xerrors.Wrap(xerrors.TransportIsBroken, cause)
		e.mu.Lock()
		e.broken = err
		e.mu.Unlock()
		close(e.doneCh)

		for _, entry := range e.table.all() {
			entry.queue.push(Item{Err: err})
		}
		e.table.clear()
		for _, ms := range e.mainByTop {
			ms.closeAll(err)
		}
		e.transport.Close()
		e.log.Debugf("multiplex: connection torn down: %v", cause)
	})
}

// Err returns the engine's terminal error, or nil while it is still alive.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.broken
}

// Done is closed once the engine has torn down.
func (e *Engine) Done() <-chan struct{} { return e.doneCh }
