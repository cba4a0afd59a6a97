// Package rpc is the tagged correlation layer: it turns a transport that
// can send requests and separately deliver inbound items into a
// call/response Service by tagging each outgoing request and dispatching
// each inbound item to the responder waiting on the matching tag. It is
// used for HTTP-style request/response over a WebSocket, and to wrap the
// multiplex layer so a subscribe-ack can resolve the caller's future even
// though the data path stays streaming.
package rpc

import (
	"context"
	"sync"

	"github.com/exchg/excli/xerrors"
)

// Sender sends one outgoing request over the underlying transport.
type Sender[Req any] func(ctx context.Context, req Req) error

// Client maintains a tag -> responder map: on Call it assigns/derives a
// tag from the request, registers a responder, and sends the frame; the
// owner of the read loop calls Deliver for every inbound item, which
// resolves and removes the matching responder.
type Client[Tag comparable, Req, Resp any] struct {
	send  Sender[Req]
	tagOf func(Req) Tag

	mu      sync.Mutex
	pending map[Tag]chan result[Resp]
	failed  error
}

type result[Resp any] struct {
	resp Resp
	err  error
}

// New builds a Client. tagOf derives the correlation tag from an outgoing
// request; the transport owner is responsible for deriving the same tag
// from each inbound item and calling Deliver.
func New[Tag comparable, Req, Resp any](send Sender[Req], tagOf func(Req) Tag) *Client[Tag, Req, Resp] {
	return &Client[Tag, Req, Resp]{
		send:    send,
		tagOf:   tagOf,
		pending: make(map[Tag]chan result[Resp]),
	}
}

// Call assigns/derives a tag from req, registers a responder, sends the
// frame, and blocks for the matching response or ctx cancellation.
func (c *Client[Tag, Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	tag := c.tagOf(req)
	ch := make(chan result[Resp], 1)

	c.mu.Lock()
	if c.failed != nil {
		err := c.failed
		c.mu.Unlock()
		return zero, err
	}
	c.pending[tag] = ch
	c.mu.Unlock()

	if err := c.send(ctx, req); err != nil {
		c.mu.Lock()
		delete(c.pending, tag)
		c.mu.Unlock()
		return zero, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, tag)
		c.mu.Unlock()
		return zero, ctx.Err()
	}
}

// Deliver finishes the responder matching tag with resp, if one is
// outstanding, and drops it. A tag with no outstanding responder (a
// duplicate or unsolicited frame) is silently ignored.
func (c *Client[Tag, Req, Resp]) Deliver(tag Tag, resp Resp, err error) {
	c.mu.Lock()
	ch, ok := c.pending[tag]
	if ok {
		delete(c.pending, tag)
	}
	c.mu.Unlock()
	if ok {
		ch <- result[Resp]{resp: resp, err: err}
	}
}

// Fail fails every outstanding responder with err and marks the client
// failed: subsequent Calls return err immediately without sending.
func (c *Client[Tag, Req, Resp]) Fail(err error) {
	if err == nil {
		err = xerrors.New(xerrors.TransportIsBroken, "rpc: transport failed")
	}
	c.mu.Lock()
	c.failed = err
	pending := c.pending
	c.pending = make(map[Tag]chan result[Resp])
	c.mu.Unlock()

	var zero Resp
	for _, ch := range pending {
		ch <- result[Resp]{resp: zero, err: err}
	}
}
