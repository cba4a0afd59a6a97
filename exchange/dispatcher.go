// Package exchange builds the one composed service a configured exchange
// exposes: an HTTP child and a WS child, dispatched by request kind and
// wrapped in a bounded buffer so the resulting client is cheaply
// cloneable (it is just a channel handle).
package exchange

import (
	"context"
	"time"

	"github.com/exchg/excli/svc"
	"github.com/exchg/excli/xerrors"
)

// Kind selects which child service a Request is dispatched to.
type Kind int

const (
	Http Kind = iota
	Ws
)

func (k Kind) String() string {
	if k == Ws {
		return "ws"
	}
	return "http"
}

// Request tags its Payload with the child it must be dispatched to.
type Request struct {
	Kind    Kind
	Payload svc.Any
}

// Response carries back whichever child answered.
type Response struct {
	Kind    Kind
	Payload svc.Any
}

// Config holds the construction-time knobs every exchange builder exposes.
type Config struct {
	Variant              string // e.g. "spot", "futures", "options"
	KeepAliveTimeout     time.Duration
	DefaultStreamTimeout time.Duration
	WSRateLimit          int
	WSRateLimitWindow    time.Duration
	ListenKeyRefresh     time.Duration
	BufferCapacity       int
}

// DefaultConfig mirrors the teacher's NewHTTPClient defaults, generalized
// across both children.
func DefaultConfig() Config {
	return Config{
		Variant:              "spot",
		KeepAliveTimeout:     30 * time.Second,
		DefaultStreamTimeout: 60 * time.Second,
		WSRateLimit:          10,
		WSRateLimitWindow:    time.Second,
		ListenKeyRefresh:     30 * time.Minute,
		BufferCapacity:       64,
	}
}

// Client is the single composed service an exchange builder produces.
// Readiness is the conjunction of both children; Call dispatches on
// req.Kind. The whole assembly sits behind a svc.Buffer so cloning the
// client is just copying a channel handle.
type Client struct {
	http svc.Service[svc.Any, svc.Any]
	ws   svc.Service[svc.Any, svc.Any]
	buf  *svc.Buffer[Request, Response]
}

// Connect builds a Client from already-constructed HTTP and WS child
// services (typically an httpx.Channel wrapped in svc.Retry/svc.Timeout,
// and a reconnect.Channel wrapped in svc.RateLimit, respectively, each
// boxed with svc.BoxErase).
func Connect(ctx context.Context, http, ws svc.Service[svc.Any, svc.Any], cfg Config) *Client {
	c := &Client{http: http, ws: ws}
	c.buf = svc.NewBuffer[Request, Response](dispatchService{c}, cfg.BufferCapacity)
	return c
}

// Ready is the conjunction of both children: the assembly only admits
// calls once HTTP and WS are both ready.
func (c *Client) Ready(ctx context.Context) error {
	if err := c.http.Ready(ctx); err != nil {
		return err
	}
	return c.ws.Ready(ctx)
}

// Call dispatches req through the outer buffer.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	return c.buf.Call(ctx, req)
}

// Close drains and stops the outer buffer; queued requests fail with
// Unavailable.
func (c *Client) Close() {
	c.buf.Close()
}

// dispatchService is the svc.Service the outer Buffer actually drives: it
// routes to whichever child req.Kind names.
type dispatchService struct {
	c *Client
}

func (d dispatchService) Ready(ctx context.Context) error {
	return d.c.Ready(ctx)
}

func (d dispatchService) Call(ctx context.Context, req Request) (Response, error) {
	var child svc.Service[svc.Any, svc.Any]
	switch req.Kind {
	case Http:
		child = d.c.http
	case Ws:
		child = d.c.ws
	default:
		return Response{}, xerrors.New(xerrors.Other, "exchange: unknown request kind")
	}

	payload, err := child.Call(ctx, req.Payload)
	if err != nil {
		return Response{}, err
	}
	return Response{Kind: req.Kind, Payload: payload}, nil
}
