// Package svc is the uniform service abstraction every transport and every
// middleware in the client is expressed in terms of: poll-readiness before
// each call, then a call that produces one response. Middleware compose by
// wrapping one Service in another of the same shape.
package svc

import "context"

// Service exposes readiness and call. Readiness must be consulted before
// each call; a Service that is not Ready may still choose to serve Call,
// but middleware built on top of Service always check first.
type Service[Req, Resp any] interface {
	// Ready blocks until the service can admit the next call, or returns an
	// error if it never will (e.g. the connection is permanently broken).
	Ready(ctx context.Context) error
	// Call produces one response for req. Call may only be invoked after a
	// successful Ready.
	Call(ctx context.Context, req Req) (Resp, error)
}

// Func adapts a plain function into a Service whose Ready succeeds unless
// ctx is already done.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f Func[Req, Resp]) Ready(ctx context.Context) error { return ctx.Err() }

func (f Func[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}
