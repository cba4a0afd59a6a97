package svc

import (
	"context"
	"time"

	"github.com/exchg/excli/xerrors"
)

// Timeout applies a per-call deadline; expiry yields a TransportTimeout
// error rather than propagating the raw context.DeadlineExceeded.
type Timeout[Req, Resp any] struct {
	inner Service[Req, Resp]
	d     time.Duration
}

// NewTimeout wraps inner with a per-call deadline of d.
func NewTimeout[Req, Resp any](inner Service[Req, Resp], d time.Duration) *Timeout[Req, Resp] {
	return &Timeout[Req, Resp]{inner: inner, d: d}
}

func (t *Timeout[Req, Resp]) Ready(ctx context.Context) error {
	return t.inner.Ready(ctx)
}

func (t *Timeout[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	cctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	resp, err := t.inner.Call(cctx, req)
	if err != nil && cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		var zero Resp
		return zero, xerrors.New(xerrors.TransportTimeout, "call deadline exceeded")
	}
	return resp, err
}
