package svc

import (
	"context"
	"sync"

	"github.com/exchg/excli/xerrors"
)

// Buffer decouples the caller from a single worker goroutine that serially
// drives inner, with a bounded queue of N in-flight requests. A call made
// when the queue is full surfaces Unavailable rather than blocking
// indefinitely. Dropping the Buffer via Close fails all still-queued
// requests with Unavailable.
type Buffer[Req, Resp any] struct {
	inner Service[Req, Resp]
	in    chan bufferJob[Req, Resp]

	closeOnce sync.Once
	closed    chan struct{}
}

type bufferJob[Req, Resp any] struct {
	ctx   context.Context
	req   Req
	reply chan bufferResult[Resp]
}

type bufferResult[Resp any] struct {
	resp Resp
	err  error
}

// NewBuffer starts a worker goroutine and returns a Buffer with a queue of
// capacity n.
func NewBuffer[Req, Resp any](inner Service[Req, Resp], n int) *Buffer[Req, Resp] {
	b := &Buffer[Req, Resp]{
		inner:  inner,
		in:     make(chan bufferJob[Req, Resp], n),
		closed: make(chan struct{}),
	}
	go b.worker()
	return b
}

func (b *Buffer[Req, Resp]) worker() {
	for job := range b.in {
		select {
		case <-b.closed:
			job.reply <- bufferResult[Resp]{err: xerrors.New(xerrors.Unavailable, "buffer closed")}
			continue
		default:
		}
		if err := b.inner.Ready(job.ctx); err != nil {
			job.reply <- bufferResult[Resp]{err: err}
			continue
		}
		resp, err := b.inner.Call(job.ctx, job.req)
		job.reply <- bufferResult[Resp]{resp: resp, err: err}
	}
}

// Close stops accepting new work and fails every job still waiting in the
// queue with Unavailable; a job the worker is already running completes
// normally. No further Call will be admitted.
func (b *Buffer[Req, Resp]) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		close(b.in)
	})
}

func (b *Buffer[Req, Resp]) Ready(ctx context.Context) error {
	select {
	case <-b.closed:
		return xerrors.New(xerrors.Unavailable, "buffer closed")
	default:
	}
	return ctx.Err()
}

func (b *Buffer[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	reply := make(chan bufferResult[Resp], 1)
	job := bufferJob[Req, Resp]{ctx: ctx, req: req, reply: reply}

	select {
	case <-b.closed:
		return zero, xerrors.New(xerrors.Unavailable, "buffer closed")
	default:
	}

	select {
	case b.in <- job:
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return zero, xerrors.New(xerrors.Unavailable, "buffer full")
	}

	select {
	case res := <-reply:
		return res.resp, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
