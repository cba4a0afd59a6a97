package svc

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/exchg/excli/xerrors"
)

// RetryPolicy selects how many times Retry will attempt a temporary
// failure before giving up.
type RetryPolicy struct {
	// maxAttempts is the bound on total attempts (including the first);
	// zero means unbounded (the Always policy).
	maxAttempts int
	maxWait     time.Duration
}

// Bounded retries up to times additional attempts (times+1 total calls),
// sleeping min(2^attempt, maxWait) seconds between attempts.
func Bounded(times int, maxWait time.Duration) RetryPolicy {
	return RetryPolicy{maxAttempts: times + 1, maxWait: maxWait}
}

// Always retries indefinitely, capping backoff at maxWait.
func Always(maxWait time.Duration) RetryPolicy {
	return RetryPolicy{maxAttempts: 0, maxWait: maxWait}
}

func (p RetryPolicy) exhausted(attempt int) bool {
	return p.maxAttempts > 0 && attempt >= p.maxAttempts
}

// Retry classifies errors as temporary or fatal via xerrors.IsTemporary and
// retries temporary failures with exponential backoff, replaying the
// identical request each time. It must wrap Timeout, not the other way
// around, so that a per-call timeout is itself retried.
type Retry[Req, Resp any] struct {
	inner  Service[Req, Resp]
	policy RetryPolicy
}

// NewRetry wraps inner with the given retry policy.
func NewRetry[Req, Resp any](inner Service[Req, Resp], policy RetryPolicy) *Retry[Req, Resp] {
	return &Retry[Req, Resp]{inner: inner, policy: policy}
}

func (r *Retry[Req, Resp]) Ready(ctx context.Context) error {
	return r.inner.Ready(ctx)
}

func (r *Retry[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    r.policy.maxWait,
		Factor: 2,
		Jitter: false,
	}

	var zero Resp
	attempt := 0
	for {
		attempt++
		if err := r.inner.Ready(ctx); err != nil {
			return zero, err
		}
		resp, err := r.inner.Call(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !xerrors.IsTemporary(err) || r.policy.exhausted(attempt) {
			return zero, err
		}

		wait := b.Duration()
		if wait > r.policy.maxWait {
			wait = r.policy.maxWait
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
