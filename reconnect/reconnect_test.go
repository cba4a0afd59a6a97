package reconnect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exchg/excli/svc"
)

type stubService struct {
	fn func(ctx context.Context, req int) (int, error)
}

func (s stubService) Ready(ctx context.Context) error { return ctx.Err() }

func (s stubService) Call(ctx context.Context, req int) (int, error) { return s.fn(ctx, req) }

func TestChannelConnectsAndServesCalls(t *testing.T) {
	connect := func(ctx context.Context) (svc.Service[int, int], error) {
		return stubService{fn: func(ctx context.Context, req int) (int, error) { return req * 2, nil }}, nil
	}
	ch := New[int, int](connect, WithBackoff(time.Millisecond, 10*time.Millisecond))

	resp, err := ch.Call(context.Background(), 21)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp != 42 {
		t.Fatalf("expected 42, got %d", resp)
	}
}

func TestChannelRetriesConnectionAfterFailure(t *testing.T) {
	var attempts int32
	connect := func(ctx context.Context) (svc.Service[int, int], error) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			return nil, errors.New("first attempt fails")
		}
		return stubService{fn: func(ctx context.Context, req int) (int, error) { return req, nil }}, nil
	}
	ch := New[int, int](connect, WithBackoff(5*time.Millisecond, 10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var lastErr error
	for {
		if _, err := ch.Call(ctx, 1); err == nil {
			break
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			t.Fatalf("channel never recovered, last error: %v", lastErr)
		case <-time.After(5 * time.Millisecond):
		}
	}
	if atomic.LoadInt32(&attempts) < 2 {
		t.Fatalf("expected at least 2 connection attempts, got %d", attempts)
	}
}

func TestReconnectForcesFreshAttempt(t *testing.T) {
	var attempts int32
	connect := func(ctx context.Context) (svc.Service[int, int], error) {
		atomic.AddInt32(&attempts, 1)
		return stubService{fn: func(ctx context.Context, req int) (int, error) { return req, nil }}, nil
	}
	ch := New[int, int](connect, WithBackoff(time.Millisecond, 10*time.Millisecond))

	if err := ch.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	before := atomic.LoadInt32(&attempts)

	if err := ch.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	after := atomic.LoadInt32(&attempts)
	if after <= before {
		t.Fatalf("expected Reconnect to trigger a new attempt, before=%d after=%d", before, after)
	}
}
