package svc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/exchg/excli/xerrors"
)

type countingService struct {
	calls int
	fn    func(ctx context.Context, req int) (int, error)
}

func (c *countingService) Ready(ctx context.Context) error { return ctx.Err() }

func (c *countingService) Call(ctx context.Context, req int) (int, error) {
	c.calls++
	return c.fn(ctx, req)
}

func TestFuncAdaptsPlainFunction(t *testing.T) {
	f := Func[int, int](func(ctx context.Context, req int) (int, error) { return req * 2, nil })
	resp, err := f.Call(context.Background(), 21)
	if err != nil || resp != 42 {
		t.Fatalf("expected (42, nil), got (%d, %v)", resp, err)
	}
}

func TestRateLimitAdmitsNPerWindowThenBlocks(t *testing.T) {
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) { return req, nil }}
	rl := NewRateLimit[int, int](inner, 2, 100*time.Millisecond)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := rl.Ready(context.Background()); err != nil {
			t.Fatalf("Ready: %v", err)
		}
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("first two admits should not block")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Ready(ctx); err == nil {
		t.Fatal("expected third Ready within window to block until timeout")
	}
}

func TestRetryRetriesTemporaryErrorsAndStops(t *testing.T) {
	attempts := 0
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, xerrors.New(xerrors.RateLimited, "try again")
		}
		return req, nil
	}}
	r := NewRetry[int, int](inner, Bounded(5, time.Millisecond))

	resp, err := r.Call(context.Background(), 7)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp != 7 {
		t.Fatalf("expected 7, got %d", resp)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryFatalErrors(t *testing.T) {
	attempts := 0
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) {
		attempts++
		return 0, xerrors.New(xerrors.KeyError, "bad credentials")
	}}
	r := NewRetry[int, int](inner, Bounded(5, time.Millisecond))

	if _, err := r.Call(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a fatal error, got %d", attempts)
	}
}

func TestBufferSerializesAndRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) {
		<-release
		return req, nil
	}}
	b := NewBuffer[int, int](inner, 1)
	defer b.Close()

	done := make(chan struct{})
	go func() {
		b.Call(context.Background(), 1)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond) // let the worker pick up job 1

	// queue capacity 1: the worker already drained the queue to start job
	// 1, so one more call should be enqueued without blocking.
	secondDone := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), 2)
		secondDone <- err
	}()
	time.Sleep(10 * time.Millisecond)

	// a third call should now see a full queue and fail fast.
	if _, err := b.Call(context.Background(), 3); err == nil {
		t.Fatal("expected Unavailable when buffer queue is full")
	}

	close(release)
	<-done
	<-secondDone
}

func TestTimeoutTranslatesDeadlineExceeded(t *testing.T) {
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	to := NewTimeout[int, int](inner, 10*time.Millisecond)

	_, err := to.Call(context.Background(), 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var xe *xerrors.Error
	if !errors.As(err, &xe) || xe.Kind != xerrors.TransportTimeout {
		t.Fatalf("expected TransportTimeout, got %v", err)
	}
}

func TestMapErrorTranslatesEveryError(t *testing.T) {
	sentinel := errors.New("translated")
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) {
		return 0, errors.New("native error")
	}}
	m := NewMapError[int, int](inner, func(error) error { return sentinel })

	_, err := m.Call(context.Background(), 1)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
}

func TestBoxEraseRejectsWrongRequestType(t *testing.T) {
	inner := &countingService{fn: func(ctx context.Context, req int) (int, error) { return req, nil }}
	boxed := NewBoxErase[int, int](inner)

	if _, err := boxed.Call(context.Background(), "not an int"); err == nil {
		t.Fatal("expected type mismatch error")
	}

	resp, err := boxed.Call(context.Background(), 5)
	if err != nil || resp != 5 {
		t.Fatalf("expected (5, nil), got (%v, %v)", resp, err)
	}
}
