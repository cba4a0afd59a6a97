package adapt

import (
	"context"
	"errors"
	"testing"
)

type fakeTransport struct {
	calls int
	fn    func(ctx context.Context, req int) (int, error)
}

func (f *fakeTransport) Ready(ctx context.Context) error { return nil }

func (f *fakeTransport) Call(ctx context.Context, req int) (int, error) {
	f.calls++
	return f.fn(ctx, req)
}

func TestServiceAppliesConversionsAroundTransport(t *testing.T) {
	transport := &fakeTransport{fn: func(ctx context.Context, req int) (int, error) {
		return req * 2, nil
	}}
	adaptor := AdaptorFuncs[string, string, int, int]{
		From: func(r string) (int, error) { return len(r), nil },
		Into: func(resp int) (string, error) {
			out := make([]byte, resp)
			for i := range out {
				out[i] = 'x'
			}
			return string(out), nil
		},
	}
	svc := New[string, string, int, int](transport, adaptor)

	resp, err := svc.Call(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp != "xxxxxxxxxx" {
		t.Fatalf("expected 10 x's (5*2), got %q", resp)
	}
}

func TestServicePropagatesFromRequestError(t *testing.T) {
	wantErr := errors.New("bad request")
	transport := &fakeTransport{fn: func(ctx context.Context, req int) (int, error) {
		return req, nil
	}}
	adaptor := AdaptorFuncs[string, string, int, int]{
		From: func(r string) (int, error) { return 0, wantErr },
		Into: func(resp int) (string, error) { return "", nil },
	}
	svc := New[string, string, int, int](transport, adaptor)

	if _, err := svc.Call(context.Background(), "x"); !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if transport.calls != 0 {
		t.Fatalf("expected transport not called when conversion fails, got %d calls", transport.calls)
	}
}

func TestIdentityIsNoOp(t *testing.T) {
	var id Identity[int, string]
	req, err := id.FromRequest(42)
	if err != nil || req != 42 {
		t.Fatalf("expected (42, nil), got (%d, %v)", req, err)
	}
	resp, err := id.IntoResponse("ok")
	if err != nil || resp != "ok" {
		t.Fatalf("expected (ok, nil), got (%q, %v)", resp, err)
	}
}

func TestChainComposesTwoAdaptors(t *testing.T) {
	outer := AdaptorFuncs[string, string, int, int]{
		From: func(r string) (int, error) { return len(r), nil },
		Into: func(resp int) (string, error) { return "len=" + itoa(resp), nil },
	}
	inner := AdaptorFuncs[int, int, int, int]{
		From: func(r int) (int, error) { return r + 1, nil },
		Into: func(resp int) (int, error) { return resp - 1, nil },
	}
	chained := Chain[string, string, int, int, int, int](outer, inner)

	transport := &fakeTransport{fn: func(ctx context.Context, req int) (int, error) {
		return req * 10, nil
	}}
	svc := New[string, string, int, int](transport, chained)

	resp, err := svc.Call(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	// "abc" -> outer.From -> 3 -> inner.From -> 4 -> transport -> 40 -> inner.Into -> 39 -> outer.Into -> "len=39"
	if resp != "len=39" {
		t.Fatalf("expected len=39, got %q", resp)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
