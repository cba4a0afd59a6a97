package wsproto

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/exchg/excli/xerrors"
)

func TestParseServerFrameResponse(t *testing.T) {
	raw := []byte(`{"id":"1","event":"subscribe"}`)
	f, err := ParseServerFrame(raw)
	if err != nil {
		t.Fatalf("ParseServerFrame: %v", err)
	}
	if f.Kind != KindResponse || f.RequestID != "1" || f.Event != "subscribe" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseServerFrameError(t *testing.T) {
	raw := []byte(`{"event":"error","code":"400","msg":"bad request"}`)
	f, err := ParseServerFrame(raw)
	if err != nil {
		t.Fatalf("ParseServerFrame: %v", err)
	}
	if f.Kind != KindError || f.Code != "400" || f.Msg != "bad request" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseServerFrameStream(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"tickers","instId":"BTC-USD"},"action":"update","data":[1,2,3]}`)
	f, err := ParseServerFrame(raw)
	if err != nil {
		t.Fatalf("ParseServerFrame: %v", err)
	}
	if f.Kind != KindStream || f.Topic.String() != "tickers:BTC-USD" || f.Action != "update" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestParseServerFrameUnknown(t *testing.T) {
	raw := []byte(`{"foo":"bar"}`)
	f, err := ParseServerFrame(raw)
	if err != nil {
		t.Fatalf("ParseServerFrame: %v", err)
	}
	if f.Kind != KindUnknown {
		t.Fatalf("expected KindUnknown, got %+v", f)
	}
}

func TestEncodeRequestRoundTrips(t *testing.T) {
	f := RequestFrame{ID: "7", Op: OpSubscribe, Args: json.RawMessage(`{"channel":"trades"}`)}
	data, err := EncodeRequest(f)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	var decoded RequestFrame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != "7" || decoded.Op != OpSubscribe {
		t.Fatalf("unexpected round-trip: %+v", decoded)
	}
}

// fakeTransport is an in-memory Transport for exercising KeepAlive without
// a live socket.
type fakeTransport struct {
	mu       sync.Mutex
	inbound  chan ServerFrame
	readErr  error
	pings    int
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan ServerFrame, 16)}
}

func (f *fakeTransport) push(frame ServerFrame) { f.inbound <- frame }

func (f *fakeTransport) WriteFrame(ctx context.Context, fr RequestFrame) error { return nil }

func (f *fakeTransport) ReadFrame(ctx context.Context) (ServerFrame, error) {
	f.mu.Lock()
	err := f.readErr
	f.mu.Unlock()
	if err != nil {
		return ServerFrame{}, err
	}
	select {
	case fr, ok := <-f.inbound:
		if !ok {
			return ServerFrame{}, errors.New("fake transport closed")
		}
		return fr, nil
	case <-ctx.Done():
		return ServerFrame{}, ctx.Err()
	}
}

func (f *fakeTransport) WritePing(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) WritePong(ctx context.Context) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestKeepAlivePassesThroughFrames(t *testing.T) {
	inner := newFakeTransport()
	k := NewKeepAlive(inner, time.Second, time.Second)
	defer k.Close()

	inner.push(ServerFrame{Kind: KindResponse, RequestID: "1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := k.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.RequestID != "1" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestKeepAliveSendsPingAfterIdle(t *testing.T) {
	inner := newFakeTransport()
	k := NewKeepAlive(inner, 20*time.Millisecond, time.Second)
	defer k.Close()

	time.Sleep(60 * time.Millisecond)
	inner.mu.Lock()
	pings := inner.pings
	inner.mu.Unlock()
	if pings == 0 {
		t.Fatal("expected at least one ping after idle timeout")
	}
}

func TestKeepAliveFailsOnPingTimeout(t *testing.T) {
	inner := newFakeTransport()
	k := NewKeepAlive(inner, 10*time.Millisecond, 10*time.Millisecond)
	defer k.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := k.ReadFrame(ctx)
	if err == nil {
		t.Fatal("expected ping timeout error")
	}
	if xerrors.KindOf(err) != xerrors.PingTimeout {
		t.Fatalf("expected PingTimeout, got %v", err)
	}
}
