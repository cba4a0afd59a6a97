package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/exchg/excli/xerrors"
)

type getOrderReq struct {
	ID string
}

type orderResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func newTestChannel(t *testing.T, srv *httptest.Server) *Channel[getOrderReq, orderResp] {
	t.Helper()
	build := func(req getOrderReq) (string, string, url.Values, any, error) {
		return http.MethodGet, "/orders/" + req.ID, nil, nil, nil
	}
	decode := func(status int, header http.Header, body []byte) (orderResp, error) {
		var out orderResp
		err := json.Unmarshal(body, &out)
		return out, err
	}
	return New[getOrderReq, orderResp](srv.URL, build, decode)
}

func TestChannelCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"1","status":"open"}`))
	}))
	defer srv.Close()

	ch := newTestChannel(t, srv)
	resp, err := ch.Call(context.Background(), getOrderReq{ID: "1"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.ID != "1" || resp.Status != "open" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChannelClassifiesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":1,"msg":"rate limited"}`))
	}))
	defer srv.Close()

	ch := newTestChannel(t, srv)
	_, err := ch.Call(context.Background(), getOrderReq{ID: "1"})
	if xerrors.KindOf(err) != xerrors.RateLimited {
		t.Fatalf("expected RateLimited, got %v (%v)", xerrors.KindOf(err), err)
	}
	if !xerrors.IsTemporary(err) {
		t.Fatal("expected RateLimited to be temporary")
	}
}

func TestChannelClassifiesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ch := newTestChannel(t, srv)
	_, err := ch.Call(context.Background(), getOrderReq{ID: "1"})
	if xerrors.KindOf(err) != xerrors.Unavailable {
		t.Fatalf("expected Unavailable, got %v (%v)", xerrors.KindOf(err), err)
	}
}

func TestChannelClassifiesGenericApiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":400,"msg":"bad request"}`))
	}))
	defer srv.Close()

	ch := newTestChannel(t, srv)
	_, err := ch.Call(context.Background(), getOrderReq{ID: "1"})
	if xerrors.KindOf(err) != xerrors.Api {
		t.Fatalf("expected Api, got %v (%v)", xerrors.KindOf(err), err)
	}
	if xerrors.IsTemporary(err) {
		t.Fatal("expected generic Api error to be permanent")
	}
}
