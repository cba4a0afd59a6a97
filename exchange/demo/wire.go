package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/exchg/excli/adapt"
	"github.com/exchg/excli/exchange"
	"github.com/exchg/excli/exchange/demo/server"
	"github.com/exchg/excli/exchange/demo/wireproto"
	"github.com/exchg/excli/multiplex"
	"github.com/exchg/excli/reconnect"
	"github.com/exchg/excli/rpc"
	"github.com/exchg/excli/svc"
	"github.com/exchg/excli/transport/httpx"
	"github.com/exchg/excli/wsproto"
	"github.com/exchg/excli/xerrors"
)

// rawHTTPRequest/rawHTTPResponse is the one wire shape every demo HTTP
// operation shares; a single httpx.Channel is built against it once, and
// the five typed operations below each get their own adapt.Service
// converting to and from it — one transport, many request types, the
// composition adapt's doc comment names.
type rawHTTPRequest struct {
	path string
	body any
}

type rawHTTPResponse struct {
	body []byte
}

func newRawHTTPChannel(baseURL string) *httpx.Channel[rawHTTPRequest, rawHTTPResponse] {
	return httpx.New[rawHTTPRequest, rawHTTPResponse](baseURL,
		func(req rawHTTPRequest) (string, string, url.Values, any, error) {
			return http.MethodPost, req.path, nil, req.body, nil
		},
		func(status int, header http.Header, body []byte) (rawHTTPResponse, error) {
			return rawHTTPResponse{body: body}, nil
		},
	)
}

// adaptOp wraps the shared raw transport in an adapt.Service converting a
// single typed (R, RespR) operation to/from rawHTTPRequest/rawHTTPResponse,
// then erases its type so the router below can hold every operation side
// by side.
func adaptOp[R, RespR any](transport svc.Service[rawHTTPRequest, rawHTTPResponse], path string) svc.Service[svc.Any, svc.Any] {
	adaptor := adapt.AdaptorFuncs[R, RespR, rawHTTPRequest, rawHTTPResponse]{
		From: func(r R) (rawHTTPRequest, error) {
			return rawHTTPRequest{path: path, body: r}, nil
		},
		Into: func(resp rawHTTPResponse) (RespR, error) {
			var out RespR
			err := json.Unmarshal(resp.body, &out)
			return out, err
		},
	}
	return svc.NewBoxErase[R, RespR](adapt.New[R, RespR, rawHTTPRequest, rawHTTPResponse](transport, adaptor))
}

// httpRouter type-switches on the request's concrete wireproto type and
// dispatches to the matching adapted operation, combining the five
// per-operation adapt.Service instances into the single
// svc.Service[svc.Any, svc.Any] exchange.Connect expects for its HTTP
// child.
type httpRouter struct {
	instruments svc.Service[svc.Any, svc.Any]
	place       svc.Service[svc.Any, svc.Any]
	cancel      svc.Service[svc.Any, svc.Any]
	get         svc.Service[svc.Any, svc.Any]
	candles     svc.Service[svc.Any, svc.Any]
}

func newHTTPRouter(baseURL string) *httpRouter {
	raw := newRawHTTPChannel(baseURL)
	return &httpRouter{
		instruments: adaptOp[wireproto.InstrumentsRequest, wireproto.InstrumentsResponse](raw, "/instruments"),
		place:       adaptOp[wireproto.PlaceOrderRequest, wireproto.PlaceOrderResponse](raw, "/orders/place"),
		cancel:      adaptOp[wireproto.CancelOrderRequest, wireproto.CancelOrderResponse](raw, "/orders/cancel"),
		get:         adaptOp[wireproto.GetOrderRequest, wireproto.GetOrderResponse](raw, "/orders/get"),
		candles:     adaptOp[wireproto.CandlesRequest, wireproto.CandlesResponse](raw, "/candles"),
	}
}

func (r *httpRouter) Ready(ctx context.Context) error { return nil }

func (r *httpRouter) Call(ctx context.Context, req svc.Any) (svc.Any, error) {
	switch req.(type) {
	case wireproto.InstrumentsRequest:
		return r.instruments.Call(ctx, req)
	case wireproto.PlaceOrderRequest:
		return r.place.Call(ctx, req)
	case wireproto.CancelOrderRequest:
		return r.cancel.Call(ctx, req)
	case wireproto.GetOrderRequest:
		return r.get.Call(ctx, req)
	case wireproto.CandlesRequest:
		return r.candles.Call(ctx, req)
	default:
		return nil, xerrors.New(xerrors.Other, fmt.Sprintf("demo: unsupported http request %T", req))
	}
}

// dialMultiplex performs the one-shot login handshake directly against the
// freshly dialed connection (before any other reader is attached, so there
// is never more than one goroutine reading the socket), then hands the
// connection to KeepAlive and the multiplex engine for the rest of its
// life. It is the Connector reconnect.Channel calls on every (re)connect
// attempt.
func dialMultiplex(ctx context.Context, wsAddr string) (svc.Service[multiplex.MultiplexRequest, multiplex.MultiplexResponse], error) {
	conn, err := wsproto.Dial(ctx, wsAddr, nil)
	if err != nil {
		return nil, err
	}

	login := rpc.New[string, wsproto.RequestFrame, wsproto.ServerFrame](
		func(ctx context.Context, f wsproto.RequestFrame) error { return conn.WriteFrame(ctx, f) },
		func(f wsproto.RequestFrame) string { return f.ID },
	)
	go func() {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			login.Fail(err)
			return
		}
		login.Deliver(f.RequestID, f, nil)
	}()
	if _, err := login.Call(ctx, wsproto.RequestFrame{ID: "login-1", Op: wsproto.OpLogin}); err != nil {
		conn.Close()
		return nil, err
	}

	keepAlive := wsproto.NewKeepAlive(conn, 30*time.Second, 10*time.Second)
	engine := multiplex.NewEngine(ctx, keepAlive, multiplex.Config{
		MainStreamTopics:     []string{wireproto.OrdersTopic},
		DefaultStreamTimeout: 5 * time.Second,
	})
	return engine, nil
}

// clientMultiplex lets a *multiplex.SharedSubscriber drive subscriptions
// through the fully composed exchange.Client (dispatcher, buffer, and
// all) instead of reaching past it to the bare engine, so every public
// stream subscription genuinely exercises the whole WS stack.
type clientMultiplex struct {
	client *exchange.Client
}

func (c clientMultiplex) Ready(ctx context.Context) error { return c.client.Ready(ctx) }

func (c clientMultiplex) Call(ctx context.Context, req multiplex.MultiplexRequest) (multiplex.MultiplexResponse, error) {
	resp, err := c.client.Call(ctx, exchange.Request{Kind: exchange.Ws, Payload: req})
	if err != nil {
		return multiplex.MultiplexResponse{}, err
	}
	mr, ok := resp.Payload.(multiplex.MultiplexResponse)
	if !ok {
		return multiplex.MultiplexResponse{}, xerrors.New(xerrors.Other, "demo: unexpected ws response payload type")
	}
	return mr, nil
}

// wiring is the fully assembled transport stack behind one demo Exchange:
// an in-process reference server, the composed HTTP+WS exchange.Client
// dialed into it, and the shared-subscription layer public streams join.
type wiring struct {
	srv       *server.Server
	client    *exchange.Client
	sharedSub *multiplex.SharedSubscriber
}

func buildWiring(ctx context.Context) (*wiring, error) {
	srv := server.New()

	httpChild := svc.NewRetry[svc.Any, svc.Any](
		svc.NewTimeout[svc.Any, svc.Any](newHTTPRouter(srv.HTTPAddr()), 10*time.Second),
		svc.Bounded(2, 5*time.Second),
	)

	wsAddr := srv.WSAddr()
	reconnectEngine := reconnect.New[multiplex.MultiplexRequest, multiplex.MultiplexResponse](
		func(ctx context.Context) (svc.Service[multiplex.MultiplexRequest, multiplex.MultiplexResponse], error) {
			return dialMultiplex(ctx, wsAddr)
		},
	)
	wsChild := svc.NewBoxErase[multiplex.MultiplexRequest, multiplex.MultiplexResponse](
		svc.NewRateLimit[multiplex.MultiplexRequest, multiplex.MultiplexResponse](reconnectEngine, 10, time.Second),
	)

	cfg := exchange.DefaultConfig()
	client := exchange.Connect(ctx, httpChild, wsChild, cfg)

	if err := client.Ready(ctx); err != nil {
		srv.Close()
		return nil, err
	}

	return &wiring{
		srv:       srv,
		client:    client,
		sharedSub: multiplex.NewSharedSubscriber(clientMultiplex{client: client}),
	}, nil
}

func (w *wiring) close() {
	w.client.Close()
	w.srv.Close()
}

// subscribeOrders attaches to the permanently-open "orders" main stream.
// Unlike sharedSub.Subscribe (which always opens a fresh caller-driven
// sub-stream), a main-stream topic is already admitted for the life of
// the connection, so this goes straight through the client with a
// SubscribeMainStream request.
func (w *wiring) subscribeOrders(ctx context.Context) (multiplex.MultiplexResponse, error) {
	resp, err := w.client.Call(ctx, exchange.Request{
		Kind:    exchange.Ws,
		Payload: multiplex.MultiplexRequest{Kind: multiplex.SubscribeMainStream, Topic: wireproto.OrdersTopic},
	})
	if err != nil {
		return multiplex.MultiplexResponse{}, err
	}
	mr, ok := resp.Payload.(multiplex.MultiplexResponse)
	if !ok {
		return multiplex.MultiplexResponse{}, xerrors.New(xerrors.Other, "demo: unexpected ws response payload type")
	}
	return mr, nil
}

// callHTTP is the single call site every HTTP-backed Backend method
// routes through.
func callHTTP(ctx context.Context, client *exchange.Client, payload svc.Any) (svc.Any, error) {
	resp, err := client.Call(ctx, exchange.Request{Kind: exchange.Http, Payload: payload})
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}
