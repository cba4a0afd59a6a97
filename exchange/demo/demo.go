// Package demo is the in-process reference exchange: it implements
// excli.Backend over a real HTTP+WebSocket round trip against an
// exchange/demo/server instance running in the same process, so examples
// and tests exercise the full transport stack (transport/httpx, wsproto,
// multiplex, rpc, reconnect, adapt, svc, exchange) without a live network
// dependency. It is the concrete instance proving that one adapter can
// satisfy the generic request contracts the rest of the module declares.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/exchg/excli/exchange/demo/wireproto"
	"github.com/exchg/excli/multiplex"
	"github.com/exchg/excli/signing"
	"github.com/exchg/excli/types"
	"github.com/exchg/excli/xerrors"
)

// Exchange is the reference backend: a signer (present only to satisfy the
// excli.Backend construction convention; the demo wire never signs
// anything) plus the wired client stack and the order-update fan-out it
// drives.
type Exchange struct {
	signer signing.Signer
	wiring *wiring

	instrumentsMu sync.RWMutex
	instruments   map[string]types.InstrumentMeta

	subsMu    sync.Mutex
	orderSubs map[string][]chan types.OrderUpdate
}

// New builds a demo Exchange, dials its private in-process server over
// HTTP and WebSocket, and starts the background order-update pump. New
// never returns an error (matching excli.Backend construction elsewhere in
// the module); a reference server that fails to come up is a programming
// error, not a runtime condition callers need to handle.
func New(signer signing.Signer) *Exchange {
	ctx := context.Background()
	w, err := buildWiring(ctx)
	if err != nil {
		panic(fmt.Sprintf("demo: wiring reference exchange: %v", err))
	}

	e := &Exchange{
		signer:      signer,
		wiring:      w,
		instruments: make(map[string]types.InstrumentMeta),
		orderSubs:   make(map[string][]chan types.OrderUpdate),
	}
	if err := e.refreshInstruments(ctx); err != nil {
		panic(fmt.Sprintf("demo: fetching seeded instruments: %v", err))
	}

	// Subscribe to the orders main stream synchronously, before New
	// returns: the underlying WS connection (and the server's broadcast
	// loop over it) is already live at this point, so a caller that
	// places an order right after New must not race the pump's own
	// subscribe admission — a broadcast with no attached listener is a
	// silent no-op (see multiplex.mainStream.publish), not a queued one.
	ordersResp, err := w.subscribeOrders(ctx)
	if err != nil {
		panic(fmt.Sprintf("demo: subscribing to order stream: %v", err))
	}
	go e.pumpOrders(ordersResp)
	return e
}

// Close tears down the wired client and the in-process server behind it.
func (e *Exchange) Close() error {
	e.wiring.close()
	return nil
}

// FetchInstruments implements instrument.Fetcher by issuing a real HTTP
// call against the reference server on every invocation.
func (e *Exchange) FetchInstruments(ctx context.Context, tag string) ([]types.InstrumentMeta, error) {
	payload, err := callHTTP(ctx, e.wiring.client, wireproto.InstrumentsRequest{Tag: tag})
	if err != nil {
		return nil, err
	}
	resp, ok := payload.(wireproto.InstrumentsResponse)
	if !ok {
		return nil, xerrors.New(xerrors.Other, "demo: unexpected instruments response type")
	}
	return resp.Instruments, nil
}

// refreshInstruments snapshots the server's instrument set into the local
// cache the Subscribe* methods validate instrument names against; demo's
// instrument set is fixed at startup, so one fetch covers the Exchange's
// whole lifetime.
func (e *Exchange) refreshInstruments(ctx context.Context) error {
	rows, err := e.FetchInstruments(ctx, "")
	if err != nil {
		return err
	}
	e.instrumentsMu.Lock()
	defer e.instrumentsMu.Unlock()
	for _, m := range rows {
		e.instruments[m.Name] = m
	}
	return nil
}

func (e *Exchange) lookupInstrument(name string) (types.InstrumentMeta, bool) {
	e.instrumentsMu.RLock()
	defer e.instrumentsMu.RUnlock()
	m, ok := e.instruments[name]
	return m, ok
}

func errUnknownInstrument(name string) error {
	return xerrors.New(xerrors.InstrumentNotFound, "demo: unknown instrument "+name)
}

// pumpOrders drains the single main-stream subscription obtained in New
// and fans each update out to whichever per-instrument SubscribeOrders
// listeners are registered. One subscription serves every caller
// regardless of how many instruments they watch, matching the
// main-stream semantics multiplex.Engine exposes.
func (e *Exchange) pumpOrders(resp multiplex.MultiplexResponse) {
	defer resp.Close()
	for item := range resp.Frames {
		if item.Err != nil {
			return
		}
		var upd wireproto.OrderStreamUpdate
		if err := json.Unmarshal(item.Frame.Data, &upd); err != nil {
			continue
		}
		e.publishOrderUpdate(upd.Instrument, upd.Update)
	}
}

func (e *Exchange) publishOrderUpdate(instrumentName string, update types.OrderUpdate) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.orderSubs[instrumentName] {
		select {
		case ch <- update:
		default:
		}
	}
}
