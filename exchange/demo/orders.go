package demo

import (
	"context"

	"github.com/exchg/excli/exchange/demo/wireproto"
	"github.com/exchg/excli/types"
	"github.com/exchg/excli/xerrors"
)

// PlaceOrder sends the placement over the wired HTTP client; the reference
// server fills it immediately at its limit price, or at a synthetic
// market price for market orders, and broadcasts the resulting update on
// the private orders stream that pumpOrders is already listening on.
func (e *Exchange) PlaceOrder(ctx context.Context, place types.Place, opts *types.PlaceOrderOptions) (types.Placed, error) {
	if err := place.Validate(); err != nil {
		return types.Placed{}, xerrors.New(xerrors.Other, err.Error())
	}

	payload, err := callHTTP(ctx, e.wiring.client, wireproto.PlaceOrderRequest{Place: place, Opts: *opts})
	if err != nil {
		return types.Placed{}, err
	}
	resp, ok := payload.(wireproto.PlaceOrderResponse)
	if !ok {
		return types.Placed{}, xerrors.New(xerrors.Other, "demo: unexpected place-order response type")
	}
	return resp.Placed, nil
}

// CancelOrder marks the order Finished server-side if present, otherwise
// reports OrderNotFound.
func (e *Exchange) CancelOrder(ctx context.Context, instrumentName string, id types.OrderID) (types.Cancelled, error) {
	payload, err := callHTTP(ctx, e.wiring.client, wireproto.CancelOrderRequest{Instrument: instrumentName, ID: id})
	if err != nil {
		return types.Cancelled{}, err
	}
	resp, ok := payload.(wireproto.CancelOrderResponse)
	if !ok {
		return types.Cancelled{}, xerrors.New(xerrors.Other, "demo: unexpected cancel-order response type")
	}
	return resp.Cancelled, nil
}

// GetOrder returns the current server-side state of a single order.
func (e *Exchange) GetOrder(ctx context.Context, instrumentName string, id types.OrderID) (types.OrderUpdate, error) {
	payload, err := callHTTP(ctx, e.wiring.client, wireproto.GetOrderRequest{Instrument: instrumentName, ID: id})
	if err != nil {
		return types.OrderUpdate{}, err
	}
	resp, ok := payload.(wireproto.GetOrderResponse)
	if !ok {
		return types.OrderUpdate{}, xerrors.New(xerrors.Other, "demo: unexpected get-order response type")
	}
	return resp.Update, nil
}

// SubscribeOrders streams state updates for every order placed against
// instrumentName from this point on. It registers against the single
// shared order-stream pump (see pumpOrders) rather than opening its own
// wire subscription.
func (e *Exchange) SubscribeOrders(ctx context.Context, instrumentName string) (<-chan types.OrderUpdate, error) {
	ch := make(chan types.OrderUpdate, 16)
	e.subsMu.Lock()
	e.orderSubs[instrumentName] = append(e.orderSubs[instrumentName], ch)
	e.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		subs := e.orderSubs[instrumentName]
		for i, c := range subs {
			if c == ch {
				e.orderSubs[instrumentName] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
