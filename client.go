// Package excli is a unified client library for cryptocurrency-exchange
// market and trading APIs: a small set of typed request operations
// (candles, ticker/trade/best-bid-ask/order streams, order placement)
// backed by a WebSocket multiplex engine and an HTTP transport, composed
// behind uniform retry/rate-limit/timeout semantics regardless of which
// exchange Backend is plugged in.
package excli

import (
	"context"
	"iter"

	"github.com/exchg/excli/candle"
	"github.com/exchg/excli/instrument"
	"github.com/exchg/excli/orderbuilder"
	"github.com/exchg/excli/types"
	"github.com/exchg/excli/xerrors"
)

// Backend is what an exchange adapter implements: the exchange-specific
// request construction, signing, and channel naming live entirely behind
// this interface. excli.Client never depends on exchange-specific types.
type Backend interface {
	candle.Fetcher
	instrument.Fetcher
	instrument.Subscriber

	PlaceOrder(ctx context.Context, place types.Place, opts *types.PlaceOrderOptions) (types.Placed, error)
	CancelOrder(ctx context.Context, instrumentName string, id types.OrderID) (types.Cancelled, error)
	GetOrder(ctx context.Context, instrumentName string, id types.OrderID) (types.OrderUpdate, error)
	SubscribeOrders(ctx context.Context, instrumentName string) (<-chan types.OrderUpdate, error)
	SubscribeTickers(ctx context.Context, instrumentName string) (<-chan types.Ticker, error)
	SubscribeTrades(ctx context.Context, instrumentName string) (<-chan types.Trade, error)
	SubscribeBidAsk(ctx context.Context, instrumentName string) (<-chan types.BidAsk, error)

	Close() error
}

// Client is the unified entry point: every operation it exposes is
// independent of which exchange the configured Backend talks to.
type Client struct {
	backend Backend
	cache   *instrument.Cache
	cfg     config
}

// New builds a Client around backend, configured by opts, and starts the
// instrument cache's snapshot-then-subscribe loop in the background.
func New(ctx context.Context, backend Backend, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cache := instrument.New(backend, backend)
	go cache.Run(ctx, cfg.endpoint.Name)

	return &Client{backend: backend, cache: cache, cfg: cfg}
}

// Close releases the underlying backend's connections.
func (c *Client) Close() error {
	return c.backend.Close()
}

// Instrument looks up cached instrument metadata by canonical name.
func (c *Client) Instrument(name string) (*types.InstrumentMeta, bool) {
	return c.cache.ByName(name)
}

// InstrumentBySymbol looks up cached instrument metadata by structured
// symbol.
func (c *Client) InstrumentBySymbol(symbol string) (*types.InstrumentMeta, bool) {
	return c.cache.BySymbol(symbol)
}

// SubscribeInstruments returns the merged snapshot-then-live stream of
// instrument metadata; call the returned cancel func to unsubscribe.
func (c *Client) SubscribeInstruments() (<-chan instrument.Update, func()) {
	return c.cache.Subscribe()
}

// WaitInstrumentsReady blocks until the instrument cache's first fetch has
// completed.
func (c *Client) WaitInstrumentsReady(ctx context.Context) error {
	return c.cache.WaitReady(ctx)
}

// PlaceOrder rounds place onto the instrument's tick grid and submits it.
// Unknown instruments are rejected before any wire call is made.
func (c *Client) PlaceOrder(ctx context.Context, place types.Place, opts *types.PlaceOrderOptions) (types.Placed, error) {
	if opts == nil || opts.Instrument == "" {
		return types.Placed{}, xerrors.New(xerrors.Other, "excli: PlaceOrder requires PlaceOrderOptions.Instrument")
	}
	meta, ok := c.cache.ByName(opts.Instrument)
	if !ok {
		return types.Placed{}, xerrors.New(xerrors.InstrumentNotFound, "excli: unknown instrument "+opts.Instrument)
	}
	rounded, err := orderbuilder.Round(place, meta)
	if err != nil {
		return types.Placed{}, err
	}
	return c.backend.PlaceOrder(ctx, rounded, opts)
}

// CancelOrder cancels a previously placed order.
func (c *Client) CancelOrder(ctx context.Context, instrumentName string, id types.OrderID) (types.Cancelled, error) {
	return c.backend.CancelOrder(ctx, instrumentName, id)
}

// GetOrder fetches the current state of a single order.
func (c *Client) GetOrder(ctx context.Context, instrumentName string, id types.OrderID) (types.OrderUpdate, error) {
	return c.backend.GetOrder(ctx, instrumentName, id)
}

// SubscribeOrders streams order-state updates for instrumentName.
func (c *Client) SubscribeOrders(ctx context.Context, instrumentName string) (<-chan types.OrderUpdate, error) {
	return c.backend.SubscribeOrders(ctx, instrumentName)
}

// SubscribeTickers streams best-price updates for instrumentName.
func (c *Client) SubscribeTickers(ctx context.Context, instrumentName string) (<-chan types.Ticker, error) {
	return c.backend.SubscribeTickers(ctx, instrumentName)
}

// SubscribeTrades streams public trade prints for instrumentName.
func (c *Client) SubscribeTrades(ctx context.Context, instrumentName string) (<-chan types.Trade, error) {
	return c.backend.SubscribeTrades(ctx, instrumentName)
}

// SubscribeBidAsk streams best-bid/best-ask updates for instrumentName.
func (c *Client) SubscribeBidAsk(ctx context.Context, instrumentName string) (<-chan types.BidAsk, error) {
	return c.backend.SubscribeBidAsk(ctx, instrumentName)
}

// QueryCandlesForward pages forward through (instrumentName, period, rng)
// at most limit candles per wire call.
func (c *Client) QueryCandlesForward(ctx context.Context, instrumentName string, period types.Period, rng types.Range, limit int) iter.Seq2[types.Candle, error] {
	return candle.Forward(ctx, c.backend, instrumentName, period, rng, limit)
}

// QueryCandlesBackward pages backward through (instrumentName, period,
// rng) at most limit candles per wire call.
func (c *Client) QueryCandlesBackward(ctx context.Context, instrumentName string, period types.Period, rng types.Range, limit int) iter.Seq2[types.Candle, error] {
	return candle.Backward(ctx, c.backend, instrumentName, period, rng, limit)
}
