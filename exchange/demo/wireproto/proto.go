// Package wireproto is the JSON wire contract shared by exchange/demo (the
// client-side Backend) and exchange/demo/server (the in-process reference
// exchange it dials): one request/response pair per HTTP operation, and
// the topic naming convention for the WS streams. Keeping both sides of
// the demo wire on one package is what lets the client's adapt/httpx
// plumbing and the server's handlers agree on a byte-for-byte shape
// without either side guessing at the other's JSON.
package wireproto

import "github.com/exchg/excli/types"

// InstrumentsRequest carries only Tag, for parity with instrument.Fetcher's
// signature; the demo server does not read it.
type InstrumentsRequest struct {
	Tag string
}

type InstrumentsResponse struct {
	Instruments []types.InstrumentMeta
}

type PlaceOrderRequest struct {
	Place types.Place
	Opts  types.PlaceOrderOptions
}

type PlaceOrderResponse struct {
	Placed types.Placed
}

type CancelOrderRequest struct {
	Instrument string
	ID         types.OrderID
}

type CancelOrderResponse struct {
	Cancelled types.Cancelled
}

type GetOrderRequest struct {
	Instrument string
	ID         types.OrderID
}

type GetOrderResponse struct {
	Update types.OrderUpdate
}

// OrderStreamUpdate is the payload carried on OrdersTopic: the server
// broadcasts every order update to every connected client regardless of
// instrument (topic routing stays client-side, same as the public
// streams), so the instrument is carried alongside the update for the
// client to filter on.
type OrderStreamUpdate struct {
	Instrument string
	Update     types.OrderUpdate
}

// CandleDirection selects QueryFirstCandles (Forward) vs QueryLastCandles
// (Backward) on the server side of one CandlesRequest.
type CandleDirection int

const (
	Forward CandleDirection = iota
	Backward
)

type CandlesRequest struct {
	Instrument string
	Period     types.Period
	Range      types.Range
	Limit      int
	Direction  CandleDirection
}

type CandlesResponse struct {
	Candles []types.Candle
}

// ErrorBody is the body the demo server writes with a non-2xx response.
// httpx.classifyStatus reads its msg back (see transport/httpx.apiBody);
// Kind travels as a string under "code" and is not read there, since
// apiBody.Code is an int.
type ErrorBody struct {
	Kind string `json:"code"`
	Msg  string `json:"msg"`
}

// TickerTopic, TradeTopic, and BidAskTopic are the demo server's public
// per-instrument stream channels; OrdersTopic is the one permanently-open
// private main stream.
const (
	TickerTopic = "tickers"
	TradeTopic  = "trades"
	BidAskTopic = "bidAsk"
	OrdersTopic = "orders"
)
