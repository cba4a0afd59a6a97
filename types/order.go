// Package types holds the exchange-neutral domain values that flow through
// the adapter, transport, and multiplex layers: orders, candles, periods,
// and instrument metadata. Every price, size, and fee is a decimal.Decimal;
// nothing in this package touches floats.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderKindTag selects the execution strategy of a Place.
type OrderKindTag int

const (
	Market OrderKindTag = iota
	Limit
	PostOnly
)

func (k OrderKindTag) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case PostOnly:
		return "post_only"
	default:
		return "unknown"
	}
}

// TimeInForce qualifies a Limit order's lifetime.
type TimeInForce int

const (
	GTC TimeInForce = iota
	IOC
	FOK
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "GTC"
	}
}

// OrderKind is Market, Limit(price, tif), or PostOnly(price).
type OrderKind struct {
	Tag   OrderKindTag
	Price decimal.Decimal
	TIF   TimeInForce
}

// MarketKind builds a market order kind.
func MarketKind() OrderKind { return OrderKind{Tag: Market} }

// LimitKind builds a limit order kind with the default GTC time-in-force.
func LimitKind(price decimal.Decimal) OrderKind {
	return OrderKind{Tag: Limit, Price: price, TIF: GTC}
}

// LimitKindWithTIF builds a limit order kind with an explicit time-in-force.
func LimitKindWithTIF(price decimal.Decimal, tif TimeInForce) OrderKind {
	return OrderKind{Tag: Limit, Price: price, TIF: tif}
}

// PostOnlyKind builds a post-only order kind.
func PostOnlyKind(price decimal.Decimal) OrderKind {
	return OrderKind{Tag: PostOnly, Price: price}
}

// ErrPlaceZeroSize is returned by Place.Validate when the size is zero.
var ErrPlaceZeroSize = fmt.Errorf("excli: place: zero size is rejected")

// Place is the order builder: a signed size (sign = side) and an execution
// kind. Zero size is rejected before any wire call is made.
type Place struct {
	Size decimal.Decimal
	Kind OrderKind
}

// WithSize creates a market order placement with the given signed size.
func WithSize(size decimal.Decimal) Place {
	return Place{Size: size, Kind: MarketKind()}
}

// Limit converts the placement to a limit order with the default GTC tif.
func (p Place) Limit(price decimal.Decimal) Place {
	p.Kind = LimitKind(price)
	return p
}

// LimitWithTIF converts the placement to a limit order with an explicit tif.
func (p Place) LimitWithTIF(price decimal.Decimal, tif TimeInForce) Place {
	p.Kind = LimitKindWithTIF(price, tif)
	return p
}

// PostOnly converts the placement to a post-only order.
func (p Place) PostOnly(price decimal.Decimal) Place {
	p.Kind = PostOnlyKind(price)
	return p
}

// Validate rejects a zero-size placement before it reaches the transport.
func (p Place) Validate() error {
	if p.Size.IsZero() {
		return ErrPlaceZeroSize
	}
	return nil
}

// Side reports the order's side: positive size is buy, negative is sell.
func (p Place) Side() string {
	if p.Size.IsNegative() {
		return "sell"
	}
	return "buy"
}

// PlaceOrderOptions carries a per-request instrument, client id, and an
// optional preferred margin currency. The exchange decides whether the
// margin hint applies.
type PlaceOrderOptions struct {
	Instrument string
	ClientID   *string
	Margin     *string
}

// NewPlaceOrderOptions creates options scoped to the given instrument.
func NewPlaceOrderOptions(instrument string) *PlaceOrderOptions {
	return &PlaceOrderOptions{Instrument: instrument}
}

// WithClientID sets the client-supplied idempotency id.
func (o *PlaceOrderOptions) WithClientID(id string) *PlaceOrderOptions {
	o.ClientID = &id
	return o
}

// WithMargin sets the preferred margin currency.
func (o *PlaceOrderOptions) WithMargin(currency string) *PlaceOrderOptions {
	o.Margin = &currency
	return o
}

// OrderID is an opaque, exchange-assigned order identity shared by reference.
type OrderID string

func (id OrderID) String() string { return string(id) }

// OrderStatus classifies the lifecycle stage of an order.
type OrderStatus int

const (
	Pending OrderStatus = iota
	Finished
	UnknownStatus
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// OrderTrade is the last fill applied to an order, if any.
type OrderTrade struct {
	Price decimal.Decimal
	Size  decimal.Decimal
	Ts    int64 // unix millis
}

// OrderState is the mutable part of an order: how much has filled, at what
// cost, its status, and the fees charged per asset.
type OrderState struct {
	Filled decimal.Decimal // signed, same sign convention as Place.Size
	Cost   decimal.Decimal
	Status OrderStatus
	Fees   map[string]decimal.Decimal
	Trade  *OrderTrade
}

// Order is the identity, target placement, and current state of a live or
// historical order.
type Order struct {
	ID     OrderID
	Target Place
	State  OrderState
}

// Placed is the unary response to PlaceOrder.
type Placed struct {
	ID    OrderID
	Order *Order
	TsMs  int64
}

// Cancelled is the unary response to CancelOrder.
type Cancelled struct {
	ID OrderID
}

// OrderUpdate is one item of the SubscribeOrders stream.
type OrderUpdate struct {
	Order Order
}
