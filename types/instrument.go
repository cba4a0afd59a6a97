package types

import "github.com/shopspring/decimal"

// InstrumentAttrs carries the quoting/sizing rules of an instrument.
type InstrumentAttrs struct {
	Reversed bool
	Unit     string
	PriceTick decimal.Decimal
	SizeTick  decimal.Decimal
	MinSize   decimal.Decimal
	MinValue  decimal.Decimal
}

// InstrumentMeta describes one tradable instrument. Values are shared by
// reference once published into the instrument cache.
type InstrumentMeta struct {
	Name   string
	Symbol string
	Attrs  InstrumentAttrs
	Live   bool
	Expire *int64 // unix millis, nil if perpetual/spot
}

// Ticker is one best-price update. Buy is nil when the upstream payload
// does not carry a side flag; the client never fabricates a default.
type Ticker struct {
	Instrument string
	Last       decimal.Decimal
	Buy        *bool
	TsMs       int64
}

// BidAsk is a best-bid/best-ask update.
type BidAsk struct {
	Instrument string
	Bid        decimal.Decimal
	BidSize    decimal.Decimal
	Ask        decimal.Decimal
	AskSize    decimal.Decimal
	TsMs       int64
}

// Trade is a public trade print.
type Trade struct {
	Instrument string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Buy        *bool
	TsMs       int64
}
