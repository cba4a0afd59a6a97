// Package orderbuilder snaps a types.Place onto an instrument's tick grid
// before it reaches the transport, and rejects what a tick-aware exchange
// would bounce anyway.
package orderbuilder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/exchg/excli/types"
)

// ErrBelowMinSize is returned when a placement's size is below the
// instrument's minimum tradable size.
var ErrBelowMinSize = fmt.Errorf("orderbuilder: size below instrument minimum")

// ErrBelowMinValue is returned when a limit/post-only placement's
// notional value (price * size) is below the instrument's minimum.
var ErrBelowMinValue = fmt.Errorf("orderbuilder: notional value below instrument minimum")

// RoundDown truncates toward zero at the given number of decimal places.
func RoundDown(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Truncate(places)
}

// RoundNearest rounds to the nearest value at the given tick size.
func RoundNearest(d, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return d
	}
	return d.Div(tick).Round(0).Mul(tick)
}

// Round snaps place's price and size onto meta's tick grid: price rounds
// to the nearest PriceTick, size truncates down to the nearest SizeTick.
// A resulting size below MinSize, or a limit/post-only notional below
// MinValue, is rejected rather than silently bumped up.
func Round(place types.Place, meta *types.InstrumentMeta) (types.Place, error) {
	if err := place.Validate(); err != nil {
		return types.Place{}, err
	}

	size := place.Size.Abs()
	roundedSize := size
	if !meta.Attrs.SizeTick.IsZero() {
		roundedSize = RoundDown(size, decimalPlaces(meta.Attrs.SizeTick))
	}
	if roundedSize.LessThan(meta.Attrs.MinSize) {
		return types.Place{}, ErrBelowMinSize
	}
	if place.Size.IsNegative() {
		roundedSize = roundedSize.Neg()
	}
	out := place
	out.Size = roundedSize

	switch out.Kind.Tag {
	case types.Market:
		return out, nil
	case types.Limit, types.PostOnly:
		price := out.Kind.Price
		if !meta.Attrs.PriceTick.IsZero() {
			price = RoundNearest(price, meta.Attrs.PriceTick)
		}
		out.Kind.Price = price

		notional := roundedSize.Abs().Mul(price)
		if notional.LessThan(meta.Attrs.MinValue) {
			return types.Place{}, ErrBelowMinValue
		}
		return out, nil
	default:
		return out, nil
	}
}

// decimalPlaces returns the number of decimal digits the tick's exponent
// implies.
func decimalPlaces(tick decimal.Decimal) int32 {
	exp := tick.Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}
