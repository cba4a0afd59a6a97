package orderbuilder

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/exchg/excli/types"
)

func meta(priceTick, sizeTick, minSize, minValue string) *types.InstrumentMeta {
	return &types.InstrumentMeta{
		Name: "X-USD",
		Attrs: types.InstrumentAttrs{
			PriceTick: decimal.RequireFromString(priceTick),
			SizeTick:  decimal.RequireFromString(sizeTick),
			MinSize:   decimal.RequireFromString(minSize),
			MinValue:  decimal.RequireFromString(minValue),
		},
	}
}

func TestRoundLimitSnapsToTick(t *testing.T) {
	m := meta("0.01", "0.001", "0.01", "1")
	place := types.WithSize(decimal.RequireFromString("1.2345")).Limit(decimal.RequireFromString("10.006"))

	out, err := Round(place, m)
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if !out.Size.Equal(decimal.RequireFromString("1.234")) {
		t.Errorf("size mismatch: got %s", out.Size)
	}
	if !out.Kind.Price.Equal(decimal.RequireFromString("10.01")) {
		t.Errorf("price mismatch: got %s", out.Kind.Price)
	}
}

func TestRoundRejectsBelowMinSize(t *testing.T) {
	m := meta("0.01", "0.1", "1", "0")
	place := types.WithSize(decimal.RequireFromString("0.5")).Limit(decimal.RequireFromString("10"))

	_, err := Round(place, m)
	if err != ErrBelowMinSize {
		t.Fatalf("expected ErrBelowMinSize, got %v", err)
	}
}

func TestRoundRejectsBelowMinValue(t *testing.T) {
	m := meta("0.01", "0.01", "0.01", "100")
	place := types.WithSize(decimal.RequireFromString("1")).Limit(decimal.RequireFromString("10"))

	_, err := Round(place, m)
	if err != ErrBelowMinValue {
		t.Fatalf("expected ErrBelowMinValue, got %v", err)
	}
}

func TestRoundPreservesSign(t *testing.T) {
	m := meta("0.01", "0.001", "0.01", "0")
	place := types.WithSize(decimal.RequireFromString("-1.2345")).Limit(decimal.RequireFromString("10"))

	out, err := Round(place, m)
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if !out.Size.IsNegative() {
		t.Errorf("expected negative size preserved, got %s", out.Size)
	}
}

func TestRoundMarketOrderSkipsPriceRounding(t *testing.T) {
	m := meta("0.01", "0.01", "0.01", "0")
	place := types.WithSize(decimal.RequireFromString("5"))

	out, err := Round(place, m)
	if err != nil {
		t.Fatalf("Round: %v", err)
	}
	if !out.Size.Equal(decimal.RequireFromString("5")) {
		t.Errorf("size mismatch: got %s", out.Size)
	}
}

func TestRoundRejectsZeroSize(t *testing.T) {
	m := meta("0.01", "0.01", "0", "0")
	place := types.WithSize(decimal.Zero)

	if _, err := Round(place, m); err != types.ErrPlaceZeroSize {
		t.Fatalf("expected ErrPlaceZeroSize, got %v", err)
	}
}
