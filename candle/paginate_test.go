package candle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exchg/excli/types"
)

type pageScript struct {
	pages [][]int // minute offsets per page
	calls int
}

func minuteCandle(base time.Time, minute int) types.Candle {
	return types.Candle{
		Ts:    base.Add(time.Duration(minute) * time.Minute),
		Open:  decimal.Zero,
		High:  decimal.Zero,
		Low:   decimal.Zero,
		Close: decimal.Zero,
	}
}

func (p *pageScript) QueryFirstCandles(ctx context.Context, instrument string, period types.Period, rng types.Range, first int) ([]types.Candle, error) {
	if p.calls >= len(p.pages) {
		return nil, nil
	}
	minutes := p.pages[p.calls]
	p.calls++
	base := rng.Start.At
	// base is whatever Excluded bound the engine last computed; re-derive
	// an absolute base of day-start so minute offsets are comparable.
	dayStart := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, len(minutes))
	for i, m := range minutes {
		out[i] = minuteCandle(dayStart, m)
	}
	return out, nil
}

func (p *pageScript) QueryLastCandles(ctx context.Context, instrument string, period types.Period, rng types.Range, last int) ([]types.Candle, error) {
	return nil, nil
}

func TestForwardPagination(t *testing.T) {
	dayStart := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := types.Range{
		Start: types.IncludedAt(dayStart),
		End:   types.ExcludedAt(dayStart.Add(10 * time.Minute)),
	}
	period := types.NewDurationPeriod(0, time.Minute)

	script := &pageScript{pages: [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, {9}, {}}}

	var got []types.Candle
	for c, err := range Forward(context.Background(), script, "X", period, rng, 3) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, c)
	}

	if len(got) != 10 {
		t.Fatalf("expected 10 candles, got %d", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if !got[i].Ts.Before(got[i+1].Ts) {
			t.Fatalf("candles not strictly ascending at index %d: %v >= %v", i, got[i].Ts, got[i+1].Ts)
		}
	}
	if script.calls != 4 {
		t.Fatalf("expected exactly 4 wire calls, got %d", script.calls)
	}
}

func TestRangeIsEmpty(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	cases := []struct {
		name  string
		rng   types.Range
		empty bool
	}{
		{"closed-closed non-empty", types.Range{Start: types.IncludedAt(t0), End: types.IncludedAt(t1)}, false},
		{"closed-closed equal", types.Range{Start: types.IncludedAt(t0), End: types.IncludedAt(t0)}, false},
		{"closed-closed reversed", types.Range{Start: types.IncludedAt(t1), End: types.IncludedAt(t0)}, true},
		{"half-open equal", types.Range{Start: types.IncludedAt(t0), End: types.ExcludedAt(t0)}, true},
		{"half-open non-empty", types.Range{Start: types.IncludedAt(t0), End: types.ExcludedAt(t1)}, false},
		{"open-open equal", types.Range{Start: types.ExcludedAt(t0), End: types.ExcludedAt(t0)}, true},
	}
	for _, tc := range cases {
		if got := tc.rng.IsEmpty(); got != tc.empty {
			t.Errorf("%s: IsEmpty() = %v, want %v", tc.name, got, tc.empty)
		}
	}
}

func TestForwardEmptyRangeMakesNoWireCall(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := types.Range{Start: types.IncludedAt(t0), End: types.ExcludedAt(t0)}
	script := &pageScript{pages: [][]int{{0, 1, 2}}}

	for range Forward(context.Background(), script, "X", types.Period{}, rng, 3) {
		t.Fatal("expected no candles from an empty range")
	}
	if script.calls != 0 {
		t.Fatalf("expected zero wire calls, got %d", script.calls)
	}
}
