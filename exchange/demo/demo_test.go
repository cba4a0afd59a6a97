package demo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/exchg/excli/types"
)

func TestFetchInstrumentsReturnsSeededRow(t *testing.T) {
	e := New(nil)
	rows, err := e.FetchInstruments(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchInstruments: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "DEMO-USD" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestPlaceOrderFillsImmediately(t *testing.T) {
	e := New(nil)
	opts := types.NewPlaceOrderOptions("DEMO-USD")
	place := types.WithSize(decimal.NewFromInt(1)).Limit(decimal.NewFromInt(100))

	placed, err := e.PlaceOrder(context.Background(), place, opts)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Order.State.Status != types.Finished {
		t.Fatalf("expected order finished immediately, got %v", placed.Order.State.Status)
	}
	if !placed.Order.State.Filled.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected full fill, got %s", placed.Order.State.Filled)
	}
}

func TestPlaceOrderMarketUsesSyntheticPrice(t *testing.T) {
	e := New(nil)
	opts := types.NewPlaceOrderOptions("DEMO-USD")
	place := types.WithSize(decimal.NewFromInt(2))

	placed, err := e.PlaceOrder(context.Background(), place, opts)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Order.State.Trade == nil || !placed.Order.State.Trade.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected synthetic market price 100, got %+v", placed.Order.State.Trade)
	}
}

func TestPlaceOrderRejectsZeroSize(t *testing.T) {
	e := New(nil)
	opts := types.NewPlaceOrderOptions("DEMO-USD")
	place := types.WithSize(decimal.Zero)

	_, err := e.PlaceOrder(context.Background(), place, opts)
	if err == nil {
		t.Fatal("expected error for zero-size place")
	}
}

func TestGetOrderAfterPlace(t *testing.T) {
	e := New(nil)
	opts := types.NewPlaceOrderOptions("DEMO-USD")
	place := types.WithSize(decimal.NewFromInt(1)).Limit(decimal.NewFromInt(100))
	placed, err := e.PlaceOrder(context.Background(), place, opts)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	update, err := e.GetOrder(context.Background(), "DEMO-USD", placed.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if update.Order.ID != placed.ID {
		t.Fatalf("expected order id %s, got %s", placed.ID, update.Order.ID)
	}
}

func TestCancelUnknownOrderReportsNotFound(t *testing.T) {
	e := New(nil)
	_, err := e.CancelOrder(context.Background(), "DEMO-USD", types.OrderID("nope"))
	if err == nil {
		t.Fatal("expected error for unknown order")
	}
}

func TestCancelKnownOrderMarksFinished(t *testing.T) {
	e := New(nil)
	opts := types.NewPlaceOrderOptions("DEMO-USD")
	place := types.WithSize(decimal.NewFromInt(1)).Limit(decimal.NewFromInt(100))
	placed, err := e.PlaceOrder(context.Background(), place, opts)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	cancelled, err := e.CancelOrder(context.Background(), "DEMO-USD", placed.ID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.ID != placed.ID {
		t.Fatalf("expected cancelled id %s, got %s", placed.ID, cancelled.ID)
	}
}

func TestSubscribeOrdersReceivesPlaceUpdate(t *testing.T) {
	e := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := e.SubscribeOrders(ctx, "DEMO-USD")
	if err != nil {
		t.Fatalf("SubscribeOrders: %v", err)
	}

	opts := types.NewPlaceOrderOptions("DEMO-USD")
	place := types.WithSize(decimal.NewFromInt(1)).Limit(decimal.NewFromInt(100))
	if _, err := e.PlaceOrder(ctx, place, opts); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	select {
	case u := <-updates:
		if u.Order.Target.Size.Sign() == 0 {
			t.Fatalf("unexpected zero-size update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for order update")
	}
}

func TestSubscribeTickersStopsOnCancel(t *testing.T) {
	e := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := e.SubscribeTickers(ctx, "DEMO-USD")
	if err != nil {
		t.Fatalf("SubscribeTickers: %v", err)
	}

	select {
	case tick := <-ch:
		if tick.Instrument != "DEMO-USD" {
			t.Fatalf("unexpected instrument: %s", tick.Instrument)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first tick")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// a pending tick may still be buffered; drain until closed.
			for range ch {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close after cancel")
	}
}

func TestSubscribeUnknownInstrumentFails(t *testing.T) {
	e := New(nil)
	if _, err := e.SubscribeTickers(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected error for unknown instrument")
	}
	if _, err := e.SubscribeTrades(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected error for unknown instrument")
	}
	if _, err := e.SubscribeBidAsk(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected error for unknown instrument")
	}
}

func TestQueryFirstCandlesRespectsRangeAndLimit(t *testing.T) {
	e := New(nil)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := types.Range{Start: types.IncludedAt(base), End: types.ExcludedAt(base.Add(5 * time.Minute))}

	rows, err := e.QueryFirstCandles(context.Background(), "DEMO-USD", types.Period{}, rng, 3)
	if err != nil {
		t.Fatalf("QueryFirstCandles: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(rows))
	}
	if !rows[0].Ts.Equal(base) {
		t.Fatalf("expected first candle at %v, got %v", base, rows[0].Ts)
	}
}

func TestQueryLastCandlesReturnsTailInAscendingOrder(t *testing.T) {
	e := New(nil)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := types.Range{Start: types.IncludedAt(base), End: types.ExcludedAt(base.Add(5 * time.Minute))}

	rows, err := e.QueryLastCandles(context.Background(), "DEMO-USD", types.Period{}, rng, 2)
	if err != nil {
		t.Fatalf("QueryLastCandles: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(rows))
	}
	if !rows[0].Ts.Before(rows[1].Ts) {
		t.Fatalf("expected ascending order, got %v then %v", rows[0].Ts, rows[1].Ts)
	}
	if !rows[1].Ts.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("expected last candle at %v, got %v", base.Add(4*time.Minute), rows[1].Ts)
	}
}

func TestQueryCandlesUnknownInstrumentFails(t *testing.T) {
	e := New(nil)
	_, err := e.QueryFirstCandles(context.Background(), "NOPE", types.Period{}, types.Range{}, 1)
	if err == nil {
		t.Fatal("expected error for unknown instrument")
	}
}
