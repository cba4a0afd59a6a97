package demo

import (
	"context"

	"github.com/exchg/excli/exchange/demo/wireproto"
	"github.com/exchg/excli/types"
	"github.com/exchg/excli/xerrors"
)

// QueryFirstCandles implements candle.Fetcher: the first up-to-first
// candles at or after rng.Start and before rng.End, fetched from the
// reference server's seeded 1-minute history.
func (e *Exchange) QueryFirstCandles(ctx context.Context, instrumentName string, period types.Period, rng types.Range, first int) ([]types.Candle, error) {
	return e.queryCandles(ctx, instrumentName, period, rng, first, wireproto.Forward)
}

// QueryLastCandles implements candle.Fetcher: the last up-to-last candles
// at or before rng.End and at/after rng.Start, in ascending order.
func (e *Exchange) QueryLastCandles(ctx context.Context, instrumentName string, period types.Period, rng types.Range, last int) ([]types.Candle, error) {
	return e.queryCandles(ctx, instrumentName, period, rng, last, wireproto.Backward)
}

func (e *Exchange) queryCandles(ctx context.Context, instrumentName string, period types.Period, rng types.Range, limit int, dir wireproto.CandleDirection) ([]types.Candle, error) {
	payload, err := callHTTP(ctx, e.wiring.client, wireproto.CandlesRequest{
		Instrument: instrumentName,
		Period:     period,
		Range:      rng,
		Limit:      limit,
		Direction:  dir,
	})
	if err != nil {
		return nil, err
	}
	resp, ok := payload.(wireproto.CandlesResponse)
	if !ok {
		return nil, xerrors.New(xerrors.Other, "demo: unexpected candles response type")
	}
	return resp.Candles, nil
}
