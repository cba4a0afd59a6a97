// Package candle turns a (instrument, period, range) query into a lazy
// stream by repeatedly issuing bounded-size window queries forward or
// backward in time, chaining pages across the exchange's fixed per-call
// batch limit.
package candle

import (
	"context"
	"iter"

	"github.com/exchg/excli/types"
	"github.com/exchg/excli/xerrors"
)

// Fetcher is the unary candle query the pagination engine drives. Both
// directions share one interface; QueryFirstCandles/QueryLastCandles
// mirror the two request kinds spec.md names.
type Fetcher interface {
	QueryFirstCandles(ctx context.Context, instrument string, period types.Period, rng types.Range, first int) ([]types.Candle, error)
	QueryLastCandles(ctx context.Context, instrument string, period types.Period, rng types.Range, last int) ([]types.Candle, error)
}

// Forward drives rng.Start forward across pages: each page query is
// QueryFirstCandles{rng, first=limit}; once a page drains, the next
// page's start becomes Excluded(lastTs) with the same end bound. An empty
// initial range, an empty page, a page shorter than limit (yielded first),
// or a non-monotonic page (whose last timestamp did not strictly advance
// past the previous page's join point) terminates the stream with no
// further wire calls.
func Forward(ctx context.Context, f Fetcher, instrument string, period types.Period, rng types.Range, limit int) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		if rng.IsEmpty() {
			return
		}

		var lastJoin types.Bound
		haveJoin := false

		for {
			page, err := f.QueryFirstCandles(ctx, instrument, period, rng, limit)
			if err != nil {
				yield(types.Candle{}, err)
				return
			}
			if len(page) == 0 {
				return
			}

			last := page[len(page)-1]
			if haveJoin && !last.Ts.After(lastJoin.At) {
				yield(types.Candle{}, xerrors.New(xerrors.Other, "candle: non-monotonic page, terminating pagination"))
				return
			}

			for _, c := range page {
				if !yield(c, nil) {
					return
				}
			}

			if len(page) < limit {
				return
			}

			lastJoin = types.ExcludedAt(last.Ts)
			haveJoin = true
			rng = rng.WithStart(lastJoin)
			if rng.IsEmpty() {
				return
			}
		}
	}
}

// Backward is the symmetric mode: each page query is
// QueryLastCandles{rng, last=limit}; the next page's end becomes
// Excluded(firstTs) of the previous page (the earliest timestamp yielded
// so far), preserving ascending-time yield order within each page. It
// terminates on the same conditions as Forward.
func Backward(ctx context.Context, f Fetcher, instrument string, period types.Period, rng types.Range, limit int) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		if rng.IsEmpty() {
			return
		}

		var lastJoin types.Bound
		haveJoin := false

		for {
			page, err := f.QueryLastCandles(ctx, instrument, period, rng, limit)
			if err != nil {
				yield(types.Candle{}, err)
				return
			}
			if len(page) == 0 {
				return
			}

			first := page[0]
			if haveJoin && !first.Ts.Before(lastJoin.At) {
				yield(types.Candle{}, xerrors.New(xerrors.Other, "candle: non-monotonic page, terminating pagination"))
				return
			}

			for _, c := range page {
				if !yield(c, nil) {
					return
				}
			}

			if len(page) < limit {
				return
			}

			lastJoin = types.ExcludedAt(first.Ts)
			haveJoin = true
			rng = rng.WithEnd(lastJoin)
			if rng.IsEmpty() {
				return
			}
		}
	}
}
