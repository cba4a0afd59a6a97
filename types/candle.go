package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodKind selects how a Period's buckets are sized.
type PeriodKind int

const (
	// Year buckets candles by calendar year in the period's UTC offset.
	Year PeriodKind = iota
	// MonthKind buckets candles by calendar month in the period's UTC offset.
	MonthKind
	// DurationKind buckets candles by a fixed wall-clock duration.
	DurationKind
)

// Period describes a candle bucket size: a fixed duration or a calendar
// unit, both anchored to a UTC offset. Bucket boundaries are computed in
// that offset, not necessarily true UTC.
type Period struct {
	UTCOffset time.Duration
	Kind      PeriodKind
	Duration  time.Duration // meaningful only when Kind == DurationKind
}

// NewDurationPeriod builds a fixed-duration period at the given UTC offset.
func NewDurationPeriod(offset, d time.Duration) Period {
	return Period{UTCOffset: offset, Kind: DurationKind, Duration: d}
}

// Candle is one OHLCV bucket. Ts is the bucket start in the period's UTC
// offset; bucket boundaries are supplied by the exchange and are not
// snapped by the client.
type Candle struct {
	Ts     time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// BoundKind classifies one endpoint of a time range.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one endpoint (start or end) of a candle range query.
type Bound struct {
	Kind BoundKind
	At   time.Time
}

// Unbounded bound constructors.
func NoBound() Bound { return Bound{Kind: Unbounded} }

// IncludedAt builds a closed bound at t.
func IncludedAt(t time.Time) Bound { return Bound{Kind: Included, At: t} }

// ExcludedAt builds an open bound at t.
func ExcludedAt(t time.Time) Bound { return Bound{Kind: Excluded, At: t} }

// Range is a start/end pair of bounds over time.
type Range struct {
	Start Bound
	End   Bound
}

// IsEmpty reports whether the range can contain no candle, matching the
// closed/half-open/open comparison semantics spelled out for the
// pagination engine: start > end for closed-closed, start >= end as soon
// as either bound is exclusive, with strict comparison when both are
// exclusive (open-open collapses to the same >= test as half-open, since
// equality can never satisfy either exclusive side).
func (r Range) IsEmpty() bool {
	if r.Start.Kind == Unbounded || r.End.Kind == Unbounded {
		return false
	}
	if r.Start.Kind == Included && r.End.Kind == Included {
		return r.Start.At.After(r.End.At)
	}
	return !r.Start.At.Before(r.End.At)
}

// WithStart returns a copy of the range with a new start bound.
func (r Range) WithStart(b Bound) Range {
	r.Start = b
	return r
}

// WithEnd returns a copy of the range with a new end bound.
func (r Range) WithEnd(b Bound) Range {
	r.End = b
	return r
}
