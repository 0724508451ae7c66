// Package bar implements the Bar Store (spec component A): idempotent
// OHLCV persistence keyed by (symbol, interval, timestamp), with
// on-demand aggregation from a declared base interval to coarser ones.
package bar

import (
	"fmt"
	"math"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
)

// Interval is one of the seven closed intervals the platform supports.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock span of one bar of this interval.
// 1d is treated as exactly 24h; session-calendar alignment is the
// exchange calendar's concern, not the bar store's.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether iv is one of the seven declared intervals.
func (iv Interval) Valid() bool {
	return iv.Duration() > 0
}

// round6 applies the spec's "round stored values to 6 decimals" rule.
func round6(v float64) float64 {
	const scale = 1e6
	return math.Round(v*scale) / scale
}

// Bar is one OHLCV observation. Prices are rounded to 6 decimal digits
// on ingestion (see Normalized); float64 carries them because no
// fixed-point decimal library appears anywhere in the retrieval pack and
// the spec explicitly allows floating point with a final rounding step.
type Bar struct {
	Symbol      string
	Interval    Interval
	Timestamp   time.Time // UTC, bucket-open boundary
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Provisional bool
}

// Validate checks the OHLCV invariants from spec §3. It never mutates
// the bar; callers skip the bar and log on error, per spec §7.
func (b Bar) Validate() error {
	if !b.Interval.Valid() {
		return fmt.Errorf("%w: unknown interval %q", errs.ErrInvalidBar, b.Interval)
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: non-positive OHLC for %s %s @ %s", errs.ErrInvalidBar, b.Symbol, b.Interval, b.Timestamp)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume for %s %s @ %s", errs.ErrInvalidBar, b.Symbol, b.Interval, b.Timestamp)
	}
	if b.Low > b.High {
		return fmt.Errorf("%w: low > high for %s %s @ %s", errs.ErrInvalidBar, b.Symbol, b.Interval, b.Timestamp)
	}
	if b.Low > b.Open || b.Low > b.Close || b.Open > b.High || b.Close > b.High {
		return fmt.Errorf("%w: low/high do not bound open/close for %s %s @ %s", errs.ErrInvalidBar, b.Symbol, b.Interval, b.Timestamp)
	}
	if !b.Timestamp.Equal(AlignTimestamp(b.Timestamp, b.Interval)) {
		return fmt.Errorf("%w: timestamp %s not aligned to %s boundary", errs.ErrInvalidBar, b.Timestamp, b.Interval)
	}
	return nil
}

// Normalized rounds the price fields to 6 decimals; applied once on
// ingestion so downstream equality/dedup comparisons are exact.
func (b Bar) Normalized() Bar {
	b.Open = round6(b.Open)
	b.High = round6(b.High)
	b.Low = round6(b.Low)
	b.Close = round6(b.Close)
	b.Volume = round6(b.Volume)
	return b
}

// AlignTimestamp floors t to the start of the interval-aligned bucket
// containing it, in UTC. Intraday intervals align to midnight UTC;
// 1d aligns to the UTC calendar day.
func AlignTimestamp(t time.Time, iv Interval) time.Time {
	t = t.UTC()
	d := iv.Duration()
	if d <= 0 {
		return t
	}
	if iv == Interval1d {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	epoch := t.Unix()
	sec := int64(d / time.Second)
	bucket := (epoch / sec) * sec
	return time.Unix(bucket, 0).UTC()
}

// Coverage summarizes the stored span for a (symbol, interval) key.
type Coverage struct {
	First time.Time
	Last  time.Time
	Count int
}

// Key identifies a bar series.
type Key struct {
	Symbol   string
	Interval Interval
}

// equalContent reports whether two bars carry identical OHLCV content,
// used for the "silently skip duplicates on identical content" rule.
func equalContent(a, b Bar) bool {
	return a.Open == b.Open && a.High == b.High && a.Low == b.Low &&
		a.Close == b.Close && a.Volume == b.Volume && a.Provisional == b.Provisional
}
