// Package bundle implements the Timeframe Bundle (spec component D): a
// cached per-symbol/per-interval view of bars plus the indicator kernel
// output, with a sorted timestamp index giving O(log n) as-of lookups.
package bundle

import (
	"sort"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
)

// Bundle holds one (symbol, interval)'s materialized series.
type Bundle struct {
	Symbol   string
	Interval bar.Interval
	Version  int // bumped by Manager each time it builds this key's bundle

	Bars     []bar.Bar
	PLdots   []indicator.PLdotPoint
	Envelope []indicator.Band
	States   []indicator.State
	Patterns []indicator.PatternEvent

	dotTimes   []time.Time
	bandTimes  []time.Time
	stateTimes []time.Time
}

// Build materializes a Bundle from a bar sequence using the indicator
// kernel. bars must be sorted ascending by Timestamp.
func Build(symbol string, interval bar.Interval, bars []bar.Bar, displacement int, envCfg indicator.EnvelopeConfig, stateCfg indicator.StateConfig, patCfg indicator.PatternConfig) *Bundle {
	dots := indicator.PLdot(bars, displacement)
	bands := indicator.Envelope(bars, dots, envCfg)
	states := indicator.ClassifyState(bars, dots, stateCfg)
	patterns := indicator.DetectPatterns(bars, dots, bands, states, patCfg)

	b := &Bundle{
		Symbol:   symbol,
		Interval: interval,
		Bars:     bars,
		PLdots:   dots,
		Envelope: bands,
		States:   states,
		Patterns: patterns,
	}
	// PLdot as-of lookups are indexed by ProjectionTimestamp — the
	// instant the projection applies to — per spec §4.D. Envelope bands
	// carry the same projection instant and states the bar's own
	// timestamp, so StateAt/PLdotAt/EnvelopeAt at a bar close all
	// resolve to the same bar's context.
	for _, d := range dots {
		b.dotTimes = append(b.dotTimes, d.ProjectionTimestamp)
	}
	for _, bd := range bands {
		b.bandTimes = append(b.bandTimes, bd.Timestamp)
	}
	for _, s := range states {
		b.stateTimes = append(b.stateTimes, s.Timestamp)
	}
	return b
}

// asOfIndex returns the index of the most recent entry whose timestamp
// is <= t, or -1 if none qualifies. times must be sorted ascending.
func asOfIndex(times []time.Time, t time.Time) int {
	i := sort.Search(len(times), func(i int) bool { return times[i].After(t) })
	return i - 1
}

// StateAt returns the most recent state whose timestamp <= t.
func (b *Bundle) StateAt(t time.Time) (indicator.State, bool) {
	i := asOfIndex(b.stateTimes, t)
	if i < 0 {
		return indicator.State{}, false
	}
	return b.States[i], true
}

// PLdotAt returns the most recent PLdot point whose projection applies
// at or before t.
func (b *Bundle) PLdotAt(t time.Time) (indicator.PLdotPoint, bool) {
	i := asOfIndex(b.dotTimes, t)
	if i < 0 {
		return indicator.PLdotPoint{}, false
	}
	return b.PLdots[i], true
}

// EnvelopeAt returns the most recent envelope band whose timestamp <= t.
func (b *Bundle) EnvelopeAt(t time.Time) (indicator.Band, bool) {
	i := asOfIndex(b.bandTimes, t)
	if i < 0 {
		return indicator.Band{}, false
	}
	return b.Envelope[i], true
}

// PatternsActiveAt returns patterns whose [Start, End] window covers t.
func (b *Bundle) PatternsActiveAt(t time.Time) []indicator.PatternEvent {
	var out []indicator.PatternEvent
	for _, p := range b.Patterns {
		if !p.Start.After(t) && !p.End.Before(t) {
			out = append(out, p)
		}
	}
	return out
}

// ATR20 computes a trailing 20-bar average true range baseline as of t,
// used by the coordinator's risk-level classification (spec §4.E.7).
func (b *Bundle) ATR20(t time.Time) float64 {
	return b.ATR(t, 20)
}

// ATR computes a trailing `window`-bar average true range as of t.
func (b *Bundle) ATR(t time.Time, window int) float64 {
	var rows []bar.Bar
	for _, bb := range b.Bars {
		if bb.Timestamp.After(t) {
			break
		}
		rows = append(rows, bb)
	}
	if len(rows) < 2 {
		return 0
	}
	start := len(rows) - window
	if start < 1 {
		start = 1
	}
	sum, n := 0.0, 0
	for i := start; i < len(rows); i++ {
		h, l, cprev := rows[i].High, rows[i].Low, rows[i-1].Close
		tr := h - l
		if d := abs(h - cprev); d > tr {
			tr = d
		}
		if d := abs(l - cprev); d > tr {
			tr = d
		}
		sum += tr
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
