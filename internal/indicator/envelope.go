package indicator

import (
	"math"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

// EnvelopeMethod selects one of the three band-sizing modes (spec §4.C.2).
type EnvelopeMethod string

const (
	MethodATR        EnvelopeMethod = "atr"
	MethodPercent    EnvelopeMethod = "percent"
	MethodPldotRange EnvelopeMethod = "pldot_range"
)

// EnvelopeConfig carries the tunable constants named in spec §4.C.2.
// Defaults match the spec's stated defaults exactly; PldotRangeMultiplier
// has no stated default in the spec (an Open Question) and defaults to
// 1.0 here.
type EnvelopeConfig struct {
	Method               EnvelopeMethod
	ATRPeriod            int     // default 14
	ATRMultiplier        float64 // default 2
	PercentP             float64 // default 0.02
	RangeWindow          int     // default 3
	PldotRangeMultiplier float64 // default 1.0 (undocumented in source)
}

// DefaultEnvelopeConfig returns the spec's stated defaults for the ATR
// method, the most commonly used of the three.
func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		Method:               MethodATR,
		ATRPeriod:            14,
		ATRMultiplier:        2,
		PercentP:             0.02,
		RangeWindow:          3,
		PldotRangeMultiplier: 1.0,
	}
}

// trueRange computes TR_i = max(h-l, |h-c_prev|, |l-c_prev|).
func trueRange(cur, prev bar.Bar) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// atrSeries computes a simple-mean ATR over the trailing `period` true
// ranges, aligned to bars[1:] (bar 0 has no previous close).
func atrSeries(bars []bar.Bar, period int) []float64 {
	if len(bars) < 2 {
		return nil
	}
	trs := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs[i-1] = trueRange(bars[i], bars[i-1])
	}
	out := make([]float64, len(trs))
	for i := range trs {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for j := start; j <= i; j++ {
			sum += trs[j]
		}
		out[i] = sum / float64(i-start+1)
	}
	return out
}

// Envelope computes the envelope band series, each band stamped with
// its PLdot point's ProjectionTimestamp — the bar the projection applies
// to (spec §4.C.2, §4.D) — so bands, dots, and states all line up on the
// same bar. bars must be the same sequence PLdot was computed from. The
// final dot projects one period past the last closed bar; its band is
// still emitted, sized from the trailing data available at the source
// bar.
func Envelope(bars []bar.Bar, dots []PLdotPoint, cfg EnvelopeConfig) []Band {
	if len(dots) == 0 {
		return nil
	}
	barIndex := make(map[int64]int, len(bars))
	for i, b := range bars {
		barIndex[b.Timestamp.Unix()] = i
	}

	var atrs []float64
	if cfg.Method == MethodATR {
		atrs = atrSeries(bars, cfg.ATRPeriod)
	}

	out := make([]Band, 0, len(dots))
	for di, dot := range dots {
		bi, ok := barIndex[dot.ProjectionTimestamp.Unix()]
		if !ok {
			// projection beyond the last closed bar: size from the
			// most recent bar available, the dot's source.
			bi, ok = barIndex[dot.SourceTimestamp.Unix()]
			if !ok {
				continue
			}
		}
		var upper, lower float64
		switch cfg.Method {
		case MethodPercent:
			p := cfg.PercentP
			if p == 0 {
				p = 0.02
			}
			upper = dot.Value * (1 + p)
			lower = dot.Value * (1 - p)
		case MethodPldotRange:
			w := cfg.RangeWindow
			if w <= 0 {
				w = 3
			}
			start := di - w + 1
			if start < 0 {
				start = 0
			}
			window := dots[start : di+1]
			mn, mx := window[0].Value, window[0].Value
			for _, p := range window {
				if p.Value < mn {
					mn = p.Value
				}
				if p.Value > mx {
					mx = p.Value
				}
			}
			m := cfg.PldotRangeMultiplier
			if m == 0 {
				m = 1.0
			}
			width := (mx - mn) * m
			upper = dot.Value + width/2
			lower = dot.Value - width/2
		default: // MethodATR
			// bi-1 in the ATR series corresponds to bars[bi], since
			// atrSeries is aligned to bars[1:].
			idx := bi - 1
			var a float64
			if idx >= 0 && idx < len(atrs) {
				a = atrs[idx]
			}
			k := cfg.ATRMultiplier
			if k == 0 {
				k = 2
			}
			upper = dot.Value + k*a
			lower = dot.Value - k*a
		}
		if lower > upper {
			lower, upper = upper, lower
		}
		out = append(out, Band{
			Timestamp: dot.ProjectionTimestamp,
			Upper:     upper,
			Lower:     lower,
			Center:    dot.Value,
			Method:    string(cfg.Method),
			Width:     upper - lower,
		})
	}
	return out
}
