package indicator

import (
	"math"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

// StateConfig carries the tunable thresholds of the market-state
// classifier (spec §4.C.3).
type StateConfig struct {
	// SlopeEpsilon is ε in |Δ| <= ε·pldot classifying "horizontal".
	SlopeEpsilon float64 // default 1e-3
	// TrendBarThreshold is the consecutive-bar count k required to
	// declare TREND/CONGESTION_ACTION (spec: "k >= 3").
	TrendBarThreshold int // default 3
}

func DefaultStateConfig() StateConfig {
	return StateConfig{SlopeEpsilon: 1e-3, TrendBarThreshold: 3}
}

func classifySlope(delta, dot, epsilon float64) SlopeClass {
	if dot == 0 {
		return Horizontal
	}
	if math.Abs(delta) <= epsilon*math.Abs(dot) {
		return Horizontal
	}
	if delta > 0 {
		return Rising
	}
	return Falling
}

// ClassifyState runs the five-state automaton over bars, each evaluated
// against the PLdot projected onto it (spec §4.C.3: "against the PLdot
// projection aligned to that bar") — the dot whose ProjectionTimestamp
// equals the bar's timestamp, not the dot computed from the bar itself.
// bars and dots must come from the same sequence PLdot(bars,
// displacement) was computed over. Bars with no dot projected onto them
// (the first displacement+2 bars) yield no state.
//
// Rule-ordering decision (spec §4.C.3 lists overlapping conditions;
// resolved here, see DESIGN.md): REVERSAL and CONGESTION_EXIT are both
// modeled as single-bar transitional labels emitted exactly on the bar
// where a qualifying run (k == TrendBarThreshold) first forms — REVERSAL
// when the qualifying direction is the opposite of the most recently
// confirmed trend, CONGESTION_EXIT when it matches. Bars after that
// (k > threshold) are labeled TREND by the plain majority rule.
func ClassifyState(bars []bar.Bar, dots []PLdotPoint, cfg StateConfig) []State {
	if cfg.SlopeEpsilon == 0 {
		cfg.SlopeEpsilon = 1e-3
	}
	if cfg.TrendBarThreshold == 0 {
		cfg.TrendBarThreshold = 3
	}
	dotAt := make(map[int64]PLdotPoint, len(dots))
	for _, d := range dots {
		dotAt[d.ProjectionTimestamp.Unix()] = d
	}

	var out []State
	var prevState State
	haveState := false
	lastTrendDir := Neutral
	var lastSide string // "above" | "below"
	var lastDotValue float64
	haveLastDot := false
	k := 0

	for _, b := range bars {
		dot, ok := dotAt[b.Timestamp.Unix()]
		if !ok {
			continue
		}
		side := "above"
		if b.Close < dot.Value {
			side = "below"
		}
		if side == lastSide {
			k++
		} else {
			k = 1
		}
		slope := Horizontal
		if haveLastDot {
			slope = classifySlope(dot.Value-lastDotValue, dot.Value, cfg.SlopeEpsilon)
		}

		qualifies := k >= cfg.TrendBarThreshold &&
			((side == "above" && slope == Rising) || (side == "below" && slope == Falling))

		var st State
		st.Timestamp = b.Timestamp
		st.SlopeTrend = slope

		switch {
		case qualifies:
			dir := Up
			if side == "below" {
				dir = Down
			}
			kind := Trend
			if k == cfg.TrendBarThreshold {
				switch {
				case lastTrendDir == Neutral:
					kind = Trend
				case dir == lastTrendDir:
					kind = CongestionExit
				default:
					kind = Reversal
				}
			}
			st.Kind = kind
			st.Direction = dir
			st.BarsInState = k
			lastTrendDir = dir
		case k >= cfg.TrendBarThreshold && slope == Horizontal:
			st.Kind = CongestionAction
			st.Direction = Neutral
			st.BarsInState = k
		case haveState && prevState.Kind == Trend && side != lastSide:
			st.Kind = CongestionEntrance
			st.Direction = Neutral
			st.BarsInState = 1
		default:
			st.Kind = CongestionAction
			st.Direction = Neutral
			if k > 0 {
				st.BarsInState = k
			} else {
				st.BarsInState = 1
			}
		}

		st.Confidence = stateConfidence(k, slope)
		out = append(out, st)

		prevState = st
		haveState = true
		lastSide = side
		lastDotValue = dot.Value
		haveLastDot = true
	}
	return out
}

// stateConfidence implements spec §4.C.3's confidence formula. The
// "slope strength term" is not numerically specified in the source; it
// is taken here as 1 when the PLdot slope is rising or falling and 0
// when it is horizontal.
func stateConfidence(k int, slope SlopeClass) float64 {
	kTerm := float64(k) / 3.0
	if kTerm > 1 {
		kTerm = 1
	}
	slopeTerm := 0.0
	if slope != Horizontal {
		slopeTerm = 1.0
	}
	c := 0.5 + 0.3*kTerm + 0.2*slopeTerm
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
