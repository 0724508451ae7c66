// Package indicator implements the pure, deterministic Indicator Kernel
// (spec component C): PLdot projection, envelope bands, the market-state
// classifier, and the pattern detector. Every exported function is a
// pure function over a bar sequence — no package-level state survives
// between calls, matching spec §3's ownership rule for component C.
package indicator

import "time"

// TrendDirection is the directional half of a market state.
type TrendDirection int

const (
	Neutral TrendDirection = iota
	Up
	Down
)

func (d TrendDirection) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "neutral"
	}
}

// SlopeClass classifies the per-bar change in the PLdot value.
type SlopeClass int

const (
	Horizontal SlopeClass = iota
	Rising
	Falling
)

func (s SlopeClass) String() string {
	switch s {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "horizontal"
	}
}

// PLdotPoint is a forward-projected level (spec §3, §4.C.1).
type PLdotPoint struct {
	Symbol              string
	ProjectionTimestamp time.Time
	// SourceTimestamp is the timestamp of the last bar the value was
	// computed from (bar i); ProjectionTimestamp = SourceTimestamp + displacement*period.
	SourceTimestamp time.Time
	Value           float64
	IsProjected     bool
}

// Band is an envelope around a PLdot value (spec §3, §4.C.2).
type Band struct {
	Timestamp time.Time
	Upper     float64
	Lower     float64
	Center    float64
	Method    string
	Width     float64
}

// MarketStateKind is one of the five automaton states (spec §3).
type MarketStateKind int

const (
	CongestionAction MarketStateKind = iota
	CongestionEntrance
	CongestionExit
	Trend
	Reversal
)

func (k MarketStateKind) String() string {
	switch k {
	case Trend:
		return "TREND"
	case CongestionEntrance:
		return "CONGESTION_ENTRANCE"
	case CongestionExit:
		return "CONGESTION_EXIT"
	case Reversal:
		return "REVERSAL"
	default:
		return "CONGESTION_ACTION"
	}
}

func (k MarketStateKind) IsCongestion() bool {
	return k == CongestionAction || k == CongestionEntrance || k == CongestionExit
}

// State is one bar's market-state classification (spec §3, §4.C.3).
type State struct {
	Timestamp   time.Time
	Kind        MarketStateKind
	Direction   TrendDirection
	BarsInState int
	SlopeTrend  SlopeClass
	Confidence  float64
}

// PatternKind is one of the fixed pattern catalog entries (spec §3).
type PatternKind int

const (
	PldotPush PatternKind = iota
	PldotRefresh
	Exhaust
	CWave
	CongestionOscillation
)

func (k PatternKind) String() string {
	switch k {
	case PldotPush:
		return "PLDOT_PUSH"
	case PldotRefresh:
		return "PLDOT_REFRESH"
	case Exhaust:
		return "EXHAUST"
	case CWave:
		return "C_WAVE"
	default:
		return "CONGESTION_OSCILLATION"
	}
}

// PatternEvent is one detected pattern occurrence (spec §3, §4.C.4).
type PatternEvent struct {
	Kind      PatternKind
	Direction int // -1, 0, +1
	Start     time.Time
	End       time.Time
	Strength  int
	Metadata  map[string]any
}
