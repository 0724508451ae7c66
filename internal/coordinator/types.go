// Package coordinator implements the Multi-Timeframe Coordinator (spec
// component E): aligning a higher-timeframe context bundle with a
// trading-timeframe bundle into one analysis record.
package coordinator

import "time"

type AlignmentType string

const (
	Perfect     AlignmentType = "perfect"
	Partial     AlignmentType = "partial"
	Divergent   AlignmentType = "divergent"
	Conflicting AlignmentType = "conflicting"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type RecommendedAction string

const (
	ActionLong   RecommendedAction = "long"
	ActionShort  RecommendedAction = "short"
	ActionWait   RecommendedAction = "wait"
	ActionReduce RecommendedAction = "reduce"
)

// ConfluenceZone is a price band confirmed by >=2 timeframes (spec §3).
type ConfluenceZone struct {
	Center     float64
	Upper      float64
	Lower      float64
	ZoneType   string // support | resistance | pivot
	Strength   int    // count of contributing timeframes
	Timeframes []string
	FirstTouch time.Time
	LastTouch  time.Time
}

// AnalysisRecord is one (symbol, HTF, TTF, timestamp) analysis (spec §3).
type AnalysisRecord struct {
	Symbol    string
	HTF       string
	TTF       string
	Timestamp time.Time

	HTFTrend       string
	HTFStrength    float64
	TTFTrend       string
	AlignmentScore float64
	AlignmentType  AlignmentType
	TradePermitted bool

	HTFPLdot             float64
	TTFPLdot             float64
	PLdotDistancePercent float64

	SignalStrength    float64
	RiskLevel         RiskLevel
	RecommendedAction RecommendedAction

	PatternConfluence bool
	ConfluenceZones   []ConfluenceZone
}
