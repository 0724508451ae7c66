package coordinator

import (
	"fmt"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
)

// Config carries the coordinator's tunable weights and thresholds
// (spec §4.E). Weights are documented defaults from spec.md; where the
// spec names a term without a formula ("pldot_slope_strength",
// "c_wave_or_push_strength", "lines_confluence_strength") this
// implementation's chosen formula lives in slopeStrengthTerm,
// patternStrengthTerm and confluenceStrengthTerm.
type Config struct {
	ClusteringTolerancePercent float64 // default 0.005 (0.5% of HTF PLdot)
	WeightAlignment            float64 // default 0.30
	WeightSlope                float64 // default 0.25
	WeightPattern              float64 // default 0.20
	WeightConfluence           float64 // default 0.15
	WeightHistoricalPrior      float64 // default 0.10
	HistoricalPrior            float64 // default 0.5, absent calibration data
	MinSignalStrengthForAction float64 // default 0.5
	RiskLowThreshold           float64 // default 0.8
	RiskHighThreshold          float64 // default 1.5
}

func DefaultConfig() Config {
	return Config{
		ClusteringTolerancePercent: 0.005,
		WeightAlignment:            0.30,
		WeightSlope:                0.25,
		WeightPattern:              0.20,
		WeightConfluence:           0.15,
		WeightHistoricalPrior:      0.10,
		HistoricalPrior:            0.5,
		MinSignalStrengthForAction: 0.5,
		RiskLowThreshold:           0.8,
		RiskHighThreshold:          1.5,
	}
}

func trendOf(s indicator.State) string {
	return s.Direction.String()
}

// Analyze implements spec §4.E end to end for one (htf, ttf, t) triple.
func Analyze(symbol, htfName, ttfName string, htf, ttf *bundle.Bundle, t time.Time, openPosition bool, cfg Config) (AnalysisRecord, error) {
	htfState, ok := htf.StateAt(t)
	if !ok {
		return AnalysisRecord{}, fmt.Errorf("%w: no HTF state at %s", errs.ErrInsufficientData, t)
	}
	ttfState, ok := ttf.StateAt(t)
	if !ok {
		return AnalysisRecord{}, fmt.Errorf("%w: no TTF state at %s", errs.ErrInsufficientData, t)
	}
	htfDot, ok := htf.PLdotAt(t)
	if !ok {
		return AnalysisRecord{}, fmt.Errorf("%w: no HTF pldot at %s", errs.ErrInsufficientData, t)
	}
	ttfDot, ok := ttf.PLdotAt(t)
	if !ok {
		return AnalysisRecord{}, fmt.Errorf("%w: no TTF pldot at %s", errs.ErrInsufficientData, t)
	}

	score, atype := alignment(htfState.Direction, ttfState.Direction, htfState.Kind, ttfState.Kind)
	tradePermitted := htfState.Direction != indicator.Neutral && (atype == Perfect || atype == Partial)

	var distPct float64
	if htfDot.Value != 0 {
		distPct = (ttfDot.Value - htfDot.Value) / htfDot.Value * 100
	}

	zones := confluenceZones(htfName, ttfName, htf, ttf, t, htfDot.Value, cfg.ClusteringTolerancePercent)

	slopeStrength := slopeStrengthTerm(ttfState)
	patternStrength := patternStrengthTerm(ttf, t)
	confluenceStrength := confluenceStrengthTerm(zones)

	signalStrength := cfg.WeightAlignment*score +
		cfg.WeightSlope*slopeStrength +
		cfg.WeightPattern*patternStrength +
		cfg.WeightConfluence*confluenceStrength +
		cfg.WeightHistoricalPrior*cfg.HistoricalPrior
	if signalStrength > 1 {
		signalStrength = 1
	}
	if signalStrength < 0 {
		signalStrength = 0
	}

	risk := riskLevel(ttf, t, cfg)

	action := ActionWait
	switch {
	case tradePermitted && htfState.Direction == indicator.Up && signalStrength >= cfg.MinSignalStrengthForAction:
		action = ActionLong
	case tradePermitted && htfState.Direction == indicator.Down && signalStrength >= cfg.MinSignalStrengthForAction:
		action = ActionShort
	case atype == Divergent && openPosition:
		action = ActionReduce
	}

	patternConfluence := false
	for _, p := range ttf.PatternsActiveAt(t) {
		if p.Kind == indicator.CWave || p.Kind == indicator.PldotPush {
			patternConfluence = true
			break
		}
	}

	return AnalysisRecord{
		Symbol:               symbol,
		HTF:                  htfName,
		TTF:                  ttfName,
		Timestamp:            t,
		HTFTrend:             trendOf(htfState),
		HTFStrength:          htfState.Confidence,
		TTFTrend:             trendOf(ttfState),
		AlignmentScore:       score,
		AlignmentType:        atype,
		TradePermitted:       tradePermitted,
		HTFPLdot:             htfDot.Value,
		TTFPLdot:             ttfDot.Value,
		PLdotDistancePercent: distPct,
		SignalStrength:       signalStrength,
		RiskLevel:            risk,
		RecommendedAction:    action,
		PatternConfluence:    patternConfluence,
		ConfluenceZones:      zones,
	}, nil
}

// alignment implements spec §4.E step 2: score 1.0 when both trends
// agree and are non-neutral, 0.5 when one is neutral, 0.0 when opposite.
// The 0.0 case splits into conflicting (both sides are actively
// trending against each other) vs divergent (a softer disagreement,
// e.g. one side mid-reversal or in congestion) — a split the spec
// leaves unresolved, chosen here.
func alignment(htfDir, ttfDir indicator.TrendDirection, htfKind, ttfKind indicator.MarketStateKind) (float64, AlignmentType) {
	switch {
	case htfDir == ttfDir && htfDir != indicator.Neutral:
		return 1.0, Perfect
	case htfDir == indicator.Neutral || ttfDir == indicator.Neutral:
		return 0.5, Partial
	default:
		if htfKind == indicator.Trend && ttfKind == indicator.Trend {
			return 0.0, Conflicting
		}
		return 0.0, Divergent
	}
}

func slopeStrengthTerm(s indicator.State) float64 {
	switch {
	case s.SlopeTrend == indicator.Rising && s.Direction == indicator.Up:
		return 1.0
	case s.SlopeTrend == indicator.Falling && s.Direction == indicator.Down:
		return 1.0
	case s.SlopeTrend == indicator.Horizontal:
		return 0.5
	default:
		return 0.2
	}
}

func patternStrengthTerm(b *bundle.Bundle, t time.Time) float64 {
	best := 0
	for _, p := range b.PatternsActiveAt(t) {
		if p.Kind != indicator.CWave && p.Kind != indicator.PldotPush {
			continue
		}
		if p.Strength > best {
			best = p.Strength
		}
	}
	v := float64(best) / 10.0
	if v > 1 {
		v = 1
	}
	return v
}

func confluenceStrengthTerm(zones []ConfluenceZone) float64 {
	v := float64(len(zones)) / 3.0
	if v > 1 {
		v = 1
	}
	return v
}

// riskLevel implements spec §4.E.7: TTF ATR relative to a 20-bar
// baseline. <=0.8x baseline is low, 0.8-1.5x is medium, else high.
func riskLevel(ttf *bundle.Bundle, t time.Time, cfg Config) RiskLevel {
	baseline := ttf.ATR20(t)
	current := ttf.ATR(t, 3)
	if baseline == 0 {
		return RiskMedium
	}
	ratio := current / baseline
	switch {
	case ratio <= cfg.RiskLowThreshold:
		return RiskLow
	case ratio <= cfg.RiskHighThreshold:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// confluenceZones collects support/resistance candidates from both
// bundles (PLdot +/- envelope edges, recent pattern breakout levels)
// and clusters them per spec §4.E.5.
func confluenceZones(htfName, ttfName string, htf, ttf *bundle.Bundle, t time.Time, htfPLdot, tolerancePct float64) []ConfluenceZone {
	tolerance := htfPLdot * tolerancePct

	var cands []candidate
	collect := func(tf string, b *bundle.Bundle) {
		band, ok := b.EnvelopeAt(t)
		if !ok {
			return
		}
		dot, _ := b.PLdotAt(t)
		cands = append(cands,
			candidate{Price: band.Upper, ZoneType: "resistance", Timeframe: tf, Touch: t},
			candidate{Price: band.Lower, ZoneType: "support", Timeframe: tf, Touch: t},
			candidate{Price: dot.Value, ZoneType: "pivot", Timeframe: tf, Touch: t},
		)
		for _, p := range b.PatternsActiveAt(t) {
			if p.Kind != indicator.PldotPush && p.Kind != indicator.Exhaust {
				continue
			}
			level := band.Upper
			zt := "resistance"
			if p.Direction < 0 {
				level = band.Lower
				zt = "support"
			}
			cands = append(cands, candidate{Price: level, ZoneType: zt, Timeframe: tf, Touch: p.End})
		}
	}
	collect(htfName, htf)
	collect(ttfName, ttf)

	if tolerance <= 0 {
		return nil
	}
	return clusterCandidates(cands, tolerance)
}
