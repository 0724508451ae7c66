package signal

import (
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/coordinator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
)

// Config carries the signal generator's gating thresholds, trade
// construction parameters, and confidence weights (spec §4.F). Where
// spec.md names a confidence term without a formula
// ("pldot_slope_strength"-style normalization for distance, the C-wave
// strength term, the lines-confluence term) this implementation's
// chosen formula lives in confidence(), with the distance scale set by
// PLdotDistanceNormPercent below.
type Config struct {
	MinSignalStrength float64       // default 0.60
	MinConfidence     float64       // default 0.65
	ATRStopMultiplier float64       // default 2.0 (k=2 per spec §4.F)
	ATRWindow         int           // default 14
	TTL               time.Duration // default 24h

	WeightAlignment  float64 // default 0.30
	WeightPLdot      float64 // default 0.25
	WeightCWave      float64 // default 0.20
	WeightLines      float64 // default 0.15
	WeightHistorical float64 // default 0.10
	HistoricalPrior  float64 // default 0.5

	// PLdotDistanceNormPercent is the % distance between HTF and TTF
	// PLdot that saturates the pldot-strength confidence term at 1.0.
	// spec.md names the term but not its scale; 5% is this
	// implementation's choice (Open Question, documented in DESIGN.md).
	PLdotDistanceNormPercent float64
}

func DefaultConfig() Config {
	return Config{
		MinSignalStrength:        0.60,
		MinConfidence:            0.65,
		ATRStopMultiplier:        2.0,
		ATRWindow:                14,
		TTL:                      24 * time.Hour,
		WeightAlignment:          0.30,
		WeightPLdot:              0.25,
		WeightCWave:              0.20,
		WeightLines:              0.15,
		WeightHistorical:         0.10,
		HistoricalPrior:          0.5,
		PLdotDistanceNormPercent: 5.0,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// confidence implements spec §4.F's confidence formula: a weighted sum
// distinct from the coordinator's signal_strength, combining alignment,
// PLdot separation, pattern context, and confluence depth.
func confidence(rec coordinator.AnalysisRecord, ttf *bundle.Bundle, t time.Time, cfg Config) float64 {
	alignmentTerm := rec.AlignmentScore

	pldotTerm := 0.0
	if cfg.PLdotDistanceNormPercent > 0 {
		d := rec.PLdotDistancePercent
		if d < 0 {
			d = -d
		}
		pldotTerm = clamp01(d / cfg.PLdotDistanceNormPercent)
	}

	cwaveTerm := 0.0
	for _, p := range ttf.PatternsActiveAt(t) {
		if p.Kind != indicator.CWave && p.Kind != indicator.PldotPush {
			continue
		}
		v := float64(p.Strength) / 10.0
		if v > cwaveTerm {
			cwaveTerm = v
		}
	}
	cwaveTerm = clamp01(cwaveTerm)

	linesTerm := clamp01(float64(len(rec.ConfluenceZones)) / 3.0)

	c := cfg.WeightAlignment*alignmentTerm +
		cfg.WeightPLdot*pldotTerm +
		cfg.WeightCWave*cwaveTerm +
		cfg.WeightLines*linesTerm +
		cfg.WeightHistorical*cfg.HistoricalPrior
	return clamp01(c)
}

// latestClose returns the most recent bar's close at or before t.
func latestClose(bars []bar.Bar, t time.Time) (float64, time.Time, bool) {
	var best *bar.Bar
	for i := range bars {
		if bars[i].Timestamp.After(t) {
			break
		}
		best = &bars[i]
	}
	if best == nil {
		return 0, time.Time{}, false
	}
	return best.Close, best.Timestamp, true
}

// nearestZoneAbove/nearestZoneBelow pick the confluence zone whose
// center is closest to entry on the requested side, for use as a stop
// or target candidate (spec §4.F trade construction).
func nearestZoneAbove(zones []coordinator.ConfluenceZone, entry float64) (float64, bool) {
	found := false
	best := 0.0
	for _, z := range zones {
		if z.Center <= entry {
			continue
		}
		if !found || z.Center < best {
			best = z.Center
			found = true
		}
	}
	return best, found
}

func nearestZoneBelow(zones []coordinator.ConfluenceZone, entry float64) (float64, bool) {
	found := false
	best := 0.0
	for _, z := range zones {
		if z.Center >= entry {
			continue
		}
		if !found || z.Center > best {
			best = z.Center
			found = true
		}
	}
	return best, found
}

// buildLong implements spec §4.F's long trade construction:
// stop_loss = min over {entry-k*ATR, nearest sub-PLdot support, nearest
// lower envelope edge}; target_price = max over {entry+k*ATR, nearest
// resistance confluence center}.
func buildLong(entry, atr float64, ttfDot indicator.PLdotPoint, band indicator.Band, zones []coordinator.ConfluenceZone, cfg Config) (stop, target float64) {
	stop = entry - cfg.ATRStopMultiplier*atr
	if ttfDot.Value < entry && ttfDot.Value < stop {
		stop = ttfDot.Value
	}
	if band.Lower < entry && band.Lower < stop {
		stop = band.Lower
	}

	target = entry + cfg.ATRStopMultiplier*atr
	if r, ok := nearestZoneAbove(zones, entry); ok && r > target {
		target = r
	}
	return stop, target
}

func buildShort(entry, atr float64, ttfDot indicator.PLdotPoint, band indicator.Band, zones []coordinator.ConfluenceZone, cfg Config) (stop, target float64) {
	stop = entry + cfg.ATRStopMultiplier*atr
	if ttfDot.Value > entry && ttfDot.Value > stop {
		stop = ttfDot.Value
	}
	if band.Upper > entry && band.Upper > stop {
		stop = band.Upper
	}

	target = entry - cfg.ATRStopMultiplier*atr
	if s, ok := nearestZoneBelow(zones, entry); ok && s < target {
		target = s
	}
	return stop, target
}

// Generate implements spec §4.F in live mode: entry_price is the
// latest TTF close at or before t.
func Generate(runID string, rec coordinator.AnalysisRecord, ttf *bundle.Bundle, ttfBars []bar.Bar, t time.Time, cfg Config) (*Signal, bool) {
	entry, entryTS, ok := latestClose(ttfBars, t)
	if !ok {
		return nil, false
	}
	return GenerateAtPrice(runID, rec, ttf, entry, entryTS, t, cfg)
}

// GenerateAtPrice implements spec §4.F's gating and trade construction
// given an explicit entry price and fill timestamp. The backtester uses
// this directly with the next bar's open (spec §4.F "or next-bar open
// in backtest mode"); Generate is the live-mode convenience wrapper
// that resolves entry from the latest close.
func GenerateAtPrice(runID string, rec coordinator.AnalysisRecord, ttf *bundle.Bundle, entry float64, entryTS time.Time, t time.Time, cfg Config) (*Signal, bool) {
	if rec.RecommendedAction != coordinator.ActionLong && rec.RecommendedAction != coordinator.ActionShort {
		return nil, false
	}
	if rec.SignalStrength < cfg.MinSignalStrength {
		return nil, false
	}
	conf := confidence(rec, ttf, t, cfg)
	if conf < cfg.MinConfidence {
		return nil, false
	}

	atr := ttf.ATR(t, cfg.ATRWindow)
	dot, _ := ttf.PLdotAt(t)
	band, _ := ttf.EnvelopeAt(t)

	var sigType Type
	var stop, target float64
	switch rec.RecommendedAction {
	case coordinator.ActionLong:
		sigType = Long
		stop, target = buildLong(entry, atr, dot, band, rec.ConfluenceZones, cfg)
	case coordinator.ActionShort:
		sigType = Short
		stop, target = buildShort(entry, atr, dot, band, rec.ConfluenceZones, cfg)
	}

	var rr float64
	switch sigType {
	case Long:
		if risk := entry - stop; risk > 0 {
			rr = (target - entry) / risk
		}
	case Short:
		if risk := stop - entry; risk > 0 {
			rr = (entry - target) / risk
		}
	}

	patterns := ttf.PatternsActiveAt(t)
	sig := &Signal{
		RunID:                runID,
		Symbol:               rec.Symbol,
		SignalTimestamp:      entryTS,
		SignalType:           sigType,
		EntryPrice:           entry,
		StopLoss:             stop,
		TargetPrice:          target,
		Confidence:           conf,
		SignalStrength:       rec.SignalStrength,
		TimeframeAlignment:   rec.AlignmentScore,
		RiskRewardRatio:      rr,
		HTFTrend:             rec.HTFTrend,
		TradingTFState:       rec.TTFTrend,
		ConfluenceZonesCount: len(rec.ConfluenceZones),
		PatternContext: PatternContext{
			Patterns: patterns,
			Indicators: IndicatorSnapshot{
				PLdot:         dot.Value,
				EnvelopeUpper: band.Upper,
				EnvelopeLower: band.Lower,
				ATR:           atr,
			},
		},
		ExpiresAt: entryTS.Add(cfg.TTL),
	}
	return sig, true
}
