package signal

import (
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/coordinator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ttfBundleAt(t *testing.T, base time.Time) (*bundle.Bundle, []bar.Bar) {
	var bars []bar.Bar
	price := 100.0
	for i := 0; i < 20; i++ {
		price += 0.5
		ts := base.Add(time.Duration(i) * 5 * time.Minute)
		bars = append(bars, bar.Bar{
			Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts,
			Open: price - 0.1, High: price + 1, Low: price - 1, Close: price, Volume: 10,
		})
	}
	b := bundle.Build("ABT", bar.Interval5m, bars, 1,
		indicator.DefaultEnvelopeConfig(), indicator.DefaultStateConfig(), indicator.DefaultPatternConfig())
	return b, bars
}

// baseRecord returns a LONG analysis record whose fields put its
// confidence above the 0.65 gate, with signal_strength set by the
// caller (spec §8 scenario 5: sufficient confidence with signal_strength
// 0.59 should NOT emit; raising signal_strength to 0.60 should).
func baseRecord(signalStrength float64) coordinator.AnalysisRecord {
	return coordinator.AnalysisRecord{
		Symbol:               "ABT",
		HTFTrend:             "up",
		TTFTrend:             "up",
		AlignmentScore:       1.0,
		RecommendedAction:    coordinator.ActionLong,
		SignalStrength:       signalStrength,
		PLdotDistancePercent: 5.0,
		ConfluenceZones: []coordinator.ConfluenceZone{
			{Center: 110, ZoneType: "resistance", Strength: 2},
			{Center: 115, ZoneType: "resistance", Strength: 2},
			{Center: 90, ZoneType: "support", Strength: 2},
		},
	}
}

func TestGenerate_SignalStrengthGate(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ttf, bars := ttfBundleAt(t, base)
	at := bars[len(bars)-1].Timestamp
	cfg := DefaultConfig()

	rec := baseRecord(0.59)
	_, ok := Generate("run1", rec, ttf, bars, at, cfg)
	assert.False(t, ok, "signal_strength below 0.60 must not emit")

	rec = baseRecord(0.60)
	sig, ok := Generate("run1", rec, ttf, bars, at, cfg)
	require.True(t, ok, "signal_strength at 0.60 with sufficient confidence must emit")
	assert.Equal(t, Long, sig.SignalType)
	assert.True(t, sig.Confidence >= cfg.MinConfidence)
}

func TestGenerate_NoActionNoSignal(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ttf, bars := ttfBundleAt(t, base)
	at := bars[len(bars)-1].Timestamp

	rec := baseRecord(0.9)
	rec.RecommendedAction = coordinator.ActionWait
	_, ok := Generate("run1", rec, ttf, bars, at, DefaultConfig())
	assert.False(t, ok)
}

// TestConfidence_Monotonic checks spec §8's invariant: weakly
// increasing every input component weakly increases confidence.
func TestConfidence_Monotonic(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ttf, _ := ttfBundleAt(t, base)
	at := base.Add(19 * 5 * time.Minute)
	cfg := DefaultConfig()

	low := baseRecord(0.9)
	low.AlignmentScore = 0.5
	low.PLdotDistancePercent = 1.0
	low.ConfluenceZones = low.ConfluenceZones[:1]

	high := baseRecord(0.9)
	high.AlignmentScore = 1.0
	high.PLdotDistancePercent = 5.0

	cLow := confidence(low, ttf, at, cfg)
	cHigh := confidence(high, ttf, at, cfg)
	assert.LessOrEqual(t, cLow, cHigh)
}
