package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampBars drifts upward with an alternating wiggle, so closes are NOT
// monotonic (every even bar dips below its predecessor) while the
// three-bar PLdot mean still rises and every close stays above the dot
// projected onto its bar. A monotonic ramp would mask a one-bar
// misalignment between bars and their projected dots; this shape does
// not.
func rampBars(symbol string, interval bar.Interval, n int, base time.Time, step time.Duration, start, drift float64) []bar.Bar {
	var bars []bar.Bar
	for i := 0; i < n; i++ {
		price := start + drift*float64(i+1)
		if i%2 == 1 {
			price += 1.0
		}
		ts := base.Add(time.Duration(i) * step)
		bars = append(bars, bar.Bar{
			Symbol: symbol, Interval: interval, Timestamp: ts,
			Open: price - 0.1, High: price + 1, Low: price - 1, Close: price, Volume: 10,
		})
	}
	return bars
}

func TestClusterCandidates_DisjointZones(t *testing.T) {
	cands := []candidate{
		{Price: 100.0, ZoneType: "support", Timeframe: "1h"},
		{Price: 100.2, ZoneType: "support", Timeframe: "4h"},
		{Price: 110.0, ZoneType: "resistance", Timeframe: "1h"},
		{Price: 200.0, ZoneType: "pivot", Timeframe: "1h"}, // alone, no partner
	}
	zones := clusterCandidates(cands, 0.5)
	require.Len(t, zones, 1)
	assert.Equal(t, 2, zones[0].Strength)
	assert.InDelta(t, 100.1, zones[0].Center, 1e-9)
}

func TestAnalyze_PerfectAlignmentRecommendsLong(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	htfStore := bar.NewMemoryStore(bar.Interval1h)
	htfBars := rampBars("ABT", bar.Interval1h, 30, base, time.Hour, 100, 0.8)
	_, _, err := htfStore.Upsert(ctx, "ABT", bar.Interval1h, htfBars)
	require.NoError(t, err)

	ttfStore := bar.NewMemoryStore(bar.Interval5m)
	ttfBars := rampBars("ABT", bar.Interval5m, 30, base, 5*time.Minute, 100, 0.8)
	_, _, err = ttfStore.Upsert(ctx, "ABT", bar.Interval5m, ttfBars)
	require.NoError(t, err)

	htfMgr := bundle.NewManager(htfStore, bundle.DefaultConfig())
	ttfMgr := bundle.NewManager(ttfStore, bundle.DefaultConfig())

	end := base.Add(40 * time.Hour)
	htfB, err := htfMgr.Get(ctx, "ABT", bar.Interval1h, base, end)
	require.NoError(t, err)
	ttfB, err := ttfMgr.Get(ctx, "ABT", bar.Interval5m, base, end)
	require.NoError(t, err)

	at := htfBars[len(htfBars)-1].Timestamp
	rec, err := Analyze("ABT", "1h", "5m", htfB, ttfB, at, false, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "up", rec.HTFTrend)
	assert.Equal(t, "up", rec.TTFTrend)
	assert.Equal(t, Perfect, rec.AlignmentType)
	assert.Equal(t, 1.0, rec.AlignmentScore)
	assert.True(t, rec.TradePermitted)
	assert.Equal(t, ActionLong, rec.RecommendedAction)

	// the PLdot in play at `at` is the one projected onto that bar,
	// i.e. the mean of the three typical prices ending one bar earlier
	// (closes of bars 26..28), not a window including bar 29 itself.
	wantDot := (121.6 + 123.4 + 123.2) / 3
	assert.InDelta(t, wantDot, rec.HTFPLdot, 1e-9)
}
