package indicator

import (
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row builds one aligned bar: the dot and band carry the projection
// convention (they were sourced one bar earlier and project onto ts).
func row(ts time.Time, close, dot, upper, lower float64, dir TrendDirection, kind MarketStateKind) alignedBar {
	return alignedBar{
		b: bar.Bar{
			Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts,
			Open: close, High: close + 0.5, Low: close - 0.5, Close: close, Volume: 1,
		},
		dot: PLdotPoint{
			Symbol: "ABT", SourceTimestamp: ts.Add(-5 * time.Minute),
			ProjectionTimestamp: ts, Value: dot, IsProjected: true,
		},
		band:  Band{Timestamp: ts, Upper: upper, Lower: lower, Center: dot, Width: upper - lower},
		state: State{Timestamp: ts, Kind: kind, Direction: dir},
	}
}

func TestDetectPush_ThreeBarsOutsideEnvelope(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	rows := []alignedBar{
		row(ts(0), 101, 100, 102, 98, Up, Trend), // inside envelope: not part of the push
		row(ts(1), 103, 100, 102, 98, Up, Trend),
		row(ts(2), 104, 100, 102, 98, Up, Trend),
		row(ts(3), 105, 100, 102, 98, Up, Trend),
		row(ts(4), 101, 100, 102, 98, Up, Trend), // back inside: push window closed
	}

	events := detectPush(rows, DefaultPatternConfig())
	require.Len(t, events, 1)
	assert.Equal(t, PldotPush, events[0].Kind)
	assert.Equal(t, 1, events[0].Direction)
	assert.Equal(t, 3, events[0].Strength)
	assert.Equal(t, ts(1), events[0].Start)
	assert.Equal(t, ts(3), events[0].End)
}

func TestDetectPush_TwoBarsIsNotEnough(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	rows := []alignedBar{
		row(ts(0), 103, 100, 102, 98, Up, Trend),
		row(ts(1), 104, 100, 102, 98, Up, Trend),
		row(ts(2), 101, 100, 102, 98, Up, Trend),
	}
	assert.Empty(t, detectPush(rows, DefaultPatternConfig()))
}

func TestDetectExhaust_ExtensionThenReversal(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	// close 107 is ~4.9% beyond the upper band at 102; next bar falls
	// back more than 0.5%.
	rows := []alignedBar{
		row(ts(0), 107, 100, 102, 98, Up, Trend),
		row(ts(1), 105, 100, 102, 98, Up, Trend),
	}
	events := detectExhaust(rows, DefaultPatternConfig())
	require.Len(t, events, 1)
	assert.Equal(t, Exhaust, events[0].Kind)
	assert.Equal(t, -1, events[0].Direction)
	assert.Equal(t, ts(0), events[0].Start)
	assert.Equal(t, ts(1), events[0].End)
}

func TestDetectExhaust_NoReversalNoEvent(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	rows := []alignedBar{
		row(base, 107, 100, 102, 98, Up, Trend),
		row(base.Add(5*time.Minute), 107.2, 100, 102, 98, Up, Trend),
	}
	assert.Empty(t, detectExhaust(rows, DefaultPatternConfig()))
}

func TestDetectOscillation_AlternatingSidesInCongestion(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	rows := []alignedBar{
		row(ts(0), 101, 100, 103, 97, Neutral, CongestionAction),
		row(ts(1), 99, 100, 103, 97, Neutral, CongestionAction),
		row(ts(2), 101, 100, 103, 97, Neutral, CongestionAction),
		row(ts(3), 99, 100, 103, 97, Neutral, CongestionAction),
	}
	events := detectOscillation(rows, DefaultPatternConfig())
	require.Len(t, events, 1)
	assert.Equal(t, CongestionOscillation, events[0].Kind)
	assert.Equal(t, 0, events[0].Direction)
	assert.Equal(t, 4, events[0].Strength)
}

func TestDetectOscillation_BarOutsideEnvelopeBreaksRun(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	rows := []alignedBar{
		row(ts(0), 101, 100, 103, 97, Neutral, CongestionAction),
		row(ts(1), 99, 100, 103, 97, Neutral, CongestionAction),
		row(ts(2), 104, 100, 103, 97, Neutral, CongestionAction), // outside envelope
		row(ts(3), 99, 100, 103, 97, Neutral, CongestionAction),
	}
	assert.Empty(t, detectOscillation(rows, DefaultPatternConfig()))
}

func TestDetectRefresh_ConvergenceTowardPLdot(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	// prior bar extended 3% above the dot; current bar converges to 1%.
	rows := []alignedBar{
		row(ts(0), 103, 100, 105, 95, Up, Trend),
		row(ts(1), 101, 100, 105, 95, Up, Trend),
	}
	events := detectRefresh(rows, DefaultPatternConfig())
	require.Len(t, events, 1)
	assert.Equal(t, PldotRefresh, events[0].Kind)
	assert.Equal(t, 1, events[0].Direction)
}

func TestDetectCWave_RisingBandWithClosesAtEdge(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * 5 * time.Minute) }

	rows := []alignedBar{
		row(ts(0), 103, 100, 102, 98, Up, Trend),
		row(ts(1), 104, 101, 103, 99, Up, Trend),
		row(ts(2), 105, 102, 104, 100, Up, Trend),
	}
	events := detectCWave(rows, DefaultPatternConfig())
	require.Len(t, events, 1)
	assert.Equal(t, CWave, events[0].Kind)
	assert.Equal(t, 1, events[0].Direction)
	assert.Equal(t, 3, events[0].Strength)
}

// TestDetectPatterns_EndToEnd feeds real kernel output through the
// detector: each bar pairs with the dot and band projected onto it.
// Closes rise 5 per bar, so every later bar sits far outside a 2%
// envelope around its projected dot, and the trend confirms on the
// third qualifying bar.
func TestDetectPatterns_EndToEnd(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	closes := []float64{100, 105, 110, 115, 120, 125, 130, 135}
	bars := closeSeries(base, closes)

	dots := PLdot(bars, DefaultDisplacement)
	bands := Envelope(bars, dots, EnvelopeConfig{Method: MethodPercent, PercentP: 0.02})
	states := ClassifyState(bars, dots, DefaultStateConfig())

	events := DetectPatterns(bars, dots, bands, states, DefaultPatternConfig())
	var push *PatternEvent
	for i := range events {
		if events[i].Kind == PldotPush {
			push = &events[i]
		}
	}
	require.NotNil(t, push)
	// the trend confirms on bar 5; bars 5..7 close outside the envelope
	// in the trend direction.
	assert.Equal(t, 1, push.Direction)
	assert.Equal(t, 3, push.Strength)
	assert.Equal(t, bars[5].Timestamp, push.Start)
	assert.Equal(t, bars[7].Timestamp, push.End)
}
