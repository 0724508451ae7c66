package indicator

import (
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeSeries builds bars whose typical price equals the close (high =
// close+1, low = close-1), so PLdot values are exact means of closes.
func closeSeries(base time.Time, closes []float64) []bar.Bar {
	var bars []bar.Bar
	for i, c := range closes {
		bars = append(bars, bar.Bar{
			Symbol: "ABT", Interval: bar.Interval5m,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 1,
		})
	}
	return bars
}

// TestClassifyState_TrendUpThenCongestionEntrance matches spec scenario
// 2, running real PLdot output through the classifier so each bar is
// judged against the dot projected onto it (sourced from the prior
// three bars), not the dot computed from the bar itself.
func TestClassifyState_TrendUpThenCongestionEntrance(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := closeSeries(base, []float64{100, 101, 102, 103, 104, 105, 95})

	dots := PLdot(bars, DefaultDisplacement)
	require.Len(t, dots, 5)
	// the dot projected onto bar 3 is the mean of closes 0..2.
	dot3, ok := ProjectedAt(dots, bars[3].Timestamp)
	require.True(t, ok)
	assert.InDelta(t, 101.0, dot3.Value, 1e-9)

	states := ClassifyState(bars, dots, DefaultStateConfig())
	require.Len(t, states, 4) // bars 3..6 have a dot projected onto them

	// bars 3..5 close above their projected dots with a rising dot; the
	// third such bar confirms the trend.
	assert.Equal(t, Trend, states[2].Kind)
	assert.Equal(t, Up, states[2].Direction)
	assert.Equal(t, 3, states[2].BarsInState)
	assert.Equal(t, Rising, states[2].SlopeTrend)
	assert.Equal(t, bars[5].Timestamp, states[2].Timestamp)

	// bar 6 closes below its projected dot for the first time.
	assert.Equal(t, CongestionEntrance, states[3].Kind)
	assert.Equal(t, Neutral, states[3].Direction)
}

func TestClassifyState_TooLittleHistoryDefaultsToCongestion(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := closeSeries(base, []float64{100, 101, 102, 103})

	states := ClassifyState(bars, PLdot(bars, DefaultDisplacement), DefaultStateConfig())
	require.Len(t, states, 1)
	assert.Equal(t, CongestionAction, states[0].Kind)
	assert.Equal(t, Neutral, states[0].Direction)
}
