package indicator

import (
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/stretchr/testify/require"
)

func threeBar(t *testing.T, base time.Time) []bar.Bar {
	t.Helper()
	mk := func(offset int, h, l, c float64) bar.Bar {
		return bar.Bar{
			Symbol: "ABT", Interval: bar.Interval5m,
			Timestamp: base.Add(time.Duration(offset) * 5 * time.Minute),
			Open:      c, High: h, Low: l, Close: c, Volume: 1,
		}
	}
	return []bar.Bar{
		mk(0, 102, 98, 100),
		mk(1, 103, 99, 101),
		mk(2, 104, 100, 102),
	}
}

func TestPLdot_ThreeBarScenario(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := threeBar(t, base)
	pts := PLdot(bars, DefaultDisplacement)
	require.Len(t, pts, 1)
	require.InDelta(t, 101.0, pts[0].Value, 1e-9)
	require.Equal(t, bars[2].Timestamp.Add(5*time.Minute), pts[0].ProjectionTimestamp)
	require.True(t, pts[0].IsProjected)
}

func TestPLdot_InsufficientBars(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := threeBar(t, base)[:2]
	require.Empty(t, PLdot(bars, DefaultDisplacement))
}
