package indicator

import (
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

// DefaultDisplacement is the default forward projection offset in bars
// (spec §3: "Default displacement = 1").
const DefaultDisplacement = 1

func typicalPrice(b bar.Bar) float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// PLdot computes the PLdot series for bars[2:] (spec §4.C.1). displacement
// must be >= 1; callers needing the documented default pass
// DefaultDisplacement. Bars must be sorted ascending by timestamp; the
// first two bars yield no output point.
func PLdot(bars []bar.Bar, displacement int) []PLdotPoint {
	if displacement < 1 {
		displacement = DefaultDisplacement
	}
	if len(bars) < 3 {
		return nil
	}
	period := bars[0].Interval.Duration()
	out := make([]PLdotPoint, 0, len(bars)-2)
	for i := 2; i < len(bars); i++ {
		avg := (typicalPrice(bars[i-2]) + typicalPrice(bars[i-1]) + typicalPrice(bars[i])) / 3.0
		proj := bars[i].Timestamp.Add(time.Duration(displacement) * period)
		out = append(out, PLdotPoint{
			Symbol:              bars[i].Symbol,
			SourceTimestamp:     bars[i].Timestamp,
			ProjectionTimestamp: proj,
			Value:               avg,
			IsProjected:         proj.After(bars[i].Timestamp),
		})
	}
	return out
}

// ProjectedAt returns the PLdot point whose ProjectionTimestamp equals
// ts — the dot that applies to the bar closing at ts — and whether one
// exists.
func ProjectedAt(points []PLdotPoint, ts time.Time) (PLdotPoint, bool) {
	for _, p := range points {
		if p.ProjectionTimestamp.Equal(ts) {
			return p, true
		}
	}
	return PLdotPoint{}, false
}
