package signal

import (
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/stretchr/testify/assert"
)

func outcomeBar(ts time.Time, high, low, close float64) bar.Bar {
	return bar.Bar{
		Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts,
		Open: close, High: high, Low: low, Close: close, Volume: 1,
	}
}

func longSignal(ts time.Time) *Signal {
	return &Signal{
		Symbol:          "ABT",
		SignalType:      Long,
		SignalTimestamp: ts,
		EntryPrice:      100,
		StopLoss:        98,
		TargetPrice:     104,
		ExpiresAt:       ts.Add(24 * time.Hour),
	}
}

func TestEvaluateOutcome_TargetHitIsWin(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sig := longSignal(ts)
	bars := []bar.Bar{
		outcomeBar(ts.Add(5*time.Minute), 102, 99, 101),
		outcomeBar(ts.Add(10*time.Minute), 105, 101, 104),
	}
	out := EvaluateOutcome(sig, bars, ts.Add(15*time.Minute))
	assert.Equal(t, OutcomeWin, out.Result)
	assert.InDelta(t, 4.0, out.PnLPercent, 1e-9)
}

func TestEvaluateOutcome_StopBeforeTargetWhenBarSpansBoth(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sig := longSignal(ts)
	bars := []bar.Bar{
		outcomeBar(ts.Add(5*time.Minute), 105, 97, 103),
	}
	out := EvaluateOutcome(sig, bars, ts.Add(10*time.Minute))
	assert.Equal(t, OutcomeLoss, out.Result)
	assert.InDelta(t, -2.0, out.PnLPercent, 1e-9)
}

func TestEvaluateOutcome_ShortWinsOnDrop(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sig := &Signal{
		Symbol:          "ABT",
		SignalType:      Short,
		SignalTimestamp: ts,
		EntryPrice:      100,
		StopLoss:        102,
		TargetPrice:     96,
		ExpiresAt:       ts.Add(24 * time.Hour),
	}
	bars := []bar.Bar{
		outcomeBar(ts.Add(5*time.Minute), 100, 95, 96),
	}
	out := EvaluateOutcome(sig, bars, ts.Add(10*time.Minute))
	assert.Equal(t, OutcomeWin, out.Result)
	assert.InDelta(t, 4.0, out.PnLPercent, 1e-9)
}

func TestEvaluateOutcome_PendingUntilExpiry(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sig := longSignal(ts)
	bars := []bar.Bar{
		outcomeBar(ts.Add(5*time.Minute), 101, 99, 100.5),
	}

	out := EvaluateOutcome(sig, bars, ts.Add(10*time.Minute))
	assert.Equal(t, OutcomePending, out.Result)

	out = EvaluateOutcome(sig, bars, ts.Add(25*time.Hour))
	assert.Equal(t, OutcomeNeutral, out.Result)
	assert.InDelta(t, 0.5, out.PnLPercent, 1e-9)
	assert.InDelta(t, 101.0, out.RealizedHigh, 1e-9)
	assert.InDelta(t, 99.0, out.RealizedLow, 1e-9)
	assert.InDelta(t, 100.5, out.RealizedClose, 1e-9)
}

func TestEvaluateOutcome_IgnoresBarsBeforeSignal(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sig := longSignal(ts)
	bars := []bar.Bar{
		outcomeBar(ts.Add(-5*time.Minute), 110, 90, 100), // would hit both levels
		outcomeBar(ts.Add(5*time.Minute), 101, 99, 100.5),
	}
	out := EvaluateOutcome(sig, bars, ts.Add(10*time.Minute))
	assert.Equal(t, OutcomePending, out.Result)
}
