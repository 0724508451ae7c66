package signal

import (
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

const (
	OutcomeWin     = "WIN"
	OutcomeLoss    = "LOSS"
	OutcomeNeutral = "NEUTRAL"
	OutcomePending = "PENDING"
)

// EvaluateOutcome computes a signal's post-hoc outcome from the bars
// that closed after it fired. A long wins when a later bar's high
// reaches the target and loses when a low reaches the stop; when one
// bar spans both, the stop is assumed to trigger first, the same
// conservative rule the backtester applies. A signal whose TTL passes
// with neither level touched is NEUTRAL, marked to the last close;
// before the TTL it stays PENDING. bars must be sorted ascending.
func EvaluateOutcome(s *Signal, bars []bar.Bar, now time.Time) Outcome {
	out := Outcome{Result: OutcomePending}

	for _, b := range bars {
		if !b.Timestamp.After(s.SignalTimestamp) {
			continue
		}
		if b.Timestamp.After(s.ExpiresAt) {
			break
		}
		if out.RealizedHigh == 0 || b.High > out.RealizedHigh {
			out.RealizedHigh = b.High
		}
		if out.RealizedLow == 0 || b.Low < out.RealizedLow {
			out.RealizedLow = b.Low
		}
		out.RealizedClose = b.Close

		var hitStop, hitTarget bool
		switch s.SignalType {
		case Long:
			hitStop = b.Low <= s.StopLoss
			hitTarget = b.High >= s.TargetPrice
		case Short:
			hitStop = b.High >= s.StopLoss
			hitTarget = b.Low <= s.TargetPrice
		default:
			return out
		}

		switch {
		case hitStop:
			out.Result = OutcomeLoss
			out.PnLPercent = pnlPct(s.SignalType, s.EntryPrice, s.StopLoss)
			return out
		case hitTarget:
			out.Result = OutcomeWin
			out.PnLPercent = pnlPct(s.SignalType, s.EntryPrice, s.TargetPrice)
			return out
		}
	}

	if now.After(s.ExpiresAt) {
		out.Result = OutcomeNeutral
		if out.RealizedClose != 0 {
			out.PnLPercent = pnlPct(s.SignalType, s.EntryPrice, out.RealizedClose)
		}
	}
	return out
}

func pnlPct(typ Type, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	pct := (exit - entry) / entry * 100
	if typ == Short {
		pct = -pct
	}
	return pct
}
