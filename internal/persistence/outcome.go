package persistence

import (
	"context"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

// OutcomeEvaluator re-scores previously persisted signals against the
// bars that have closed since they fired, writing WIN/LOSS/NEUTRAL back
// onto generated_signals once a signal's window has resolved. Signals
// still inside their TTL with neither level touched stay untouched
// (PENDING is implied by an absent outcome).
type OutcomeEvaluator struct {
	Signals  SignalsRepo
	Bars     bar.Store
	Interval bar.Interval
	TTL      time.Duration // matches the generator's signal_ttl
}

// EvaluateSymbol evaluates every unresolved signal for symbol whose
// timestamp falls in [from, now], returning how many were resolved.
func (e OutcomeEvaluator) EvaluateSymbol(ctx context.Context, symbol string, from, now time.Time) (int, error) {
	rows, err := e.Signals.ListBySymbol(ctx, symbol, from, now)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, row := range rows {
		if row.Outcome != nil && *row.Outcome != signal.OutcomePending {
			continue
		}
		sig := &signal.Signal{
			Symbol:          row.Symbol,
			SignalType:      signal.Type(row.SignalType),
			SignalTimestamp: row.SignalTS,
			EntryPrice:      row.Entry,
			StopLoss:        row.Stop,
			TargetPrice:     row.Target,
			ExpiresAt:       row.SignalTS.Add(e.TTL),
		}
		bars, err := e.Bars.Get(ctx, symbol, e.Interval, row.SignalTS, now)
		if err != nil {
			return resolved, err
		}
		out := signal.EvaluateOutcome(sig, bars, now)
		if out.Result == signal.OutcomePending {
			continue
		}
		if err := e.Signals.RecordOutcome(ctx, row.SignalID, FromOutcome(out, now)); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
