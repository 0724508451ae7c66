package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/backtest"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/scheduler"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

// SchedulerPersister adapts a RunsAndSignalsRepo to scheduler.Persister,
// so the scheduler package never needs to import persistence's logical
// row types directly (spec §9: one-way data flow, no cyclic references).
type SchedulerPersister struct {
	Repo RunsAndSignalsRepo
}

func (p SchedulerPersister) PersistRun(ctx context.Context, run scheduler.RunRecord) error {
	return p.Repo.PersistRun(ctx, FromSchedulerRun(run))
}

// PersistSignals adapts the run's generated signal.Signal batch to its
// logical rows and writes them atomically per run_id (spec §5).
func (p SchedulerPersister) PersistSignals(ctx context.Context, runID string, signals []*signal.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	recs := make([]SignalRecord, 0, len(signals))
	for _, s := range signals {
		recs = append(recs, FromSignal(s))
	}
	return p.Repo.PersistSignals(ctx, runID, recs)
}

// FromSchedulerRun adapts a scheduler.RunRecord to its logical row.
func FromSchedulerRun(run scheduler.RunRecord) RunRecord {
	errs := make([]string, 0, len(run.Errors))
	for _, e := range run.Errors {
		errs = append(errs, fmt.Sprintf("%s: %s", e.Symbol, e.Reason))
	}
	return RunRecord{
		RunID:                     run.RunID,
		RunTS:                     run.RunTS,
		IntervalType:              run.IntervalType,
		SymbolsRequested:          run.SymbolsRequested,
		SymbolsProcessed:          run.SymbolsProcessed,
		SignalsGenerated:          run.SignalsGenerated,
		LatencyTotalMs:            run.LatencyTotalMs,
		LatencyDataFetchMs:        run.LatencyDataFetchMs,
		LatencyIndicatorCalcMs:    run.LatencyIndicatorCalcMs,
		LatencySignalGenerationMs: run.LatencySignalGenerationMs,
		LatencyNotificationMs:     run.LatencyNotificationMs,
		Status:                    string(run.Status),
		Errors:                    errs,
	}
}

// FromSignal adapts a generated signal.Signal to its logical row.
func FromSignal(s *signal.Signal) SignalRecord {
	indicators := map[string]interface{}{
		"pldot":          s.PatternContext.Indicators.PLdot,
		"envelope_upper": s.PatternContext.Indicators.EnvelopeUpper,
		"envelope_lower": s.PatternContext.Indicators.EnvelopeLower,
		"atr":            s.PatternContext.Indicators.ATR,
	}
	patterns := make([]map[string]interface{}, 0, len(s.PatternContext.Patterns))
	for _, p := range s.PatternContext.Patterns {
		patterns = append(patterns, map[string]interface{}{
			"kind":      p.Kind.String(),
			"direction": p.Direction,
			"strength":  p.Strength,
			"start":     p.Start,
			"end":       p.End,
		})
	}

	return SignalRecord{
		SignalID:             s.Symbol + "|" + s.RunID + "|" + s.SignalTimestamp.String(),
		RunID:                s.RunID,
		Symbol:               s.Symbol,
		SignalTS:             s.SignalTimestamp,
		SignalType:           string(s.SignalType),
		Entry:                s.EntryPrice,
		Stop:                 s.StopLoss,
		Target:               s.TargetPrice,
		Confidence:           s.Confidence,
		SignalStrength:       s.SignalStrength,
		TimeframeAlignment:   s.TimeframeAlignment,
		RRRatio:              s.RiskRewardRatio,
		HTFTrend:             s.HTFTrend,
		TradingTFState:       s.TradingTFState,
		ConfluenceZonesCount: s.ConfluenceZonesCount,
		PatternContext: map[string]interface{}{
			"patterns":   patterns,
			"indicators": indicators,
		},
	}
}

// FromOutcome adapts a signal's post-hoc evaluation to the row update
// written back onto generated_signals.
func FromOutcome(o signal.Outcome, evaluatedAt time.Time) SignalOutcome {
	return SignalOutcome{
		Outcome:     o.Result,
		ActualHigh:  o.RealizedHigh,
		ActualLow:   o.RealizedLow,
		ActualClose: o.RealizedClose,
		PnLPercent:  o.PnLPercent,
		EvaluatedAt: evaluatedAt,
	}
}

// FromBacktestResult adapts a backtest.Result into its logical rows.
func FromBacktestResult(backtestID, strategyName string, symbol *string, res *backtest.Result) (BacktestResultRecord, []BacktestTradeRecord) {
	var start, end time.Time
	if len(res.EquityCurve) > 0 {
		start = res.EquityCurve[0].Timestamp
		end = res.EquityCurve[len(res.EquityCurve)-1].Timestamp
	}

	row := BacktestResultRecord{
		BacktestID:     backtestID,
		StrategyName:   strategyName,
		Symbol:         symbol,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: res.InitialCapital,
		FinalCapital:   res.FinalCapital,
		TotalReturnPct: res.Metrics.TotalReturnPct,
		Sharpe:         res.Metrics.Sharpe,
		Sortino:        res.Metrics.Sortino,
		Calmar:         res.Metrics.Calmar,
		MaxDrawdownPct: res.Metrics.MaxDrawdownPct,
		WinRate:        res.Metrics.WinRate,
		ProfitFactor:   res.Metrics.ProfitFactor,
		VaR95:          res.Metrics.VaR95,
		CVaR95:         res.Metrics.CVaR95,
	}

	trades := make([]BacktestTradeRecord, 0, len(res.Trades))
	for i, t := range res.Trades {
		trades = append(trades, BacktestTradeRecord{
			TradeID:      fmt.Sprintf("%s-%d", backtestID, i),
			BacktestID:   backtestID,
			Symbol:       t.Symbol,
			EntryTS:      t.EntryTS,
			ExitTS:       t.ExitTS,
			EntryPrice:   t.EntryPrice,
			ExitPrice:    t.ExitPrice,
			PositionSize: t.PositionSize,
			TradeType:    string(t.Type),
			GrossPnL:     t.GrossPnL,
			NetPnL:       t.NetPnL,
			ReturnPct:    t.ReturnPct,
			DurationHrs:  t.DurationHrs,
			SignalID:     signalIDPtr(t.SignalID),
		})
	}
	return row, trades
}

func signalIDPtr(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
