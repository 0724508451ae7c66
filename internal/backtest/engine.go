package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/calendar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/coordinator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/errs"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/signal"
)

// SymbolSeries is one symbol's fully materialized bar history for both
// legs of the multi-timeframe pipeline, pre-sorted ascending.
type SymbolSeries struct {
	HTF []bar.Bar
	TTF []bar.Bar
}

// Engine runs the event loop of spec §4.G over a fixed, in-memory set
// of symbol series. It holds no network or database dependency: the
// bars are supplied up front so that two runs over identical inputs
// are bitwise reproducible.
type Engine struct {
	RunID     string
	HTFName   string
	TTFName   string
	BundleCfg bundle.Config
	CoordCfg  coordinator.Config
	SignalCfg signal.Config
	Config    Config
	Calendar  calendar.Calendar
}

func NewEngine(runID, htfName, ttfName string) *Engine {
	return &Engine{
		RunID:     runID,
		HTFName:   htfName,
		TTFName:   ttfName,
		BundleCfg: bundle.DefaultConfig(),
		CoordCfg:  coordinator.DefaultConfig(),
		SignalCfg: signal.DefaultConfig(),
		Config:    DefaultConfig(),
		Calendar:  calendar.New(),
	}
}

type candidate struct {
	Symbol string
	Signal *signal.Signal
}

func compositeScore(s *signal.Signal) float64 {
	return s.Confidence * s.SignalStrength
}

// unionTimestamps collects the sorted, deduplicated set of TTF bar
// close timestamps across all symbols (spec §4.G's event-loop clock).
func unionTimestamps(series map[string]SymbolSeries) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, b := range s.TTF {
			seen[b.Timestamp.UnixNano()] = b.Timestamp
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func barsAsOf(bars []bar.Bar, t time.Time) []bar.Bar {
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(t) })
	return bars[:i]
}

func barAt(bars []bar.Bar, t time.Time) (bar.Bar, bool) {
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(t) })
	if i < len(bars) && bars[i].Timestamp.Equal(t) {
		return bars[i], true
	}
	return bar.Bar{}, false
}

// filterRegularHours drops every timestamp outside the exchange's
// regular session, for Config.RegularHoursOnly backtests (spec §4.G).
func filterRegularHours(timestamps []time.Time, cal calendar.Calendar) []time.Time {
	out := timestamps[:0:0]
	for _, t := range timestamps {
		if cal.InRegularHours(t) {
			out = append(out, t)
		}
	}
	return out
}

func nextBarAfter(bars []bar.Bar, t time.Time) (bar.Bar, bool) {
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(t) })
	if i < len(bars) {
		return bars[i], true
	}
	return bar.Bar{}, false
}

// Run executes the full event loop (spec §4.G steps 1-7) and returns
// the closed trade list, equity curve, and performance metrics.
func (e *Engine) Run(ctx context.Context, series map[string]SymbolSeries) (*Result, error) {
	timestamps := unionTimestamps(series)
	if e.Config.RegularHoursOnly {
		timestamps = filterRegularHours(timestamps, e.Calendar)
	}
	pf := newPortfolio(e.Config)

	lastBars := make(map[string]bar.Bar)

	for _, t := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrCancelled, err)
		}

		currentBars := make(map[string]bar.Bar)
		for sym, s := range series {
			if b, ok := barAt(s.TTF, t); ok {
				currentBars[sym] = b
				lastBars[sym] = b
			}
		}

		pf.markToMarket(currentBars)
		pf.manageExits(t, currentBars)

		var candidates []candidate
		for sym, s := range series {
			ttfSlice := barsAsOf(s.TTF, t)
			htfSlice := barsAsOf(s.HTF, t)
			if len(ttfSlice) == 0 || len(htfSlice) == 0 {
				continue
			}
			ttfB := bundle.Build(sym, ttfSlice[0].Interval, ttfSlice, e.BundleCfg.Displacement, e.BundleCfg.Envelope, e.BundleCfg.State, e.BundleCfg.Pattern)
			htfB := bundle.Build(sym, htfSlice[0].Interval, htfSlice, e.BundleCfg.Displacement, e.BundleCfg.Envelope, e.BundleCfg.State, e.BundleCfg.Pattern)

			_, hasOpen := pf.positions[sym]
			rec, err := coordinator.Analyze(sym, e.HTFName, e.TTFName, htfB, ttfB, t, hasOpen, e.CoordCfg)
			if err != nil {
				continue
			}

			nb, ok := nextBarAfter(s.TTF, t)
			if !ok {
				continue
			}
			sig, ok := signal.GenerateAtPrice(e.RunID, rec, ttfB, nb.Open, nb.Timestamp, t, e.SignalCfg)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{Symbol: sym, Signal: sig})
		}

		// Rank per spec §4.G step 4: composite score desc, ties by
		// earlier signal_timestamp, then alphabetical symbol.
		sort.SliceStable(candidates, func(i, j int) bool {
			si, sj := candidates[i].Signal, candidates[j].Signal
			ci, cj := compositeScore(si), compositeScore(sj)
			if ci != cj {
				return ci > cj
			}
			if !si.SignalTimestamp.Equal(sj.SignalTimestamp) {
				return si.SignalTimestamp.Before(sj.SignalTimestamp)
			}
			return candidates[i].Symbol < candidates[j].Symbol
		})

		for _, c := range candidates {
			switch c.Signal.SignalType {
			case signal.Long:
				pf.admitLong(c.Symbol, c.Signal.SignalTimestamp, c.Signal.EntryPrice, c.Signal.StopLoss, c.Signal.TargetPrice, c.Symbol+"|"+c.Signal.SignalTimestamp.String())
			case signal.Short:
				pf.admitShort(c.Symbol, c.Signal.SignalTimestamp, c.Signal.EntryPrice, c.Signal.StopLoss, c.Signal.TargetPrice, c.Symbol+"|"+c.Signal.SignalTimestamp.String())
			}
		}

		pf.recordEquity(t)
	}

	if len(timestamps) > 0 {
		pf.closeAllAtEnd(timestamps[len(timestamps)-1], lastBars)
		pf.recordEquity(timestamps[len(timestamps)-1])
	}

	metrics := computeMetrics(pf.curve, pf.trades, e.Config)
	return &Result{
		InitialCapital: e.Config.InitialCapital,
		FinalCapital:   pf.equity(),
		Trades:         pf.trades,
		EquityCurve:    pf.curve,
		Metrics:        metrics,
	}, nil
}
