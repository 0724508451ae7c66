// Package memory implements the persistence contracts in-process, for
// tests and single-node deployments that don't need Postgres (spec §6
// is explicit that the physical schema is adapter-specific).
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence"
)

// Store implements RunsRepo, SignalsRepo, BacktestRepo, and
// SchedulerStateRepo with simple mutex-guarded maps, the same
// concurrency discipline the bar store uses for its per-key locking.
type Store struct {
	mu sync.RWMutex

	runs       map[string]persistence.RunRecord
	signals    map[string][]persistence.SignalRecord // keyed by run_id
	backtests  map[string]persistence.BacktestResultRecord
	btTrades   map[string][]persistence.BacktestTradeRecord
	schedState persistence.SchedulerStateRecord

	symbols  map[string]persistence.SymbolRecord
	pldots   map[string][]persistence.PLdotRecord       // keyed by symbol|interval
	bands    map[string][]persistence.EnvelopeRecord    // keyed by symbol|interval
	states   map[string][]persistence.MarketStateRecord // keyed by symbol|interval
	patterns map[string][]persistence.PatternEventRecord
	analyses map[string]persistence.AnalysisRow // keyed by analysis_id
	zones    map[string][]persistence.ConfluenceZoneRecord
}

func New() *Store {
	return &Store{
		runs:      make(map[string]persistence.RunRecord),
		signals:   make(map[string][]persistence.SignalRecord),
		backtests: make(map[string]persistence.BacktestResultRecord),
		btTrades:  make(map[string][]persistence.BacktestTradeRecord),
		schedState: persistence.SchedulerStateRecord{
			StateID: 1,
			Status:  "IDLE",
		},
		symbols:  make(map[string]persistence.SymbolRecord),
		pldots:   make(map[string][]persistence.PLdotRecord),
		bands:    make(map[string][]persistence.EnvelopeRecord),
		states:   make(map[string][]persistence.MarketStateRecord),
		patterns: make(map[string][]persistence.PatternEventRecord),
		analyses: make(map[string]persistence.AnalysisRow),
		zones:    make(map[string][]persistence.ConfluenceZoneRecord),
	}
}

func (s *Store) PersistRun(_ context.Context, run persistence.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (persistence.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return persistence.RunRecord{}, fmt.Errorf("run %s not found", runID)
	}
	return r, nil
}

// PersistSignals writes all signals for run_id at once; a prior
// attempt for the same run_id is fully replaced, preserving the
// all-or-nothing per-run semantics without needing a real transaction.
func (s *Store) PersistSignals(_ context.Context, runID string, signals []persistence.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]persistence.SignalRecord, len(signals))
	copy(cp, signals)
	s.signals[runID] = cp
	return nil
}

func (s *Store) ListBySymbol(_ context.Context, symbol string, from, to time.Time) ([]persistence.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.SignalRecord
	for _, rows := range s.signals {
		for _, r := range rows {
			if r.Symbol != symbol {
				continue
			}
			if r.SignalTS.Before(from) || r.SignalTS.After(to) {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) RecordOutcome(_ context.Context, signalID string, outcome persistence.SignalOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for runID, rows := range s.signals {
		for i, r := range rows {
			if r.SignalID != signalID {
				continue
			}
			o := outcome
			rows[i].Outcome = &o.Outcome
			rows[i].ActualHigh = &o.ActualHigh
			rows[i].ActualLow = &o.ActualLow
			rows[i].ActualClose = &o.ActualClose
			rows[i].PnLPercent = &o.PnLPercent
			rows[i].EvaluatedAt = &o.EvaluatedAt
			s.signals[runID] = rows
			return nil
		}
	}
	return fmt.Errorf("signal %s not found", signalID)
}

func (s *Store) SaveResult(_ context.Context, result persistence.BacktestResultRecord, trades []persistence.BacktestTradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backtests[result.BacktestID] = result
	cp := make([]persistence.BacktestTradeRecord, len(trades))
	copy(cp, trades)
	s.btTrades[result.BacktestID] = cp
	return nil
}

func (s *Store) UpsertSymbols(_ context.Context, symbols []persistence.SymbolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		s.symbols[sym.SymbolID] = sym
	}
	return nil
}

func (s *Store) ListActive(_ context.Context) ([]persistence.SymbolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.SymbolRecord
	for _, sym := range s.symbols {
		if sym.IsActive {
			out = append(out, sym)
		}
	}
	return out, nil
}

func seriesKey(symbol, interval string) string { return symbol + "|" + interval }

func (s *Store) SavePLdots(_ context.Context, records []persistence.PLdotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		k := seriesKey(r.Symbol, r.Interval)
		s.pldots[k] = replaceOrAppend(s.pldots[k], r, func(a, b persistence.PLdotRecord) bool {
			return a.ProjectionTS.Equal(b.ProjectionTS)
		})
	}
	return nil
}

func (s *Store) SaveEnvelopes(_ context.Context, records []persistence.EnvelopeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		k := seriesKey(r.Symbol, r.Interval)
		s.bands[k] = replaceOrAppend(s.bands[k], r, func(a, b persistence.EnvelopeRecord) bool {
			return a.Timestamp.Equal(b.Timestamp)
		})
	}
	return nil
}

func (s *Store) SaveMarketStates(_ context.Context, records []persistence.MarketStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		k := seriesKey(r.Symbol, r.Interval)
		s.states[k] = replaceOrAppend(s.states[k], r, func(a, b persistence.MarketStateRecord) bool {
			return a.Timestamp.Equal(b.Timestamp)
		})
	}
	return nil
}

func (s *Store) SavePatternEvents(_ context.Context, records []persistence.PatternEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		k := seriesKey(r.Symbol, r.Interval)
		s.patterns[k] = replaceOrAppend(s.patterns[k], r, func(a, b persistence.PatternEventRecord) bool {
			return a.PatternType == b.PatternType && a.StartTS.Equal(b.StartTS)
		})
	}
	return nil
}

// replaceOrAppend upserts r into rows using same as the natural-key
// comparison, mirroring the Postgres ON CONFLICT DO UPDATE behavior.
func replaceOrAppend[T any](rows []T, r T, same func(a, b T) bool) []T {
	for i := range rows {
		if same(rows[i], r) {
			rows[i] = r
			return rows
		}
	}
	return append(rows, r)
}

func (s *Store) SaveAnalysis(_ context.Context, row persistence.AnalysisRow, zones []persistence.ConfluenceZoneRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// unique on (symbol, htf, ttf, timestamp): a re-analysis of the same
	// instant replaces the previous row and its zones.
	for id, existing := range s.analyses {
		if existing.Symbol == row.Symbol && existing.HTF == row.HTF &&
			existing.TTF == row.TTF && existing.Timestamp.Equal(row.Timestamp) {
			delete(s.analyses, id)
			delete(s.zones, id)
		}
	}
	s.analyses[row.AnalysisID] = row
	cp := make([]persistence.ConfluenceZoneRecord, len(zones))
	copy(cp, zones)
	s.zones[row.AnalysisID] = cp
	return nil
}

func (s *Store) Load(_ context.Context) (persistence.SchedulerStateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedState, nil
}

func (s *Store) Save(_ context.Context, state persistence.SchedulerStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedState = state
	return nil
}
