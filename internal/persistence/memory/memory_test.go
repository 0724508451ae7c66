package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/persistence"
)

func TestStore_PersistAndListSignals(t *testing.T) {
	ctx := context.Background()
	s := New()

	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	signals := []persistence.SignalRecord{
		{SignalID: "s1", RunID: "run1", Symbol: "ABT", SignalTS: ts, SignalType: "LONG"},
		{SignalID: "s2", RunID: "run1", Symbol: "XYZ", SignalTS: ts, SignalType: "SHORT"},
	}
	require.NoError(t, s.PersistSignals(ctx, "run1", signals))

	got, err := s.ListBySymbol(ctx, "ABT", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SignalID)
}

func TestStore_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	run := persistence.RunRecord{RunID: "run1", Status: "SUCCESS", SymbolsRequested: 2}
	require.NoError(t, s.PersistRun(ctx, run))

	got, err := s.GetRun(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", got.Status)

	_, err = s.GetRun(ctx, "missing")
	assert.Error(t, err)
}

func TestStore_RecordOutcome(t *testing.T) {
	ctx := context.Background()
	s := New()

	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.PersistSignals(ctx, "run1", []persistence.SignalRecord{
		{SignalID: "s1", RunID: "run1", Symbol: "ABT", SignalTS: ts, SignalType: "LONG"},
	}))

	outcome := persistence.SignalOutcome{
		Outcome: "WIN", ActualHigh: 105, ActualLow: 99, ActualClose: 104,
		PnLPercent: 4.0, EvaluatedAt: ts.Add(24 * time.Hour),
	}
	require.NoError(t, s.RecordOutcome(ctx, "s1", outcome))

	got, err := s.ListBySymbol(ctx, "ABT", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Outcome)
	assert.Equal(t, "WIN", *got[0].Outcome)
	assert.InDelta(t, 4.0, *got[0].PnLPercent, 1e-9)

	assert.Error(t, s.RecordOutcome(ctx, "missing", outcome))
}

func TestStore_SaveAnalysisReplacesSameInstant(t *testing.T) {
	ctx := context.Background()
	s := New()

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	row := persistence.AnalysisRow{
		AnalysisID: "a1", Symbol: "ABT", HTF: "1h", TTF: "5m", Timestamp: ts,
		RecommendedAction: "wait",
	}
	zones := []persistence.ConfluenceZoneRecord{
		{AnalysisID: "a1", Symbol: "ABT", Level: 100, Strength: 2, ZoneType: "support"},
	}
	require.NoError(t, s.SaveAnalysis(ctx, row, zones))

	// re-analysis of the same (symbol, htf, ttf, timestamp) replaces the
	// earlier row and its zones rather than accumulating a duplicate.
	row2 := row
	row2.AnalysisID = "a2"
	row2.RecommendedAction = "long"
	require.NoError(t, s.SaveAnalysis(ctx, row2, nil))

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.analyses, 1)
	assert.Equal(t, "long", s.analyses["a2"].RecommendedAction)
	assert.Empty(t, s.zones["a1"])
}

func TestStore_IndicatorUpsertsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rec := persistence.PLdotRecord{Symbol: "ABT", Interval: "5m", ProjectionTS: ts, Value: 101}
	require.NoError(t, s.SavePLdots(ctx, []persistence.PLdotRecord{rec}))

	rec.Value = 102
	require.NoError(t, s.SavePLdots(ctx, []persistence.PLdotRecord{rec}))

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.pldots["ABT|5m"]
	require.Len(t, rows, 1)
	assert.InDelta(t, 102.0, rows[0].Value, 1e-9)
}

func TestStore_SchedulerStateDefault(t *testing.T) {
	ctx := context.Background()
	s := New()
	st, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", st.Status)

	st.Status = "RUNNING"
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", got.Status)
}
