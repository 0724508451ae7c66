package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

func TestBackfill_ClampsFutureEndToYesterday(t *testing.T) {
	now := mustTime(t, "2025-11-13T00:00:00Z")
	start := mustTime(t, "2025-11-06T00:00:00Z")
	end := mustTime(t, "2025-12-31T00:00:00Z") // requested far in the future

	hist := &fakeHistorical{host: "hist.example"}
	store := bar.NewMemoryStore(bar.Interval1d)
	bf := NewBackfiller(DefaultBackfillConfig(), hist, store, nil, nil, func() time.Time { return now })

	result := bf.Backfill(context.Background(), "ABT", bar.Interval1d, start, end)

	effectiveEnd := now.Add(-24 * time.Hour)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.True(t, hist.calls > 0, "expected at least one chunk fetch")
	// The clamp caps the effective end at now-1d: one 24h chunk per day
	// from Nov 6 up to Nov 12, nothing requested beyond that.
	assert.Equal(t, mustTime(t, "2025-11-12T00:00:00Z"), effectiveEnd)
	assert.Equal(t, 6, hist.calls)
}

type flakyHistorical struct {
	host       string
	failFirstN int
	calls      int
}

func (f *flakyHistorical) Host() string { return f.host }
func (f *flakyHistorical) Fetch(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) ([]bar.Bar, error) {
	f.calls++
	if f.calls <= f.failFirstN {
		return nil, errors.New("simulated transient failure")
	}
	return []bar.Bar{
		{Symbol: symbol, Interval: interval, Timestamp: start, Open: 1, High: 2, Low: 1, Close: 1},
	}, nil
}

func TestBackfill_RetriesTransientFailuresWithinBudget(t *testing.T) {
	now := mustTime(t, "2026-03-10T00:00:00Z")
	start := mustTime(t, "2026-03-01T00:00:00Z")
	end := start.Add(24 * time.Hour)

	src := &flakyHistorical{host: "hist.example", failFirstN: 2}
	store := bar.NewMemoryStore(bar.Interval1d)
	cfg := DefaultBackfillConfig()
	cfg.InitialBackoff = time.Millisecond
	bf := NewBackfiller(cfg, src, store, nil, nil, func() time.Time { return now })

	result := bf.Backfill(context.Background(), "ABT", bar.Interval1d, start, end)
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.BarsStored)
}

func TestBackfill_FailsSymbolOnlyWhenEveryChunkFails(t *testing.T) {
	now := mustTime(t, "2026-03-10T00:00:00Z")
	start := mustTime(t, "2026-03-01T00:00:00Z")
	end := start.Add(24 * time.Hour)

	src := &flakyHistorical{host: "hist.example", failFirstN: 100}
	store := bar.NewMemoryStore(bar.Interval1d)
	cfg := DefaultBackfillConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxAttempts = 2
	bf := NewBackfiller(cfg, src, store, nil, nil, func() time.Time { return now })

	result := bf.Backfill(context.Background(), "ABT", bar.Interval1d, start, end)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, result.BarsStored)
	assert.Error(t, result.ChunkErrors)
	assert.Less(t, result.Quality, 1.0)
}
