package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

type fakeStream struct {
	connected bool
	bars      map[string]bar.Bar
}

func (f *fakeStream) Connected() bool { return f.connected }
func (f *fakeStream) Latest(symbol string, interval bar.Interval) (bar.Bar, bool) {
	b, ok := f.bars[symbol]
	return b, ok
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func TestReconciler_SelectFinalizedRequiresHistorical(t *testing.T) {
	now := mustTime(t, "2026-03-02T20:00:00Z")
	ts := mustTime(t, "2026-03-02T16:00:00Z") // 4h old: past the 3h finalization lag
	r := New(DefaultConfig(), nil, nil, nil, func() time.Time { return now })

	_, ok := r.Select("ABT", bar.Interval5m, ts, nil, nil)
	assert.False(t, ok, "no historical bar available yet: no selection")

	hb := bar.Bar{Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts, Open: 1, High: 2, Low: 1, Close: 1, Provisional: true}
	got, ok := r.Select("ABT", bar.Interval5m, ts, &hb, nil)
	require.True(t, ok)
	assert.False(t, got.Provisional, "finalized selection must clear the provisional flag")
}

func TestReconciler_SelectPrefersStreamDuringExtendedSession(t *testing.T) {
	// 2026-03-02 is a Monday; 10:00 ET is within 04:00-20:00.
	now := mustTime(t, "2026-03-02T15:00:00Z") // 10:00 ET
	ts := now.Add(-time.Minute)
	stream := &fakeStream{connected: true, bars: map[string]bar.Bar{
		"ABT": {Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts, Open: 5, High: 6, Low: 4, Close: 5},
	}}
	r := New(DefaultConfig(), nil, nil, stream, func() time.Time { return now })

	liveBar := bar.Bar{Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts, Open: 1, High: 2, Low: 1, Close: 1}
	got, ok := r.Select("ABT", bar.Interval5m, ts, nil, &liveBar)
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Open, "stream bar should win over live when connected and in extended session")
	assert.True(t, got.Provisional)
}

func TestReconciler_SelectFallsBackToLiveOutsideExtendedSession(t *testing.T) {
	now := mustTime(t, "2026-03-02T05:00:00Z") // 00:00 ET: outside the extended session
	ts := now.Add(-time.Minute)
	stream := &fakeStream{connected: true, bars: map[string]bar.Bar{
		"ABT": {Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts, Open: 5, High: 6, Low: 4, Close: 5},
	}}
	r := New(DefaultConfig(), nil, nil, stream, func() time.Time { return now })

	liveBar := bar.Bar{Symbol: "ABT", Interval: bar.Interval5m, Timestamp: ts, Open: 1, High: 2, Low: 1, Close: 1}
	got, ok := r.Select("ABT", bar.Interval5m, ts, nil, &liveBar)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Open)
	assert.True(t, got.Provisional)
}

type fakeHistorical struct {
	host  string
	bars  []bar.Bar
	calls int
}

func (f *fakeHistorical) Host() string { return f.host }
func (f *fakeHistorical) Fetch(ctx context.Context, symbol string, interval bar.Interval, start, end time.Time) ([]bar.Bar, error) {
	f.calls++
	var out []bar.Bar
	for _, b := range f.bars {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestReconciler_ReconcileMergesHistoricalAndLive(t *testing.T) {
	now := mustTime(t, "2026-03-02T23:00:00Z")
	finalTS := mustTime(t, "2026-03-02T10:00:00Z") // > 3h old: finalized
	hist := &fakeHistorical{host: "hist.example", bars: []bar.Bar{
		{Symbol: "ABT", Interval: bar.Interval5m, Timestamp: finalTS, Open: 1, High: 2, Low: 1, Close: 1},
	}}
	r := New(DefaultConfig(), hist, nil, nil, func() time.Time { return now })
	store := bar.NewMemoryStore(bar.Interval5m)

	inserted, _, err := r.Reconcile(context.Background(), store, "ABT", bar.Interval5m, finalTS, finalTS)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	got, ok, err := store.Latest(context.Background(), "ABT", bar.Interval5m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Provisional)
}

func TestInExtendedSession(t *testing.T) {
	assert.True(t, inExtendedSession(mustTime(t, "2026-03-02T15:00:00Z")))  // 10:00 ET
	assert.False(t, inExtendedSession(mustTime(t, "2026-03-02T05:00:00Z"))) // 00:00 ET
}
