package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManageExits_StopBeforeTarget matches spec scenario 6 exactly: a
// bar whose range covers both stop and target must exit at stop.
func TestManageExits_StopBeforeTarget(t *testing.T) {
	cfg := DefaultConfig()
	pf := newPortfolio(cfg)
	entryTS := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	pf.positions["ABT"] = &Position{
		Symbol: "ABT", Type: PositionLong, EntryTS: entryTS,
		EntryFill: 100, Stop: 98, Target: 104, Shares: 10,
	}

	barTS := entryTS.Add(5 * time.Minute)
	bars := map[string]bar.Bar{
		"ABT": {Symbol: "ABT", Timestamp: barTS, Open: 101, High: 105, Low: 97, Close: 103},
	}
	pf.manageExits(barTS, bars)

	require.Len(t, pf.trades, 1)
	tr := pf.trades[0]
	assert.Equal(t, ExitStop, tr.ExitReason)
	assert.InDelta(t, 98*(1-0.0002), tr.ExitPrice, 1e-9)
	assert.Empty(t, pf.positions)
}

func TestMaxDrawdown(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := []EquityPoint{
		{Timestamp: base, Equity: 100000},
		{Timestamp: base.AddDate(0, 0, 1), Equity: 110000},
		{Timestamp: base.AddDate(0, 0, 2), Equity: 88000},
		{Timestamp: base.AddDate(0, 0, 3), Equity: 95000},
	}
	dd, days := maxDrawdown(curve)
	assert.InDelta(t, 0.2, dd, 1e-9)
	assert.InDelta(t, 1, days, 1e-9)
}

func rampSeries(symbol string, n int, base time.Time, start, drift float64) []bar.Bar {
	var bars []bar.Bar
	price := start
	for i := 0; i < n; i++ {
		price += drift
		ts := base.Add(time.Duration(i) * 5 * time.Minute)
		bars = append(bars, bar.Bar{
			Symbol: symbol, Interval: bar.Interval5m, Timestamp: ts,
			Open: price - 0.1, High: price + 1, Low: price - 1, Close: price, Volume: 100,
		})
	}
	return bars
}

func rampSeriesHTF(symbol string, n int, base time.Time, start, drift float64) []bar.Bar {
	var bars []bar.Bar
	price := start
	for i := 0; i < n; i++ {
		price += drift
		ts := base.Add(time.Duration(i) * time.Hour)
		bars = append(bars, bar.Bar{
			Symbol: symbol, Interval: bar.Interval1h, Timestamp: ts,
			Open: price - 0.1, High: price + 1, Low: price - 1, Close: price, Volume: 100,
		})
	}
	return bars
}

// TestEngine_Reproducible matches spec's "Backtest reproducibility"
// invariant: two runs over identical inputs produce identical trades
// and equity curves.
func TestEngine_Reproducible(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	series := map[string]SymbolSeries{
		"ABT": {
			HTF: rampSeriesHTF("ABT", 10, base, 100, 0.8),
			TTF: rampSeries("ABT", 60, base, 100, 0.15),
		},
	}

	run := func() *Result {
		eng := NewEngine("bt-1", "1h", "5m")
		res, err := eng.Run(context.Background(), series)
		require.NoError(t, err)
		return res
	}

	r1 := run()
	r2 := run()

	require.Equal(t, len(r1.Trades), len(r2.Trades))
	for i := range r1.Trades {
		assert.Equal(t, r1.Trades[i], r2.Trades[i])
	}
	require.Equal(t, len(r1.EquityCurve), len(r2.EquityCurve))
	for i := range r1.EquityCurve {
		assert.Equal(t, r1.EquityCurve[i], r2.EquityCurve[i])
	}
}
