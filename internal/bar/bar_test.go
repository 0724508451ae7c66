package bar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func TestAggregate_SixFiveMinuteBarsToThirtyMinute(t *testing.T) {
	base := mustTime(t, "2026-03-02T14:00:00Z")
	opens := []float64{10, 11, 12, 13, 14, 15}
	highs := []float64{15, 15, 16, 14, 17, 16}
	lows := []float64{9, 10, 11, 12, 13, 14}
	closes := []float64{11, 12, 13, 14, 15, 16}

	var bars []Bar
	for i := 0; i < 6; i++ {
		bars = append(bars, Bar{
			Symbol:    "ABT",
			Interval:  Interval5m,
			Timestamp: base.Add(time.Duration(i*5) * time.Minute),
			Open:      opens[i],
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
			Volume:    100,
		})
	}

	out := Aggregate(bars, Interval30m)
	require.Len(t, out, 1)
	got := out[0]
	assert.Equal(t, base, got.Timestamp)
	assert.Equal(t, 10.0, got.Open)
	assert.Equal(t, 17.0, got.High)
	assert.Equal(t, 9.0, got.Low)
	assert.Equal(t, 16.0, got.Close)
	assert.Equal(t, 600.0, got.Volume)
}

func TestAggregate_OnlyEmitsBucketsWithData(t *testing.T) {
	base := mustTime(t, "2026-03-02T14:00:00Z")
	bars := []Bar{
		{Symbol: "ABT", Interval: Interval5m, Timestamp: base, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
		// gap: no bars in the next bucket
		{Symbol: "ABT", Interval: Interval5m, Timestamp: base.Add(time.Hour), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 20},
	}
	out := Aggregate(bars, Interval30m)
	require.Len(t, out, 2)
	assert.Equal(t, base, out[0].Timestamp)
	assert.Equal(t, AlignTimestamp(base.Add(time.Hour), Interval30m), out[1].Timestamp)
}

func TestBarValidate(t *testing.T) {
	ts := AlignTimestamp(mustTime(t, "2026-03-02T14:03:00Z"), Interval5m)
	valid := Bar{Symbol: "ABT", Interval: Interval5m, Timestamp: ts, Open: 100, High: 102, Low: 98, Close: 101, Volume: 5}
	require.NoError(t, valid.Validate())

	badHighLow := valid
	badHighLow.Low = 103
	assert.Error(t, badHighLow.Validate())

	badVolume := valid
	badVolume.Volume = -1
	assert.Error(t, badVolume.Validate())

	badAlign := valid
	badAlign.Timestamp = mustTime(t, "2026-03-02T14:03:00Z")
	assert.Error(t, badAlign.Validate())
}

func TestMemoryStore_UpsertIdempotentAndProvisionalOverwrite(t *testing.T) {
	s := NewMemoryStore(Interval5m)
	ctx := context.Background()
	ts := AlignTimestamp(mustTime(t, "2026-03-02T14:00:00Z"), Interval5m)

	b := Bar{Symbol: "ABT", Interval: Interval5m, Timestamp: ts, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1, Provisional: true}
	ins, upd, err := s.Upsert(ctx, "ABT", Interval5m, []Bar{b})
	require.NoError(t, err)
	assert.Equal(t, 1, ins)
	assert.Equal(t, 0, upd)

	// identical content: silently skipped
	ins, upd, err = s.Upsert(ctx, "ABT", Interval5m, []Bar{b})
	require.NoError(t, err)
	assert.Equal(t, 0, ins)
	assert.Equal(t, 0, upd)

	// provisional overwrite with different content
	b2 := b
	b2.Close = 10.9
	ins, upd, err = s.Upsert(ctx, "ABT", Interval5m, []Bar{b2})
	require.NoError(t, err)
	assert.Equal(t, 0, ins)
	assert.Equal(t, 1, upd)

	// finalize, then attempt another overwrite: must not change
	b3 := b2
	b3.Provisional = false
	_, _, err = s.Upsert(ctx, "ABT", Interval5m, []Bar{b3})
	require.NoError(t, err)

	b4 := b3
	b4.Close = 999
	_, upd, err = s.Upsert(ctx, "ABT", Interval5m, []Bar{b4})
	require.NoError(t, err)
	assert.Equal(t, 0, upd)

	latest, ok, err := s.Latest(ctx, "ABT", Interval5m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.9, latest.Close)
}
