package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_PercentMode(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := threeBar(t, base)
	dots := PLdot(bars, DefaultDisplacement)
	require.Len(t, dots, 1)

	cfg := EnvelopeConfig{Method: MethodPercent, PercentP: 0.02}
	bands := Envelope(bars, dots, cfg)
	require.Len(t, bands, 1)
	assert.InDelta(t, 101.0*1.02, bands[0].Upper, 1e-9)
	assert.InDelta(t, 101.0*0.98, bands[0].Lower, 1e-9)
	assert.True(t, bands[0].Lower <= bands[0].Center && bands[0].Center <= bands[0].Upper)
	assert.Greater(t, bands[0].Width, 0.0)
	// the band applies to the bar the dot projects onto, one period
	// past the dot's source bar.
	assert.Equal(t, dots[0].ProjectionTimestamp, bands[0].Timestamp)
}

func TestEnvelope_ATRMode(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := threeBar(t, base)
	dots := PLdot(bars, DefaultDisplacement)
	cfg := DefaultEnvelopeConfig()
	bands := Envelope(bars, dots, cfg)
	require.Len(t, bands, 1)
	assert.True(t, bands[0].Lower < bands[0].Center)
	assert.True(t, bands[0].Center < bands[0].Upper)
}

// TestEnvelope_BandsAlignToProjectionBars checks the series-level
// convention: with n bars, every band's timestamp is a projection
// instant, and all but the last land on real bar timestamps.
func TestEnvelope_BandsAlignToProjectionBars(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	bars := closeSeries(base, []float64{100, 101, 102, 103, 104})
	dots := PLdot(bars, DefaultDisplacement)
	require.Len(t, dots, 3)

	bands := Envelope(bars, dots, EnvelopeConfig{Method: MethodPercent, PercentP: 0.02})
	require.Len(t, bands, 3)

	assert.Equal(t, bars[3].Timestamp, bands[0].Timestamp)
	assert.Equal(t, bars[4].Timestamp, bands[1].Timestamp)
	// the final dot projects one period past the last closed bar; its
	// band is still emitted for the forming bar.
	assert.Equal(t, bars[4].Timestamp.Add(5*time.Minute), bands[2].Timestamp)
	assert.InDelta(t, 101.0, bands[0].Center, 1e-9) // mean of closes 0..2
}
