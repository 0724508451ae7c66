package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTradingDay(t *testing.T) {
	cal := New()

	assert.True(t, cal.IsTradingDay(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)), "a regular Monday")
	assert.False(t, cal.IsTradingDay(time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)), "Saturday")
	assert.False(t, cal.IsTradingDay(time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)), "Sunday")
	assert.False(t, cal.IsTradingDay(time.Date(2026, 7, 3, 12, 0, 0, 0, time.UTC)), "Independence Day observed")
	assert.False(t, cal.IsTradingDay(time.Date(2026, 12, 25, 12, 0, 0, 0, time.UTC)), "Christmas")
}

func TestSessionBounds(t *testing.T) {
	cal := New()

	// March 2 2026 is before the DST switch: 09:30 ET = 14:30 UTC.
	open, close, ok := cal.SessionBounds(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), open)
	assert.Equal(t, time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), close)

	// June 1 2026 is in EDT: 09:30 ET = 13:30 UTC.
	open, close, ok = cal.SessionBounds(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 6, 1, 13, 30, 0, 0, time.UTC), open)
	assert.Equal(t, time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC), close)

	_, _, ok = cal.SessionBounds(time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok, "no session on a Saturday")
}

func TestInRegularHours(t *testing.T) {
	cal := New()

	assert.True(t, cal.InRegularHours(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)))
	assert.False(t, cal.InRegularHours(time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)), "before the open")
	assert.False(t, cal.InRegularHours(time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)), "after the close")
	assert.False(t, cal.InRegularHours(time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC)), "Sunday")
}
