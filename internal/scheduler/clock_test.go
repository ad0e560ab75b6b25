package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClock(t *testing.T) *MarketClock {
	t.Helper()
	c, err := NewMarketClock("Asia/Kolkata", "09:15", "15:30", "15:15")
	require.NoError(t, err)
	return c
}

// 2026-08-26 is a Wednesday, 2026-08-29 a Saturday.
func kolkata(t *testing.T, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2026, 8, day, hour, min, 0, 0, loc)
}

func TestClockSessionWindow(t *testing.T) {
	c := mustClock(t)

	assert.False(t, c.IsOpen(kolkata(t, 26, 9, 14)))
	assert.True(t, c.IsOpen(kolkata(t, 26, 9, 15)))
	assert.True(t, c.IsOpen(kolkata(t, 26, 12, 0)))
	assert.True(t, c.IsOpen(kolkata(t, 26, 15, 30)))
	assert.False(t, c.IsOpen(kolkata(t, 26, 15, 31)))
}

func TestClockWeekend(t *testing.T) {
	c := mustClock(t)

	assert.False(t, c.IsTradingDay(kolkata(t, 29, 12, 0))) // Saturday
	assert.False(t, c.IsTradingDay(kolkata(t, 30, 12, 0))) // Sunday
	assert.False(t, c.IsOpen(kolkata(t, 29, 12, 0)))
	assert.True(t, c.IsTradingDay(kolkata(t, 26, 12, 0)))
}

func TestClockSquareOffAndClose(t *testing.T) {
	c := mustClock(t)

	assert.False(t, c.PastSquareOff(kolkata(t, 26, 15, 14)))
	assert.True(t, c.PastSquareOff(kolkata(t, 26, 15, 15)))
	assert.False(t, c.PastClose(kolkata(t, 26, 15, 30)))
	assert.True(t, c.PastClose(kolkata(t, 26, 15, 31)))
}

func TestClockCronExpressions(t *testing.T) {
	c := mustClock(t)

	assert.Equal(t, "15 9 * * 1-5", c.CronAtOpen())
	assert.Equal(t, "15 15 * * 1-5", c.CronAtSquareOff())
}

func TestClockRejectsBadConfig(t *testing.T) {
	_, err := NewMarketClock("Not/AZone", "09:15", "15:30", "15:15")
	assert.Error(t, err)

	_, err = NewMarketClock("Asia/Kolkata", "9am", "15:30", "15:15")
	assert.Error(t, err)

	_, err = NewMarketClock("Asia/Kolkata", "15:30", "09:15", "15:15")
	assert.Error(t, err, "open after close")

	_, err = NewMarketClock("Asia/Kolkata", "09:15", "15:30", "16:00")
	assert.Error(t, err, "square-off outside session")
}
