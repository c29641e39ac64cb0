package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyUsage_Exhausted(t *testing.T) {
	u := Zero("u1", "2026-03-01", 600)
	assert.False(t, u.Exhausted())
	assert.Equal(t, int64(600), u.RemainingSeconds())

	u.TotalSeconds = 599
	assert.False(t, u.Exhausted())

	u.TotalSeconds = 600
	assert.True(t, u.Exhausted())

	u.TotalSeconds = 610
	assert.True(t, u.Exhausted())
	assert.Equal(t, int64(0), u.RemainingSeconds())
}

func TestCalendar_DayUsesReferenceTimezone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	cal := NewCalendar(paris, nil)

	// 23:30 UTC on March 1st is already March 2nd in Paris
	instant := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-02", cal.Day(instant))

	assert.Equal(t, "2026-03-01", NewCalendar(time.UTC, nil).Day(instant))
}

func TestCalendar_Today(t *testing.T) {
	fixed := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)
	cal := NewCalendar(time.UTC, func() time.Time { return fixed })

	assert.Equal(t, "2026-07-14", cal.Today())
	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), cal.EndOfDay(fixed))
}
