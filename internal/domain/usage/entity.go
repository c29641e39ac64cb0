package usage

import (
	"time"
)

// DayLayout formats the calendar date part of a usage key
const DayLayout = "2006-01-02"

// DailyUsage accumulates one user's conversation time for one calendar day
// in the deployment's reference timezone
type DailyUsage struct {
	UserID       string    `db:"user_id" json:"user_id"`
	Date         string    `db:"usage_date" json:"date"`
	TotalSeconds int64     `db:"total_seconds" json:"total_seconds"`
	SessionCount int64     `db:"session_count" json:"session_count"`
	LimitSeconds int64     `db:"limit_seconds" json:"limit_seconds"`
	LimitReached bool      `db:"limit_reached" json:"limit_reached"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Zero returns a fresh record for a day with no sessions yet
func Zero(userID, day string, limitSeconds int64) *DailyUsage {
	return &DailyUsage{
		UserID:       userID,
		Date:         day,
		LimitSeconds: limitSeconds,
	}
}

// Exhausted reports whether no more time is available today
func (u *DailyUsage) Exhausted() bool {
	return u.TotalSeconds >= u.LimitSeconds
}

// RemainingSeconds returns the time left today, never negative
func (u *DailyUsage) RemainingSeconds() int64 {
	if r := u.LimitSeconds - u.TotalSeconds; r > 0 {
		return r
	}
	return 0
}

// Calendar maps instants to usage day keys in one fixed timezone
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a calendar for loc. A nil now uses time.Now.
func NewCalendar(loc *time.Location, now func() time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

// Now returns the current instant
func (c *Calendar) Now() time.Time {
	return c.now()
}

// Day returns the day key of t
func (c *Calendar) Day(t time.Time) string {
	return t.In(c.loc).Format(DayLayout)
}

// Today returns the day key of the current instant
func (c *Calendar) Today() string {
	return c.Day(c.now())
}

// EndOfDay returns the first instant of the day after t
func (c *Calendar) EndOfDay(t time.Time) time.Time {
	local := t.In(c.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
}

// Location returns the reference timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}
