// Package clock supplies the current time to everything that schedules or
// buckets reviews by day.
package clock

import "time"

// DayLayout is the calendar-day key format used for review events.
const DayLayout = "2006-01-02"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in Location (UTC when nil).
type System struct {
	Location *time.Location
}

func (s System) Now() time.Time {
	if s.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(s.Location)
}

// Fixed always returns T. Used to pin "now" in tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// Day returns the calendar day of t in t's own location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// AddDays shifts a calendar day key by n days.
func AddDays(day string, n int) (string, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DayLayout), nil
}
