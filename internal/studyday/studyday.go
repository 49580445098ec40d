// Package studyday converts calendar time into study-relative day indexes.
//
// Daily repeating forms in the record store are keyed by repeat instance, and
// the instance number for a given day is defined as 1 + days since the study
// start date. The same quantity anchors the trailing seven-day window used by
// instance resolution.
package studyday

import "time"

// WindowDays is the length of the trailing encounter window considered for
// instance resolution.
const WindowDays = 7

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// Calendar maps wall-clock time onto study day indexes.
type Calendar struct {
	start time.Time
	clock Clock
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithClock sets the clock function, used by tests to pin the current day.
func WithClock(clock Clock) Option {
	return func(c *Calendar) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New constructs a Calendar anchored at the study start date. Only the date
// portion of start is significant.
func New(start time.Time, opts ...Option) *Calendar {
	c := &Calendar{start: start, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start returns the study start date.
func (c *Calendar) Start() time.Time {
	return c.start
}

// Today returns the repeat instance number for the current day: 1 + whole
// days since the study start date. Day 1 is the start date itself.
func (c *Calendar) Today() int {
	return 1 + daysBetween(c.start, c.clock())
}

// WindowStart returns the lowest instance number still inside the trailing
// seven-day window.
func (c *Calendar) WindowStart() int {
	return c.Today() - WindowDays
}

// daysBetween counts whole calendar days from start to now, ignoring the time
// of day on both ends.
func daysBetween(start, now time.Time) int {
	sy, sm, sd := start.Date()
	ny, nm, nd := now.Date()
	s := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(n.Sub(s) / (24 * time.Hour))
}
