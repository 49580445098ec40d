package studyday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestTodayOnStartDateIsOne(t *testing.T) {
	start := time.Date(2024, 9, 12, 0, 0, 0, 0, time.UTC)
	cal := New(start, WithClock(fixed(time.Date(2024, 9, 12, 23, 59, 0, 0, time.UTC))))
	assert.Equal(t, 1, cal.Today())
}

func TestTodayIgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2024, 9, 12, 17, 45, 0, 0, time.UTC)
	cal := New(start, WithClock(fixed(time.Date(2024, 9, 13, 0, 1, 0, 0, time.UTC))))
	assert.Equal(t, 2, cal.Today())
}

func TestTodayIncrementsOncePerDay(t *testing.T) {
	start := time.Date(2024, 9, 12, 0, 0, 0, 0, time.UTC)
	for days := 0; days < 10; days++ {
		now := start.AddDate(0, 0, days)
		cal := New(start, WithClock(fixed(now)))
		assert.Equal(t, 1+days, cal.Today())
	}
}

func TestWindowStart(t *testing.T) {
	start := time.Date(2024, 9, 12, 0, 0, 0, 0, time.UTC)
	cal := New(start, WithClock(fixed(start.AddDate(0, 0, 20))))
	assert.Equal(t, 21, cal.Today())
	assert.Equal(t, 14, cal.WindowStart())
}
