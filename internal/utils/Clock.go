package utils

import (
	"time"

	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (s SystemClock) Now() time.Time {
	return time.Now()
}

// Today returns the calendar date of clock.Now() in the given IANA time zone.
// An empty or unknown zone falls back to UTC.
func Today(clock Clock, timezone string) week.Date {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			log.Warnf("unknown timezone %q, using UTC: %v", timezone, err)
		} else {
			loc = l
		}
	}
	return week.DateOf(clock.Now().In(loc))
}

// MockClock always returns FixedNow.
type MockClock struct {
	FixedNow time.Time
}

func (m *MockClock) Now() time.Time {
	return m.FixedNow
}

func (m *MockClock) SetNow(now time.Time) {
	m.FixedNow = now
}
