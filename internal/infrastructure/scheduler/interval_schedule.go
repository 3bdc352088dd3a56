package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval, optionally with the first
// run immediately after registration.
type IntervalSchedule struct {
	Interval  time.Duration
	Immediate bool

	fired bool
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// StartingNow makes the first run happen on the next scheduler tick.
func (s *IntervalSchedule) StartingNow() *IntervalSchedule {
	s.Immediate = true
	return s
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Immediate && !s.fired {
		s.fired = true
		return t
	}
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
