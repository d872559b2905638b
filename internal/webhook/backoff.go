package webhook

import "time"

// Schedule maps a delivery attempt number to the wait before the next try.
type Schedule []time.Duration

var (
	ProductionSchedule = Schedule{0, time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour}
	TestSchedule       = Schedule{0, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
)

// ScheduleFor picks the short table when test intervals are enabled.
func ScheduleFor(testIntervals bool) Schedule {
	if testIntervals {
		return TestSchedule
	}
	return ProductionSchedule
}

// Delay returns the wait after attempt (1-based). Attempts past the table use its last entry.
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(s) {
		i = len(s) - 1
	}
	return s[i]
}
