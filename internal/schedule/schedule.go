package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// cronParser accepts the standard 5-field expression plus @every/@daily
// style descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextRun computes the next run time for a schedule.
//
// Interval schedules anchor on the start of the previous run, so
// next = lastRun + interval regardless of how long the run took.
// Cron schedules return the earliest timestamp strictly after now,
// evaluated in the schedule's timezone (UTC when unset).
func NextRun(s domain.Schedule, lastRun, now time.Time) (time.Time, error) {
	switch s.Kind {
	case domain.ScheduleInterval:
		if s.IntervalSeconds <= 0 {
			return time.Time{}, fmt.Errorf("interval schedule: interval_seconds must be positive")
		}
		return lastRun.Add(time.Duration(s.IntervalSeconds) * time.Second), nil

	case domain.ScheduleCron:
		expr, err := cronParser.Parse(s.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", s.CronExpression, err)
		}
		loc := time.UTC
		if s.Timezone != "" {
			loc, err = time.LoadLocation(s.Timezone)
			if err != nil {
				return time.Time{}, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
			}
		}
		return expr.Next(now.In(loc)), nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// Validate checks a schedule without computing a run time. Used at job
// registration so bad expressions are rejected up front, not at tick time.
func Validate(s domain.Schedule) error {
	_, err := NextRun(s, time.Now().UTC(), time.Now().UTC())
	return err
}
