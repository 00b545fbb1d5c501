package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ariaworks/aria/pkg/models"
)

// cronParser accepts the 6-field "s m h d M w" form spec.md §4.7 specifies;
// the seconds field is mandatory, unlike robfig/cron's usual 5-field default.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseSchedule validates and parses a ScheduledJob's schedule, enforcing
// spec.md §3's invariant that exactly one of Cron or Every is set.
func ParseSchedule(job *models.ScheduledJob) (Schedule, error) {
	if job == nil {
		return Schedule{}, fmt.Errorf("job is nil")
	}
	if !job.HasExactlyOneSchedule() {
		return Schedule{}, fmt.Errorf("job %s must set exactly one of cron or every", job.ID)
	}
	if job.Every > 0 {
		return Schedule{Kind: ScheduleEvery, Every: job.Every}, nil
	}
	if _, err := cronParser.Parse(job.Cron); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", job.Cron, err)
	}
	return Schedule{Kind: ScheduleCron, CronExpr: job.Cron}, nil
}

// Next returns the next fire time strictly after now. Missed ticks while
// the process was down never backfill — the result is always the first
// scheduled time at or after now, never a time in the past (spec.md §4.7).
func (s Schedule) Next(now time.Time) (time.Time, error) {
	switch s.Kind {
	case ScheduleEvery:
		if s.Every <= 0 {
			return time.Time{}, fmt.Errorf("every schedule missing duration")
		}
		return now.Add(s.Every), nil
	case ScheduleCron:
		if s.CronExpr == "" {
			return time.Time{}, fmt.Errorf("cron schedule missing expression")
		}
		schedule, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
		}
		return schedule.Next(now), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}
