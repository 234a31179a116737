package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxFirstRunSpread = 30 * time.Second

// spreadSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// makeIntervalScheduleWithSpread returns an @every schedule whose first run
// is pushed back by a jitter derived from tag, bounded by every and by
// maxFirstRunSpread. The same tag always gets the same jitter.
func makeIntervalScheduleWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := every
	if spreadMax > maxFirstRunSpread {
		spreadMax = maxFirstRunSpread
	}
	if spreadMax <= 0 {
		return base, 0
	}
	jitter := time.Duration(fnv64a(tag) % uint64(spreadMax))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
