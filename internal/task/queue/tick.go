package queue

import (
	"bytes"
	"sort"

	"weekcron/internal/task/calendar"
)

// Tick fires every task whose NextFire <= now, in ascending id order, and
// advances or retires it. Due-ness is evaluated once, before any mutation,
// so a task is visited at most once per call.
func (s *State) Tick(now calendar.Instant) []Fire {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []TaskID
	for id, t := range s.tasks {
		if t.NextFire <= now {
			due = append(due, id)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	fires := make([]Fire, 0, len(due))
	for _, id := range due {
		t := s.tasks[id]
		n := uint64(1)
		if s.catchUp == CatchUpBurst {
			n = s.burstLocked(t, now)
		}
		for i := uint64(0); i < n; i++ {
			f := Fire{
				TaskID:      id,
				Payload:     bytes.Clone(t.Payload),
				ScheduledAt: t.NextFire,
			}
			f.Retired = advance(t)
			f.Remaining = t.Remaining
			fires = append(fires, f)
			if f.Retired {
				delete(s.tasks, id)
				break
			}
		}
	}
	return fires
}

// advance consumes one iteration of t and reports whether t is exhausted.
// The next fire is anchored to the previous scheduled instant, not to now.
func advance(t *Task) bool {
	if !t.Remaining.Infinite {
		t.Remaining.Count--
		if t.Remaining.Count == 0 {
			return true
		}
	}
	t.NextFire = t.NextFire.Add(t.Interval.Period)
	return false
}

// burstLocked returns how many fires t gets in this tick under CatchUpBurst:
// one per elapsed period, bounded by the burst cap and the remaining budget.
func (s *State) burstLocked(t *Task, now calendar.Instant) uint64 {
	limit := uint64(s.burstCap)
	if s.burstCap < 1 {
		limit = DefaultBurstCap
	}
	n := uint64(1)
	if p := t.Interval.Period; p > 0 {
		n = uint64(now-t.NextFire)/p + 1
	}
	if n > limit {
		n = limit
	}
	if !t.Remaining.Infinite && n > t.Remaining.Count {
		n = t.Remaining.Count
	}
	return n
}
