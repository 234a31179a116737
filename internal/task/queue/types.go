package queue

import (
	"bytes"

	"weekcron/internal/task/calendar"
)

// TaskID identifies a task. IDs increase monotonically and are never reused,
// including across restarts.
type TaskID uint64

// Task is a registered recurring task.
//
// Values returned from State are copies; mutating them has no effect on the
// stored task.
type Task struct {
	ID        TaskID
	Payload   []byte
	Interval  Interval
	NextFire  calendar.Instant
	Remaining Iterations
}

func (t Task) clone() Task {
	t.Payload = bytes.Clone(t.Payload)
	return t
}

// Fire is one due execution produced by Tick.
type Fire struct {
	TaskID      TaskID
	Payload     []byte
	ScheduledAt calendar.Instant // next_fire value that became due
	Remaining   Iterations       // after this fire
	Retired     bool             // task removed after this fire
}

// Payloads extracts the payloads of fires in order.
func Payloads(fires []Fire) [][]byte {
	if len(fires) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(fires))
	for _, f := range fires {
		out = append(out, f.Payload)
	}
	return out
}

// CatchUp selects how Tick handles tasks that missed more than one period.
type CatchUp int

const (
	// CatchUpCollapse fires a task at most once per Tick call.
	CatchUpCollapse CatchUp = iota
	// CatchUpBurst fires once per missed period, up to the burst cap.
	CatchUpBurst
)

const DefaultBurstCap = 16

func (c CatchUp) String() string {
	switch c {
	case CatchUpBurst:
		return "burst"
	default:
		return "collapse"
	}
}

// Option configures a State.
type Option func(*State)

// WithClock overrides the clock used by Enqueue and EnqueueWeekly.
func WithClock(now func() calendar.Instant) Option {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCatchUp sets the catch-up policy.
func WithCatchUp(c CatchUp) Option {
	return func(s *State) { s.catchUp = c }
}

// WithBurstCap bounds the fires per task per Tick under CatchUpBurst.
// Values < 1 fall back to DefaultBurstCap.
func WithBurstCap(n int) Option {
	return func(s *State) { s.burstCap = n }
}
