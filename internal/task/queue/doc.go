// Package queue holds the recurring-task state: the task store, the tick
// engine that selects and advances due tasks, and snapshot/restore of the
// whole state across process restarts.
//
// A State is safe for concurrent use. Every operation runs to completion
// under the State's lock, so the state is never observed mid-mutation.
//
// Tick anchors future fires to the original schedule (next_fire += period),
// never to the tick time. Missed periods are handled by the catch-up policy:
//   - CatchUpCollapse (default): at most one fire per task per tick.
//   - CatchUpBurst: one fire per missed period, bounded by a per-tick cap.
package queue
