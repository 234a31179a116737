// Package scheduler drives a queue.State from wall-clock time.
//
// The scheduler owns no task semantics of its own. It:
//   - triggers queue.State.Tick on a cron or interval spec (robfig/cron)
//   - hands every Fire to a Handler and publishes it on the event bus
//   - periodically checkpoints the State through a Checkpointer
//
// Ticks that would overlap a still-running tick are skipped.
package scheduler
