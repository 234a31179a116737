package app

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"weekcron/internal/eventbus"
	"weekcron/internal/storage"
	"weekcron/internal/task/queue"
	logx "weekcron/pkg/logx"
)

const (
	journalBuffer = 256
	drainTimeout  = time.Second
)

// journal appends every task.fired event to the store. Failures are
// logged (throttled) and never stop the daemon.
type journal struct {
	store storage.Store
	log   logx.Logger
	lim   *rate.Limiter

	written uint64
	failed  uint64
}

func newJournal(store storage.Store, log logx.Logger) *journal {
	return &journal{store: store, log: log, lim: rate.NewLimiter(rate.Every(10*time.Second), 1)}
}

func (j *journal) run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			j.drain(events)
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			j.append(ctx, e)
		}
	}
}

// drain writes whatever is still buffered; the last tick before shutdown
// publishes fires that must not be lost.
func (j *journal) drain(events <-chan eventbus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			j.append(ctx, e)
		default:
			j.log.Debug("journal drained", logx.Uint64("written", j.written), logx.Uint64("failed", j.failed))
			return
		}
	}
}

func (j *journal) append(ctx context.Context, e eventbus.Event) {
	f, ok := e.Data.(queue.Fire)
	if !ok {
		return
	}
	if err := j.store.AppendFire(ctx, fireRecord(f, e.Time)); err != nil {
		j.failed++
		if j.lim.Allow() {
			j.log.Warn("journal append failed",
				logx.Uint64("task_id", uint64(f.TaskID)),
				logx.Uint64("failed_total", j.failed),
				logx.Err(err),
			)
		}
		return
	}
	j.written++
}

func fireRecord(f queue.Fire, at time.Time) storage.FireRecord {
	return storage.FireRecord{
		TaskID:      uint64(f.TaskID),
		Payload:     f.Payload,
		ScheduledAt: uint64(f.ScheduledAt),
		FiredAt:     at.UTC(),
		Remaining:   f.Remaining.String(),
		Retired:     f.Retired,
	}
}
