package app

import (
	"context"

	"weekcron/internal/config"
	"weekcron/internal/greeter"
	"weekcron/internal/storage"
	"weekcron/internal/task/calendar"
	"weekcron/internal/task/queue"
	"weekcron/internal/task/scheduler"
	logx "weekcron/pkg/logx"
)

// The helpers below edit the stored task table while the daemon is
// stopped. A running daemon writes its own table on the next checkpoint
// and on stop, which replaces any edit made here.

// GreetTask schedules name for every start of weekday in the stored table.
func GreetTask(ctx context.Context, cfgPath string, weekday calendar.Weekday, name string) (queue.TaskID, error) {
	var id queue.TaskID
	err := editTasks(ctx, cfgPath, func(s *scheduler.Service) (bool, error) {
		var err error
		id, err = greeter.GreetEach(s, weekday, name)
		return err == nil, err
	})
	return id, err
}

// AddTask stores payload with iv, relative to the current time.
func AddTask(ctx context.Context, cfgPath string, payload []byte, iv queue.Interval) (queue.TaskID, error) {
	var id queue.TaskID
	err := editTasks(ctx, cfgPath, func(s *scheduler.Service) (bool, error) {
		var err error
		id, err = s.Enqueue(payload, iv)
		return err == nil, err
	})
	return id, err
}

// DequeueTask removes id from the stored table. A missing id reports
// ok=false and is not an error.
func DequeueTask(ctx context.Context, cfgPath string, id queue.TaskID) (t queue.Task, ok bool, err error) {
	err = editTasks(ctx, cfgPath, func(s *scheduler.Service) (bool, error) {
		t, ok = s.Dequeue(id)
		return ok, nil
	})
	return t, ok, err
}

// editTasks restores the stored table, applies fn through a scheduler that
// never triggers, and checkpoints the result when fn changed it. A table
// that was never saved is seeded with the configured greetings first, as
// the daemon would.
func editTasks(ctx context.Context, cfgPath string, fn func(*scheduler.Service) (changed bool, err error)) error {
	return withStore(ctx, cfgPath, func(cfg *config.Config, _ storage.Config, st storage.Store) error {
		state, fresh, err := restoreState(ctx, st)
		if err != nil {
			return err
		}
		sched := offlineScheduler(state)
		sched.SetCheckpointer(st)

		seeded := 0
		if fresh {
			if seeded, err = seedGreetings(sched, cfg.Greetings); err != nil {
				return err
			}
		}
		changed, err := fn(sched)
		if err != nil {
			return err
		}
		if !changed && seeded == 0 {
			return nil
		}
		return sched.Checkpoint(ctx)
	})
}

func offlineScheduler(state *queue.State) *scheduler.Service {
	return scheduler.New(scheduler.Config{}, state, logx.Nop(), nil)
}
