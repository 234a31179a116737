package app

import (
	"context"
	"fmt"

	"weekcron/internal/config"
	"weekcron/internal/greeter"
	"weekcron/internal/storage"
	"weekcron/internal/task/calendar"
	"weekcron/internal/task/queue"
)

// restoreState rebuilds the State from the stored snapshot. fresh is true
// when there is no store or nothing was ever saved.
func restoreState(ctx context.Context, store storage.Store) (st *queue.State, fresh bool, err error) {
	if store == nil {
		return queue.New(), true, nil
	}
	blob, ok, err := store.LoadSnapshot(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return queue.New(), true, nil
	}
	st, err = queue.Restore(blob)
	if err != nil {
		return nil, false, fmt.Errorf("restore snapshot: %w", err)
	}
	return st, false, nil
}

// seedGreetings registers the configured greetings in order and returns
// how many were added.
func seedGreetings(enq greeter.WeeklyEnqueuer, gs []config.GreetingConfig) (int, error) {
	for i, g := range gs {
		wd, err := calendar.ParseWeekday(g.Weekday)
		if err != nil {
			return i, fmt.Errorf("greetings[%d]: %w", i, err)
		}
		if _, err := greeter.GreetEach(enq, wd, g.Name); err != nil {
			return i, fmt.Errorf("greetings[%d]: %w", i, err)
		}
	}
	return len(gs), nil
}
