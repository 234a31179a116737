package app

import (
	"context"
	"errors"

	"weekcron/internal/config"
	"weekcron/internal/storage"
	"weekcron/internal/task/queue"
	logx "weekcron/pkg/logx"
)

// ErrNoStorage is returned by the read-only helpers when the config keeps
// tasks in memory only.
var ErrNoStorage = errors.New("storage is disabled in config")

// Inspection is a read-only view of the stored snapshot.
type Inspection struct {
	Driver string
	Found  bool
	NextID queue.TaskID
	Tasks  []queue.Task
}

// InspectSnapshot loads and validates the stored snapshot without starting
// anything.
func InspectSnapshot(ctx context.Context, cfgPath string) (Inspection, error) {
	var out Inspection
	err := withStore(ctx, cfgPath, func(_ *config.Config, sc storage.Config, st storage.Store) error {
		out.Driver = sc.Driver
		state, fresh, err := restoreState(ctx, st)
		if err != nil {
			return err
		}
		out.Found = !fresh
		out.NextID = state.NextID()
		out.Tasks = offlineScheduler(state).List()
		return nil
	})
	return out, err
}

// RecentFires returns up to n journaled fires, oldest first.
func RecentFires(ctx context.Context, cfgPath string, n int) ([]storage.FireRecord, error) {
	var out []storage.FireRecord
	err := withStore(ctx, cfgPath, func(_ *config.Config, _ storage.Config, st storage.Store) error {
		var err error
		out, err = st.RecentFires(ctx, n)
		return err
	})
	return out, err
}

func withStore(ctx context.Context, cfgPath string, fn func(*config.Config, storage.Config, storage.Store) error) error {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrNoStorage
	}
	st, err := storage.Open(ctx, sc, logx.Nop())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, sc, st)
}
