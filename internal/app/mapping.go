package app

import (
	"fmt"
	"strings"
	"time"

	"weekcron/internal/config"
	"weekcron/internal/storage"
	"weekcron/internal/task/scheduler"
	logx "weekcron/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	if tick := strings.TrimSpace(sc.Tick); tick != "" {
		if err := scheduler.ValidateTick(tick); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.tick: %w", err)
		}
	}
	if _, err := scheduler.ParseCatchUp(sc.CatchUp); err != nil {
		return scheduler.Config{}, fmt.Errorf("scheduler.catch_up: %w", err)
	}
	every, err := config.ParseDurationField("scheduler.checkpoint_every", sc.CheckpointEvery)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:         sc.Enabled,
		Tick:            strings.TrimSpace(sc.Tick),
		CatchUp:         sc.CatchUp,
		BurstCap:        sc.BurstCap,
		CheckpointEvery: every,
	}, nil
}

// mapStorageConfig returns enabled=false for a missing section or driver
// "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: driver, Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, false, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
