package config

import (
	"fmt"
	"strings"

	"weekcron/internal/task/calendar"
	logx "weekcron/pkg/logx"
)

// Validate checks everything that can be checked without the services
// themselves. Tick spec syntax is checked by the app when it maps the
// scheduler section.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.BurstCap < 0 {
		return fmt.Errorf("scheduler.burst_cap must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Scheduler.CatchUp)) {
	case "", "collapse", "burst":
	default:
		return fmt.Errorf("scheduler.catch_up: unknown policy %q (use collapse or burst)", cfg.Scheduler.CatchUp)
	}
	if _, err := ParseDurationField("scheduler.checkpoint_every", cfg.Scheduler.CheckpointEvery); err != nil {
		return err
	}

	if sc := cfg.Storage; sc != nil {
		if _, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", sc.Driver)
			}
		case "postgres", "postgresql", "pgx":
			if strings.TrimSpace(sc.DSN) == "" {
				return fmt.Errorf("storage.dsn is required when storage.driver=%s", sc.Driver)
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", sc.Driver)
		}
	}

	for i, g := range cfg.Greetings {
		if _, err := calendar.ParseWeekday(g.Weekday); err != nil {
			return fmt.Errorf("greetings[%d].weekday: %w", i, err)
		}
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("greetings[%d].name is required", i)
		}
	}
	return nil
}
