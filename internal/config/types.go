package config

// Config is the on-disk configuration (JSON or YAML).
//
// Unknown keys are rejected at every level so typos surface on load and
// on hot reload instead of being silently ignored.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Storage is optional; nil or driver "none" keeps tasks in memory only.
	Storage *StorageConfig `json:"storage,omitempty"`

	Systemd SystemdConfig `json:"systemd,omitempty"`

	// Greetings are seeded into a fresh state (no snapshot found). Once a
	// snapshot exists they are ignored; the snapshot is the source of truth.
	Greetings []GreetingConfig `json:"greetings,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger service.
//
// Defaults (when fields are omitted/zero):
//   - tick: "@every 1s"
//   - catch_up: "collapse"
//   - burst_cap: 16 (burst only)
//   - checkpoint_every: "0s" (final snapshot on shutdown only)
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Tick is a cron spec ("*/5 * * * * *", "@every 1s"), a Go duration
	// ("1s") or an HH:MM interval.
	Tick string `json:"tick,omitempty"`

	CatchUp  string `json:"catch_up,omitempty"`
	BurstCap int    `json:"burst_cap,omitempty"`

	// CheckpointEvery is a Go duration string (e.g. "30s", "5m").
	CheckpointEvery string `json:"checkpoint_every,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./weekcron_state" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres (never logged)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SystemdConfig controls sd_notify integration. It is a no-op when the
// process is not started by systemd.
type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// GreetingConfig seeds one weekly greeting.
type GreetingConfig struct {
	Weekday string `json:"weekday"` // "mon".."sun" or full name
	Name    string `json:"name"`
}
