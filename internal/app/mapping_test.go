package app

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"weekcron/internal/config"
	"weekcron/internal/storage"
	"weekcron/internal/task/scheduler"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      *config.StorageConfig
		want    storage.Config
		enabled bool
		wantErr string
	}{
		{name: "missing", in: nil},
		{name: "none", in: &config.StorageConfig{Driver: "None"}},
		{name: "file", in: &config.StorageConfig{Driver: "file", Path: " ./state "},
			want: storage.Config{Driver: "file", Path: "./state"}, enabled: true},
		{name: "sqlite default busy", in: &config.StorageConfig{Driver: "sqlite3", Path: "w.db"},
			want: storage.Config{Driver: "sqlite", Path: "w.db", BusyTimeout: time.Second}, enabled: true},
		{name: "sqlite busy", in: &config.StorageConfig{Driver: "sqlite", Path: "w.db", BusyTimeout: "5s"},
			want: storage.Config{Driver: "sqlite", Path: "w.db", BusyTimeout: 5 * time.Second}, enabled: true},
		{name: "postgres", in: &config.StorageConfig{Driver: "PGX", DSN: "postgres://u@h/db"},
			want: storage.Config{Driver: "postgres", DSN: "postgres://u@h/db"}, enabled: true},
		{name: "file without path", in: &config.StorageConfig{Driver: "file"}, wantErr: "storage.path"},
		{name: "postgres without dsn", in: &config.StorageConfig{Driver: "postgres"}, wantErr: "storage.dsn"},
		{name: "bad busy", in: &config.StorageConfig{Driver: "sqlite", Path: "w.db", BusyTimeout: "soon"}, wantErr: "busy_timeout"},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, wantErr: "unknown storage.driver"},
	}
	for _, tt := range tests {
		got, enabled, err := mapStorageConfig(&config.Config{Storage: tt.in})
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("%s: err = %v, want %q", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if enabled != tt.enabled {
			t.Errorf("%s: enabled = %v, want %v", tt.name, enabled, tt.enabled)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: -want +got\n%s", tt.name, diff)
		}
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	got, err := mapSchedulerConfig(&config.Config{Scheduler: config.SchedulerConfig{
		Enabled: true, Tick: " 2s ", CatchUp: "burst", BurstCap: 8, CheckpointEvery: "1m",
	}})
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	want := scheduler.Config{Enabled: true, Tick: "2s", CatchUp: "burst", BurstCap: 8, CheckpointEvery: time.Minute}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("-want +got\n%s", diff)
	}

	for _, sc := range []config.SchedulerConfig{
		{Tick: "61 * * * * *"},
		{CatchUp: "all"},
		{CheckpointEvery: "often"},
	} {
		if _, err := mapSchedulerConfig(&config.Config{Scheduler: sc}); err == nil {
			t.Errorf("mapSchedulerConfig(%+v) accepted", sc)
		}
	}
}

func TestMapLogConfig(t *testing.T) {
	t.Parallel()
	got := mapLogConfig(&config.Config{Logging: config.LoggingConfig{
		Level: "warn", Console: true, File: config.LoggingFile{Enabled: true, Path: "/tmp/w.log"},
	}})
	if got.Level != "warn" || !got.Console || !got.File.Enabled || got.File.Path != "/tmp/w.log" {
		t.Fatalf("mapLogConfig = %+v", got)
	}
}
