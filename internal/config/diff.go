package config

import (
	"reflect"
	"sort"
	"strings"

	logx "weekcron/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like the
// postgres DSN).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	oSch, nSch := oldCfg.Scheduler, newCfg.Scheduler
	if oSch.Enabled != nSch.Enabled ||
		strings.TrimSpace(oSch.Tick) != strings.TrimSpace(nSch.Tick) ||
		!strings.EqualFold(strings.TrimSpace(oSch.CatchUp), strings.TrimSpace(nSch.CatchUp)) ||
		oSch.BurstCap != nSch.BurstCap ||
		strings.TrimSpace(oSch.CheckpointEvery) != strings.TrimSpace(nSch.CheckpointEvery) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", nSch.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(nSch.Tick)),
			logx.String("scheduler.catch_up", strings.TrimSpace(nSch.CatchUp)),
			logx.Int("scheduler.burst_cap", nSch.BurstCap),
			logx.String("scheduler.checkpoint_every", strings.TrimSpace(nSch.CheckpointEvery)),
		)
	}

	// Nil means disabled.
	var oSt, nSt StorageConfig
	if oldCfg.Storage != nil {
		oSt = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nSt = *newCfg.Storage
	}
	if strings.TrimSpace(oSt.Driver) != strings.TrimSpace(nSt.Driver) ||
		strings.TrimSpace(oSt.Path) != strings.TrimSpace(nSt.Path) ||
		strings.TrimSpace(oSt.BusyTimeout) != strings.TrimSpace(nSt.BusyTimeout) ||
		oSt.DSN != nSt.DSN {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nSt.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nSt.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nSt.DSN) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nSt.BusyTimeout)),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	if !reflect.DeepEqual(normGreetings(oldCfg.Greetings), normGreetings(newCfg.Greetings)) {
		changed = append(changed, "greetings")
		attrs = append(attrs, logx.Int("greetings.count", len(newCfg.Greetings)))
	}

	sort.Strings(changed)
	return changed, attrs
}

func normGreetings(gs []GreetingConfig) []GreetingConfig {
	if len(gs) == 0 {
		return nil
	}
	out := make([]GreetingConfig, len(gs))
	for i, g := range gs {
		out[i] = GreetingConfig{
			Weekday: strings.ToLower(strings.TrimSpace(g.Weekday)),
			Name:    strings.TrimSpace(g.Name),
		}
	}
	return out
}
