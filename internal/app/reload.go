package app

import (
	"context"
	"slices"
	"strings"

	"weekcron/internal/config"
	logx "weekcron/pkg/logx"
)

// reloadLoop applies published configs until ctx is done. Bursts are
// coalesced to the newest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		coalesce:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break coalesce
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = a.sd.Reloading()
	defer func() { _, _ = a.sd.Ready() }()

	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}
	if slices.Contains(sections, "scheduler") {
		sc, err := mapSchedulerConfig(newCfg)
		if err == nil {
			err = a.sched.Apply(sc)
		}
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		}
	}
	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "systemd") {
		a.log.Warn("systemd config changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "greetings") {
		a.log.Info("greetings changed; they only seed a fresh state and are not re-applied")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
