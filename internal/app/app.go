// Package app wires the weekcron daemon together: config, logging,
// storage, the task state and its trigger, the greeter, the fire journal
// and systemd notification.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"weekcron/internal/config"
	"weekcron/internal/eventbus"
	"weekcron/internal/greeter"
	"weekcron/internal/runtime/supervisor"
	"weekcron/internal/storage"
	"weekcron/internal/task/queue"
	"weekcron/internal/task/scheduler"
	logx "weekcron/pkg/logx"
	"weekcron/pkg/systemd"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sd    *systemd.Notifier

	state *queue.State
	sched *scheduler.Service
	greet *greeter.Greeter

	out      io.Writer
	restored bool
}

type Option func(*App)

// WithOutput sends greetings to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New loads the config, opens storage and restores the task state. A
// corrupt snapshot is fatal: New returns an error wrapping
// queue.ErrCorruptSnapshot and nothing is started.
func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	a := &App{cfgPath: cfgPath, out: logx.Stdout()}
	for _, o := range opts {
		o(a)
	}

	a.cfgm = config.NewConfigManager(cfgPath)
	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, err
	}
	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, storeEnabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.bus = eventbus.New()
	a.sd = systemd.New(cfg.Systemd.Notify)

	if storeEnabled {
		st, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	state, fresh, err := restoreState(ctx, a.store)
	if err != nil {
		a.closeStore()
		_ = logSvc.Close()
		return nil, err
	}
	a.state = state
	a.restored = !fresh

	a.greet = greeter.New(log.With(logx.String("comp", "greeter")), a.out)
	a.sched = scheduler.New(schedCfg, state, log.With(logx.String("comp", "scheduler")), a.bus)
	a.sched.SetHandler(a.greet.Handle)
	if a.store != nil {
		a.sched.SetCheckpointer(a.store)
	}
	a.sched.SetOnTick(func(now time.Time) {
		if _, err := a.sd.Ping(now); err != nil {
			a.log.Debug("watchdog ping failed", logx.Err(err))
		}
	})

	if fresh {
		n, err := seedGreetings(a.sched, cfg.Greetings)
		if err != nil {
			a.closeStore()
			_ = logSvc.Close()
			return nil, err
		}
		if n > 0 {
			a.log.Info("greetings seeded", logx.Int("count", n))
			// Persist right away so a crash before the first checkpoint
			// does not seed the same greetings twice.
			if a.store != nil {
				if err := a.sched.Checkpoint(ctx); err != nil {
					a.log.Warn("initial checkpoint failed", logx.Err(err))
				}
			}
		}
	} else {
		a.log.Info("state restored",
			logx.Int("tasks", state.Len()),
			logx.Uint64("next_id", uint64(state.NextID())),
		)
	}
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// LogTasks writes the live task table to the log, one line per task.
func (a *App) LogTasks() {
	tasks := a.sched.List()
	a.log.Info("task table", logx.Int("tasks", len(tasks)), logx.Uint64("next_id", uint64(a.state.NextID())))
	for _, t := range tasks {
		a.log.Info("task",
			logx.Uint64("task_id", uint64(t.ID)),
			logx.String("payload", string(t.Payload)),
			logx.Time("next_fire", t.NextFire.Time()),
			logx.Duration("period", time.Duration(t.Interval.Period)),
			logx.String("remaining", t.Remaining.String()),
		)
	}
}

// Restored reports whether the state came from a stored snapshot.
func (a *App) Restored() bool { return a.restored }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(journalBuffer, scheduler.EventTaskFired)
		j := newJournal(a.store, a.log.With(logx.String("comp", "journal")))
		a.sup.Go("journal", func(c context.Context) error {
			defer unsub()
			return j.run(c, events)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	// The watcher retries fsnotify failures itself; a panic is restarted here.
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, time.Minute),
		supervisor.WithMaxRestarts(5),
	)

	if err := a.sched.Start(run); err != nil {
		a.sup.Cancel()
		return err
	}

	if _, err := a.sd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	_, _ = a.sd.Status("tasks=%d", a.state.Len())
	a.log.Info("app started",
		logx.Int("tasks", a.state.Len()),
		logx.Bool("restored", a.restored),
		logx.Bool("scheduler", a.sched.Enabled()),
	)
	return nil
}

// Stop shuts down in order: trigger, final snapshot, background goroutines
// (the journal drains what the last ticks published), storage, logging.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.sd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	if a.store != nil {
		a.step(ctx, "checkpoint", 2*time.Second, func(c context.Context) error {
			err := a.sched.Checkpoint(c)
			keep(err)
			return err
		})
	}
	if a.sup != nil {
		a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Stop(c) })
		c := a.sup.Counters()
		a.log.Debug("supervisor stopped",
			logx.Uint64("started", c.Started),
			logx.Uint64("restarts", c.Restarts),
			logx.Uint64("panics", c.Panics),
		)
	}
	if n := a.bus.Dropped(); n > 0 {
		a.log.Warn("events dropped by slow subscribers", logx.Uint64("count", n))
	}
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.closeStoreErr() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}

// step runs one shutdown step bounded by maxWait (and never past ctx's
// deadline), so one stuck component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, maxWait time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

func (a *App) closeStore() { _ = a.closeStoreErr() }

func (a *App) closeStoreErr() error {
	if a.store == nil {
		return nil
	}
	st := a.store
	a.store = nil
	return st.Close()
}
