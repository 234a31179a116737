package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"weekcron/internal/eventbus"
	"weekcron/internal/task/queue"
	logx "weekcron/pkg/logx"
)

func New(cfg Config, state *queue.State, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if state == nil {
		state = queue.New()
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		state:   state,
		parser:  cronParser,
		warnLim: map[string]*rate.Limiter{},
	}
	if c, err := ParseCatchUp(cfg.CatchUp); err == nil {
		state.SetCatchUp(c, cfg.BurstCap)
	}
	return s
}

// SetHandler registers the consumer of fires. A nil handler drops fires
// after they are published on the bus.
func (s *Service) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Service) SetCheckpointer(c Checkpointer) {
	s.mu.Lock()
	s.ckpt = c
	s.mu.Unlock()
}

// SetOnTick registers a hook called after every tick (e.g. a watchdog ping).
func (s *Service) SetOnTick(fn func(now time.Time)) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

// State returns the underlying task state.
func (s *Service) State() *queue.State { return s.state }

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// ParseCatchUp maps a config string to a queue.CatchUp policy.
func ParseCatchUp(v string) (queue.CatchUp, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "collapse":
		return queue.CatchUpCollapse, nil
	case "burst":
		return queue.CatchUpBurst, nil
	default:
		return queue.CatchUpCollapse, fmt.Errorf("unknown catch_up %q (use collapse or burst)", v)
	}
}

// Start begins cron triggering. It is a no-op when the service is disabled
// or already running. ctx is handed to every Handler call.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCtx = ctx
	if s.c != nil {
		return nil
	}
	cur := s.cfg
	s.log.Debug("start requested", logx.Bool("enabled", cur.Enabled), logx.String("tick", cur.Tick))
	if !cur.Enabled {
		s.log.Info("service disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	cl := cronLogger{log: s.log.With(logx.String("sub", "cron")), skipped: &s.skipped}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	tickID, err := s.addTickLocked(c)
	if err != nil {
		return err
	}
	s.c = c
	s.tickID = tickID
	s.ckptID = s.addCheckpointLocked(c)
	c.Start()
	s.log.Info("service started",
		logx.String("tick", tickSpecOrDefault(s.cfg.Tick)),
		logx.String("catch_up", s.state.CatchUp().String()),
		logx.Duration("checkpoint_every", s.cfg.CheckpointEvery),
		logx.Int("tasks", s.state.Len()),
	)
	return nil
}

// Stop stops cron triggering and waits for an in-flight tick, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.tickID, s.ckptID = 0, 0
	// A late Apply must not restart triggering after Stop.
	s.baseCtx = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Apply hot-reloads cfg. The tick and checkpoint entries are re-registered
// only when their specs change.
func (s *Service) Apply(cfg Config) error {
	cu, err := ParseCatchUp(cfg.CatchUp)
	if err != nil {
		return err
	}
	if err := ValidateTick(tickSpecOrDefault(cfg.Tick)); err != nil {
		return fmt.Errorf("tick: %w", err)
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.state.SetCatchUp(cu, cfg.BurstCap)

	switch {
	case s.c == nil && cfg.Enabled && s.baseCtx != nil:
		err := s.startLocked()
		s.mu.Unlock()
		return err
	case s.c != nil && !cfg.Enabled:
		c := s.c
		s.c = nil
		s.tickID, s.ckptID = 0, 0
		s.mu.Unlock()
		// A running tick takes s.mu, so wait outside the lock.
		<-c.Stop().Done()
		s.log.Info("service disabled by config")
		return nil
	case s.c == nil:
		s.mu.Unlock()
		return nil
	}
	defer s.mu.Unlock()

	if tickSpecOrDefault(old.Tick) != tickSpecOrDefault(cfg.Tick) {
		s.c.Remove(s.tickID)
		id, err := s.addTickLocked(s.c)
		if err != nil {
			s.tickID = 0
			return err
		}
		s.tickID = id
		s.log.Info("tick spec changed", logx.String("old", tickSpecOrDefault(old.Tick)), logx.String("new", tickSpecOrDefault(cfg.Tick)))
	}
	if old.CheckpointEvery != cfg.CheckpointEvery {
		if s.ckptID != 0 {
			s.c.Remove(s.ckptID)
		}
		s.ckptID = s.addCheckpointLocked(s.c)
	}
	return nil
}

func tickSpecOrDefault(v string) string {
	if strings.TrimSpace(v) == "" {
		return DefaultTick
	}
	return v
}

func (s *Service) addTickLocked(c *cron.Cron) (cron.EntryID, error) {
	ps, err := ParseSchedule(tickSpecOrDefault(s.cfg.Tick))
	if err != nil {
		return 0, fmt.Errorf("tick: %w", err)
	}
	job := cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}
		s.TickNow(ctx, nowInstant())
	})
	switch ps.Kind {
	case SpecInterval:
		return c.Schedule(cron.Every(ps.Every), job), nil
	default:
		id, err := c.AddJob(ps.Cron, job)
		if err != nil {
			return 0, fmt.Errorf("tick: %w", err)
		}
		return id, nil
	}
}

func (s *Service) addCheckpointLocked(c *cron.Cron) cron.EntryID {
	every := s.cfg.CheckpointEvery
	if every <= 0 || s.ckpt == nil {
		return 0
	}
	sched, jitter := makeIntervalScheduleWithSpread(every, time.Now().UTC(), "checkpoint")
	s.log.Debug("checkpoint registered", logx.Duration("every", every), logx.Duration("first_spread", jitter))
	return c.Schedule(sched, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.Checkpoint(ctx); err != nil {
			s.warn("checkpoint", "periodic checkpoint failed", logx.Err(err))
		}
	}))
}
