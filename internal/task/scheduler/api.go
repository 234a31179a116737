package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"weekcron/internal/eventbus"
	"weekcron/internal/task/calendar"
	"weekcron/internal/task/queue"
	logx "weekcron/pkg/logx"
)

var nowInstant = calendar.Now

// TickNow runs one tick at now. Every fire is published as task.fired and
// then passed to the Handler, in the order produced by queue.State.Tick.
func (s *Service) TickNow(ctx context.Context, now calendar.Instant) []queue.Fire {
	fires := s.state.Tick(now)
	s.ticks.Add(1)
	s.fires.Add(uint64(len(fires)))

	s.mu.Lock()
	h := s.handler
	hook := s.onTick
	s.mu.Unlock()

	for _, f := range fires {
		s.publish(EventTaskFired, f)
	}
	for _, f := range fires {
		s.log.Debug("task fired",
			logx.Uint64("task_id", uint64(f.TaskID)),
			logx.String("scheduled_at", f.ScheduledAt.String()),
			logx.String("remaining", f.Remaining.String()),
			logx.Bool("retired", f.Retired),
		)
		if h != nil {
			s.dispatch(ctx, h, f)
		}
	}
	if hook != nil {
		hook(now.Time())
	}
	return fires
}

func (s *Service) dispatch(ctx context.Context, h Handler, f queue.Fire) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic",
				logx.Uint64("task_id", uint64(f.TaskID)),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	h(ctx, f)
}

// Enqueue registers payload with iv relative to the current time.
func (s *Service) Enqueue(payload []byte, iv queue.Interval) (queue.TaskID, error) {
	id, err := s.state.Enqueue(payload, iv)
	if err != nil {
		s.log.Debug("enqueue rejected", logx.Err(err))
		return 0, err
	}
	s.log.Info("task enqueued",
		logx.Uint64("task_id", uint64(id)),
		logx.Uint64("delay_ns", iv.Delay),
		logx.Uint64("period_ns", iv.Period),
		logx.String("iterations", iv.Iterations.String()),
	)
	s.publish(EventTaskEnqueued, TaskEvent{ID: id, Payload: bytes.Clone(payload), Interval: iv})
	return id, nil
}

// EnqueueWeekly registers payload at every start of weekday, beginning with
// the next one.
func (s *Service) EnqueueWeekly(weekday calendar.Weekday, payload []byte) (queue.TaskID, error) {
	id, err := s.state.EnqueueWeekly(weekday, payload)
	if err != nil {
		s.log.Debug("weekly enqueue rejected", logx.Err(err))
		return 0, err
	}
	ev := TaskEvent{ID: id, Payload: bytes.Clone(payload)}
	if t, ok := s.state.Get(id); ok {
		ev.Interval = t.Interval
		s.log.Info("weekly task enqueued",
			logx.Uint64("task_id", uint64(id)),
			logx.String("weekday", weekday.String()),
			logx.Time("next_fire", t.NextFire.Time()),
		)
	}
	s.publish(EventTaskEnqueued, ev)
	return id, nil
}

// Dequeue removes the task with id. A missing id is reported as false.
func (s *Service) Dequeue(id queue.TaskID) (queue.Task, bool) {
	t, ok := s.state.Dequeue(id)
	if !ok {
		s.log.Debug("dequeue: no such task", logx.Uint64("task_id", uint64(id)))
		return t, false
	}
	s.log.Info("task dequeued", logx.Uint64("task_id", uint64(id)))
	s.publish(EventTaskDequeued, TaskEvent{ID: t.ID, Payload: bytes.Clone(t.Payload), Interval: t.Interval})
	return t, true
}

func (s *Service) List() []queue.Task { return s.state.List() }

// Checkpoint persists a snapshot of the State through the Checkpointer.
func (s *Service) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	ck := s.ckpt
	s.mu.Unlock()
	if ck == nil {
		return ErrNoCheckpointer
	}
	blob, err := s.state.Snapshot()
	if err == nil {
		err = ck.SaveSnapshot(ctx, blob)
	}

	s.ckMu.Lock()
	s.lastCkErr = err
	if err == nil {
		s.lastCkpt = time.Now()
		s.lastCkSize = len(blob)
	}
	s.ckMu.Unlock()

	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	s.log.Debug("checkpoint saved", logx.Int("bytes", len(blob)))
	s.publish(EventCheckpoint, len(blob))
	return nil
}

// Status reports configuration, trigger times and counters.
func (s *Service) Status() Status {
	s.mu.Lock()
	cfg := s.cfg
	c := s.c
	tickID := s.tickID
	s.mu.Unlock()

	st := Status{
		Enabled:         cfg.Enabled,
		Running:         c != nil,
		Tick:            tickSpecOrDefault(cfg.Tick),
		CatchUp:         s.state.CatchUp().String(),
		BurstCap:        cfg.BurstCap,
		Tasks:           s.state.Len(),
		NextID:          s.state.NextID(),
		Ticks:           s.ticks.Load(),
		Fires:           s.fires.Load(),
		SkippedTicks:    s.skipped.Load(),
		CheckpointEvery: cfg.CheckpointEvery,
	}
	if c != nil && tickID != 0 {
		e := c.Entry(tickID)
		st.Next = e.Next
		st.Prev = e.Prev
	}

	s.ckMu.Lock()
	st.LastCheckpoint = s.lastCkpt
	st.LastCheckpointN = s.lastCkSize
	if s.lastCkErr != nil {
		st.CheckpointErr = s.lastCkErr.Error()
	}
	s.ckMu.Unlock()
	return st
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
