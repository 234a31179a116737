package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"weekcron/internal/eventbus"
	"weekcron/internal/task/queue"
	logx "weekcron/pkg/logx"
)

// DefaultTick is used when Config.Tick is empty.
const DefaultTick = "@every 1s"

// Event types published on the bus.
const (
	EventTaskFired    = "task.fired"
	EventTaskEnqueued = "task.enqueued"
	EventTaskDequeued = "task.dequeued"
	EventCheckpoint   = "task.checkpoint"
)

var ErrNoCheckpointer = errors.New("scheduler: no checkpointer configured")

// Config controls the trigger service.
type Config struct {
	Enabled         bool
	Tick            string // cron spec, Go duration or HH:MM interval
	CatchUp         string // "collapse" (default) | "burst"
	BurstCap        int
	CheckpointEvery time.Duration // 0 disables periodic checkpoints
}

// Handler consumes one fire. It runs on the tick goroutine, so a slow
// handler delays the next tick (which is then skipped, not queued).
type Handler func(ctx context.Context, f queue.Fire)

// Checkpointer persists snapshot blobs.
type Checkpointer interface {
	SaveSnapshot(ctx context.Context, blob []byte) error
}

// TaskEvent is the Data of task.enqueued and task.dequeued events.
type TaskEvent struct {
	ID       queue.TaskID
	Payload  []byte
	Interval queue.Interval
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	bus   eventbus.Bus
	state *queue.State

	handler Handler
	ckpt    Checkpointer
	onTick  func(now time.Time)

	parser  cron.Parser
	c       *cron.Cron
	baseCtx context.Context
	tickID  cron.EntryID
	ckptID  cron.EntryID

	ticks   atomic.Uint64
	fires   atomic.Uint64
	skipped atomic.Uint64

	ckMu       sync.Mutex
	lastCkpt   time.Time
	lastCkErr  error
	lastCkSize int

	// Warning throttling: key is the failing operation.
	warnMu  sync.Mutex
	warnLim map[string]*rate.Limiter
}

// Status is a point-in-time view of the service.
type Status struct {
	Enabled  bool
	Running  bool
	Tick     string
	CatchUp  string
	BurstCap int

	Next time.Time
	Prev time.Time

	Tasks  int
	NextID queue.TaskID

	Ticks        uint64
	Fires        uint64
	SkippedTicks uint64

	CheckpointEvery time.Duration
	LastCheckpoint  time.Time
	LastCheckpointN int
	CheckpointErr   string
}
