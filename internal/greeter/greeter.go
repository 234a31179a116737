// Package greeter is the payload consumer: every fired task carries a name,
// and the greeter writes "Hello, <name>" for it.
package greeter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"weekcron/internal/task/calendar"
	"weekcron/internal/task/queue"
	logx "weekcron/pkg/logx"
)

var (
	ErrEmptyName   = errors.New("greeter: empty name")
	ErrInvalidName = errors.New("greeter: name is not valid UTF-8")
)

// WeeklyEnqueuer is satisfied by queue.State and scheduler.Service.
type WeeklyEnqueuer interface {
	EnqueueWeekly(weekday calendar.Weekday, payload []byte) (queue.TaskID, error)
}

type Greeter struct {
	log logx.Logger

	mu  sync.Mutex
	out io.Writer
}

func New(log logx.Logger, out io.Writer) *Greeter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Greeter{log: log, out: out}
}

// Handle greets the name carried by f. It matches scheduler.Handler.
func (g *Greeter) Handle(ctx context.Context, f queue.Fire) {
	if ctx.Err() != nil {
		return
	}
	name := string(f.Payload)
	g.mu.Lock()
	_, err := fmt.Fprintf(g.out, "Hello, %s\n", name)
	g.mu.Unlock()
	if err != nil {
		g.log.Warn("greet failed", logx.Uint64("task_id", uint64(f.TaskID)), logx.Err(err))
		return
	}
	g.log.Info("greeted",
		logx.Uint64("task_id", uint64(f.TaskID)),
		logx.String("name", name),
		logx.String("remaining", f.Remaining.String()),
	)
}

// GreetEach schedules name to be greeted at the start of every weekday,
// beginning with the next one.
func GreetEach(enq WeeklyEnqueuer, weekday calendar.Weekday, name string) (queue.TaskID, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	if !weekday.Valid() {
		return 0, fmt.Errorf("%w: weekday %d", queue.ErrInvalidInterval, weekday)
	}
	return enq.EnqueueWeekly(weekday, []byte(name))
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if !utf8.ValidString(name) {
		return ErrInvalidName
	}
	return nil
}
