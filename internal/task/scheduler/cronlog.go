package scheduler

import (
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	logx "weekcron/pkg/logx"
)

// cronLogger adapts logx to cron.Logger and counts ticks dropped by
// cron.SkipIfStillRunning.
type cronLogger struct {
	log     logx.Logger
	skipped *atomic.Uint64
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" && l.skipped != nil {
		l.skipped.Add(1)
		l.log.Debug("tick skipped: previous tick still running")
		return
	}
	l.log.Trace(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
