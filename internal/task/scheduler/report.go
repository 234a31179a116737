package scheduler

import (
	"time"

	"golang.org/x/time/rate"

	logx "weekcron/pkg/logx"
)

const warnThrottle = 5 * time.Second

// warn logs msg at most once per warnThrottle for each key. Checkpoint
// failures against a dead backend would otherwise log on every interval.
func (s *Service) warn(key, msg string, fields ...logx.Field) {
	s.warnMu.Lock()
	lim, ok := s.warnLim[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(warnThrottle), 1)
		s.warnLim[key] = lim
	}
	s.warnMu.Unlock()

	if !lim.Allow() {
		return
	}
	s.log.Warn(msg, fields...)
}
