// Package systemd reports daemon state to systemd over sd_notify. Every
// call is a no-op when the process was not started by systemd (no
// NOTIFY_SOCKET) or when notification is disabled in config.
package systemd

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

var (
	sdNotify          = daemon.SdNotify
	sdWatchdogEnabled = daemon.SdWatchdogEnabled
)

// Notifier sends READY, STOPPING, STATUS and WATCHDOG messages.
type Notifier struct {
	enabled bool

	mu        sync.Mutex
	watchdog  time.Duration // 0 when the unit has no WatchdogSec
	lastPing  time.Time
	readySent bool
}

// New returns a Notifier. With enabled=false every method does nothing.
func New(enabled bool) *Notifier {
	n := &Notifier{enabled: enabled}
	if enabled {
		if d, err := sdWatchdogEnabled(false); err == nil {
			n.watchdog = d
		}
	}
	return n
}

// Watchdog is the interval systemd expects pings within (0 if none).
func (n *Notifier) Watchdog() time.Duration {
	if n == nil {
		return 0
	}
	return n.watchdog
}

func (n *Notifier) send(state string) (bool, error) {
	if n == nil || !n.enabled {
		return false, nil
	}
	sent, err := sdNotify(false, state)
	if err != nil {
		return false, fmt.Errorf("sd_notify %q: %w", state, err)
	}
	return sent, nil
}

// Ready reports that startup finished.
func (n *Notifier) Ready() (bool, error) {
	sent, err := n.send(daemon.SdNotifyReady)
	if sent {
		n.mu.Lock()
		n.readySent = true
		n.mu.Unlock()
	}
	return sent, err
}

func (n *Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() (bool, error) { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) (bool, error) {
	return n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// Ping sends WATCHDOG=1, at most once per half watchdog interval. It is
// called on every scheduler tick, so a hung trigger stops the pings and
// lets systemd restart the unit.
func (n *Notifier) Ping(now time.Time) (bool, error) {
	if n == nil || !n.enabled || n.watchdog <= 0 {
		return false, nil
	}
	n.mu.Lock()
	if !n.readySent || (!n.lastPing.IsZero() && now.Sub(n.lastPing) < n.watchdog/2) {
		n.mu.Unlock()
		return false, nil
	}
	n.lastPing = now
	n.mu.Unlock()
	return n.send(daemon.SdNotifyWatchdog)
}
