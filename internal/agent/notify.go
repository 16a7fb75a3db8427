package agent

import (
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

const (
	notifyReady    = daemon.SdNotifyReady
	notifyStopping = daemon.SdNotifyStopping
	notifyWatchdog = daemon.SdNotifyWatchdog
)

// Notifier reports lifecycle transitions to the service manager.
type Notifier interface {
	Notify(state string)
	// WatchdogInterval is zero when no watchdog is armed.
	WatchdogInterval() time.Duration
}

type systemdNotifier struct {
	logger *slog.Logger
}

func newSystemdNotifier(logger *slog.Logger) *systemdNotifier {
	return &systemdNotifier{logger: logger}
}

func (n *systemdNotifier) Notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("systemd notified", "state", state)
	}
}

func (n *systemdNotifier) WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("systemd watchdog misconfigured", "error", err)
		return 0
	}
	return d
}
