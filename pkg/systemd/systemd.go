// Package systemd reports service state to systemd through sd_notify. Every
// call is a no-op when the process was not started by a notify-type unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func Ready() (bool, error)     { return notify(daemon.SdNotifyReady) }
func Stopping() (bool, error)  { return notify(daemon.SdNotifyStopping) }
func Reloading() (bool, error) { return notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(text string) (bool, error) {
	return notify("STATUS=" + text)
}

// Watchdog pings the service manager at half the configured WatchdogSec
// until ctx ends. It returns at once when the watchdog is not enabled.
func Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
