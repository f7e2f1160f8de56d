package driver

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

// FeedWatchdog tells the gateway watchdog that thread of driver module is
// alive. If the watchdog is not fed again within countdown seconds it
// restarts the driver.
func (d *Driver) FeedWatchdog(module, thread string, countdown int) error {
	if err := protocol.ValidateText("module name", module); err != nil {
		return err
	}
	if err := protocol.ValidateText("thread name", thread); err != nil {
		return err
	}

	name := protocol.DriverName(module)
	err := d.signal(protocol.WatchdogName, protocol.NameToPath(name), protocol.WatchdogName,
		protocol.SignalFeedWatchdog, name, thread, int32(countdown))
	if err != nil {
		return callFailed(protocol.SignalFeedWatchdog, err)
	}
	return nil
}

// RunWatchdog feeds the watchdog for thread every interval until ctx is
// done or the driver stops. Failed feeds are logged and retried on the next
// tick.
func (d *Driver) RunWatchdog(ctx context.Context, thread string, interval time.Duration, countdown int) error {
	if interval <= 0 {
		return protocol.Errorf(protocol.InvalidParam, "watchdog interval must be positive, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := d.FeedWatchdog(d.module, thread, countdown); err != nil {
			d.logger.Warn("feeding watchdog failed", "thread", thread, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-ticker.C:
		}
	}
}
