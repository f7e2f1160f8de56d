package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
)

const introspectHeader = "<!DOCTYPE node PUBLIC \"-//freedesktop//DTD D-BUS Object Introspection 1.0//EN\"\n" +
	"\"http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd\">\n"

const deviceMethods = "    <method name=\"callServices\">\n" +
	"      <arg direction=\"in\" type=\"s\" />\n" +
	"      <arg direction=\"in\" type=\"s\" />\n" +
	"      <arg direction=\"out\" type=\"s\" />\n" +
	"    </method>\n" +
	"  </interface>\n" +
	"</node>\n"

const driverMethods = "    <method name=\"getDeviceList\">\n" +
	"      <arg direction=\"out\" type=\"s\" />\n" +
	"    </method>\n" +
	"  </interface>\n" +
	"</node>\n"

// deviceIntrospection returns the introspection document of a device object.
func deviceIntrospection(cloudID string) string {
	return fmt.Sprintf("%s<node>\n  <interface name=\"%s\">\n%s",
		introspectHeader, protocol.DeviceName(cloudID), deviceMethods)
}

// driverIntrospection returns the introspection document of a driver object.
func driverIntrospection(module string) string {
	return fmt.Sprintf("%s<node>\n  <interface name=\"%s\">\n%s",
		introspectHeader, protocol.DriverName(module), driverMethods)
}

// deviceList is the getDeviceList result.
type deviceList struct {
	DevList []string `json:"devList"`
	DevNum  int      `json:"devNum"`
}

// handleDriver answers Introspect and getDeviceList on the driver object.
func (d *Dispatcher) handleDriver(msg *bus.Message, module string) {
	switch msg.Member {
	case protocol.MethodIntrospect:
		d.reply(msg, driverIntrospection(module))
	case protocol.MethodGetDeviceList:
		filter, _ := msg.ArgString(0) //nolint:errcheck // no filter lists every device
		ids := d.registry.CloudIDs(stateFilter(filter))
		if ids == nil {
			ids = []string{}
		}
		body, err := protocol.WrapParams(deviceList{DevList: ids, DevNum: len(ids)})
		if err != nil {
			d.logger.Warn("encoding device list", "error", err)
			return
		}
		d.reply(msg, body)
	}
}

// stateFilter maps a getDeviceList filter to a device state. Any value
// other than the two known filters lists every device.
func stateFilter(filter string) *registry.State {
	var state registry.State
	switch filter {
	case protocol.DeviceListOnline:
		state = registry.Online
	case protocol.DeviceListOffline:
		state = registry.Offline
	default:
		return nil
	}
	return &state
}

// handleNotifyConfig routes a configuration change to the subscription
// whose module name appears in the key. The callback runs on the worker
// pool; the reply carries its status code.
func (d *Dispatcher) handleNotifyConfig(msg *bus.Message) {
	key, err := msg.ArgString(0)
	if err != nil || key == "" {
		d.logger.Warn("malformed configuration notification", "sender", msg.Sender, "error", err)
		return
	}
	value, _ := msg.ArgString(1) //nolint:errcheck // an absent value is delivered as empty

	d.invalidateTSL(key)

	module, fn, ok := d.subs.Match(key)
	if !ok {
		d.logger.Debug("configuration change without subscriber", "key", key)
		d.reply(msg, protocol.Reply(protocol.Unknown, nil).String())
		return
	}

	task := func() {
		err := safeCallback(func() error { return fn(key, value) })
		if err != nil {
			d.logger.Warn("configuration callback failed", "module", module, "key", key, "error", err)
		}
		d.reply(msg, protocol.ReplyErr(err).String())
	}
	if err := d.pool.Submit(task); err != nil {
		d.logger.Warn("configuration callback not queued", "module", module, "error", err)
	}
}

// invalidateTSL drops the cached product model when key names one.
func (d *Dispatcher) invalidateTSL(key string) {
	if !strings.HasPrefix(key, protocol.ConfigKeyTSL) || strings.HasPrefix(key, protocol.ConfigKeyTSLConfig) {
		return
	}
	inv, ok := d.tsl.(tslInvalidator)
	if !ok {
		return
	}
	productKey := strings.TrimPrefix(key, protocol.ConfigKeyTSL)
	err := d.pool.Submit(func() {
		if err := inv.Invalidate(context.Background(), productKey); err != nil {
			d.logger.Warn("dropping cached product model", "product_key", productKey, "error", err)
			return
		}
		d.logger.Debug("product model invalidated", "product_key", productKey)
	})
	if err != nil {
		d.logger.Warn("product model invalidation not queued", "product_key", productKey, "error", err)
	}
}

// handleConnectResult acknowledges the daemon's cloud connection report.
func (d *Dispatcher) handleConnectResult(msg *bus.Message) {
	if info, err := msg.ArgString(0); err == nil {
		d.logger.Info("device connect result", "result", info)
	}
	d.reply(msg, protocol.Reply(protocol.Success, nil).String())
}
