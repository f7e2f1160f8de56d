package driver

import (
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/telemetry"
)

// reportable returns device h if it may report.
func (d *Driver) reportable(h Handle) (registry.Device, error) {
	dev, ok := d.registry.ByHandle(registry.Handle(h))
	if !ok {
		return registry.Device{}, protocol.Errorf(protocol.DeviceUnregister, "handle %d", h)
	}
	if dev.State != registry.Online {
		return registry.Device{}, protocol.Errorf(protocol.DeviceOffline, "handle %d", h)
	}
	return dev, nil
}

// ReportProperties reports property values of an online device. Each
// property is stamped with the current time.
//
// Delivery is best effort: the report is sent as a signal and not
// acknowledged.
func (d *Driver) ReportProperties(h Handle, props []DeviceData) error {
	dev, err := d.reportable(h)
	if err != nil {
		return err
	}
	if len(props) == 0 {
		return protocol.NewError(protocol.InvalidParam, "no properties to report")
	}

	data := toWire(props)
	now := time.Now()
	payload, err := protocol.EncodeProperties(data, now.UnixMilli())
	if err != nil {
		return err
	}
	if err := d.deviceSignal(dev.CloudID, protocol.SignalPropertiesChanged, string(payload)); err != nil {
		d.logger.Warn("property report not sent", "cloud_id", dev.CloudID, "error", err)
		return callFailed(protocol.SignalPropertiesChanged, err)
	}

	d.telemetry.Properties(telemetryDevice(dev), data, now)
	return nil
}

// ReportEvent reports event name of an online device with optional output
// data.
func (d *Driver) ReportEvent(h Handle, name string, output []DeviceData) error {
	if err := protocol.ValidateText("event name", name); err != nil {
		return err
	}
	dev, err := d.reportable(h)
	if err != nil {
		return err
	}

	data := toWire(output)
	now := time.Now()
	payload, err := protocol.EncodeEvent(data, now.UnixMilli())
	if err != nil {
		return err
	}
	if err := d.deviceSignal(dev.CloudID, name, string(payload)); err != nil {
		d.logger.Warn("event report not sent", "cloud_id", dev.CloudID, "event", name, "error", err)
		return callFailed(name, err)
	}

	d.telemetry.Event(telemetryDevice(dev), name, data, now)
	return nil
}

// deviceSignal sends member from the device object to the subscription
// service.
func (d *Driver) deviceSignal(cloudID, member, payload string) error {
	iface := protocol.DeviceName(cloudID)
	return d.signal(protocol.SubscriptionName, protocol.NameToPath(iface), iface, member, payload)
}

func telemetryDevice(dev registry.Device) telemetry.Device {
	return telemetry.Device{
		CloudID:    dev.CloudID,
		ProductKey: dev.ProductKey,
		DeviceName: dev.DeviceName,
	}
}
