package driver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
)

// connectRequest is the body of the daemon's connect method. Exactly one of
// DeviceName and DeviceLocalID is set.
type connectRequest struct {
	ProductKey    string `json:"productKey"`
	IsLocal       string `json:"isLocal"`
	DriverName    string `json:"driverName"`
	DeviceName    string `json:"deviceName,omitempty"`
	DeviceLocalID string `json:"deviceLocalId,omitempty"`
}

// deviceRequest is the body of disconnect and unregisterDevice.
type deviceRequest struct {
	DeviceCloudID string `json:"deviceCloudId"`
}

// Registration describes one device to register and bring online.
type Registration struct {
	// ProductKey is the product the device belongs to.
	ProductKey string

	// Name is the cloud device name, or the local ID when ByLocalName is set.
	Name string

	// ByLocalName identifies the device by a local ID unique within the product.
	ByLocalName bool

	// IsLocal keeps the device on the gateway; it is not connected to the cloud.
	IsLocal bool

	// Callbacks serve inbound calls for the device. All three are required.
	Callbacks Callbacks

	// UserData is passed back to every callback.
	UserData any
}

// RegisterAndOnlineByDeviceName registers a device created in the cloud
// under productKey and deviceName, and brings it online.
//
// Registering a device that is already online returns its handle without
// contacting the daemon. On failure the handle is InvalidHandle.
func (d *Driver) RegisterAndOnlineByDeviceName(ctx context.Context, productKey, deviceName string, cb Callbacks, userData any) (Handle, error) {
	return d.RegisterAndOnline(ctx, Registration{
		ProductKey: productKey,
		Name:       deviceName,
		Callbacks:  cb,
		UserData:   userData,
	})
}

// RegisterAndOnlineByLocalName registers a device identified by a local ID
// unique within productKey, and brings it online.
//
// Devices of one product should all be registered the same way: by device
// name or by local name.
func (d *Driver) RegisterAndOnlineByLocalName(ctx context.Context, productKey, localName string, cb Callbacks, userData any) (Handle, error) {
	return d.RegisterAndOnline(ctx, Registration{
		ProductKey:  productKey,
		Name:        localName,
		ByLocalName: true,
		Callbacks:   cb,
		UserData:    userData,
	})
}

// RegisterAndOnline registers the device described by r and brings it
// online.
//
// The daemon assigns the device's cloud ID; the device then owns the bus
// name derived from it. A cloud ID already known to the driver keeps its
// handle and original callbacks.
func (d *Driver) RegisterAndOnline(ctx context.Context, r Registration) (Handle, error) {
	if err := protocol.ValidateText("product key", r.ProductKey); err != nil {
		return InvalidHandle, err
	}
	if err := protocol.ValidateText("device name", r.Name); err != nil {
		return InvalidHandle, err
	}
	if err := r.Callbacks.validate(); err != nil {
		return InvalidHandle, err
	}
	h, err := d.registerAndOnline(ctx, deviceSpec{
		productKey:  r.ProductKey,
		name:        r.Name,
		byLocalName: r.ByLocalName,
		isLocal:     r.IsLocal,
		callbacks:   r.Callbacks.bind(),
		userData:    r.UserData,
	})
	return Handle(h), err
}

// deviceSpec is a validated Registration in registry terms.
type deviceSpec struct {
	productKey  string
	name        string
	byLocalName bool
	isLocal     bool
	callbacks   registry.Callbacks
	userData    any
}

func (d *Driver) registerAndOnline(ctx context.Context, r deviceSpec) (registry.Handle, error) {
	prev, known := d.registry.ByRegistration(r.productKey, r.name, r.byLocalName)
	if known && prev.State == registry.Online {
		return prev.Handle, nil
	}

	req := connectRequest{
		ProductKey: r.productKey,
		IsLocal:    "False",
		DriverName: d.module,
	}
	if r.isLocal {
		req.IsLocal = "True"
	}
	if r.byLocalName {
		req.DeviceLocalID = r.name
	} else {
		req.DeviceName = r.name
	}
	body, err := json.Marshal(req)
	if err != nil {
		return registry.InvalidHandle, protocol.Errorf(protocol.InvalidParam, "connect request: %v", err)
	}

	env, err := d.callDaemon(ctx, protocol.MethodConnect, string(body))
	if err != nil {
		d.logger.Error("device connect failed", "product_key", r.productKey, "name", r.name, "error", err)
		return registry.InvalidHandle, err
	}
	cloudID, ok := env.Param("deviceCloudId")
	if !ok || cloudID == "" {
		d.logger.Error("connect reply without cloud id", "product_key", r.productKey, "name", r.name)
		return registry.InvalidHandle, callFailed(protocol.MethodConnect, errors.New("reply has no deviceCloudId"))
	}

	dev, inserted, err := d.registry.Insert(registry.Device{
		CloudID:     cloudID,
		ProductKey:  r.productKey,
		DeviceName:  r.name,
		State:       registry.Offline,
		Callbacks:   r.callbacks,
		UserData:    r.userData,
		ByLocalName: r.byLocalName,
		IsLocal:     r.isLocal,
	})
	if err != nil {
		return registry.InvalidHandle, protocol.Errorf(protocol.InvalidParam, "%v", err)
	}

	if known && prev.CloudID != cloudID {
		// The daemon issued a new cloud ID; the stale name must not answer.
		if err := d.conn.ReleaseName(protocol.DeviceName(prev.CloudID)); err != nil {
			d.logger.Warn("releasing stale device name", "cloud_id", prev.CloudID, "error", err)
		}
		d.logger.Info("device cloud id changed", "handle", dev.Handle, "stale_cloud_id", prev.CloudID, "cloud_id", cloudID)
	}

	if err := d.conn.RequestName(protocol.DeviceName(cloudID)); err != nil {
		d.logger.Error("claiming device name failed", "cloud_id", cloudID, "error", err)
		return registry.InvalidHandle, callFailed("RequestName", err)
	}
	if err := d.registry.SetState(dev.Handle, registry.Online); err != nil {
		return registry.InvalidHandle, callFailed("online", err)
	}

	d.logger.Info("device online",
		"handle", dev.Handle,
		"cloud_id", cloudID,
		"product_key", r.productKey,
		"name", r.name,
		"new", inserted,
	)
	return dev.Handle, nil
}

// Online brings a registered device back online with its stored
// registration. A device that is already online is left as is.
func (d *Driver) Online(ctx context.Context, h Handle) error {
	dev, ok := d.registry.ByHandle(registry.Handle(h))
	if !ok {
		return protocol.Errorf(protocol.InvalidParam, "handle %d is not registered", h)
	}
	if dev.State == registry.Online {
		return nil
	}
	_, err := d.registerAndOnline(ctx, deviceSpec{
		productKey:  dev.ProductKey,
		name:        dev.DeviceName,
		byLocalName: dev.ByLocalName,
		isLocal:     dev.IsLocal,
		callbacks:   dev.Callbacks,
		userData:    dev.UserData,
	})
	return err
}

// Offline takes a device offline so the daemon stops routing calls to it.
//
// The device is marked offline and its bus name released even when the
// daemon call fails; that failure is reported as UNKNOWN.
func (d *Driver) Offline(ctx context.Context, h Handle) error {
	dev, ok := d.registry.ByHandle(registry.Handle(h))
	if !ok {
		return protocol.Errorf(protocol.InvalidParam, "handle %d is not registered", h)
	}

	body, _ := json.Marshal(deviceRequest{DeviceCloudID: dev.CloudID}) //nolint:errcheck // fixed struct
	_, callErr := d.callDaemon(ctx, protocol.MethodDisconnect, string(body))

	if err := d.registry.SetState(dev.Handle, registry.Offline); err != nil {
		d.logger.Debug("device removed while going offline", "handle", h)
	}
	if err := d.conn.ReleaseName(protocol.DeviceName(dev.CloudID)); err != nil {
		d.logger.Warn("releasing device name", "cloud_id", dev.CloudID, "error", err)
	}

	if callErr != nil {
		d.logger.Error("device disconnect failed", "handle", h, "cloud_id", dev.CloudID, "error", callErr)
		return callErr
	}
	d.logger.Info("device offline", "handle", h, "cloud_id", dev.CloudID)
	return nil
}

// Unregister removes a device, taking it offline first. The registry entry
// is removed even when the daemon call fails; that failure is reported as
// UNKNOWN.
func (d *Driver) Unregister(ctx context.Context, h Handle) error {
	dev, ok := d.registry.ByHandle(registry.Handle(h))
	if !ok {
		return protocol.Errorf(protocol.InvalidParam, "handle %d is not registered", h)
	}
	if dev.State == registry.Online {
		if err := d.Offline(ctx, h); err != nil {
			d.logger.Warn("taking device offline before unregister", "handle", h, "error", err)
		}
	}

	body, _ := json.Marshal(deviceRequest{DeviceCloudID: dev.CloudID}) //nolint:errcheck // fixed struct
	_, callErr := d.callDaemon(ctx, protocol.MethodUnregisterDevice, string(body))

	if _, err := d.registry.Remove(dev.Handle); err != nil {
		d.logger.Debug("device already removed", "handle", h)
	}
	if callErr != nil {
		d.logger.Error("device unregister failed", "handle", h, "cloud_id", dev.CloudID, "error", callErr)
		return callErr
	}
	d.logger.Info("device unregistered", "handle", h, "cloud_id", dev.CloudID)
	return nil
}

// GetDeviceHandle returns the handle of the device registered under
// productKey and name, or InvalidHandle.
func (d *Driver) GetDeviceHandle(productKey, name string) Handle {
	dev, ok := d.registry.ByName(productKey, name)
	if !ok {
		return InvalidHandle
	}
	return Handle(dev.Handle)
}

// Device returns a snapshot of device h.
func (d *Driver) Device(h Handle) (Device, bool) {
	dev, ok := d.registry.ByHandle(registry.Handle(h))
	if !ok {
		return Device{}, false
	}
	return deviceOf(dev), true
}

// Devices returns snapshots of every registered device ordered by handle.
func (d *Driver) Devices() []Device {
	list := d.registry.List()
	out := make([]Device, len(list))
	for i, dev := range list {
		out[i] = deviceOf(dev)
	}
	return out
}
