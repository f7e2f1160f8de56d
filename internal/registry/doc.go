// Package registry tracks the devices a driver process has registered with
// the device-management daemon, and the driver's configuration change
// subscriptions.
//
// Devices are keyed by cloud ID, assigned a process-unique handle on
// insert, and can be found by handle, cloud ID or product key and device
// name. Lookups return value snapshots.
//
// # Usage
//
//	reg := registry.New()
//	reg.SetLogger(log)
//
//	d, inserted, err := reg.Insert(registry.Device{
//	    CloudID:    cloudID,
//	    ProductKey: "pk",
//	    DeviceName: "lamp-1",
//	    Callbacks:  cbs,
//	})
//	reg.SetState(d.Handle, registry.Online)
package registry
