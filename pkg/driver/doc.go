// Package driver is the public API for writing a device driver against the
// gateway's device-management daemon.
//
// A driver process calls Init once, registers its devices, reports their
// properties and events, and serves inbound property and service calls
// through the Callbacks given at registration:
//
//	drv, err := driver.Init(ctx, driver.Options{Module: "led", Workers: 4, MQTT: driver.MQTTConfigFrom(cfg.MQTT)})
//	if err != nil {
//	    return err
//	}
//	defer drv.Exit(context.Background())
//
//	h, err := drv.RegisterAndOnlineByDeviceName(ctx, productKey, "led-1", callbacks, nil)
//	if err != nil {
//	    return err
//	}
//	err = drv.ReportProperties(h, []driver.DeviceData{
//	    {Type: driver.TypeBool, Key: "on", Value: "1"},
//	})
//
// # Errors
//
// Failures carry a status code recoverable with CodeOf. Calls the daemon
// cannot complete report UNKNOWN. A lost bus connection stops the driver:
// Done is closed and Err returns an error matching ErrConnectionLost.
//
// # Concurrency
//
// One goroutine reads the bus and routes inbound traffic. Device callbacks
// run on a fixed pool of Workers goroutines; a slow callback delays only the
// calls queued behind it. All Driver methods are safe for concurrent use,
// including from inside callbacks.
package driver
