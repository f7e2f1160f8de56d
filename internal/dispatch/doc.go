// Package dispatch implements the driver's dispatch loop.
//
// A single goroutine reads the bus connection. Each iteration waits up to
// pollInterval for traffic and then drains everything queued:
//
//   - method returns and errors go to the reply correlator
//   - calls addressed to a device object are checked against the device
//     registry; Introspect is answered in place and callServices is queued
//     on the worker pool
//   - driver Introspect and getDeviceList are answered in place
//   - notify_config and connectResultNotify from the daemon are handled
//
// Calls for devices this process does not know are dropped without a reply.
// Losing the bus connection ends Run with an error wrapping
// bus.ErrConnectionLost; there is no reconnect.
package dispatch
