// Package telemetry mirrors the properties and events a driver reports
// into InfluxDB, so device history is available even when the gateway's
// own pipeline is down. It is optional and fed after a report has been
// sent on the bus.
package telemetry
