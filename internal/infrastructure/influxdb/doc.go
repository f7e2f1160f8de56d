// Package influxdb provides InfluxDB connectivity for driver telemetry.
//
// It wraps the official influxdb-client-go v2 library: Connect verifies the
// server, WritePoint queues points on the batching write API and async
// write failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePoint("device_properties",
//	    map[string]string{"cloud_id": "abc"},
//	    map[string]any{"temp": 21.5},
//	    time.Now())
package influxdb
