// Package api implements the local HTTP status API of a driver process.
//
// Endpoints, all under /api/v1:
//   - GET /health: 200 while the dispatch loop serves, 503 once it stopped
//   - GET /metrics: runtime, device and dispatch queue statistics
//   - GET /devices: registered devices, filterable by state and product_key
//   - GET /devices/{handle}: one device
//
// The API is read-only. Device control stays on the bus.
package api
