package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	Module        string          `json:"module"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Devices       DeviceMetrics   `json:"devices"`
	Dispatch      DispatchMetrics `json:"dispatch"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// DispatchMetrics contains worker pool and call correlation statistics.
type DispatchMetrics struct {
	Workers        int `json:"workers"`
	QueuedTasks    int `json:"queued_tasks"`
	PendingCalls   int `json:"pending_calls"`
	EarlyReplies   int `json:"early_replies"`
	CachedModels   int `json:"cached_models"`
	ConfigWatchers int `json:"config_watchers"`
}

// handleMetrics returns runtime and driver metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := s.driver.Stats()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		Module:        s.driver.ModuleName(),
		UptimeSeconds: int64(time.Since(s.driver.StartedAt()).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: DeviceMetrics{
			Total:   stats.Devices,
			Online:  stats.OnlineDevices,
			Offline: stats.Devices - stats.OnlineDevices,
		},
		Dispatch: DispatchMetrics{
			Workers:        stats.Workers,
			QueuedTasks:    stats.QueuedTasks,
			PendingCalls:   stats.PendingCalls,
			EarlyReplies:   stats.EarlyReplies,
			CachedModels:   stats.CachedModels,
			ConfigWatchers: stats.ConfigWatchers,
		},
	}

	writeJSON(w, http.StatusOK, metrics)
}
