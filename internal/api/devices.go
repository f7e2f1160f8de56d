package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-driver-sdk/pkg/driver"
)

// DeviceView is the JSON form of a registered device.
type DeviceView struct {
	Handle      int64  `json:"handle"`
	CloudID     string `json:"cloud_id"`
	ProductKey  string `json:"product_key"`
	DeviceName  string `json:"device_name"`
	State       string `json:"state"`
	ByLocalName bool   `json:"by_local_name,omitempty"`
	IsLocal     bool   `json:"is_local,omitempty"`
}

func deviceView(d driver.Device) DeviceView {
	return DeviceView{
		Handle:      int64(d.Handle),
		CloudID:     d.CloudID,
		ProductKey:  d.ProductKey,
		DeviceName:  d.DeviceName,
		State:       d.State.String(),
		ByLocalName: d.ByLocalName,
		IsLocal:     d.IsLocal,
	}
}

// handleListDevices returns all registered devices, optionally filtered.
//
// Query parameters:
//   - state: filter by "online" or "offline"
//   - product_key: filter by product
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state != "" && state != driver.Online.String() && state != driver.Offline.String() {
		writeBadRequest(w, "state must be online or offline")
		return
	}
	productKey := r.URL.Query().Get("product_key")

	devices := s.driver.Devices()
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		if state != "" && d.State.String() != state {
			continue
		}
		if productKey != "" && d.ProductKey != productKey {
			continue
		}
		views = append(views, deviceView(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single device by handle.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	h, err := strconv.ParseInt(chi.URLParam(r, "handle"), 10, 64)
	if err != nil || h < 0 {
		writeBadRequest(w, "handle must be a non-negative integer")
		return
	}

	d, ok := s.driver.Device(driver.Handle(h))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	noteDevice(r.Context(), d)
	writeJSON(w, http.StatusOK, deviceView(d))
}
