package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the devices registered by this process.
//
// The cloud ID is the canonical key. Handles are assigned on insert.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	byCloud  map[string]*Device
	byHandle map[Handle]*Device
	next     Handle
	logger   Logger
}

// New creates an empty device registry.
func New() *Registry {
	return &Registry{
		byCloud:  make(map[string]*Device),
		byHandle: make(map[Handle]*Device),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Insert adds d under its cloud ID and assigns it a handle.
//
// If the cloud ID is already registered the existing entry is returned
// unchanged with inserted=false. A device whose product key and name are
// registered the same way under another cloud ID replaces that stale entry
// and takes over its handle.
func (r *Registry) Insert(d Device) (Device, bool, error) {
	if d.CloudID == "" {
		return Device{}, false, fmt.Errorf("%w: empty cloud id", ErrInvalidDevice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byCloud[d.CloudID]; ok {
		return *existing, false, nil
	}

	if stale := r.findLocked(d.ProductKey, d.DeviceName, d.ByLocalName); stale != nil {
		d.Handle = stale.Handle
		delete(r.byCloud, stale.CloudID)
		r.logger.Info("device replaced",
			"handle", d.Handle,
			"stale_cloud_id", stale.CloudID,
			"cloud_id", d.CloudID,
		)
	} else {
		d.Handle = r.next
		r.next++
	}

	stored := d
	r.byCloud[d.CloudID] = &stored
	r.byHandle[d.Handle] = &stored

	r.logger.Debug("device inserted", "handle", d.Handle, "cloud_id", d.CloudID)
	return d, true, nil
}

// ByHandle returns the device with handle h.
func (r *Registry) ByHandle(h Handle) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byHandle[h]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// ByCloudID returns the device with the given cloud ID.
func (r *Registry) ByCloudID(cloudID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byCloud[cloudID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// ByName returns the device with the given product key and device name or
// local ID. A registration by device name wins over one by local ID; among
// equals the lowest handle wins.
func (r *Registry) ByName(productKey, name string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := r.findLocked(productKey, name, false)
	if d == nil {
		d = r.findLocked(productKey, name, true)
	}
	if d == nil {
		return Device{}, false
	}
	return *d, true
}

// ByRegistration returns the device registered under productKey and name
// the same way: by local ID when byLocalName is set, by device name
// otherwise.
func (r *Registry) ByRegistration(productKey, name string, byLocalName bool) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := r.findLocked(productKey, name, byLocalName)
	if d == nil {
		return Device{}, false
	}
	return *d, true
}

// findLocked returns the lowest-handle entry matching the name and kind.
// The caller must hold r.mu.
func (r *Registry) findLocked(productKey, name string, byLocalName bool) *Device {
	var found *Device
	for _, d := range r.byHandle {
		if d.ByLocalName != byLocalName || d.ProductKey != productKey || d.DeviceName != name {
			continue
		}
		if found == nil || d.Handle < found.Handle {
			found = d
		}
	}
	return found
}

// SetState changes the state of device h.
func (r *Registry) SetState(h Handle, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byHandle[h]
	if !ok {
		return fmt.Errorf("%w: handle %d", ErrNotFound, h)
	}
	d.State = state
	return nil
}

// Remove deletes device h and returns its last snapshot.
func (r *Registry) Remove(h Handle) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byHandle[h]
	if !ok {
		return Device{}, fmt.Errorf("%w: handle %d", ErrNotFound, h)
	}
	delete(r.byHandle, h)
	delete(r.byCloud, d.CloudID)
	r.logger.Debug("device removed", "handle", h, "cloud_id", d.CloudID)
	return *d, nil
}

// List returns every device ordered by handle.
func (r *Registry) List() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.byHandle))
	for _, d := range r.byHandle {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}

// CloudIDs returns the cloud IDs of devices in state, ordered by handle.
// A nil state returns every device.
func (r *Registry) CloudIDs(state *State) []string {
	devices := r.List()
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		if state == nil || d.State == *state {
			ids = append(ids, d.CloudID)
		}
	}
	return ids
}
