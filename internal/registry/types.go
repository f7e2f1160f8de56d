package registry

import "github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"

// Handle identifies a registered device within the process.
// Handles increase monotonically from 0 and are never reused.
type Handle int64

// InvalidHandle is returned when no handle could be assigned.
const InvalidHandle Handle = -1

// State is the connection state of a registered device.
type State int

// Device states.
const (
	Offline State = iota
	Online
)

// String returns the lowercase state name.
func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// GetPropertiesFunc fills the values of props in place.
type GetPropertiesFunc func(h Handle, props []protocol.DeviceData, userData any) error

// SetPropertiesFunc applies props to the device.
type SetPropertiesFunc func(h Handle, props []protocol.DeviceData, userData any) error

// CallServiceFunc runs service with input and fills output in place.
type CallServiceFunc func(h Handle, service string, input, output []protocol.DeviceData, userData any) error

// Callbacks are the driver functions invoked for inbound device calls.
// A returned *protocol.Error carries its status code; any other error
// maps to UNKNOWN.
type Callbacks struct {
	GetProperties GetPropertiesFunc
	SetProperties SetPropertiesFunc
	CallService   CallServiceFunc

	// ServiceOutputMaxCount is the number of output slots offered to CallService.
	ServiceOutputMaxCount int
}

// Validate checks that every callback is set.
func (c Callbacks) Validate() error {
	if c.GetProperties == nil || c.SetProperties == nil || c.CallService == nil {
		return protocol.NewError(protocol.InvalidParam, "callbacks: get, set and service callbacks are required")
	}
	if c.ServiceOutputMaxCount < 0 {
		return protocol.NewError(protocol.InvalidParam, "callbacks: negative service output count")
	}
	return nil
}

// Device is a registered device. Values returned by the Registry are
// snapshots; changing them does not affect the registry.
type Device struct {
	Handle     Handle
	CloudID    string
	ProductKey string
	DeviceName string
	State      State
	Callbacks  Callbacks
	UserData   any

	// ByLocalName is set when the device was registered by local ID.
	ByLocalName bool

	// IsLocal marks devices that are not cloud-connected.
	IsLocal bool
}
