package driver

import (
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/registry"
)

// Handle identifies a registered device within the process.
// Handles increase from 0 and are never reused for a different device.
type Handle int64

// InvalidHandle is returned when a device could not be registered.
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

// DataType is the declared type of a DeviceData value. The numeric values
// are part of the driver contract.
type DataType int

// Data types.
const (
	TypeInt DataType = iota
	TypeBool
	TypeFloat
	TypeText
	TypeDate
	TypeEnum
	TypeStruct
	TypeArray
	TypeDouble
	TypeUnknown
)

func (t DataType) String() string {
	return protocol.DataType(t).String()
}

// DeviceData is one typed key/value pair. Value is always text; Type
// decides how it is rendered on the wire.
type DeviceData struct {
	Type  DataType
	Key   string
	Value string
}

// Code is a status code of the driver contract.
type Code int

// Status codes.
const (
	Success            = Code(protocol.Success)
	Unknown            = Code(protocol.Unknown)
	InvalidParam       = Code(protocol.InvalidParam)
	AllocatingMem      = Code(protocol.AllocatingMem)
	CreatingMutex      = Code(protocol.CreatingMutex)
	WritingFile        = Code(protocol.WritingFile)
	ReadingFile        = Code(protocol.ReadingFile)
	Timeout            = Code(protocol.Timeout)
	ParamRangeOverflow = Code(protocol.ParamRangeOverflow)
	ServiceUnreachable = Code(protocol.ServiceUnreachable)
	FileNotExist       = Code(protocol.FileNotExist)
	DeviceUnregister   = Code(protocol.DeviceUnregister)
	DeviceOffline      = Code(protocol.DeviceOffline)
	PropertyNotExist   = Code(protocol.PropertyNotExist)
	PropertyReadOnly   = Code(protocol.PropertyReadOnly)
	PropertyWriteOnly  = Code(protocol.PropertyWriteOnly)
	ServiceNotExist    = Code(protocol.ServiceNotExist)
	ServiceInputParam  = Code(protocol.ServiceInputParam)
	InvalidJSON        = Code(protocol.InvalidJSON)
	InvalidType        = Code(protocol.InvalidType)
)

// Message returns the fixed message sent with c.
func (c Code) Message() string {
	return protocol.Code(c).Message()
}

func (c Code) String() string {
	return protocol.Code(c).String()
}

// Error carries a status code through error returns. Callbacks return one
// to answer with a specific code.
type Error struct {
	Code   Code
	Detail string
}

// NewError returns an error carrying code, for use as a callback result.
func NewError(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "driver: " + e.Code.Message()
	}
	return "driver: " + e.Code.Message() + ": " + e.Detail
}

// StatusCode returns the code as an int.
func (e *Error) StatusCode() int {
	return int(e.Code)
}

// Is matches any error carrying the same status code.
func (e *Error) Is(target error) bool {
	t, ok := target.(interface{ StatusCode() int })
	return ok && t.StatusCode() == int(e.Code)
}

// CodeOf extracts the status code from err. A nil error is Success;
// errors that carry no code are Unknown.
func CodeOf(err error) Code {
	return Code(protocol.CodeOf(err))
}

// GetPropertiesFunc fills the values of props in place.
type GetPropertiesFunc func(h Handle, props []DeviceData, userData any) error

// SetPropertiesFunc applies props to the device.
type SetPropertiesFunc func(h Handle, props []DeviceData, userData any) error

// CallServiceFunc runs service with input and fills output in place.
type CallServiceFunc func(h Handle, service string, input, output []DeviceData, userData any) error

// ConfigChangedFunc receives a changed configuration key and value.
type ConfigChangedFunc func(key, value string) error

// Callbacks are the driver functions serving inbound device calls. A
// returned *Error carries its status code; any other error maps to
// Unknown.
type Callbacks struct {
	GetProperties GetPropertiesFunc
	SetProperties SetPropertiesFunc
	CallService   CallServiceFunc

	// ServiceOutputMaxCount is the number of output slots offered to CallService.
	ServiceOutputMaxCount int
}

func (c Callbacks) validate() error {
	if c.GetProperties == nil || c.SetProperties == nil || c.CallService == nil {
		return protocol.NewError(protocol.InvalidParam, "callbacks: get, set and service callbacks are required")
	}
	if c.ServiceOutputMaxCount < 0 {
		return protocol.NewError(protocol.InvalidParam, "callbacks: negative service output count")
	}
	return nil
}

// bind adapts c to the registry's callback table. Slices are copied in
// and, for in-place results, copied back.
func (c Callbacks) bind() registry.Callbacks {
	return registry.Callbacks{
		GetProperties: func(h registry.Handle, props []protocol.DeviceData, userData any) error {
			pub := fromWire(props)
			err := c.GetProperties(Handle(h), pub, userData)
			copyToWire(props, pub)
			return err
		},
		SetProperties: func(h registry.Handle, props []protocol.DeviceData, userData any) error {
			return c.SetProperties(Handle(h), fromWire(props), userData)
		},
		CallService: func(h registry.Handle, service string, input, output []protocol.DeviceData, userData any) error {
			out := fromWire(output)
			err := c.CallService(Handle(h), service, fromWire(input), out, userData)
			copyToWire(output, out)
			return err
		},
		ServiceOutputMaxCount: c.ServiceOutputMaxCount,
	}
}

func fromWire(data []protocol.DeviceData) []DeviceData {
	if data == nil {
		return nil
	}
	out := make([]DeviceData, len(data))
	for i, d := range data {
		out[i] = DeviceData{Type: DataType(d.Type), Key: d.Key, Value: d.Value}
	}
	return out
}

func toWire(data []DeviceData) []protocol.DeviceData {
	if data == nil {
		return nil
	}
	out := make([]protocol.DeviceData, len(data))
	copyToWire(out, data)
	return out
}

func copyToWire(dst []protocol.DeviceData, src []DeviceData) {
	for i := range dst {
		if i >= len(src) {
			return
		}
		dst[i] = protocol.DeviceData{Type: protocol.DataType(src[i].Type), Key: src[i].Key, Value: src[i].Value}
	}
}

// Device is a snapshot of a registered device.
type Device struct {
	Handle     Handle
	CloudID    string
	ProductKey string
	DeviceName string
	State      State
	UserData   any

	// ByLocalName is set when the device was registered by local ID.
	ByLocalName bool

	// IsLocal marks devices that are not cloud-connected.
	IsLocal bool
}

func deviceOf(d registry.Device) Device {
	return Device{
		Handle:      Handle(d.Handle),
		CloudID:     d.CloudID,
		ProductKey:  d.ProductKey,
		DeviceName:  d.DeviceName,
		State:       State(d.State),
		UserData:    d.UserData,
		ByLocalName: d.ByLocalName,
		IsLocal:     d.IsLocal,
	}
}

// MQTTConfig holds the broker settings of the bus.
type MQTTConfig struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string
	QoS      int

	// TopicPrefix is the root of every bus topic.
	TopicPrefix string
}

// MQTTConfigFrom maps the process configuration's MQTT section.
func MQTTConfigFrom(c config.MQTTConfig) MQTTConfig {
	return MQTTConfig{
		Host:        c.Broker.Host,
		Port:        c.Broker.Port,
		TLS:         c.Broker.TLS,
		ClientID:    c.Broker.ClientID,
		Username:    c.Auth.Username,
		Password:    c.Auth.Password,
		QoS:         c.QoS,
		TopicPrefix: c.TopicPrefix,
	}
}

func (c MQTTConfig) internal() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     c.Host,
			Port:     c.Port,
			TLS:      c.TLS,
			ClientID: c.ClientID,
		},
		Auth: config.MQTTAuthConfig{
			Username: c.Username,
			Password: c.Password,
		},
		QoS:         c.QoS,
		TopicPrefix: c.TopicPrefix,
	}
}

// TSLCacheConfig holds the product model cache settings.
type TSLCacheConfig struct {
	// Path is the SQLite file backing the cache. Empty keeps the cache in
	// memory only.
	Path        string
	WALMode     bool
	BusyTimeout int

	// TTL is how long a cached model is trusted, in seconds. 0 means one hour.
	TTL int
}

// TSLCacheConfigFrom maps the process configuration's tsl_cache section.
func TSLCacheConfigFrom(c config.TSLCacheConfig) TSLCacheConfig {
	return TSLCacheConfig(c)
}

// PointWriter receives time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}
