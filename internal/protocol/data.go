package protocol

import "strings"

// Field limits for device data.
const (
	// MaxKeyLength is the maximum length of a device data key in bytes.
	MaxKeyLength = 64

	// MaxValueLength is the maximum length of a device data value in bytes.
	MaxValueLength = 2048
)

// DataType is the declared type of a device data value.
type DataType int

// Data types. The numeric values are part of the driver contract.
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

var dataTypeNames = map[DataType]string{
	TypeInt:    "int",
	TypeBool:   "bool",
	TypeFloat:  "float",
	TypeText:   "text",
	TypeDate:   "date",
	TypeEnum:   "enum",
	TypeStruct: "struct",
	TypeArray:  "array",
	TypeDouble: "double",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseDataType maps a TSL type name ("int", "text", ...) to a DataType.
// Unrecognised names yield TypeUnknown.
func ParseDataType(name string) DataType {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range dataTypeNames {
		if n == name {
			return t
		}
	}
	return TypeUnknown
}

// DeviceData is one typed key/value pair exchanged with driver callbacks.
// Values are always carried as strings; Type says how to put them on the wire.
type DeviceData struct {
	Type  DataType
	Key   string
	Value string
}

// Validate checks key and value lengths.
func (d DeviceData) Validate() error {
	if d.Key == "" {
		return NewError(InvalidParam, "empty key")
	}
	if len(d.Key) > MaxKeyLength {
		return Errorf(ParamRangeOverflow, "key %q longer than %d bytes", d.Key, MaxKeyLength)
	}
	if len(d.Value) > MaxValueLength {
		return Errorf(ParamRangeOverflow, "value of %q longer than %d bytes", d.Key, MaxValueLength)
	}
	return nil
}

// Lookup returns the first entry with the given key.
func Lookup(data []DeviceData, key string) (DeviceData, bool) {
	for _, d := range data {
		if d.Key == key {
			return d, true
		}
	}
	return DeviceData{}, false
}
