package telemetry

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

// Measurement names.
const (
	MeasurementProperties = "device_properties"
	MeasurementEvents     = "device_events"
)

// PointWriter queues one time-series point.
// *influxdb.Client satisfies this interface.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Device identifies the reporting device in point tags.
type Device struct {
	CloudID    string
	ProductKey string
	DeviceName string
}

// Recorder mirrors reported properties and events into a time-series
// store. A nil *Recorder records nothing.
type Recorder struct {
	writer PointWriter
	module string
}

// NewRecorder creates a Recorder tagging points with the driver module.
func NewRecorder(writer PointWriter, module string) *Recorder {
	if writer == nil {
		return nil
	}
	return &Recorder{writer: writer, module: module}
}

// Properties records one point carrying every reported property.
func (r *Recorder) Properties(dev Device, data []protocol.DeviceData, ts time.Time) {
	if r == nil {
		return
	}
	r.writer.WritePoint(MeasurementProperties, r.tags(dev, nil), Fields(data), ts)
}

// Event records one point for event name.
func (r *Recorder) Event(dev Device, name string, data []protocol.DeviceData, ts time.Time) {
	if r == nil {
		return
	}
	fields := Fields(data)
	if len(fields) == 0 {
		// Events without output still mark their occurrence.
		fields = map[string]any{"count": 1}
	}
	r.writer.WritePoint(MeasurementEvents, r.tags(dev, map[string]string{"event": name}), fields, ts)
}

func (r *Recorder) tags(dev Device, extra map[string]string) map[string]string {
	tags := map[string]string{
		"driver":      r.module,
		"cloud_id":    dev.CloudID,
		"product_key": dev.ProductKey,
		"device_name": dev.DeviceName,
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

// Fields converts device data into point fields. Numeric types become
// numbers, text and date stay strings, and struct and array values are
// stored as compact JSON text. Values that do not parse are skipped.
func Fields(data []protocol.DeviceData) map[string]any {
	fields := make(map[string]any, len(data))
	for _, d := range data {
		if v, ok := fieldValue(d); ok {
			fields[d.Key] = v
		}
	}
	return fields
}

func fieldValue(d protocol.DeviceData) (any, bool) {
	switch d.Type {
	case protocol.TypeInt, protocol.TypeEnum:
		n, err := strconv.ParseInt(d.Value, 10, 64)
		return n, err == nil
	case protocol.TypeBool:
		switch d.Value {
		case "1", "true", "True":
			return true, true
		case "0", "false", "False":
			return false, true
		}
		return nil, false
	case protocol.TypeFloat, protocol.TypeDouble:
		f, err := strconv.ParseFloat(d.Value, 64)
		return f, err == nil
	case protocol.TypeText, protocol.TypeDate:
		return d.Value, true
	case protocol.TypeStruct, protocol.TypeArray:
		return d.Value, json.Valid([]byte(d.Value))
	}
	return nil, false
}
