package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

// mockWriter records written points.
type mockWriter struct {
	mu     sync.Mutex
	points []point
}

func (m *mockWriter) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, point{measurement, tags, fields, ts})
}

func TestFields(t *testing.T) {
	data := []protocol.DeviceData{
		{Type: protocol.TypeInt, Key: "level", Value: "42"},
		{Type: protocol.TypeBool, Key: "on", Value: "1"},
		{Type: protocol.TypeFloat, Key: "temp", Value: "21.5"},
		{Type: protocol.TypeText, Key: "label", Value: "hall"},
		{Type: protocol.TypeStruct, Key: "color", Value: `{"r":1}`},
		{Type: protocol.TypeInt, Key: "broken", Value: "x"},
		{Type: protocol.TypeUnknown, Key: "mystery", Value: "1"},
	}

	got := Fields(data)

	want := map[string]any{
		"level": int64(42),
		"on":    true,
		"temp":  21.5,
		"label": "hall",
		"color": `{"r":1}`,
	}
	if len(got) != len(want) {
		t.Fatalf("Fields() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Fields()[%q] = %v (%T), want %v (%T)", k, got[k], got[k], v, v)
		}
	}
}

func TestRecorder(t *testing.T) {
	w := &mockWriter{}
	r := NewRecorder(w, "led")
	dev := Device{CloudID: "c1", ProductKey: "pk", DeviceName: "lamp"}
	now := time.Now()

	r.Properties(dev, []protocol.DeviceData{{Type: protocol.TypeInt, Key: "level", Value: "3"}}, now)
	r.Event(dev, "alarm", nil, now)

	if len(w.points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(w.points))
	}

	props := w.points[0]
	if props.measurement != MeasurementProperties || props.tags["cloud_id"] != "c1" || props.tags["driver"] != "led" {
		t.Errorf("properties point = %+v", props)
	}

	event := w.points[1]
	if event.measurement != MeasurementEvents || event.tags["event"] != "alarm" || event.fields["count"] != 1 {
		t.Errorf("event point = %+v", event)
	}
}

func TestNilRecorder(t *testing.T) {
	r := NewRecorder(nil, "led")
	if r != nil {
		t.Fatal("NewRecorder(nil) should return nil")
	}
	// Calls on a nil recorder are no-ops.
	r.Properties(Device{}, nil, time.Now())
	r.Event(Device{}, "x", nil, time.Now())
}
