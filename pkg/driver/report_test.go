package driver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus/bustest"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/telemetry"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
}

// mockPointWriter records telemetry points.
type mockPointWriter struct {
	mu     sync.Mutex
	points []point
}

func (m *mockPointWriter) WritePoint(measurement string, tags map[string]string, fields map[string]any, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, point{measurement: measurement, tags: tags, fields: fields})
}

func (m *mockPointWriter) all() []point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]point(nil), m.points...)
}

func registerLamp(t *testing.T, d *Driver) Handle {
	t.Helper()
	h, err := d.RegisterAndOnlineByDeviceName(context.Background(), "pk", "lamp", nopCallbacks(), nil)
	if err != nil {
		t.Fatalf("register error = %v", err)
	}
	return h
}

func signalPayload(t *testing.T, msg *bus.Message) map[string]json.RawMessage {
	t.Helper()
	text, err := msg.ArgString(0)
	if err != nil {
		t.Fatalf("ArgString() error = %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("signal payload %s: %v", text, err)
	}
	return payload
}

func TestReportProperties(t *testing.T) {
	d, daemon, _ := startDriver(t)
	h := registerLamp(t, d)

	before := time.Now().UnixMilli()
	err := d.ReportProperties(h, []DeviceData{
		{Type: TypeBool, Key: "on", Value: "1"},
		{Type: TypeFloat, Key: "temp", Value: "21.5"},
	})
	if err != nil {
		t.Fatalf("ReportProperties() error = %v", err)
	}

	msg := daemon.waitSignals(protocol.SignalPropertiesChanged, 1)[0]
	name := protocol.DeviceName("cid-lamp")
	if msg.Destination != protocol.SubscriptionName || msg.Interface != name || msg.Path != protocol.NameToPath(name) {
		t.Errorf("signal addressed to %s %s %s", msg.Destination, msg.Path, msg.Interface)
	}

	payload := signalPayload(t, msg)
	var on struct {
		Time  int64 `json:"time"`
		Value int   `json:"value"`
	}
	if err := json.Unmarshal(payload["on"], &on); err != nil {
		t.Fatalf("on member %s: %v", payload["on"], err)
	}
	if on.Value != 1 || on.Time < before {
		t.Errorf("on = %+v, want value 1 stamped after %d", on, before)
	}
	if _, ok := payload["temp"]; !ok {
		t.Error("temp missing from report")
	}
}

func TestReportProperties_Errors(t *testing.T) {
	d, _, _ := startDriver(t)
	h := registerLamp(t, d)

	tests := []struct {
		name   string
		handle Handle
		props  []DeviceData
		want   error
	}{
		{name: "unknown handle", handle: 42, props: []DeviceData{{Type: TypeBool, Key: "on", Value: "1"}}, want: ErrDeviceUnregister},
		{name: "no properties", handle: h, props: nil, want: ErrInvalidParam},
		{name: "empty key", handle: h, props: []DeviceData{{Type: TypeBool, Value: "1"}}, want: ErrInvalidParam},
		{name: "unknown type", handle: h, props: []DeviceData{{Type: TypeUnknown, Key: "on", Value: "1"}}, want: ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.ReportProperties(tt.handle, tt.props); !errors.Is(err, tt.want) {
				t.Errorf("ReportProperties() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReportEvent(t *testing.T) {
	d, daemon, _ := startDriver(t)
	h := registerLamp(t, d)

	if err := d.ReportEvent(h, "overheat", []DeviceData{{Type: TypeInt, Key: "level", Value: "3"}}); err != nil {
		t.Fatalf("ReportEvent() error = %v", err)
	}
	if err := d.ReportEvent(h, "reset", nil); err != nil {
		t.Fatalf("ReportEvent() without data error = %v", err)
	}

	msg := daemon.waitSignals("overheat", 1)[0]
	var body struct {
		Params struct {
			Time  int64          `json:"time"`
			Value map[string]int `json:"value"`
		} `json:"params"`
	}
	text, _ := msg.ArgString(0)
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		t.Fatalf("event payload %s: %v", text, err)
	}
	if body.Params.Value["level"] != 3 || body.Params.Time == 0 {
		t.Errorf("event params = %+v", body.Params)
	}

	msg = daemon.waitSignals("reset", 1)[0]
	if text, _ := msg.ArgString(0); !json.Valid([]byte(text)) {
		t.Errorf("reset payload = %s", text)
	}
}

func TestReportEvent_Errors(t *testing.T) {
	d, _, _ := startDriver(t)
	h := registerLamp(t, d)

	if err := d.ReportEvent(h, "", nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("ReportEvent(empty name) = %v, want ErrInvalidParam", err)
	}
	if err := d.ReportEvent(InvalidHandle, "alarm", nil); !errors.Is(err, ErrDeviceUnregister) {
		t.Errorf("ReportEvent(invalid handle) = %v, want ErrDeviceUnregister", err)
	}
}

func TestReportsMirroredToTelemetry(t *testing.T) {
	broker := bustest.NewBroker()
	daemon := newFakeDaemon(t, broker)
	writer := &mockPointWriter{}
	opts := testOptions(broker)
	opts.Telemetry = writer
	d := mustInit(t, opts)
	h := registerLamp(t, d)

	if err := d.ReportProperties(h, []DeviceData{{Type: TypeInt, Key: "level", Value: "7"}}); err != nil {
		t.Fatalf("ReportProperties() error = %v", err)
	}
	if err := d.ReportEvent(h, "alarm", nil); err != nil {
		t.Fatalf("ReportEvent() error = %v", err)
	}
	daemon.waitSignals("alarm", 1)

	points := writer.all()
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if points[0].measurement != telemetry.MeasurementProperties || points[1].measurement != telemetry.MeasurementEvents {
		t.Errorf("measurements = %s, %s", points[0].measurement, points[1].measurement)
	}
	if points[0].tags["cloud_id"] != "cid-lamp" {
		t.Errorf("tags = %v, want cloud_id cid-lamp", points[0].tags)
	}

	// Rejected reports are not mirrored.
	d.ReportProperties(h, nil) //nolint:errcheck // failure expected
	if got := len(writer.all()); got != 2 {
		t.Errorf("points after rejected report = %d, want 2", got)
	}
}
