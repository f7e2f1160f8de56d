package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-driver-sdk/pkg/driver"
)

// Property and event names of the demo LED product.
const (
	propTemperature = "temperature"
	propPower       = "power"

	eventHighTemperature = "high_temperature"

	serviceToggle = "toggle"

	// highTemperature is the reading above which the event is raised.
	highTemperature = 45

	// serviceOutputSlots bounds the outputs a service may return.
	serviceOutputSlots = 5
)

// deviceEntry is one element of the driver config's device list.
type deviceEntry struct {
	ProductKey string `json:"productKey"`
	DeviceName string `json:"deviceName"`
}

// parseDeviceList decodes the device list of a driver config. Entries
// missing a product key or device name are skipped.
func parseDeviceList(raw string) ([]deviceEntry, error) {
	var entries []deviceEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parsing device list: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if e.ProductKey != "" && e.DeviceName != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// led simulates one lamp with a temperature sensor.
type led struct {
	mu          sync.Mutex
	power       bool
	temperature int
}

// ledFleet is the set of simulated lamps this process drives.
type ledFleet struct {
	drv *driver.Driver
	log *logging.Logger

	mu      sync.Mutex
	handles []driver.Handle
	lamps   map[driver.Handle]*led
}

func newLEDFleet(drv *driver.Driver, log *logging.Logger) *ledFleet {
	return &ledFleet{
		drv:   drv,
		log:   log,
		lamps: make(map[driver.Handle]*led),
	}
}

// callbacks returns the driver callbacks serving every lamp.
func (f *ledFleet) callbacks() driver.Callbacks {
	return driver.Callbacks{
		GetProperties:         f.getProperties,
		SetProperties:         f.setProperties,
		CallService:           f.callService,
		ServiceOutputMaxCount: serviceOutputSlots,
	}
}

// register brings every listed lamp online. Failures are logged and the
// lamp skipped.
func (f *ledFleet) register(ctx context.Context, entries []deviceEntry) int {
	registered := 0
	for _, e := range entries {
		lamp := &led{temperature: 20}
		h, err := f.drv.RegisterAndOnlineByDeviceName(ctx, e.ProductKey, e.DeviceName, f.callbacks(), lamp)
		if err != nil {
			f.log.Error("device register failed", "product_key", e.ProductKey, "device_name", e.DeviceName, "error", err)
			continue
		}
		f.mu.Lock()
		if _, ok := f.lamps[h]; !ok {
			f.handles = append(f.handles, h)
			f.lamps[h] = lamp
		}
		f.mu.Unlock()
		registered++
		f.log.Info("device registered", "product_key", e.ProductKey, "device_name", e.DeviceName, "handle", h)
	}
	return registered
}

func (f *ledFleet) snapshot() []driver.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.Handle(nil), f.handles...)
}

func (f *ledFleet) lamp(h driver.Handle) (*led, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lamp, ok := f.lamps[h]
	if !ok {
		return nil, driver.NewError(driver.DeviceUnregister, "unknown lamp")
	}
	return lamp, nil
}

func (f *ledFleet) getProperties(h driver.Handle, props []driver.DeviceData, _ any) error {
	lamp, err := f.lamp(h)
	if err != nil {
		return err
	}
	lamp.mu.Lock()
	defer lamp.mu.Unlock()

	for i := range props {
		switch props[i].Key {
		case propTemperature:
			props[i].Type = driver.TypeInt
			props[i].Value = strconv.Itoa(lamp.temperature)
		case propPower:
			props[i].Type = driver.TypeBool
			props[i].Value = boolValue(lamp.power)
		}
	}
	return nil
}

func (f *ledFleet) setProperties(h driver.Handle, props []driver.DeviceData, _ any) error {
	lamp, err := f.lamp(h)
	if err != nil {
		return err
	}
	lamp.mu.Lock()
	defer lamp.mu.Unlock()

	for _, p := range props {
		f.log.Debug("set property", "handle", h, "key", p.Key, "value", p.Value)
		if p.Key == propPower {
			lamp.power = p.Value == "1" || p.Value == "true"
		}
	}
	return nil
}

func (f *ledFleet) callService(h driver.Handle, service string, input, output []driver.DeviceData, _ any) error {
	lamp, err := f.lamp(h)
	if err != nil {
		return err
	}
	f.log.Debug("call service", "handle", h, "service", service, "inputs", len(input))

	if service != serviceToggle {
		return driver.NewError(driver.InvalidParam, "unsupported service "+service)
	}

	lamp.mu.Lock()
	lamp.power = !lamp.power
	power := lamp.power
	lamp.mu.Unlock()

	if len(output) > 0 {
		output[0] = driver.DeviceData{Type: driver.TypeBool, Key: propPower, Value: boolValue(power)}
	}
	return nil
}

// report sends one property report per lamp, and the high temperature
// event when a lamp runs hot.
func (f *ledFleet) report() {
	for _, h := range f.snapshot() {
		lamp, err := f.lamp(h)
		if err != nil {
			continue
		}
		lamp.mu.Lock()
		if lamp.power {
			lamp.temperature += 5
		} else if lamp.temperature > 20 {
			lamp.temperature -= 5
		}
		temp := lamp.temperature
		power := lamp.power
		lamp.mu.Unlock()

		err = f.drv.ReportProperties(h, []driver.DeviceData{
			{Type: driver.TypeInt, Key: propTemperature, Value: strconv.Itoa(temp)},
			{Type: driver.TypeBool, Key: propPower, Value: boolValue(power)},
		})
		if err != nil {
			f.log.Warn("property report failed", "handle", h, "error", err)
			continue
		}

		if temp > highTemperature {
			err = f.drv.ReportEvent(h, eventHighTemperature, []driver.DeviceData{
				{Type: driver.TypeInt, Key: propTemperature, Value: strconv.Itoa(temp)},
			})
			if err != nil {
				f.log.Warn("event report failed", "handle", h, "error", err)
			}
		}
	}
}

// runReports reports every interval until ctx is done or the driver stops.
func (f *ledFleet) runReports(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.drv.Done():
			return nil
		case <-ticker.C:
			f.report()
		}
	}
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
