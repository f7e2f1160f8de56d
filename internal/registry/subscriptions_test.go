package registry

import "testing"

func TestConfigSubscriptions(t *testing.T) {
	s := NewConfigSubscriptions()

	var calls []string
	s.Set("led", func(key, value string) error {
		calls = append(calls, "first:"+value)
		return nil
	})
	s.Set("led", func(key, value string) error {
		calls = append(calls, "second:"+value)
		return nil
	})
	s.Set("thermo", func(string, string) error { return nil })

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	module, fn, ok := s.Match("gw_driverconfig_led")
	if !ok || module != "led" {
		t.Fatalf("Match() = %q, %v, want led", module, ok)
	}
	if err := fn(module, "v"); err != nil {
		t.Fatalf("callback error = %v", err)
	}
	if len(calls) != 1 || calls[0] != "second:v" {
		t.Errorf("calls = %v, want the replacing callback only", calls)
	}

	if _, _, ok := s.Match("gw_driverconfig_fan"); ok {
		t.Error("Match() found a subscription for an unknown module")
	}
	if _, ok := s.Get("thermo"); !ok {
		t.Error("Get(thermo) = false, want true")
	}
}
