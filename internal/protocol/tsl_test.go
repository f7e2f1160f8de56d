package protocol

import "testing"

const sampleTSL = `{
  "properties": [
    {"identifier": "LightSwitch", "dataType": {"type": "bool"}},
    {"identifier": "Brightness", "dataType": {"type": "int"}}
  ],
  "events": [
    {"identifier": "Error", "outputData": [{"identifier": "ErrorCode", "dataType": {"type": "enum"}}]}
  ],
  "services": [
    {"identifier": "set", "inputData": [
      {"identifier": "LightSwitch", "dataType": {"type": "bool"}},
      {"identifier": "Color", "dataType": {"type": "struct"}}
    ]},
    {"identifier": "get", "inputData": []},
    {"identifier": "Blink", "inputData": [
      {"identifier": "Times", "dataType": {"type": "int"}},
      {"identifier": "Period", "dataType": {"type": "double"}}
    ]}
  ]
}`

func TestParseTSL(t *testing.T) {
	tsl, err := ParseTSL([]byte(sampleTSL))
	if err != nil {
		t.Fatalf("ParseTSL() error = %v", err)
	}

	tests := []struct {
		name    string
		service string
		key     string
		want    DataType
	}{
		{name: "set bool", service: "set", key: "LightSwitch", want: TypeBool},
		{name: "set struct", service: "set", key: "Color", want: TypeStruct},
		{name: "custom service", service: "Blink", key: "Period", want: TypeDouble},
		{name: "unknown field", service: "Blink", key: "Nope", want: TypeUnknown},
		{name: "unknown service", service: "Dance", key: "Times", want: TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tsl.InputType(tt.service, tt.key); got != tt.want {
				t.Errorf("InputType(%q, %q) = %s, want %s", tt.service, tt.key, got, tt.want)
			}
		})
	}

	if got := tsl.PropertyType("Brightness"); got != TypeInt {
		t.Errorf("PropertyType(Brightness) = %s, want int", got)
	}
}

func TestParseTSL_Invalid(t *testing.T) {
	if _, err := ParseTSL([]byte(`{"services": 5}`)); CodeOf(err) != InvalidJSON {
		t.Errorf("ParseTSL() error = %v, want InvalidJSON", err)
	}
}

func TestNilTSL(t *testing.T) {
	var tsl *TSL
	if got := tsl.ServiceLookup("set")("LightSwitch"); got != TypeUnknown {
		t.Errorf("nil TSL lookup = %s, want unknown", got)
	}
}

func TestParseDataType(t *testing.T) {
	tests := []struct {
		input string
		want  DataType
	}{
		{"int", TypeInt},
		{"BOOL", TypeBool},
		{" float ", TypeFloat},
		{"text", TypeText},
		{"date", TypeDate},
		{"enum", TypeEnum},
		{"struct", TypeStruct},
		{"array", TypeArray},
		{"double", TypeDouble},
		{"bitmap", TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseDataType(tt.input); got != tt.want {
				t.Errorf("ParseDataType(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNames(t *testing.T) {
	if got := DeviceName("abc"); got != "iot.device.idabc" {
		t.Errorf("DeviceName() = %q", got)
	}
	if got := NameToPath(DeviceName("abc")); got != "/iot/device/idabc" {
		t.Errorf("NameToPath() = %q", got)
	}
	if got := NameToPath(DriverName("led")); got != "/iot/driver/idled" {
		t.Errorf("NameToPath(driver) = %q", got)
	}
	if err := ValidateText("module", ""); CodeOf(err) != InvalidParam {
		t.Errorf("ValidateText(empty) = %v, want InvalidParam", err)
	}
	if err := ValidateText("module", "\xff"); CodeOf(err) != InvalidParam {
		t.Errorf("ValidateText(invalid utf8) = %v, want InvalidParam", err)
	}
	if err := ValidateText("module", "led-driver"); err != nil {
		t.Errorf("ValidateText(valid) = %v, want nil", err)
	}
}
