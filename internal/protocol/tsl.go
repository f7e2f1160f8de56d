package protocol

import "encoding/json"

// TSL is the subset of a product's thing specification model used to type
// wire values. Unknown members are ignored.
type TSL struct {
	Properties []TSLField   `json:"properties"`
	Events     []TSLEvent   `json:"events"`
	Services   []TSLService `json:"services"`
}

// TSLField describes one typed field.
type TSLField struct {
	Identifier string      `json:"identifier"`
	Name       string      `json:"name,omitempty"`
	DataType   TSLDataType `json:"dataType"`
}

// TSLDataType holds the declared type name of a field.
type TSLDataType struct {
	Type string `json:"type"`
}

// TSLEvent describes an event and its output fields.
type TSLEvent struct {
	Identifier string     `json:"identifier"`
	OutputData []TSLField `json:"outputData"`
}

// TSLService describes a service and its input/output fields.
// The standard property services are named "get" and "set".
type TSLService struct {
	Identifier string     `json:"identifier"`
	InputData  []TSLField `json:"inputData"`
	OutputData []TSLField `json:"outputData"`
}

// ParseTSL decodes a TSL document.
func ParseTSL(data []byte) (*TSL, error) {
	var tsl TSL
	if err := json.Unmarshal(data, &tsl); err != nil {
		return nil, Errorf(InvalidJSON, "tsl: %v", err)
	}
	return &tsl, nil
}

// InputType returns the declared type of an input field of a service.
// Missing services or fields resolve to TypeUnknown.
func (t *TSL) InputType(service, key string) DataType {
	if t == nil {
		return TypeUnknown
	}
	for _, svc := range t.Services {
		if svc.Identifier != service {
			continue
		}
		for _, field := range svc.InputData {
			if field.Identifier == key {
				return ParseDataType(field.DataType.Type)
			}
		}
		return TypeUnknown
	}
	return TypeUnknown
}

// PropertyType returns the declared type of a property.
func (t *TSL) PropertyType(key string) DataType {
	if t == nil {
		return TypeUnknown
	}
	for _, field := range t.Properties {
		if field.Identifier == key {
			return ParseDataType(field.DataType.Type)
		}
	}
	return TypeUnknown
}

// ServiceLookup returns a TypeLookup bound to one service's input fields.
func (t *TSL) ServiceLookup(service string) TypeLookup {
	return func(key string) DataType {
		return t.InputType(service, key)
	}
}
