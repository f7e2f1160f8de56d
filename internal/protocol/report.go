package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// EncodeProperties renders a property report. Every member carries its own
// timestamp in Unix milliseconds:
//
//	{"temperature":{"time":1718000000000,"value":21.5}}
func EncodeProperties(data []DeviceData, ms int64) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, NewError(InvalidParam, "no properties to report")
	}
	stamp := strconv.AppendInt(nil, ms, 10)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range data {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		val, err := encodeValue(d)
		if err != nil {
			return nil, err
		}
		key, err := json.Marshal(d.Key)
		if err != nil {
			return nil, Errorf(InvalidParam, "key %q: %v", d.Key, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteString(`:{"time":`)
		buf.Write(stamp)
		buf.WriteString(`,"value":`)
		buf.Write(val)
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return json.RawMessage(buf.Bytes()), nil
}

// EncodeEvent renders an event report. The event output is carried as one
// object under params:
//
//	{"params":{"time":1718000000000,"value":{"code":3}}}
//
// An event without output reports an empty value object.
func EncodeEvent(data []DeviceData, ms int64) (json.RawMessage, error) {
	value := json.RawMessage(`{}`)
	if len(data) > 0 {
		var err error
		if value, err = Encode(data); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"params":{"time":`)
	buf.Write(strconv.AppendInt(nil, ms, 10))
	buf.WriteString(`,"value":`)
	buf.Write(value)
	buf.WriteString(`}}`)
	return json.RawMessage(buf.Bytes()), nil
}
