// Package protocol defines the wire vocabulary shared by the driver SDK and
// the gateway's device-management daemon.
//
// It covers:
//   - The closed status code table and its Go error form (Code, Error)
//   - Typed device data (DeviceData) and its JSON encoding (Encode, Decode)
//   - The {code, message, params} reply envelope
//   - The thing specification model (TSL) used to type decoded values
//   - Well-known bus names, object paths and method names
//
// Decoding consults the TSL because struct and array fields cannot be told
// apart from primitives by shape alone:
//
//	tsl, _ := protocol.ParseTSL(raw)
//	data, err := protocol.Decode(params, tsl.ServiceLookup("set"))
//
// Status codes travel through Go code as *Error values and compare by code:
//
//	if errors.Is(err, protocol.ErrDeviceOffline) {
//	    // device must be brought online first
//	}
package protocol
