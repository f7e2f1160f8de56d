package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Code is a status code carried in the wire envelope and returned to drivers.
type Code int

// Generic status codes.
const (
	Success            Code = 0
	Unknown            Code = 100000
	InvalidParam       Code = 100001
	AllocatingMem      Code = 100002
	CreatingMutex      Code = 100003
	WritingFile        Code = 100004
	ReadingFile        Code = 100005
	Timeout            Code = 100006
	ParamRangeOverflow Code = 100007
	ServiceUnreachable Code = 100008
	FileNotExist       Code = 100009
)

// Device domain status codes.
const (
	DeviceUnregister  Code = 109000
	DeviceOffline     Code = 109001
	PropertyNotExist  Code = 109002
	PropertyReadOnly  Code = 109003
	PropertyWriteOnly Code = 109004
	ServiceNotExist   Code = 109005
	ServiceInputParam Code = 109006
	InvalidJSON       Code = 109007
	InvalidType       Code = 109008
)

// codeMessages holds the message text peers already match on, spelling
// included. Do not correct it.
var codeMessages = map[Code]string{
	Success:            "Ok",
	Unknown:            "Unknow error",
	InvalidParam:       "Invalid params",
	AllocatingMem:      "Alloc memery failed",
	CreatingMutex:      "Create mutex failed",
	WritingFile:        "Write file failed",
	ReadingFile:        "Read file failed",
	Timeout:            "Tiemout",
	ParamRangeOverflow: "Param range overflow",
	ServiceUnreachable: "Service unreachable",
	FileNotExist:       "No file exist",
	DeviceUnregister:   "Device not register",
	DeviceOffline:      "Device offline",
	PropertyNotExist:   "Property no exist",
	PropertyReadOnly:   "Property only support read",
	PropertyWriteOnly:  "Property only support write",
	ServiceNotExist:    "Service no exist",
	ServiceInputParam:  "Service param invalid",
	InvalidJSON:        "Json formate invalid",
	InvalidType:        "Param type invalid",
}

// Message returns the fixed human-readable message for c.
// Codes outside the table map to the Unknown message.
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return codeMessages[Unknown]
}

// Known reports whether c belongs to the closed status table.
func (c Code) Known() bool {
	_, ok := codeMessages[c]
	return ok
}

func (c Code) String() string {
	return strconv.Itoa(int(c)) + " " + c.Message()
}

// Error is a status code travelling through Go error returns.
//
// Two Errors match under errors.Is when their codes are equal, so callers can
// write errors.Is(err, protocol.ErrDeviceOffline).
type Error struct {
	Code   Code
	Detail string
}

// NewError returns an Error for code with an optional detail string.
func NewError(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Errorf returns an Error for code with a formatted detail.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "protocol: " + e.Code.Message()
	}
	return "protocol: " + e.Code.Message() + ": " + e.Detail
}

// StatusCode returns the code as an int.
func (e *Error) StatusCode() int {
	return int(e.Code)
}

// statusCoder is implemented by errors that carry a status code, including
// the public driver error type.
type statusCoder interface {
	StatusCode() int
}

// Is matches any error carrying the same status code.
func (e *Error) Is(target error) bool {
	t, ok := target.(statusCoder)
	return ok && t.StatusCode() == int(e.Code)
}

// Sentinel errors for the codes drivers most often check.
var (
	ErrUnknown            = &Error{Code: Unknown}
	ErrInvalidParam       = &Error{Code: InvalidParam}
	ErrTimeout            = &Error{Code: Timeout}
	ErrParamRangeOverflow = &Error{Code: ParamRangeOverflow}
	ErrServiceUnreachable = &Error{Code: ServiceUnreachable}
	ErrDeviceUnregister   = &Error{Code: DeviceUnregister}
	ErrDeviceOffline      = &Error{Code: DeviceOffline}
	ErrPropertyNotExist   = &Error{Code: PropertyNotExist}
	ErrServiceNotExist    = &Error{Code: ServiceNotExist}
	ErrInvalidJSON        = &Error{Code: InvalidJSON}
	ErrInvalidType        = &Error{Code: InvalidType}
)

// CodeOf extracts the status code from err.
// A nil error is Success; errors that carry no code are Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return Code(sc.StatusCode())
	}
	return Unknown
}

// FromCode converts a status code into an error, returning nil for Success.
func FromCode(code Code) error {
	if code == Success {
		return nil
	}
	return &Error{Code: code}
}
