package driver

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/bus"
	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

// Domain errors for the driver package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, driver.ErrConnectionLost) {
//	    os.Exit(1)
//	}
var (
	// ErrDriverRunning is returned by Init when another process owns the
	// driver's bus name.
	ErrDriverRunning = errors.New("driver: module is already running")

	// ErrConnectionLost is reported by Err and Wait when the bus drops.
	ErrConnectionLost = bus.ErrConnectionLost
)

// Status errors returned by the driver API. They match any error carrying
// the same code under errors.Is.
var (
	ErrUnknown            = &Error{Code: Unknown}
	ErrInvalidParam       = &Error{Code: InvalidParam}
	ErrTimeout            = &Error{Code: Timeout}
	ErrServiceUnreachable = &Error{Code: ServiceUnreachable}
	ErrDeviceUnregister   = &Error{Code: DeviceUnregister}
	ErrDeviceOffline      = &Error{Code: DeviceOffline}
	ErrInvalidJSON        = &Error{Code: InvalidJSON}
	ErrInvalidType        = &Error{Code: InvalidType}
)

// callFailed reports a failed daemon call as UNKNOWN while keeping the
// cause reachable through errors.Is.
func callFailed(method string, err error) error {
	return fmt.Errorf("%w: %s: %w", protocol.ErrUnknown, method, err)
}
