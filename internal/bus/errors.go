package bus

import "errors"

// Domain errors for the bus package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, bus.ErrConnectionLost) {
//	    // the process should exit
//	}
var (
	// ErrConnectionLost is returned once the broker connection has dropped.
	ErrConnectionLost = errors.New("bus: connection lost")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("bus: connection closed")

	// ErrNoDestination is returned when sending a message without a destination.
	ErrNoDestination = errors.New("bus: message has no destination")

	// ErrInvalidName is returned for empty or malformed bus names.
	ErrInvalidName = errors.New("bus: invalid name")

	// ErrInvalidMessage is returned when a payload is not a bus message.
	ErrInvalidMessage = errors.New("bus: invalid message")

	// ErrNoArg is returned when a message argument is missing or has the wrong type.
	ErrNoArg = errors.New("bus: missing or mistyped argument")
)
