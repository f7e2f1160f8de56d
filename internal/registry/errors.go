package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, registry.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when no device matches a handle or cloud ID.
	ErrNotFound = errors.New("registry: device not found")

	// ErrInvalidDevice is returned when inserting a device without a cloud ID.
	ErrInvalidDevice = errors.New("registry: invalid device")
)
