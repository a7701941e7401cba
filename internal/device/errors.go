package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device matches the given
	// identifier, MAC address, or public ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device whose MAC
	// address is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidMAC is returned when a MAC address fails validation.
	ErrInvalidMAC = errors.New("device: invalid mac address")

	// ErrIDGenerationExhausted is returned when a unique public ID could
	// not be generated within the configured number of attempts.
	ErrIDGenerationExhausted = errors.New("device: public id generation exhausted")
)
