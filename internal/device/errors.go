package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown token
//	}
var (
	// ErrDeviceNotFound is returned when a device token does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrCommandNotFound is returned when a command token does not exist.
	ErrCommandNotFound = errors.New("device: command not found")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidCommand is returned when a command definition is malformed.
	ErrInvalidCommand = errors.New("device: invalid command")

	// ErrGatewayNotFound is returned when a ParentToken references a device
	// that does not exist.
	ErrGatewayNotFound = errors.New("device: gateway not found")

	// ErrNestingCycle is returned when parent links loop back on themselves.
	ErrNestingCycle = errors.New("device: nesting cycle")

	// ErrNestingTooDeep is returned when a parent chain exceeds MaxNestingDepth.
	ErrNestingTooDeep = errors.New("device: nesting too deep")
)
