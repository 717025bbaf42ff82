package commands

import (
	"errors"
	"fmt"
)

// Sentinel errors for command delivery. Check with errors.Is().
var (
	// ErrData is returned when the invocation references data that cannot
	// be resolved: unknown device or command, no active assignment, bad
	// parameters, broken nesting.
	ErrData = errors.New("commands: data error")

	// ErrConfiguration is returned for an unknown destination id, missing
	// credentials or a malformed destination declaration.
	ErrConfiguration = errors.New("commands: configuration error")

	// ErrRouting is returned when the router fails or yields no destination.
	ErrRouting = errors.New("commands: routing error")

	// ErrParameterResolution is returned when delivery parameters cannot be
	// extracted from gateway metadata.
	ErrParameterResolution = errors.New("commands: parameter resolution failed")

	// ErrTransport is returned when a provider fails to send.
	ErrTransport = errors.New("commands: transport error")

	// ErrSkipDelivery is returned by an encoder that has nothing to send.
	// The destination passes it on and the manager records a skipped
	// outcome.
	ErrSkipDelivery = errors.New("commands: delivery skipped")

	// ErrQueueFull is returned when the consumer queue has no room.
	ErrQueueFull = errors.New("commands: invocation queue full")

	// ErrInvalidPayload is returned when an inbound message cannot be decoded.
	ErrInvalidPayload = errors.New("commands: invalid invocation payload")

	// ErrConsumerStopped is returned by Received after Stop.
	ErrConsumerStopped = errors.New("commands: consumer stopped")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("commands: already started")

	// ErrShutdownTimeout is returned when workers do not drain in time.
	ErrShutdownTimeout = errors.New("commands: shutdown timed out")
)

// Error kinds reported by ErrorKind.
const (
	KindData                = "data"
	KindConfiguration       = "configuration"
	KindRouting             = "routing"
	KindParameterResolution = "parameter_resolution"
	KindTransport           = "transport"
	KindInternal            = "internal"
)

// ParameterResolutionError reports a gateway metadata field that is missing
// or invalid.
type ParameterResolutionError struct {
	Destination string
	Device      string
	Field       string
	Reason      string
}

func (e *ParameterResolutionError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing"
	}
	return fmt.Sprintf("commands: destination %q: device %q: metadata field %q: %s",
		e.Destination, e.Device, e.Field, reason)
}

func (e *ParameterResolutionError) Unwrap() error {
	return ErrParameterResolution
}

// TransportError wraps a provider failure.
type TransportError struct {
	Destination string
	Transport   string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("commands: destination %q: %s transport: %v", e.Destination, e.Transport, e.Err)
}

// Unwrap matches both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// NewTransportError wraps err for a provider. The destination id is filled
// in by the destination when left empty.
func NewTransportError(transport string, err error) *TransportError {
	return &TransportError{Transport: transport, Err: err}
}

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParameterResolution):
		return KindParameterResolution
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrRouting):
		return KindRouting
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrData):
		return KindData
	default:
		return KindInternal
	}
}
