package commands

import "fmt"

// SystemCommandType identifies a system command.
type SystemCommandType string

// System command types.
const (
	SystemRegistrationAck      SystemCommandType = "RegistrationAck"
	SystemRegistrationFailure  SystemCommandType = "RegistrationFailure"
	SystemDeviceStreamAck      SystemCommandType = "DeviceStreamAck"
	SystemSendDeviceStreamData SystemCommandType = "SendDeviceStreamData"
	SystemDeviceMappingAck     SystemCommandType = "DeviceMappingAck"
)

// Registration acknowledgement reasons.
const (
	RegistrationNew               = "NewRegistration"
	RegistrationAlreadyRegistered = "AlreadyRegistered"
)

// Registration failure reasons.
const (
	FailureNewDevicesNotAllowed   = "NewDevicesNotAllowed"
	FailureInvalidDeviceTypeToken = "InvalidDeviceTypeToken"
	FailureSiteTokenRequired      = "SiteTokenRequired"
)

// Device stream acknowledgement statuses.
const (
	StreamCreated = "DeviceStreamCreated"
	StreamExists  = "DeviceStreamExists"
	StreamFailed  = "DeviceStreamFailed"
)

// SystemCommand is a platform-originated message for a device, such as a
// registration acknowledgement. Only the fields of its Type are meaningful.
type SystemCommand struct {
	Type SystemCommandType `json:"type"`

	// RegistrationAck and RegistrationFailure.
	Reason       string `json:"reason,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// DeviceStreamAck.
	StreamID     string `json:"streamId,omitempty"`
	StreamStatus string `json:"status,omitempty"`

	// SendDeviceStreamData.
	DeviceToken    string `json:"deviceToken,omitempty"`
	SequenceNumber uint64 `json:"sequenceNumber,omitempty"`
	Data           []byte `json:"data,omitempty"`

	// DeviceMappingAck.
	MappedDeviceToken string `json:"mappedDeviceToken,omitempty"`
}

// SystemCommandRequest is the inbound message asking for a system command
// to be sent to a device.
type SystemCommandRequest struct {
	DeviceToken string        `json:"deviceToken"`
	Command     SystemCommand `json:"command"`
}

// Validate checks that the command carries what its type needs.
func (c SystemCommand) Validate() error {
	switch c.Type {
	case SystemRegistrationAck:
		if c.Reason != RegistrationNew && c.Reason != RegistrationAlreadyRegistered {
			return fmt.Errorf("%w: registration ack reason %q", ErrData, c.Reason)
		}
	case SystemRegistrationFailure:
		switch c.Reason {
		case FailureNewDevicesNotAllowed, FailureInvalidDeviceTypeToken, FailureSiteTokenRequired:
		default:
			return fmt.Errorf("%w: registration failure reason %q", ErrData, c.Reason)
		}
	case SystemDeviceStreamAck:
		switch c.StreamStatus {
		case StreamCreated, StreamExists, StreamFailed:
		default:
			return fmt.Errorf("%w: stream ack status %q", ErrData, c.StreamStatus)
		}
	case SystemSendDeviceStreamData:
		if c.DeviceToken == "" {
			return fmt.Errorf("%w: stream data requires a device token", ErrData)
		}
	case SystemDeviceMappingAck:
		if c.MappedDeviceToken == "" {
			return fmt.Errorf("%w: mapping ack requires a mapped device token", ErrData)
		}
	default:
		return fmt.Errorf("%w: unknown system command type %q", ErrData, c.Type)
	}
	return nil
}
