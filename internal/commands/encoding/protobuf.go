package encoding

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// DeviceCommand field numbers.
const (
	fieldInvocationID protowire.Number = 1
	fieldCommandToken protowire.Number = 2
	fieldCommandName  protowire.Number = 3
	fieldNamespace    protowire.Number = 4
	fieldDeviceToken  protowire.Number = 5
	fieldNestedPath   protowire.Number = 6
	fieldParameter    protowire.Number = 7

	fieldParamName  protowire.Number = 1
	fieldParamValue protowire.Number = 2
)

// RegistrationAckState values.
const (
	RegistrationStateNew               = 1
	RegistrationStateAlreadyRegistered = 2
	RegistrationStateError             = 3
)

// RegistrationAckError values.
const (
	RegistrationErrorInvalidSpecification = 1
	RegistrationErrorSiteTokenRequired    = 2
	RegistrationErrorNewDevicesNotAllowed = 3
)

// DeviceStreamAckState values.
const (
	StreamStateCreated = 1
	StreamStateExists  = 2
	StreamStateFailed  = 3
)

// DeviceCommand is the decoded form of a Protobuf command message.
type DeviceCommand struct {
	InvocationID string
	CommandToken string
	CommandName  string
	Namespace    string
	DeviceToken  string
	NestedPath   string
	Parameters   map[string]string
}

// Protobuf encodes executions as varint length-delimited protobuf-wire
// messages. Parameters are written in name order.
type Protobuf struct {
	logger commands.Logger
}

// NewProtobuf creates a Protobuf encoder.
func NewProtobuf() *Protobuf {
	return &Protobuf{logger: noopLogger{}}
}

// SetLogger sets the logger used for skipped system commands.
func (p *Protobuf) SetLogger(logger commands.Logger) {
	p.logger = logger
}

// Encode implements commands.Encoder.
func (p *Protobuf) Encode(exec *commands.Execution, nesting device.NestingContext, _ *device.Assignment) ([]byte, error) {
	var msg []byte
	msg = appendString(msg, fieldInvocationID, exec.Invocation.ID)
	msg = appendString(msg, fieldCommandToken, exec.Command.Token)
	msg = appendString(msg, fieldCommandName, exec.Command.Name)
	msg = appendString(msg, fieldNamespace, exec.Command.Namespace)
	msg = appendString(msg, fieldDeviceToken, nesting.Target().Token)
	if nesting.Nested() {
		msg = appendString(msg, fieldNestedPath, nesting.PathString())
	}

	names := make([]string, 0, len(exec.Parameters))
	for name := range exec.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var param []byte
		param = appendString(param, fieldParamName, name)
		param = appendString(param, fieldParamValue, exec.Invocation.ParameterValues[name])
		msg = protowire.AppendTag(msg, fieldParameter, protowire.BytesType)
		msg = protowire.AppendBytes(msg, param)
	}

	return protowire.AppendBytes(nil, msg), nil
}

// EncodeSystemCommand implements commands.Encoder. DeviceMappingAck has no
// binary form and is skipped.
func (p *Protobuf) EncodeSystemCommand(cmd commands.SystemCommand, nesting device.NestingContext, _ *device.Assignment) ([]byte, error) {
	var msg []byte

	switch cmd.Type {
	case commands.SystemRegistrationAck:
		state := RegistrationStateNew
		if cmd.Reason == commands.RegistrationAlreadyRegistered {
			state = RegistrationStateAlreadyRegistered
		}
		msg = appendVarint(msg, 1, uint64(state))

	case commands.SystemRegistrationFailure:
		msg = appendVarint(msg, 1, RegistrationStateError)
		msg = appendVarint(msg, 2, uint64(registrationError(cmd.Reason)))
		msg = appendString(msg, 3, cmd.ErrorMessage)

	case commands.SystemDeviceStreamAck:
		msg = appendString(msg, 1, cmd.StreamID)
		msg = appendVarint(msg, 2, uint64(streamState(cmd.StreamStatus)))

	case commands.SystemSendDeviceStreamData:
		msg = appendString(msg, 1, cmd.DeviceToken)
		msg = protowire.AppendTag(msg, 2, protowire.Fixed64Type)
		msg = protowire.AppendFixed64(msg, cmd.SequenceNumber)
		msg = protowire.AppendTag(msg, 3, protowire.BytesType)
		msg = protowire.AppendBytes(msg, cmd.Data)

	case commands.SystemDeviceMappingAck:
		p.logger.Warn("device mapping ack has no protobuf encoding, skipping",
			"device", nesting.Target().Token,
			"mapped_device", cmd.MappedDeviceToken,
		)
		return nil, commands.ErrSkipDelivery

	default:
		return nil, fmt.Errorf("%w: unknown system command type %q", commands.ErrData, cmd.Type)
	}

	return protowire.AppendBytes(nil, msg), nil
}

func registrationError(reason string) int {
	switch reason {
	case commands.FailureNewDevicesNotAllowed:
		return RegistrationErrorNewDevicesNotAllowed
	case commands.FailureSiteTokenRequired:
		return RegistrationErrorSiteTokenRequired
	default:
		return RegistrationErrorInvalidSpecification
	}
}

func streamState(status string) int {
	switch status {
	case commands.StreamCreated:
		return StreamStateCreated
	case commands.StreamExists:
		return StreamStateExists
	default:
		return StreamStateFailed
	}
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// DecodeDeviceCommand parses a message produced by Protobuf.Encode.
// Unknown fields are skipped.
func DecodeDeviceCommand(data []byte) (*DeviceCommand, error) {
	msg, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, fmt.Errorf("encoding: reading length prefix: %w", protowire.ParseError(n))
	}
	if n != len(data) {
		return nil, fmt.Errorf("encoding: %d trailing bytes after message", len(data)-n)
	}

	cmd := &DeviceCommand{Parameters: make(map[string]string)}
	err := walkFields(msg, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldInvocationID:
			cmd.InvocationID = string(value)
		case fieldCommandToken:
			cmd.CommandToken = string(value)
		case fieldCommandName:
			cmd.CommandName = string(value)
		case fieldNamespace:
			cmd.Namespace = string(value)
		case fieldDeviceToken:
			cmd.DeviceToken = string(value)
		case fieldNestedPath:
			cmd.NestedPath = string(value)
		case fieldParameter:
			var name, val string
			if err := walkFields(value, func(pn protowire.Number, pt protowire.Type, pv []byte) error {
				if pt != protowire.BytesType {
					return nil
				}
				switch pn {
				case fieldParamName:
					name = string(pv)
				case fieldParamValue:
					val = string(pv)
				}
				return nil
			}); err != nil {
				return err
			}
			cmd.Parameters[name] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// walkFields calls fn for each field in msg. value holds the payload for
// length-delimited fields and is nil otherwise.
func walkFields(msg []byte, fn func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return fmt.Errorf("encoding: reading tag: %w", protowire.ParseError(n))
		}
		msg = msg[n:]

		var value []byte
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(msg)
			if m < 0 {
				return fmt.Errorf("encoding: reading field %d: %w", num, protowire.ParseError(m))
			}
			value, n = v, m
		} else {
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return fmt.Errorf("encoding: skipping field %d: %w", num, protowire.ParseError(n))
			}
		}
		msg = msg[n:]

		if err := fn(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
