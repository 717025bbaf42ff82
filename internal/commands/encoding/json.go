package encoding

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// JSON encodes executions as JSON documents.
type JSON struct{}

// commandDocument is the JSON shape of an execution.
type commandDocument struct {
	Command      commandRef      `json:"command"`
	InvocationID string          `json:"invocationId"`
	Parameters   map[string]any  `json:"parameters"`
	Initiator    *originRef      `json:"initiator,omitempty"`
	Target       *originRef      `json:"target,omitempty"`
	Nesting      nestingDocument `json:"nesting"`
	Assignment   string          `json:"assignment,omitempty"`
}

type commandRef struct {
	Token     string `json:"token"`
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

type originRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

type nestingDocument struct {
	Gateway string `json:"gateway"`
	Device  string `json:"device"`
	Path    string `json:"path"`
	Nested  bool   `json:"nested"`
}

// systemDocument is the JSON shape of a system command.
type systemDocument struct {
	SystemCommand     commands.SystemCommandType `json:"systemCommand"`
	Device            string                     `json:"device"`
	Reason            string                     `json:"reason,omitempty"`
	ErrorMessage      string                     `json:"errorMessage,omitempty"`
	StreamID          string                     `json:"streamId,omitempty"`
	StreamStatus      string                     `json:"status,omitempty"`
	DeviceToken       string                     `json:"deviceToken,omitempty"`
	SequenceNumber    uint64                     `json:"sequenceNumber,omitempty"`
	Data              []byte                     `json:"data,omitempty"`
	MappedDeviceToken string                     `json:"mappedDeviceToken,omitempty"`
}

// Encode implements commands.Encoder.
func (JSON) Encode(exec *commands.Execution, nesting device.NestingContext, assignment *device.Assignment) (string, error) {
	doc := commandDocument{
		Command: commandRef{
			Token:     exec.Command.Token,
			Name:      exec.Command.Name,
			Namespace: exec.Command.Namespace,
		},
		InvocationID: exec.Invocation.ID,
		Parameters:   exec.Parameters,
		Initiator:    origin(exec.Invocation.InitiatorKind, exec.Invocation.InitiatorID),
		Target:       origin(exec.Invocation.TargetKind, exec.Invocation.TargetID),
		Nesting:      nestingDoc(nesting),
	}
	if doc.Parameters == nil {
		doc.Parameters = map[string]any{}
	}
	if assignment != nil {
		doc.Assignment = assignment.Token
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding: marshalling command %q: %w", exec.Command.Token, err)
	}
	return string(data), nil
}

// EncodeSystemCommand implements commands.Encoder.
func (JSON) EncodeSystemCommand(cmd commands.SystemCommand, nesting device.NestingContext, _ *device.Assignment) (string, error) {
	doc := systemDocument{
		SystemCommand:     cmd.Type,
		Device:            nesting.Target().Token,
		Reason:            cmd.Reason,
		ErrorMessage:      cmd.ErrorMessage,
		StreamID:          cmd.StreamID,
		StreamStatus:      cmd.StreamStatus,
		DeviceToken:       cmd.DeviceToken,
		SequenceNumber:    cmd.SequenceNumber,
		Data:              cmd.Data,
		MappedDeviceToken: cmd.MappedDeviceToken,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding: marshalling system command %q: %w", cmd.Type, err)
	}
	return string(data), nil
}

func origin(kind, id string) *originRef {
	if kind == "" {
		return nil
	}
	return &originRef{Kind: kind, ID: id}
}

func nestingDoc(n device.NestingContext) nestingDocument {
	return nestingDocument{
		Gateway: n.Gateway().Token,
		Device:  n.Target().Token,
		Path:    n.PathString(),
		Nested:  n.Nested(),
	}
}
