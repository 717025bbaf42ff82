package commands

import (
	"errors"
	"testing"
)

func TestSystemCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     SystemCommand
		wantErr bool
	}{
		{name: "registration ack new", cmd: SystemCommand{Type: SystemRegistrationAck, Reason: RegistrationNew}},
		{name: "registration ack existing", cmd: SystemCommand{Type: SystemRegistrationAck, Reason: RegistrationAlreadyRegistered}},
		{name: "registration ack bad reason", cmd: SystemCommand{Type: SystemRegistrationAck, Reason: "Other"}, wantErr: true},
		{name: "registration failure", cmd: SystemCommand{Type: SystemRegistrationFailure, Reason: FailureSiteTokenRequired, ErrorMessage: "no site"}},
		{name: "registration failure bad reason", cmd: SystemCommand{Type: SystemRegistrationFailure}, wantErr: true},
		{name: "stream ack", cmd: SystemCommand{Type: SystemDeviceStreamAck, StreamID: "s1", StreamStatus: StreamCreated}},
		{name: "stream ack bad status", cmd: SystemCommand{Type: SystemDeviceStreamAck, StreamID: "s1"}, wantErr: true},
		{name: "stream data", cmd: SystemCommand{Type: SystemSendDeviceStreamData, DeviceToken: "dev-1", SequenceNumber: 4, Data: []byte{1}}},
		{name: "stream data without device", cmd: SystemCommand{Type: SystemSendDeviceStreamData}, wantErr: true},
		{name: "mapping ack", cmd: SystemCommand{Type: SystemDeviceMappingAck, MappedDeviceToken: "dev-2"}},
		{name: "mapping ack without token", cmd: SystemCommand{Type: SystemDeviceMappingAck}, wantErr: true},
		{name: "unknown type", cmd: SystemCommand{Type: "Reboot"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrData) {
					t.Errorf("Validate() error = %v, want ErrData", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}
