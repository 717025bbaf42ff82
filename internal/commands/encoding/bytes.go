package encoding

import (
	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// Bytes adapts a text encoder to providers that send raw bytes.
func Bytes(enc commands.Encoder[string]) commands.Encoder[[]byte] {
	return bytesEncoder{enc: enc}
}

type bytesEncoder struct {
	enc commands.Encoder[string]
}

func (b bytesEncoder) Encode(exec *commands.Execution, nesting device.NestingContext, assignment *device.Assignment) ([]byte, error) {
	s, err := b.enc.Encode(exec, nesting, assignment)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (b bytesEncoder) EncodeSystemCommand(cmd commands.SystemCommand, nesting device.NestingContext, assignment *device.Assignment) ([]byte, error) {
	s, err := b.enc.EncodeSystemCommand(cmd, nesting, assignment)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
