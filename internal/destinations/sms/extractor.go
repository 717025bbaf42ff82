package sms

import (
	"strings"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// DefaultPhoneField is the metadata field holding the recipient number.
const DefaultPhoneField = "sms_phone"

// Params are the delivery parameters for one message.
type Params struct {
	Phone string
}

// PhoneExtractor reads the recipient number from the gateway's metadata.
// A non-empty Phone overrides metadata for every delivery.
type PhoneExtractor struct {
	Field string
	Phone string
}

// Extract implements commands.ParameterExtractor.
func (e PhoneExtractor) Extract(destinationID string, nesting device.NestingContext, _ []device.Assignment, _ *commands.Execution) (Params, error) {
	if e.Phone != "" {
		return Params{Phone: e.Phone}, nil
	}

	field := e.Field
	if field == "" {
		field = DefaultPhoneField
	}

	gateway := nesting.Gateway()
	phone, _ := gateway.MetadataValue(field)
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Params{}, &commands.ParameterResolutionError{
			Destination: destinationID,
			Device:      gateway.Token,
			Field:       field,
		}
	}
	return Params{Phone: phone}, nil
}
