package socket

import (
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// Default metadata field names.
const (
	DefaultHostnameField = "hostname"
	DefaultPortField     = "port"
)

// Params address one TCP delivery.
type Params struct {
	Hostname string
	Port     int
}

// HostPortExtractor reads host and port from the gateway's metadata. Both
// are required unless overridden.
type HostPortExtractor struct {
	HostnameField string
	PortField     string

	Hostname string
	Port     int
}

// Extract implements commands.ParameterExtractor.
func (e HostPortExtractor) Extract(destinationID string, nesting device.NestingContext, _ []device.Assignment, _ *commands.Execution) (Params, error) {
	gateway := nesting.Gateway()
	fail := func(field, reason string) (Params, error) {
		return Params{}, &commands.ParameterResolutionError{
			Destination: destinationID,
			Device:      gateway.Token,
			Field:       field,
			Reason:      reason,
		}
	}

	hostField := e.HostnameField
	if hostField == "" {
		hostField = DefaultHostnameField
	}
	host := e.Hostname
	if host == "" {
		v, _ := gateway.MetadataValue(hostField)
		host = strings.TrimSpace(v)
	}
	if host == "" {
		return fail(hostField, "")
	}

	portField := e.PortField
	if portField == "" {
		portField = DefaultPortField
	}
	port := e.Port
	if port == 0 {
		v, _ := gateway.MetadataValue(portField)
		v = strings.TrimSpace(v)
		if v == "" {
			return fail(portField, "")
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fail(portField, "not a number")
		}
		port = n
	}
	if port < 1 || port > 65535 {
		return fail(portField, "out of range")
	}

	return Params{Hostname: host, Port: port}, nil
}
