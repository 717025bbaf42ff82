package coap

import (
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// DefaultPort is the standard CoAP port.
const DefaultPort = 5683

// Default metadata field names.
const (
	DefaultHostnameField = "hostname"
	DefaultPortField     = "port"
	DefaultURLField      = "url"
	DefaultMethodField   = "method"
)

// Supported request methods.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
)

// Params address one CoAP request.
type Params struct {
	Hostname string
	Port     int
	URL      string
	Method   string
}

// MetadataExtractor reads the request address from the gateway's metadata.
// Non-zero override fields win over metadata.
type MetadataExtractor struct {
	HostnameField string
	PortField     string
	URLField      string
	MethodField   string

	Hostname string
	Port     int
	URL      string
	Method   string
}

// Extract implements commands.ParameterExtractor.
func (e MetadataExtractor) Extract(destinationID string, nesting device.NestingContext, _ []device.Assignment, _ *commands.Execution) (Params, error) {
	gateway := nesting.Gateway()
	fail := func(field, reason string) (Params, error) {
		return Params{}, &commands.ParameterResolutionError{
			Destination: destinationID,
			Device:      gateway.Token,
			Field:       field,
			Reason:      reason,
		}
	}

	hostField := fieldOr(e.HostnameField, DefaultHostnameField)
	host := pick(e.Hostname, &gateway, hostField)
	if host == "" {
		return fail(hostField, "")
	}

	port := e.Port
	portField := fieldOr(e.PortField, DefaultPortField)
	if port == 0 {
		raw := pick("", &gateway, portField)
		if raw == "" {
			port = DefaultPort
		} else {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fail(portField, "not a number")
			}
			port = n
		}
	}
	if port < 1 || port > 65535 {
		return fail(portField, "out of range")
	}

	path := pick(e.URL, &gateway, fieldOr(e.URLField, DefaultURLField))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	methodField := fieldOr(e.MethodField, DefaultMethodField)
	method := strings.ToUpper(pick(e.Method, &gateway, methodField))
	switch method {
	case "":
		method = MethodPost
	case MethodGet, MethodPost, MethodPut, MethodDelete:
	default:
		return fail(methodField, "unsupported method "+method)
	}

	return Params{Hostname: host, Port: port, URL: path, Method: method}, nil
}

func fieldOr(field, def string) string {
	if field == "" {
		return def
	}
	return field
}

// pick returns override when set, else the trimmed metadata value.
func pick(override string, d *device.Device, field string) string {
	if override != "" {
		return override
	}
	v, _ := d.MetadataValue(field)
	return strings.TrimSpace(v)
}
