package destinations

import (
	"fmt"
	"log/slog"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/commands/encoding"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/coap"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/mqtt"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/sms"
	"github.com/nerrad567/gray-logic-commands/internal/destinations/socket"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/logging"
)

// loggerSetter is implemented by stages and destinations that log.
type loggerSetter interface {
	SetLogger(commands.Logger)
}

// Build creates one destination per entry in cfg.Commands.Destinations.
// Destinations are not started.
func Build(cfg *config.Config, logger commands.Logger) ([]commands.CommandDestination, error) {
	out := make([]commands.CommandDestination, 0, len(cfg.Commands.Destinations))
	for _, dc := range cfg.Commands.Destinations {
		d, err := build(cfg, dc, destinationLogger(logger, dc.ID))
		if err != nil {
			return nil, fmt.Errorf("destination %q: %w", dc.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func build(cfg *config.Config, dc config.DestinationConfig, logger commands.Logger) (commands.CommandDestination, error) {
	switch dc.Type {
	case config.DestinationSMS:
		enc, err := textEncoder(dc.Encoder)
		if err != nil {
			return nil, err
		}
		ext := sms.PhoneExtractor{Field: dc.Extractor.PhoneField, Phone: dc.Extractor.Phone}
		prov := sms.NewProvider(sms.Config{
			AccountSID: dc.SMS.AccountSID,
			AuthToken:  dc.SMS.AuthToken,
			FromNumber: dc.SMS.FromNumber,
			BaseURL:    dc.SMS.BaseURL,
			Timeout:    dc.SMS.Timeout,
		})
		return assemble[string, sms.Params](dc.ID, enc, ext, prov, logger), nil

	case config.DestinationCoAP:
		enc, err := binaryEncoder(dc.Encoder)
		if err != nil {
			return nil, err
		}
		ext := coap.MetadataExtractor{
			HostnameField: dc.Extractor.HostnameField,
			PortField:     dc.Extractor.PortField,
			URLField:      dc.Extractor.URLField,
			MethodField:   dc.Extractor.MethodField,
			Hostname:      dc.Extractor.Hostname,
			Port:          dc.Extractor.Port,
			URL:           dc.Extractor.URL,
			Method:        dc.Extractor.Method,
		}
		prov := coap.NewProvider(nil, dc.CoAP.Timeout)
		return assemble[[]byte, coap.Params](dc.ID, enc, ext, prov, logger), nil

	case config.DestinationMQTT:
		enc, err := binaryEncoder(dc.Encoder)
		if err != nil {
			return nil, err
		}
		conn := destinationConnection(cfg, dc)
		ext := mqtt.TopicExtractor{
			CommandTopic: dc.MQTT.CommandTopic,
			SystemTopic:  dc.MQTT.SystemTopic,
			Tenant:       cfg.Tenant.ID,
			QoS:          conn.QoS,
			Retained:     dc.MQTT.Retained,
		}
		prov := mqtt.NewProvider(conn)
		return assemble[[]byte, mqtt.Params](dc.ID, enc, ext, prov, logger), nil

	case config.DestinationSocket:
		enc, err := binaryEncoder(dc.Encoder)
		if err != nil {
			return nil, err
		}
		ext := socket.HostPortExtractor{
			HostnameField: dc.Extractor.HostnameField,
			PortField:     dc.Extractor.PortField,
			Hostname:      dc.Extractor.Hostname,
			Port:          dc.Extractor.Port,
		}
		prov := socket.NewProvider(nil, dc.Socket.Timeout)
		return assemble[[]byte, socket.Params](dc.ID, enc, ext, prov, logger), nil

	default:
		return nil, fmt.Errorf("%w: unknown destination type %q", commands.ErrConfiguration, dc.Type)
	}
}

// assemble builds the destination and hands the logger to every stage
// that takes one.
func assemble[T, P any](id string, enc commands.Encoder[T], ext commands.ParameterExtractor[P], prov commands.DeliveryProvider[T, P], logger commands.Logger) *commands.Destination[T, P] {
	d := commands.NewDestination(id, enc, ext, prov)
	for _, stage := range []any{d, enc, ext, prov} {
		if s, ok := stage.(loggerSetter); ok {
			s.SetLogger(logger)
		}
	}
	return d
}

func textEncoder(ec config.EncoderConfig) (commands.Encoder[string], error) {
	switch ec.Type {
	case "", config.EncoderJSON:
		return encoding.JSON{}, nil
	case config.EncoderExpression:
		return encoding.NewExpression(ec.Expression)
	case config.EncoderProtobuf:
		return nil, fmt.Errorf("%w: protobuf encoder needs a binary transport", commands.ErrConfiguration)
	default:
		return nil, fmt.Errorf("%w: unknown encoder type %q", commands.ErrConfiguration, ec.Type)
	}
}

func binaryEncoder(ec config.EncoderConfig) (commands.Encoder[[]byte], error) {
	switch ec.Type {
	case config.EncoderProtobuf:
		return encoding.NewProtobuf(), nil
	case "", config.EncoderJSON, config.EncoderExpression:
		text, err := textEncoder(ec)
		if err != nil {
			return nil, err
		}
		return encoding.Bytes(text), nil
	default:
		return nil, fmt.Errorf("%w: unknown encoder type %q", commands.ErrConfiguration, ec.Type)
	}
}

// destinationConnection returns the broker settings for an MQTT destination.
// Without its own broker host it shares the bus broker under a distinct
// client id.
func destinationConnection(cfg *config.Config, dc config.DestinationConfig) config.MQTTConfig {
	conn := dc.MQTT.Connection
	if conn.Broker.Host == "" {
		conn = cfg.MQTT
		conn.Broker.ClientID = ""
	}
	if conn.Broker.Port == 0 {
		conn.Broker.Port = 1883
	}
	if conn.Broker.ClientID == "" {
		conn.Broker.ClientID = cfg.MQTT.Broker.ClientID + "-" + dc.ID
	}
	return conn
}

func destinationLogger(logger commands.Logger, id string) commands.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	switch l := logger.(type) {
	case *logging.Logger:
		return l.With("destination", id)
	case *slog.Logger:
		return l.With("destination", id)
	default:
		return logger
	}
}
