package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
	mqttclient "github.com/nerrad567/gray-logic-commands/internal/infrastructure/mqtt"
)

// publisher is the part of *mqttclient.Client the provider uses.
type publisher interface {
	PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Close() error
}

type connectFunc func(cfg config.MQTTConfig, logger commands.Logger) (publisher, error)

// Provider publishes payloads over its own broker connection.
type Provider struct {
	cfg     config.MQTTConfig
	connect connectFunc
	logger  commands.Logger

	mu     sync.RWMutex
	client publisher
}

// NewProvider creates a provider for the broker in cfg.
func NewProvider(cfg config.MQTTConfig) *Provider {
	return &Provider{cfg: cfg, connect: connectClient, logger: noopLogger{}}
}

// SetLogger sets the logger for the provider and its connection.
func (p *Provider) SetLogger(logger commands.Logger) {
	p.logger = logger
}

func connectClient(cfg config.MQTTConfig, logger commands.Logger) (publisher, error) {
	client, err := mqttclient.Connect(cfg)
	if err != nil {
		return nil, err
	}
	client.SetLogger(logger)
	return client, nil
}

// Start connects to the broker.
func (p *Provider) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}
	client, err := p.connect(p.cfg, p.logger)
	if err != nil {
		return fmt.Errorf("mqtt destination: connecting to %s:%d: %w", p.cfg.Broker.Host, p.cfg.Broker.Port, err)
	}
	p.client = client
	p.logger.Info("mqtt destination connected",
		"broker", fmt.Sprintf("%s:%d", p.cfg.Broker.Host, p.cfg.Broker.Port),
		"client_id", p.cfg.Broker.ClientID,
	)
	return nil
}

// Stop disconnects from the broker.
func (p *Provider) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// Deliver implements commands.DeliveryProvider.
func (p *Provider) Deliver(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, exec *commands.Execution, encoded []byte, params Params) error {
	p.logger.Debug("publishing mqtt command",
		"device", nesting.Target().Token,
		"command", exec.Command.Token,
		"topic", params.CommandTopic,
	)
	return p.publish(ctx, params.CommandTopic, encoded, params)
}

// DeliverSystemCommand implements commands.DeliveryProvider.
func (p *Provider) DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, encoded []byte, params Params) error {
	p.logger.Debug("publishing mqtt system command",
		"device", nesting.Target().Token,
		"topic", params.SystemTopic,
	)
	return p.publish(ctx, params.SystemTopic, encoded, params)
}

// publish waits for the broker acknowledgement until ctx ends.
func (p *Provider) publish(ctx context.Context, topic string, payload []byte, params Params) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		return commands.NewTransportError("mqtt", mqttclient.ErrNotConnected)
	}
	if err := client.PublishContext(ctx, topic, payload, params.QoS, params.Retained); err != nil {
		return publishError(err)
	}
	return nil
}

// publishError keeps retryable broker failures as transport errors. A
// rejected topic or QoS is a configuration problem and an oversized
// payload is a data problem; resending either would fail the same way.
func publishError(err error) error {
	switch {
	case mqttclient.IsTemporary(err):
		return commands.NewTransportError("mqtt", err)
	case errors.Is(err, mqttclient.ErrPayloadTooLarge):
		return fmt.Errorf("%w: mqtt destination: %w", commands.ErrData, err)
	case errors.Is(err, mqttclient.ErrInvalidTopic), errors.Is(err, mqttclient.ErrInvalidQoS):
		return fmt.Errorf("%w: mqtt destination: %w", commands.ErrConfiguration, err)
	default:
		return commands.NewTransportError("mqtt", err)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
