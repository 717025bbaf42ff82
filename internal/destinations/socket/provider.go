package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// DefaultTimeout bounds the dial and the write.
const DefaultTimeout = 5 * time.Second

// Dialer opens a connection. (*net.Dialer).DialContext satisfies it.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Provider writes each payload over a new TCP connection.
type Provider struct {
	dial    Dialer
	timeout time.Duration
	logger  commands.Logger
}

// NewProvider creates a provider. A nil dialer uses net.Dialer.
func NewProvider(dial Dialer, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dial == nil {
		dial = (&net.Dialer{Timeout: timeout}).DialContext
	}
	return &Provider{dial: dial, timeout: timeout, logger: noopLogger{}}
}

// SetLogger sets the logger for the provider.
func (p *Provider) SetLogger(logger commands.Logger) {
	p.logger = logger
}

// Deliver implements commands.DeliveryProvider.
func (p *Provider) Deliver(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, exec *commands.Execution, encoded []byte, params Params) error {
	p.logger.Debug("sending socket command",
		"device", nesting.Target().Token,
		"command", exec.Command.Token,
		"host", params.Hostname,
		"port", params.Port,
	)
	return p.send(ctx, encoded, params)
}

// DeliverSystemCommand implements commands.DeliveryProvider.
func (p *Provider) DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, encoded []byte, params Params) error {
	p.logger.Debug("sending socket system command",
		"device", nesting.Target().Token,
		"host", params.Hostname,
	)
	return p.send(ctx, encoded, params)
}

func (p *Provider) send(ctx context.Context, payload []byte, params Params) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(params.Hostname, strconv.Itoa(params.Port))
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return commands.NewTransportError("socket", fmt.Errorf("dialing %s: %w", addr, err))
	}
	defer conn.Close() //nolint:errcheck // write errors are reported instead

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return commands.NewTransportError("socket", fmt.Errorf("setting deadline: %w", err))
	}
	if _, err := conn.Write(payload); err != nil {
		return commands.NewTransportError("socket", fmt.Errorf("writing to %s: %w", addr, err))
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
