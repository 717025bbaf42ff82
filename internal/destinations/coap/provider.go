package coap

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// DefaultTimeout bounds one request when the context has no deadline.
const DefaultTimeout = 5 * time.Second

// Conn is one CoAP client connection.
type Conn interface {
	// Do issues a request and returns the response code.
	Do(ctx context.Context, method, path string, payload []byte) (codes.Code, error)
	Close() error
}

// Dialer opens a connection to addr ("host:port").
type Dialer func(ctx context.Context, addr string) (Conn, error)

// Provider sends payloads as CoAP requests.
type Provider struct {
	dial    Dialer
	timeout time.Duration
	logger  commands.Logger
}

// NewProvider creates a provider. A nil dialer uses UDP.
func NewProvider(dial Dialer, timeout time.Duration) *Provider {
	if dial == nil {
		dial = DialUDP
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Provider{dial: dial, timeout: timeout, logger: noopLogger{}}
}

// SetLogger sets the logger for the provider.
func (p *Provider) SetLogger(logger commands.Logger) {
	p.logger = logger
}

// Deliver implements commands.DeliveryProvider.
func (p *Provider) Deliver(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, exec *commands.Execution, encoded []byte, params Params) error {
	p.logger.Debug("sending coap command",
		"device", nesting.Target().Token,
		"command", exec.Command.Token,
		"host", params.Hostname,
		"method", params.Method,
		"path", params.URL,
	)
	return p.send(ctx, encoded, params)
}

// DeliverSystemCommand implements commands.DeliveryProvider.
func (p *Provider) DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, encoded []byte, params Params) error {
	p.logger.Debug("sending coap system command",
		"device", nesting.Target().Token,
		"host", params.Hostname,
	)
	return p.send(ctx, encoded, params)
}

func (p *Provider) send(ctx context.Context, payload []byte, params Params) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(params.Hostname, strconv.Itoa(params.Port))
	conn, err := p.dial(ctx, addr)
	if err != nil {
		return commands.NewTransportError("coap", fmt.Errorf("dialing %s: %w", addr, err))
	}
	defer conn.Close() //nolint:errcheck // UDP close does not fail meaningfully

	code, err := conn.Do(ctx, params.Method, params.URL, payload)
	if err != nil {
		return commands.NewTransportError("coap", fmt.Errorf("%s %s: %w", params.Method, params.URL, err))
	}
	if !success(code) {
		return commands.NewTransportError("coap", fmt.Errorf("%s %s: response %v", params.Method, params.URL, code))
	}
	return nil
}

// success reports a 2.xx response class.
func success(code codes.Code) bool {
	return int(code)>>5 == 2
}

// DialUDP connects with go-coap's UDP client.
func DialUDP(_ context.Context, addr string) (Conn, error) {
	cc, err := udp.Dial(addr)
	if err != nil {
		return nil, err
	}
	return udpConn{cc: cc}, nil
}

type udpConn struct {
	cc *client.Conn
}

func (u udpConn) Do(ctx context.Context, method, path string, payload []byte) (codes.Code, error) {
	var (
		resp interface{ Code() codes.Code }
		err  error
	)
	switch method {
	case MethodGet:
		resp, err = u.cc.Get(ctx, path)
	case MethodPut:
		resp, err = u.cc.Put(ctx, path, message.AppOctets, bytes.NewReader(payload))
	case MethodDelete:
		resp, err = u.cc.Delete(ctx, path)
	default:
		resp, err = u.cc.Post(ctx, path, message.AppOctets, bytes.NewReader(payload))
	}
	if err != nil {
		return 0, err
	}
	return resp.Code(), nil
}

func (u udpConn) Close() error {
	return u.cc.Close()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
