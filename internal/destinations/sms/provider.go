package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// Provider defaults.
const (
	DefaultBaseURL = "https://api.twilio.com"
	DefaultTimeout = 10 * time.Second
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Config contains gateway credentials.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Provider sends messages through the gateway's Messages resource.
type Provider struct {
	cfg    Config
	client *http.Client
	logger commands.Logger
}

// NewProvider creates a provider. Credentials are checked by Start.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Provider{cfg: cfg, client: client, logger: noopLogger{}}
}

// SetLogger sets the logger for the provider.
func (p *Provider) SetLogger(logger commands.Logger) {
	p.logger = logger
}

// Start checks that credentials are configured.
func (p *Provider) Start(context.Context) error {
	var missing []string
	if p.cfg.AccountSID == "" {
		missing = append(missing, "account_sid")
	}
	if p.cfg.AuthToken == "" {
		missing = append(missing, "auth_token")
	}
	if p.cfg.FromNumber == "" {
		missing = append(missing, "from_number")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: sms: missing %s", commands.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Stop releases idle gateway connections.
func (p *Provider) Stop(context.Context) error {
	p.client.CloseIdleConnections()
	return nil
}

// Deliver implements commands.DeliveryProvider.
func (p *Provider) Deliver(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, exec *commands.Execution, encoded string, params Params) error {
	p.logger.Debug("sending sms command",
		"device", nesting.Target().Token,
		"command", exec.Command.Token,
		"to", params.Phone,
	)
	return p.send(ctx, params.Phone, encoded)
}

// DeliverSystemCommand implements commands.DeliveryProvider.
func (p *Provider) DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, _ []device.Assignment, encoded string, params Params) error {
	p.logger.Debug("sending sms system command",
		"device", nesting.Target().Token,
		"to", params.Phone,
	)
	return p.send(ctx, params.Phone, encoded)
}

func (p *Provider) messagesURL() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.cfg.BaseURL, url.PathEscape(p.cfg.AccountSID))
}

func (p *Provider) send(ctx context.Context, to, body string) error {
	form := url.Values{
		"To":   {to},
		"From": {p.cfg.FromNumber},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return commands.NewTransportError("sms", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return commands.NewTransportError("sms", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return commands.NewTransportError("sms",
			fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
