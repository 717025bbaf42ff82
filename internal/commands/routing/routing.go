package routing

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
)

// ErrNoRoute is returned when no mapping and no default apply.
var ErrNoRoute = errors.New("routing: no route for device")

// Static routes every request to one destination.
type Static struct {
	DestinationID string
}

// Route implements commands.Router.
func (s Static) Route(commands.RouteRequest) (string, error) {
	return s.DestinationID, nil
}

// DeviceTypeMapping routes by device type id.
type DeviceTypeMapping struct {
	Mappings map[string]string
	Default  string
}

// Route implements commands.Router.
func (m DeviceTypeMapping) Route(req commands.RouteRequest) (string, error) {
	if id, ok := m.Mappings[req.Device.DeviceTypeID]; ok && id != "" {
		return id, nil
	}
	if m.Default != "" {
		return m.Default, nil
	}
	return "", fmt.Errorf("%w: %q (type %q)", ErrNoRoute, req.Device.Token, req.Device.DeviceTypeID)
}

// Env is the set of names a routing expression can reference. Command is
// the command token, or "system:<type>" for system commands.
type Env struct {
	Event      commands.Invocation
	IsSystem   bool
	System     commands.SystemCommand
	Command    string
	Device     device.Device
	Assignment device.Assignment
}

// Expression routes with an expr-lang program that yields a destination id.
//
//	Device.DeviceTypeID == "thermostat" ? "mqtt-1" : "sms-1"
type Expression struct {
	program *vm.Program
	logger  commands.Logger
}

// NewExpression compiles source against Env. now() is unavailable so the
// same request always routes the same way.
func NewExpression(source string) (*Expression, error) {
	program, err := expr.Compile(source,
		expr.Env(Env{}),
		expr.AsKind(reflect.String),
		expr.DisableBuiltin("now"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling router expression: %w", commands.ErrConfiguration, err)
	}
	return &Expression{program: program, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the router.
func (e *Expression) SetLogger(logger commands.Logger) {
	e.logger = logger
}

// Route implements commands.Router.
func (e *Expression) Route(req commands.RouteRequest) (string, error) {
	env := Env{
		Device:     req.Device,
		Assignment: req.Assignment,
	}
	switch {
	case req.Invocation != nil:
		env.Event = *req.Invocation
		env.Command = req.Invocation.CommandToken
	case req.SystemCommand != nil:
		env.IsSystem = true
		env.System = *req.SystemCommand
		env.Command = "system:" + string(req.SystemCommand.Type)
	}

	out, err := expr.Run(e.program, env)
	if err != nil {
		return "", fmt.Errorf("routing: evaluating expression for %q: %w", req.Device.Token, err)
	}
	id, _ := out.(string)
	if id == "" {
		return "", fmt.Errorf("%w: expression returned no destination for %q", ErrNoRoute, req.Device.Token)
	}

	e.logger.Debug("routed command", "device", req.Device.Token, "command", env.Command, "destination", id)
	return id, nil
}

// New builds the router described by cfg.
func New(cfg config.RouterConfig) (commands.Router, error) {
	switch cfg.Type {
	case "", config.RouterStatic:
		if cfg.Destination == "" {
			return nil, fmt.Errorf("%w: static router needs a destination", commands.ErrConfiguration)
		}
		return Static{DestinationID: cfg.Destination}, nil
	case config.RouterDeviceType:
		return DeviceTypeMapping{Mappings: cfg.Mappings, Default: cfg.Default}, nil
	case config.RouterExpression:
		return NewExpression(cfg.Expression)
	default:
		return nil, fmt.Errorf("%w: unknown router type %q", commands.ErrConfiguration, cfg.Type)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
