package encoding

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// ExpressionEnv is the set of names an encoder expression can reference.
// For system commands IsSystem is true and System is set; Command,
// Invocation and Parameters are empty.
type ExpressionEnv struct {
	Command    device.Command
	Invocation commands.Invocation
	Parameters map[string]any
	Device     device.Device
	Gateway    device.Device
	Assignment device.Assignment
	Nested     bool
	IsSystem   bool
	System     commands.SystemCommand
}

// Expression encodes with a user-supplied expr-lang program that evaluates
// to a string. An empty result skips delivery.
//
// Example:
//
//	Command.Name + ":" + string(Parameters["level"] ?? "")
type Expression struct {
	program *vm.Program
}

// NewExpression compiles source. Compilation errors are configuration
// errors.
func NewExpression(source string) (*Expression, error) {
	program, err := expr.Compile(source,
		expr.Env(ExpressionEnv{}),
		expr.AsKind(reflect.String),
		expr.DisableBuiltin("now"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling encoder expression: %w", commands.ErrConfiguration, err)
	}
	return &Expression{program: program}, nil
}

// Encode implements commands.Encoder.
func (e *Expression) Encode(exec *commands.Execution, nesting device.NestingContext, assignment *device.Assignment) (string, error) {
	env := baseEnv(nesting, assignment)
	env.Command = exec.Command
	env.Invocation = exec.Invocation
	env.Parameters = exec.Parameters
	return e.run(env)
}

// EncodeSystemCommand implements commands.Encoder.
func (e *Expression) EncodeSystemCommand(cmd commands.SystemCommand, nesting device.NestingContext, assignment *device.Assignment) (string, error) {
	env := baseEnv(nesting, assignment)
	env.IsSystem = true
	env.System = cmd
	return e.run(env)
}

func (e *Expression) run(env ExpressionEnv) (string, error) {
	if env.Parameters == nil {
		env.Parameters = map[string]any{}
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return "", fmt.Errorf("encoding: evaluating expression: %w", err)
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("encoding: expression returned %T, want string", out)
	}
	if s == "" {
		return "", commands.ErrSkipDelivery
	}
	return s, nil
}

func baseEnv(nesting device.NestingContext, assignment *device.Assignment) ExpressionEnv {
	env := ExpressionEnv{
		Device:  nesting.Target(),
		Gateway: nesting.Gateway(),
		Nested:  nesting.Nested(),
	}
	if assignment != nil {
		env.Assignment = *assignment
	}
	return env
}
