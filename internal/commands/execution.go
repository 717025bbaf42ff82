package commands

import (
	"encoding/base64"
	"fmt"
	"maps"
	"strconv"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// Execution is an invocation bound to its command definition, with
// parameter values converted to their declared types.
type Execution struct {
	Invocation Invocation
	Command    device.Command

	// Parameters holds the typed value of every declared parameter that
	// was supplied: string, float64, float32, bool, int32, int64, uint32,
	// uint64 or []byte.
	Parameters map[string]any
}

// BuildExecution converts the invocation's parameter values according to
// cmd. Values for undeclared parameters are ignored. A missing required
// parameter or an unconvertible value is an ErrData.
func BuildExecution(cmd device.Command, inv Invocation) (*Execution, error) {
	params := make(map[string]any, len(cmd.Parameters))

	for _, spec := range cmd.Parameters {
		raw, ok := inv.ParameterValues[spec.Name]
		if !ok {
			if spec.Required {
				return nil, fmt.Errorf("%w: command %q: required parameter %q missing", ErrData, cmd.Token, spec.Name)
			}
			continue
		}

		v, err := convertParameter(spec.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: command %q: parameter %q: %w", ErrData, cmd.Token, spec.Name, err)
		}
		params[spec.Name] = v
	}

	inv.ParameterValues = maps.Clone(inv.ParameterValues)
	return &Execution{
		Invocation: inv,
		Command:    *cmd.DeepCopy(),
		Parameters: params,
	}, nil
}

func convertParameter(t device.ParameterType, raw string) (any, error) {
	switch t {
	case "", device.ParamString:
		return raw, nil
	case device.ParamDouble:
		return strconv.ParseFloat(raw, 64)
	case device.ParamFloat:
		f, err := strconv.ParseFloat(raw, 32)
		return float32(f), err
	case device.ParamBool:
		return strconv.ParseBool(raw)
	case device.ParamInt32:
		n, err := strconv.ParseInt(raw, 10, 32)
		return int32(n), err
	case device.ParamInt64:
		return strconv.ParseInt(raw, 10, 64)
	case device.ParamUint32:
		n, err := strconv.ParseUint(raw, 10, 32)
		return uint32(n), err
	case device.ParamUint64:
		return strconv.ParseUint(raw, 10, 64)
	case device.ParamBytes:
		return base64.StdEncoding.DecodeString(raw)
	default:
		return nil, fmt.Errorf("unsupported type %q", t)
	}
}
