package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxNestingDepth bounds the number of devices in a gateway chain.
const MaxNestingDepth = 16

// Lookup resolves devices by token. *Registry satisfies it.
type Lookup interface {
	GetDeviceByToken(ctx context.Context, token string) (*Device, error)
}

// NestingContext describes how a target device is reached: the gateway that
// owns physical connectivity and the chain from that gateway down to the
// target. It is a value; the devices inside are copies.
type NestingContext struct {
	path []Device
}

// NewNestingContext builds a context from a chain ordered gateway first.
// It panics on an empty chain.
func NewNestingContext(chain ...Device) NestingContext {
	if len(chain) == 0 {
		panic("device: empty nesting chain")
	}
	path := make([]Device, len(chain))
	for i := range chain {
		path[i] = *chain[i].DeepCopy()
	}
	return NestingContext{path: path}
}

// Gateway returns the device that owns connectivity. For a device without
// a parent this is the device itself.
func (n NestingContext) Gateway() Device {
	if len(n.path) == 0 {
		return Device{}
	}
	return *n.path[0].DeepCopy()
}

// Target returns the device the command is addressed to.
func (n NestingContext) Target() Device {
	if len(n.path) == 0 {
		return Device{}
	}
	return *n.path[len(n.path)-1].DeepCopy()
}

// Path returns the chain from gateway to target.
func (n NestingContext) Path() []Device {
	out := make([]Device, len(n.path))
	for i := range n.path {
		out[i] = *n.path[i].DeepCopy()
	}
	return out
}

// Nested reports whether the target sits behind a gateway.
func (n NestingContext) Nested() bool {
	return len(n.path) > 1
}

// Depth returns the number of devices in the chain.
func (n NestingContext) Depth() int {
	return len(n.path)
}

// PathString joins the chain's tokens with "/", gateway first.
func (n NestingContext) PathString() string {
	tokens := make([]string, len(n.path))
	for i := range n.path {
		tokens[i] = n.path[i].Token
	}
	return strings.Join(tokens, "/")
}

// BuildNesting walks ParentToken links from target up to the root gateway.
// A device with no parent is its own nesting root.
//
// Returns ErrGatewayNotFound when a parent is missing, ErrNestingCycle when
// a token repeats and ErrNestingTooDeep past MaxNestingDepth.
func BuildNesting(ctx context.Context, lookup Lookup, target *Device) (NestingContext, error) {
	if target == nil {
		return NestingContext{}, fmt.Errorf("%w: nil target", ErrInvalidDevice)
	}

	chain := []Device{*target.DeepCopy()}
	seen := map[string]bool{target.Token: true}

	current := target
	for current.ParentToken != "" {
		if len(chain) >= MaxNestingDepth {
			return NestingContext{}, fmt.Errorf("%w: %q exceeds %d levels", ErrNestingTooDeep, target.Token, MaxNestingDepth)
		}
		if seen[current.ParentToken] {
			return NestingContext{}, fmt.Errorf("%w: %q revisits %q", ErrNestingCycle, target.Token, current.ParentToken)
		}

		parent, err := lookup.GetDeviceByToken(ctx, current.ParentToken)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				return NestingContext{}, fmt.Errorf("%w: %q (parent of %q)", ErrGatewayNotFound, current.ParentToken, current.Token)
			}
			return NestingContext{}, fmt.Errorf("resolving parent %q: %w", current.ParentToken, err)
		}

		seen[parent.Token] = true
		chain = append(chain, *parent.DeepCopy())
		current = parent
	}

	// chain is target first; flip to gateway first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return NestingContext{path: chain}, nil
}
