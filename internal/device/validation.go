package device

import "fmt"

// Validate checks that a device can be stored and resolved.
func (d *Device) Validate() error {
	if d.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidDevice)
	}
	if d.DeviceTypeID == "" {
		return fmt.Errorf("%w: device %q has no device type", ErrInvalidDevice, d.Token)
	}
	if d.ParentToken == d.Token {
		return fmt.Errorf("%w: device %q is its own parent", ErrInvalidDevice, d.Token)
	}
	return nil
}

// Validate checks a command definition.
func (c *Command) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidCommand)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: command %q has no name", ErrInvalidCommand, c.Token)
	}

	seen := make(map[string]bool, len(c.Parameters))
	for _, p := range c.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: command %q has an unnamed parameter", ErrInvalidCommand, c.Token)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: command %q declares parameter %q twice", ErrInvalidCommand, c.Token, p.Name)
		}
		seen[p.Name] = true
		if !p.Type.Valid() {
			return fmt.Errorf("%w: parameter %q has unknown type %q", ErrInvalidCommand, p.Name, p.Type)
		}
	}
	return nil
}

// Valid reports whether t is a supported parameter type. An empty type is
// treated as string.
func (t ParameterType) Valid() bool {
	switch t {
	case "", ParamString, ParamDouble, ParamFloat, ParamBool,
		ParamInt32, ParamInt64, ParamUint32, ParamUint64, ParamBytes:
		return true
	}
	return false
}
