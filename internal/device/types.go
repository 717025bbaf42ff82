package device

import (
	"maps"
	"time"
)

// Device is a physical or logical device that can receive commands.
type Device struct {
	ID           string            `json:"id" yaml:"id"`
	Token        string            `json:"token" yaml:"token"`
	DeviceTypeID string            `json:"deviceTypeId" yaml:"device_type"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata"`

	// ParentToken links a leaf device to the gateway that relays for it.
	// Empty means the device is reachable directly.
	ParentToken string `json:"parentToken,omitempty" yaml:"parent"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// MetadataValue returns a metadata field and whether it was present and
// non-empty.
func (d *Device) MetadataValue(field string) (string, bool) {
	v, ok := d.Metadata[field]
	return v, ok && v != ""
}

// DeepCopy returns a copy that shares no mutable state with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Metadata != nil {
		cpy.Metadata = maps.Clone(d.Metadata)
	}
	return &cpy
}

// Assignment binds a device to an asset or customer. Only active
// assignments receive commands.
type Assignment struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	DeviceID  string    `json:"deviceId"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParameterType is the declared type of a command parameter.
type ParameterType string

// Supported parameter types.
const (
	ParamString ParameterType = "string"
	ParamDouble ParameterType = "double"
	ParamFloat  ParameterType = "float"
	ParamBool   ParameterType = "bool"
	ParamInt32  ParameterType = "int32"
	ParamInt64  ParameterType = "int64"
	ParamUint32 ParameterType = "uint32"
	ParamUint64 ParameterType = "uint64"
	ParamBytes  ParameterType = "bytes"
)

// ParameterSpec declares one parameter of a command.
type ParameterSpec struct {
	Name     string        `json:"name" yaml:"name"`
	Type     ParameterType `json:"type" yaml:"type"`
	Required bool          `json:"required,omitempty" yaml:"required"`
}

// Command is a command definition for a device type.
type Command struct {
	Token        string          `json:"token" yaml:"token"`
	DeviceTypeID string          `json:"deviceTypeId" yaml:"device_type"`
	Name         string          `json:"name" yaml:"name"`
	Namespace    string          `json:"namespace,omitempty" yaml:"namespace"`
	Parameters   []ParameterSpec `json:"parameters,omitempty" yaml:"parameters"`
}

// DeepCopy returns a copy that shares no mutable state with c.
func (c *Command) DeepCopy() *Command {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.Parameters != nil {
		cpy.Parameters = make([]ParameterSpec, len(c.Parameters))
		copy(cpy.Parameters, c.Parameters)
	}
	return &cpy
}
