package commands

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// Invocation is a request to run a command on a device.
type Invocation struct {
	ID              string            `json:"id"`
	DeviceToken     string            `json:"deviceToken"`
	CommandToken    string            `json:"commandToken"`
	ParameterValues map[string]string `json:"parameterValues,omitempty"`
	InitiatorKind   string            `json:"initiator,omitempty"`
	InitiatorID     string            `json:"initiatorId,omitempty"`
	TargetKind      string            `json:"target,omitempty"`
	TargetID        string            `json:"targetId,omitempty"`
}

// EventContext describes where an invocation event came from.
type EventContext struct {
	TenantID    string    `json:"tenantId"`
	DeviceID    string    `json:"deviceId,omitempty"`
	DeviceToken string    `json:"deviceToken,omitempty"`
	EventID     string    `json:"eventId,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt,omitempty"`
}

// EnrichedInvocation is the envelope carried on the inbound bus.
type EnrichedInvocation struct {
	Context    EventContext `json:"context"`
	Invocation Invocation   `json:"invocation"`
}

// Resolver looks up devices, assignments and command definitions.
// *device.Registry satisfies it.
type Resolver interface {
	device.Lookup
	GetActiveAssignments(ctx context.Context, deviceID string) ([]device.Assignment, error)
	GetCommandByToken(ctx context.Context, token string) (*device.Command, error)
}

// RouteRequest is the typed input to a Router. Exactly one of Invocation
// and SystemCommand is set.
type RouteRequest struct {
	Invocation    *Invocation
	SystemCommand *SystemCommand
	Device        device.Device
	Assignment    device.Assignment
}

// Router selects the destination id for a request.
type Router interface {
	Route(req RouteRequest) (string, error)
}

// Logger is the logging interface used by the package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives pipeline counters. *metrics.Metrics satisfies it.
type Metrics interface {
	InvocationReceived(result string)
	DeliveryCompleted(destination, status, errorKind string, latency time.Duration)
	Undelivered(errorKind string)
	QueueDepth(depth int)
	WorkerPanic()
}

type noopMetrics struct{}

func (noopMetrics) InvocationReceived(string)                                {}
func (noopMetrics) DeliveryCompleted(string, string, string, time.Duration) {}
func (noopMetrics) Undelivered(string)                                       {}
func (noopMetrics) QueueDepth(int)                                           {}
func (noopMetrics) WorkerPanic()                                             {}
