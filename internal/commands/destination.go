package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// Encoder turns an execution into a payload of type T. Implementations are
// pure: no I/O and the same output for the same input. Returning
// ErrSkipDelivery means there is nothing to send.
type Encoder[T any] interface {
	Encode(exec *Execution, nesting device.NestingContext, assignment *device.Assignment) (T, error)
	EncodeSystemCommand(cmd SystemCommand, nesting device.NestingContext, assignment *device.Assignment) (T, error)
}

// ParameterExtractor resolves delivery parameters of type P, normally from
// the gateway's metadata. It returns a fully populated P or an error, never
// a partial value. exec is nil for system commands.
type ParameterExtractor[P any] interface {
	Extract(destinationID string, nesting device.NestingContext, assignments []device.Assignment, exec *Execution) (P, error)
}

// DeliveryProvider sends an encoded payload using the extracted parameters.
type DeliveryProvider[T, P any] interface {
	Deliver(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, exec *Execution, encoded T, params P) error
	DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, encoded T, params P) error
}

// Lifecycle is implemented by stages that hold resources, such as a broker
// connection.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// CommandDestination is the type-erased view of a Destination. The manager
// keeps destinations of different payload types in one map behind it.
type CommandDestination interface {
	Lifecycle
	ID() string
	Deliver(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, exec *Execution) error
	DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, cmd SystemCommand) error
}

// Destination chains an encoder, an extractor and a provider.
// It holds no per-invocation state and is safe for concurrent use when its
// stages are.
type Destination[T, P any] struct {
	id        string
	encoder   Encoder[T]
	extractor ParameterExtractor[P]
	provider  DeliveryProvider[T, P]
	logger    Logger
}

// NewDestination creates a destination.
func NewDestination[T, P any](id string, encoder Encoder[T], extractor ParameterExtractor[P], provider DeliveryProvider[T, P]) *Destination[T, P] {
	return &Destination[T, P]{
		id:        id,
		encoder:   encoder,
		extractor: extractor,
		provider:  provider,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the destination.
func (d *Destination[T, P]) SetLogger(logger Logger) {
	d.logger = logger
}

// ID returns the destination id.
func (d *Destination[T, P]) ID() string {
	return d.id
}

// Deliver encodes exec, extracts delivery parameters and sends the payload.
func (d *Destination[T, P]) Deliver(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, exec *Execution) error {
	encoded, err := d.encoder.Encode(exec, nesting, firstAssignment(assignments))
	if errors.Is(err, ErrSkipDelivery) {
		d.logger.Info("skipping command delivery",
			"destination", d.id,
			"device", nesting.Target().Token,
			"command", exec.Command.Token,
		)
		return fmt.Errorf("destination %q: %w", d.id, ErrSkipDelivery)
	}
	if err != nil {
		return fmt.Errorf("destination %q: encoding command: %w", d.id, err)
	}

	params, err := d.extractor.Extract(d.id, nesting, assignments, exec)
	if err != nil {
		return fmt.Errorf("destination %q: extracting parameters: %w", d.id, err)
	}

	if err := d.provider.Deliver(ctx, nesting, assignments, exec, encoded, params); err != nil {
		return d.providerError(err)
	}
	return nil
}

// DeliverSystemCommand runs the same stages for a system command.
func (d *Destination[T, P]) DeliverSystemCommand(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, cmd SystemCommand) error {
	encoded, err := d.encoder.EncodeSystemCommand(cmd, nesting, firstAssignment(assignments))
	if errors.Is(err, ErrSkipDelivery) {
		d.logger.Info("skipping system command delivery",
			"destination", d.id,
			"device", nesting.Target().Token,
			"type", cmd.Type,
		)
		return fmt.Errorf("destination %q: %w", d.id, ErrSkipDelivery)
	}
	if err != nil {
		return fmt.Errorf("destination %q: encoding system command: %w", d.id, err)
	}

	params, err := d.extractor.Extract(d.id, nesting, assignments, nil)
	if err != nil {
		return fmt.Errorf("destination %q: extracting parameters: %w", d.id, err)
	}

	if err := d.provider.DeliverSystemCommand(ctx, nesting, assignments, encoded, params); err != nil {
		return d.providerError(err)
	}
	return nil
}

// providerError makes sure provider failures carry the destination id and
// ErrTransport, unless the provider already classified the failure as a
// data or configuration problem.
func (d *Destination[T, P]) providerError(err error) error {
	if errors.Is(err, ErrData) || errors.Is(err, ErrConfiguration) {
		return fmt.Errorf("destination %q: %w", d.id, err)
	}
	var te *TransportError
	if errors.As(err, &te) {
		if te.Destination == "" {
			te.Destination = d.id
		}
		return te
	}
	return &TransportError{Destination: d.id, Transport: "provider", Err: err}
}

// Start starts the encoder, extractor and provider, in that order, where
// they implement Lifecycle. A failure stops the stages already started.
func (d *Destination[T, P]) Start(ctx context.Context) error {
	stages := d.lifecycles()
	for i, stage := range stages {
		if err := stage.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = stages[j].Stop(ctx) //nolint:errcheck // best effort unwind
			}
			return fmt.Errorf("destination %q: %w", d.id, err)
		}
	}
	return nil
}

// Stop stops the stages in reverse order and joins their errors.
func (d *Destination[T, P]) Stop(ctx context.Context) error {
	stages := d.lifecycles()
	var errs []error
	for i := len(stages) - 1; i >= 0; i-- {
		if err := stages[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("destination %q: %w", d.id, err)
	}
	return nil
}

func (d *Destination[T, P]) lifecycles() []Lifecycle {
	var out []Lifecycle
	for _, stage := range []any{d.encoder, d.extractor, d.provider} {
		if lc, ok := stage.(Lifecycle); ok {
			out = append(out, lc)
		}
	}
	return out
}

func firstAssignment(assignments []device.Assignment) *device.Assignment {
	if len(assignments) == 0 {
		return nil
	}
	a := assignments[0]
	return &a
}
