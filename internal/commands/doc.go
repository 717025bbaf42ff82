// Package commands delivers device command invocations to protocol
// destinations.
//
// An invocation flows through three components:
//
//	Consumer -> Manager -> Destination[T, P]
//
// The Consumer decodes enriched invocations from the bus into a bounded
// queue served by a fixed worker pool. The Manager resolves the device, its
// command definition, active assignments and gateway nesting, applies the
// target policy, asks the Router for a destination id and hands the
// execution to that destination. A Destination runs three stages: an
// Encoder turns the execution into a payload, a ParameterExtractor reads
// delivery parameters (phone number, host, topic) from the gateway's
// metadata and a DeliveryProvider sends the payload.
//
// # Error Handling
//
// Failures are classified by ErrorKind, logged, recorded as an Outcome and
// counted. They never propagate back to the bus. There are no retries at
// this layer; transports retry on their own where they can.
//
// # Ordering
//
// Invocations for the same device are not ordered once dispatched to the
// worker pool.
package commands
