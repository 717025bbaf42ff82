// Package encoding provides the command execution encoders used by
// destinations.
//
// JSON and Expression produce text payloads; Protobuf produces
// length-delimited protobuf-wire messages. Bytes adapts a text encoder to
// byte-oriented providers such as CoAP and raw sockets.
//
// Encoders are pure: they perform no I/O and hold no per-invocation state,
// so one instance is shared by every worker.
package encoding
