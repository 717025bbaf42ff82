// Package destinations builds the configured command destinations.
//
// Each destination pairs an encoder from internal/commands/encoding with the
// extractor and provider of its transport package:
//
//	sms     text payloads, phone number from gateway metadata
//	coap    binary payloads, host/port/path/method from gateway metadata
//	mqtt    binary payloads, per-device topics on a dedicated connection
//	socket  binary payloads, host/port from gateway metadata
package destinations
