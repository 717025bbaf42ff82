// Package mqtt delivers commands by publishing to per-device topics on an
// MQTT broker.
//
// The provider owns its own broker connection, opened by Start and closed
// by Stop, separate from the service's inbound bus connection.
package mqtt
