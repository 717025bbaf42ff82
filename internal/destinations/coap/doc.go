// Package coap delivers commands to devices over CoAP (RFC 7252) on UDP.
//
// Each delivery dials the gateway's host and port from metadata, issues one
// request and closes the connection.
package coap
