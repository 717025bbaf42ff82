// Package socket delivers commands as raw bytes over a short-lived TCP
// connection to the gateway.
package socket
