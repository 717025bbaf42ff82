// Package routing provides the outbound command routers that pick a
// destination id for each delivery.
//
//   - Static sends everything to one destination.
//   - DeviceTypeMapping picks by device type with an optional default.
//   - Expression evaluates an expr-lang program against the request.
//
// Routers are deterministic and safe for concurrent use.
package routing
