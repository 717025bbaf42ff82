// Package outcomes persists command delivery outcomes.
//
// SQLiteStore keeps one row per delivery attempt and answers whether an
// invocation was already delivered to an assignment, which the manager uses
// to skip redelivered invocations. Influx writes the same outcomes as
// time-series points for dashboards. Multi fans out to several recorders.
package outcomes
