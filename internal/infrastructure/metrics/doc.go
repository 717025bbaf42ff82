// Package metrics exposes Prometheus counters and histograms for the
// command delivery pipeline and serves them over HTTP.
//
// *Metrics satisfies commands.Metrics, so the consumer and manager report
// through it without importing Prometheus.
package metrics
