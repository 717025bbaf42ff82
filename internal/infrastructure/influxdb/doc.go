// Package influxdb records command delivery outcomes as time-series points.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring. Each
// delivery attempt becomes one "command_delivery" point tagged with tenant,
// destination, device type, command and status, carrying latency as a
// field. Dashboards chart delivery rates and latency per destination from
// it.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeliveryOutcome(influxdb.DeliveryOutcome{...})
//
// # Error Handling
//
// Writes never block the delivery path. Batch errors are reported through
// the SetOnError callback; connection and health check errors are returned
// directly.
package influxdb
