package influxdb

import "errors"

// Sentinel errors, matched with errors.Is.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // record outcomes to SQLite only
//	}
var (
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps failures reported asynchronously by the batching
	// write API. They reach the SetOnError callback, never the writer.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
