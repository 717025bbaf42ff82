package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDelivery is the measurement delivery outcomes are written to.
const MeasurementDelivery = "command_delivery"

// DeliveryOutcome is one delivery attempt as recorded in InfluxDB.
type DeliveryOutcome struct {
	Tenant        string
	DestinationID string
	DeviceToken   string
	DeviceType    string
	CommandToken  string
	Status        string
	ErrorKind     string
	Latency       time.Duration
	RecordedAt    time.Time
}

// deliveryPoint builds the point for o. Device and command tokens are tags:
// per-device dashboards need them and fleets are small enough to keep
// cardinality in check.
func deliveryPoint(o DeliveryOutcome) *write.Point {
	tags := map[string]string{
		"tenant":      o.Tenant,
		"destination": o.DestinationID,
		"device":      o.DeviceToken,
		"command":     o.CommandToken,
		"status":      o.Status,
	}
	if o.DeviceType != "" {
		tags["device_type"] = o.DeviceType
	}
	if o.ErrorKind != "" {
		tags["error_kind"] = o.ErrorKind
	}

	ts := o.RecordedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementDelivery,
		tags,
		map[string]interface{}{
			"latency_ms": float64(o.Latency.Microseconds()) / 1000,
			"count":      1,
		},
		ts,
	)
}

// WriteDeliveryOutcome records one delivery attempt. The write is
// non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteDeliveryOutcome(o DeliveryOutcome) {
	c.write(deliveryPoint(o))
}
