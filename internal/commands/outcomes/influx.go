package outcomes

import (
	"context"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/influxdb"
)

// outcomeWriter is satisfied by *influxdb.Client.
type outcomeWriter interface {
	WriteDeliveryOutcome(o influxdb.DeliveryOutcome)
}

// Influx writes outcomes as InfluxDB points. Writes are batched by the
// client and never fail synchronously.
type Influx struct {
	writer outcomeWriter
	tenant string
}

// NewInflux creates a recorder writing through w for tenant.
func NewInflux(w outcomeWriter, tenant string) *Influx {
	return &Influx{writer: w, tenant: tenant}
}

// Record implements commands.Recorder.
func (r *Influx) Record(_ context.Context, o commands.Outcome) error {
	r.writer.WriteDeliveryOutcome(influxdb.DeliveryOutcome{
		Tenant:        r.tenant,
		DestinationID: o.DestinationID,
		DeviceToken:   o.DeviceToken,
		DeviceType:    o.DeviceType,
		CommandToken:  o.CommandToken,
		Status:        string(o.Status),
		ErrorKind:     o.ErrorKind,
		Latency:       o.Latency,
		RecordedAt:    o.RecordedAt,
	})
	return nil
}
