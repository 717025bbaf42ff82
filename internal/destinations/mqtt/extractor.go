package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/device"
	mqttclient "github.com/nerrad567/gray-logic-commands/internal/infrastructure/mqtt"
)

// Params are the publish targets for one delivery.
type Params struct {
	CommandTopic string
	SystemTopic  string
	QoS          byte
	Retained     bool
}

// TopicExtractor expands topic templates for the gateway device.
// "{tenant}" becomes Tenant and "{device}" the gateway token. Empty
// templates fall back to mqttclient.DeviceCommands and DeviceSystem.
type TopicExtractor struct {
	CommandTopic string
	SystemTopic  string
	Tenant       string
	QoS          int
	Retained     bool
}

// Extract implements commands.ParameterExtractor.
func (e TopicExtractor) Extract(destinationID string, nesting device.NestingContext, _ []device.Assignment, _ *commands.Execution) (Params, error) {
	if e.QoS < 0 || e.QoS > 2 {
		return Params{}, fmt.Errorf("%w: destination %q: qos %d", commands.ErrConfiguration, destinationID, e.QoS)
	}

	gateway := nesting.Gateway()
	if gateway.Token == "" {
		return Params{}, &commands.ParameterResolutionError{
			Destination: destinationID,
			Field:       "token",
		}
	}

	return Params{
		CommandTopic: e.expand(e.CommandTopic, mqttclient.DeviceCommands, gateway.Token),
		SystemTopic:  e.expand(e.SystemTopic, mqttclient.DeviceSystem, gateway.Token),
		QoS:          byte(e.QoS),
		Retained:     e.Retained,
	}, nil
}

func (e TopicExtractor) expand(template, def, deviceToken string) string {
	if template == "" {
		template = def
	}
	return strings.NewReplacer("{tenant}", e.Tenant, "{device}", deviceToken).Replace(template)
}
