package mqtt

import "fmt"

// TopicPrefix is the root of every topic used by the service.
const TopicPrefix = "graylogic"

// Topics provides builders for the service's MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.CommandInvocations("acme")
//	// Returns: "graylogic/acme/commands/invocations"
type Topics struct{}

// =============================================================================
// Inbound Topics
// =============================================================================

// CommandInvocations returns the topic carrying enriched command invocations
// for a tenant.
//
// Example: graylogic/acme/commands/invocations
func (Topics) CommandInvocations(tenant string) string {
	return fmt.Sprintf("%s/%s/commands/invocations", TopicPrefix, tenant)
}

// SystemCommands returns the topic carrying system command requests for a
// tenant.
//
// Example: graylogic/acme/commands/system
func (Topics) SystemCommands(tenant string) string {
	return fmt.Sprintf("%s/%s/commands/system", TopicPrefix, tenant)
}

// UndeliveredInvocations returns the topic that receives invocations no
// destination could be found for.
//
// Example: graylogic/acme/commands/undelivered
func (Topics) UndeliveredInvocations(tenant string) string {
	return fmt.Sprintf("%s/%s/commands/undelivered", TopicPrefix, tenant)
}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceCommands is the default topic template MQTT destinations publish
// command payloads to. "{tenant}" and "{device}" are substituted per
// delivery.
const DeviceCommands = TopicPrefix + "/{tenant}/commands/{device}"

// DeviceSystem is the default topic template for system command payloads.
const DeviceSystem = TopicPrefix + "/{tenant}/system/{device}"

// =============================================================================
// System Topics
// =============================================================================

// ClientStatus returns the retained online/offline topic for a client.
//
// Example: graylogic/system/status/graylogic-commands
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/system/status/%s", TopicPrefix, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommandInvocations matches invocation topics of every tenant.
//
// Pattern: graylogic/+/commands/invocations
func (Topics) AllCommandInvocations() string {
	return fmt.Sprintf("%s/+/commands/invocations", TopicPrefix)
}
