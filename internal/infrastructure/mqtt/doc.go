// Package mqtt provides MQTT client connectivity for the command delivery
// service.
//
// The same client type serves two roles:
//   - the inbound bus connection that receives enriched command
//     invocations and system command requests
//   - the outbound connection of every MQTT command destination
//
// Each role gets its own Client built from a config.MQTTConfig, so a
// destination can point at a different broker, use different credentials
// or keep a persistent session (clean_session: false).
//
// # Features
//
//   - Auto-reconnect with exponential backoff
//   - Subscriptions restored after reconnect
//   - Last Will and Testament on graylogic/system/status/{client_id}
//   - Handler panic recovery
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.CommandInvocations(cfg.Tenant.ID), 1, consumer.HandleMessage)
package mqtt
