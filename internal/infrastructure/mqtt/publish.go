package mqtt

import (
	"context"
	"fmt"
	"time"
)

// maxPayloadSize bounds a single command payload (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload with the default publish timeout.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (may duplicate)
//   - 2: Exactly once (higher overhead)
//
// Commands should not be retained: a device reconnecting later would
// replay a stale command.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	return c.PublishContext(ctx, topic, payload, qos, retained)
}

// PublishContext sends payload and waits for the broker acknowledgement
// until ctx is done. A deadline on ctx shorter than the default publish
// timeout wins; a longer one is capped by it.
//
// When ctx ends first the message may still reach the broker: paho keeps
// the in-flight token.
func (c *Client) PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	wait := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}

	token := c.client.Publish(topic, qos, retained, payload)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: %s: no acknowledgement after %v", ErrPublishFailed, topic, wait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishDefault publishes a non-retained message with the configured QoS.
func (c *Client) PublishDefault(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), false)
}

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	return nil
}
