package mqtt

import (
	"context"
	"errors"
)

// Sentinel errors. Callers match them with errors.Is; command destinations
// wrap them in a transport error.
var (
	// ErrNotConnected means the client has no live broker session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the initial connect did not complete.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker-side or timeout publish failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrPayloadTooLarge is returned before anything is sent.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrSubscribeFailed covers subscribe and unsubscribe failures.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// IsTemporary reports whether err may succeed on a later attempt: the
// client was disconnected, the broker did not acknowledge in time, or the
// caller's deadline ran out. Validation errors are permanent.
func IsTemporary(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidTopic), errors.Is(err, ErrInvalidQoS), errors.Is(err, ErrPayloadTooLarge):
		return false
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrPublishFailed), errors.Is(err, ErrSubscribeFailed):
		return true
	default:
		return errors.Is(err, context.DeadlineExceeded)
	}
}
