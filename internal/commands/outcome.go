package commands

import (
	"context"
	"time"
)

// OutcomeStatus is the result of one delivery attempt.
type OutcomeStatus string

// Outcome statuses.
const (
	StatusDelivered OutcomeStatus = "delivered"
	StatusFailed    OutcomeStatus = "failed"
	StatusSkipped   OutcomeStatus = "skipped"
)

// Outcome records what happened to one invocation for one target.
type Outcome struct {
	InvocationID    string
	DeviceToken     string
	DeviceType      string
	CommandToken    string
	AssignmentToken string
	DestinationID   string
	Status          OutcomeStatus
	ErrorKind       string
	Error           string
	Latency         time.Duration
	RecordedAt      time.Time
}

// Recorder persists delivery outcomes.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// DeliveredChecker is implemented by recorders that can tell whether an
// invocation was already delivered to an assignment. The manager uses it to
// make redelivered invocations idempotent.
type DeliveredChecker interface {
	Delivered(ctx context.Context, invocationID, assignmentToken string) (bool, error)
}

// UndeliveredSink receives invocations that could not be routed.
type UndeliveredSink interface {
	PublishUndelivered(ctx context.Context, inv Invocation, cause error) error
}
