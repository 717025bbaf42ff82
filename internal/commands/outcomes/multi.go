package outcomes

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
)

// MultiRecorder records to every recorder it holds. Delivered is answered
// by the first recorder that can.
type MultiRecorder struct {
	recorders []commands.Recorder
}

// Multi combines recorders. Nil entries are dropped.
func Multi(recorders ...commands.Recorder) *MultiRecorder {
	m := &MultiRecorder{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Record implements commands.Recorder. Every recorder is tried; errors are
// joined.
func (m *MultiRecorder) Record(ctx context.Context, o commands.Outcome) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Record(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delivered implements commands.DeliveredChecker.
func (m *MultiRecorder) Delivered(ctx context.Context, invocationID, assignmentToken string) (bool, error) {
	for _, r := range m.recorders {
		if checker, ok := r.(commands.DeliveredChecker); ok {
			return checker.Delivered(ctx, invocationID, assignmentToken)
		}
	}
	return false, nil
}
