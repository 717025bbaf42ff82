package outcomes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
)

// timestampLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore records outcomes in the invocation_outcomes table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Record implements commands.Recorder.
func (s *SQLiteStore) Record(ctx context.Context, o commands.Outcome) error {
	recordedAt := o.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocation_outcomes (
			id, invocation_id, device_token, command_token, assignment_token,
			destination_id, status, error_kind, error, latency_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		o.InvocationID,
		o.DeviceToken,
		o.CommandToken,
		o.AssignmentToken,
		o.DestinationID,
		string(o.Status),
		o.ErrorKind,
		o.Error,
		o.Latency.Milliseconds(),
		recordedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("recording outcome for invocation %q: %w", o.InvocationID, err)
	}
	return nil
}

// Delivered implements commands.DeliveredChecker.
func (s *SQLiteStore) Delivered(ctx context.Context, invocationID, assignmentToken string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invocation_outcomes
			WHERE invocation_id = ? AND assignment_token = ? AND status = ?
		)`,
		invocationID, assignmentToken, string(commands.StatusDelivered),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking delivery of invocation %q: %w", invocationID, err)
	}
	return exists, nil
}

// ListByInvocation returns the outcomes recorded for an invocation, oldest
// first.
func (s *SQLiteStore) ListByInvocation(ctx context.Context, invocationID string) ([]commands.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invocation_id, device_token, command_token, assignment_token,
		       destination_id, status, error_kind, error, latency_ms, recorded_at
		FROM invocation_outcomes
		WHERE invocation_id = ?
		ORDER BY recorded_at, rowid`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("listing outcomes for invocation %q: %w", invocationID, err)
	}
	defer rows.Close()

	var out []commands.Outcome
	for rows.Next() {
		var (
			o          commands.Outcome
			status     string
			latencyMS  int64
			recordedAt string
		)
		if err := rows.Scan(
			&o.InvocationID, &o.DeviceToken, &o.CommandToken, &o.AssignmentToken,
			&o.DestinationID, &status, &o.ErrorKind, &o.Error, &latencyMS, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = commands.OutcomeStatus(status)
		o.Latency = time.Duration(latencyMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			o.RecordedAt = t
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return out, nil
}
