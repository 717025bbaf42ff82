package commands

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// mockResolver is an in-memory Resolver.
type mockResolver struct {
	mu          sync.Mutex
	devices     map[string]*device.Device
	assignments map[string][]device.Assignment
	commands    map[string]*device.Command
	lookupErr   error
}

func newMockResolver() *mockResolver {
	return &mockResolver{
		devices:     make(map[string]*device.Device),
		assignments: make(map[string][]device.Assignment),
		commands:    make(map[string]*device.Command),
	}
}

func (r *mockResolver) addDevice(d device.Device, assignmentTokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = "id-" + d.Token
	}
	r.devices[d.Token] = &d
	for _, tok := range assignmentTokens {
		r.assignments[d.ID] = append(r.assignments[d.ID], device.Assignment{
			ID: "a-" + tok, Token: tok, DeviceID: d.ID, Active: true,
		})
	}
}

func (r *mockResolver) addCommand(c device.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[c.Token] = &c
}

func (r *mockResolver) GetDeviceByToken(_ context.Context, token string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	if d, ok := r.devices[token]; ok {
		return d.DeepCopy(), nil
	}
	return nil, device.ErrDeviceNotFound
}

func (r *mockResolver) GetActiveAssignments(_ context.Context, deviceID string) ([]device.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Assignment, len(r.assignments[deviceID]))
	copy(out, r.assignments[deviceID])
	return out, nil
}

func (r *mockResolver) GetCommandByToken(_ context.Context, token string) (*device.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.commands[token]; ok {
		return c.DeepCopy(), nil
	}
	return nil, device.ErrCommandNotFound
}

// stubRouter returns a fixed destination id or error.
type stubRouter struct {
	id    string
	err   error
	calls atomic.Int64
}

func (r *stubRouter) Route(RouteRequest) (string, error) {
	r.calls.Add(1)
	return r.id, r.err
}

// deliveryCall captures one call to a recordingDestination.
type deliveryCall struct {
	nesting     device.NestingContext
	assignments []device.Assignment
	exec        *Execution
	system      *SystemCommand
}

// recordingDestination is a CommandDestination that records calls.
type recordingDestination struct {
	id       string
	err      error
	startErr error
	delay    time.Duration

	mu      sync.Mutex
	calls   []deliveryCall
	started int
	stopped int
	count   atomic.Int64
}

func (d *recordingDestination) ID() string { return d.id }

func (d *recordingDestination) Deliver(ctx context.Context, nesting device.NestingContext, assignments []device.Assignment, exec *Execution) error {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.count.Add(1)
	d.mu.Lock()
	d.calls = append(d.calls, deliveryCall{nesting: nesting, assignments: assignments, exec: exec})
	d.mu.Unlock()
	return d.err
}

func (d *recordingDestination) DeliverSystemCommand(_ context.Context, nesting device.NestingContext, assignments []device.Assignment, cmd SystemCommand) error {
	d.count.Add(1)
	d.mu.Lock()
	d.calls = append(d.calls, deliveryCall{nesting: nesting, assignments: assignments, system: &cmd})
	d.mu.Unlock()
	return d.err
}

func (d *recordingDestination) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started++
	return nil
}

func (d *recordingDestination) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}

func (d *recordingDestination) snapshot() []deliveryCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]deliveryCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// mockRecorder stores outcomes and answers DeliveredChecker.
type mockRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *mockRecorder) Record(_ context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *mockRecorder) Delivered(_ context.Context, invocationID, assignmentToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.InvocationID == invocationID && o.AssignmentToken == assignmentToken && o.Status == StatusDelivered {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockRecorder) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// plainRecorder records without DeliveredChecker.
type plainRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *plainRecorder) Record(_ context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

// mockUndelivered collects undelivered invocations.
type mockUndelivered struct {
	mu     sync.Mutex
	items  []Invocation
	causes []error
}

func (u *mockUndelivered) PublishUndelivered(_ context.Context, inv Invocation, cause error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items = append(u.items, inv)
	u.causes = append(u.causes, cause)
	return nil
}

// recordingLogger keeps log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// has reports whether a message was logged at level.
func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// errorKinds returns the error_kind attribute of every entry carrying one.
func (l *recordingLogger) errorKinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var kinds []string
	for _, e := range l.entries {
		for i := 0; i+1 < len(e.args); i += 2 {
			if e.args[i] == "error_kind" {
				kinds = append(kinds, e.args[i+1].(string))
			}
		}
	}
	return kinds
}

// countingMetrics counts calls.
type countingMetrics struct {
	received    sync.Map
	deliveries  atomic.Int64
	undelivered atomic.Int64
	panics      atomic.Int64
}

func (m *countingMetrics) InvocationReceived(result string) {
	v, _ := m.received.LoadOrStore(result, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (m *countingMetrics) DeliveryCompleted(string, string, string, time.Duration) {
	m.deliveries.Add(1)
}

func (m *countingMetrics) Undelivered(string) { m.undelivered.Add(1) }
func (m *countingMetrics) QueueDepth(int)     {}
func (m *countingMetrics) WorkerPanic()       { m.panics.Add(1) }

func (m *countingMetrics) receivedCount(result string) int64 {
	v, ok := m.received.Load(result)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

var errBoom = errors.New("boom")
