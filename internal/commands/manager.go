package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// ManagerOptions configures a Manager. Resolver, Router and Destinations
// are required.
type ManagerOptions struct {
	Resolver     Resolver
	Router       Router
	Destinations []CommandDestination

	// TargetPolicy defaults to FirstActive.
	TargetPolicy TargetPolicy

	// Recorder receives one Outcome per delivery attempt. If it also
	// implements DeliveredChecker, redelivered invocations are skipped.
	// Attempts for the same invocation and assignment are serialised, so
	// duplicates picked up by different workers see each other's outcome.
	Recorder Recorder

	// Undelivered receives invocations that failed routing or named an
	// unknown destination.
	Undelivered UndeliveredSink

	Metrics Metrics
	Logger  Logger

	// DeliveryTimeout bounds each destination delivery. Zero leaves
	// timeouts to the providers.
	DeliveryTimeout time.Duration
}

// Manager resolves invocations and dispatches them to destinations.
// It is safe for concurrent use; destinations are read-only after
// construction.
type Manager struct {
	resolver     Resolver
	router       Router
	destinations map[string]CommandDestination
	order        []string
	policy       TargetPolicy
	recorder     Recorder
	undelivered  UndeliveredSink
	metrics      Metrics
	logger       Logger
	timeout      time.Duration

	inflight keyedMutex

	mu      sync.Mutex
	started []CommandDestination
}

// NewManager validates opts and builds a Manager. Duplicate destination
// ids are an ErrConfiguration.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Resolver == nil || opts.Router == nil {
		return nil, fmt.Errorf("%w: resolver and router are required", ErrConfiguration)
	}
	if len(opts.Destinations) == 0 {
		return nil, fmt.Errorf("%w: at least one destination is required", ErrConfiguration)
	}

	m := &Manager{
		resolver:     opts.Resolver,
		router:       opts.Router,
		destinations: make(map[string]CommandDestination, len(opts.Destinations)),
		policy:       opts.TargetPolicy,
		recorder:     opts.Recorder,
		undelivered:  opts.Undelivered,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		timeout:      opts.DeliveryTimeout,
	}
	if m.policy == nil {
		m.policy = FirstActive{}
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}

	for _, d := range opts.Destinations {
		id := d.ID()
		if id == "" {
			return nil, fmt.Errorf("%w: destination with empty id", ErrConfiguration)
		}
		if _, dup := m.destinations[id]; dup {
			return nil, fmt.Errorf("%w: duplicate destination id %q", ErrConfiguration, id)
		}
		m.destinations[id] = d
		m.order = append(m.order, id)
	}
	sort.Strings(m.order)

	return m, nil
}

// Start starts every destination in id order. On the first failure the
// destinations already started are stopped and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.started) > 0 {
		return ErrAlreadyStarted
	}

	for _, id := range m.order {
		d := m.destinations[id]
		if err := d.Start(ctx); err != nil {
			for i := len(m.started) - 1; i >= 0; i-- {
				if stopErr := m.started[i].Stop(ctx); stopErr != nil {
					m.logger.Warn("failed to stop destination after start failure",
						"destination", m.started[i].ID(), "error", stopErr)
				}
			}
			m.started = nil
			return fmt.Errorf("starting destination %q: %w", id, err)
		}
		m.started = append(m.started, d)
		m.logger.Info("command destination started", "destination", id)
	}
	return nil
}

// Stop stops the started destinations in reverse order and joins errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		if err := m.started[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

// delivery carries the context of one attempt for logging and outcomes.
type delivery struct {
	inv         Invocation
	device      *device.Device
	assignment  string
	destination string
	command     string
}

// ProcessCommandInvocation delivers inv. Failures are logged, recorded and
// counted; nothing is returned to the caller.
func (m *Manager) ProcessCommandInvocation(ctx context.Context, inv Invocation) {
	d := delivery{inv: inv, command: inv.CommandToken}
	start := time.Now()

	dev, exec, err := m.resolveExecution(ctx, inv)
	if err != nil {
		m.fail(ctx, d, start, err)
		return
	}
	d.device = dev

	active, err := m.resolver.GetActiveAssignments(ctx, dev.ID)
	if err != nil {
		m.fail(ctx, d, start, fmt.Errorf("loading assignments for %q: %w", dev.Token, err))
		return
	}
	if len(active) == 0 {
		m.fail(ctx, d, start, fmt.Errorf("%w: device %q has no active assignment", ErrData, dev.Token))
		return
	}

	targets, err := m.policy.Select(inv, active)
	if err != nil {
		m.fail(ctx, d, start, err)
		return
	}

	nesting, err := device.BuildNesting(ctx, m.resolver, dev)
	if err != nil {
		m.fail(ctx, d, start, dataError(err))
		return
	}

	for _, target := range targets {
		td := d
		td.assignment = target.Token
		m.deliverTarget(ctx, td, nesting, target, exec, start)
	}
}

// deliverTarget runs the check, deliver and record sequence for one
// assignment while holding the lock for (invocation, assignment).
func (m *Manager) deliverTarget(ctx context.Context, d delivery, nesting device.NestingContext, target device.Assignment, exec *Execution, start time.Time) {
	inv := d.inv
	if inv.ID != "" {
		unlock := m.inflight.lock(inv.ID + "/" + target.Token)
		defer unlock()
	}

	if m.alreadyDelivered(ctx, inv.ID, target.Token) {
		m.logger.Info("invocation already delivered, skipping",
			"invocation", inv.ID, "device", inv.DeviceToken, "assignment", target.Token)
		m.record(ctx, d, StatusSkipped, time.Now(), nil)
		return
	}

	dest, err := m.route(RouteRequest{Invocation: &inv, Device: *d.device, Assignment: target})
	if err != nil {
		m.fail(ctx, d, start, err)
		m.publishUndelivered(ctx, inv, err)
		return
	}
	d.destination = dest.ID()

	deliverStart := time.Now()
	err = m.withTimeout(ctx, func(dctx context.Context) error {
		return dest.Deliver(dctx, nesting, []device.Assignment{target}, exec)
	})
	m.complete(ctx, d, deliverStart, err)
}

// ProcessSystemCommand delivers a system command to a device's first
// active assignment.
func (m *Manager) ProcessSystemCommand(ctx context.Context, deviceToken string, cmd SystemCommand) {
	d := delivery{
		inv:     Invocation{DeviceToken: deviceToken},
		command: "system:" + string(cmd.Type),
	}
	start := time.Now()

	if err := cmd.Validate(); err != nil {
		m.fail(ctx, d, start, err)
		return
	}

	dev, err := m.resolver.GetDeviceByToken(ctx, deviceToken)
	if err != nil {
		m.fail(ctx, d, start, dataError(err))
		return
	}
	d.device = dev

	active, err := m.resolver.GetActiveAssignments(ctx, dev.ID)
	if err != nil {
		m.fail(ctx, d, start, fmt.Errorf("loading assignments for %q: %w", dev.Token, err))
		return
	}
	if len(active) == 0 {
		m.fail(ctx, d, start, fmt.Errorf("%w: device %q has no active assignment", ErrData, dev.Token))
		return
	}
	target := active[0]
	d.assignment = target.Token

	nesting, err := device.BuildNesting(ctx, m.resolver, dev)
	if err != nil {
		m.fail(ctx, d, start, dataError(err))
		return
	}

	dest, err := m.route(RouteRequest{SystemCommand: &cmd, Device: *dev, Assignment: target})
	if err != nil {
		m.fail(ctx, d, start, err)
		return
	}
	d.destination = dest.ID()

	deliverStart := time.Now()
	err = m.withTimeout(ctx, func(dctx context.Context) error {
		return dest.DeliverSystemCommand(dctx, nesting, []device.Assignment{target}, cmd)
	})
	m.complete(ctx, d, deliverStart, err)
}

// complete records the result of a destination call. An encoder that had
// nothing to send yields a skipped outcome, not a delivered one.
func (m *Manager) complete(ctx context.Context, d delivery, start time.Time, err error) {
	switch {
	case err == nil:
		m.succeed(ctx, d, start)
	case errors.Is(err, ErrSkipDelivery):
		m.record(ctx, d, StatusSkipped, start, nil)
	default:
		m.fail(ctx, d, start, err)
	}
}

func (m *Manager) resolveExecution(ctx context.Context, inv Invocation) (*device.Device, *Execution, error) {
	dev, err := m.resolver.GetDeviceByToken(ctx, inv.DeviceToken)
	if err != nil {
		return nil, nil, dataError(err)
	}

	cmd, err := m.resolver.GetCommandByToken(ctx, inv.CommandToken)
	if err != nil {
		return dev, nil, dataError(err)
	}

	exec, err := BuildExecution(*cmd, inv)
	if err != nil {
		return dev, nil, err
	}
	return dev, exec, nil
}

// route asks the router for a destination and looks it up.
func (m *Manager) route(req RouteRequest) (CommandDestination, error) {
	id, err := m.router.Route(req)
	if err != nil {
		if errors.Is(err, ErrRouting) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRouting, err)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: router returned no destination for device %q", ErrRouting, req.Device.Token)
	}

	dest, ok := m.destinations[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown destination %q", ErrConfiguration, id)
	}
	return dest, nil
}

func (m *Manager) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if m.timeout <= 0 {
		return fn(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return fn(dctx)
}

func (m *Manager) alreadyDelivered(ctx context.Context, invocationID, assignmentToken string) bool {
	checker, ok := m.recorder.(DeliveredChecker)
	if !ok || invocationID == "" {
		return false
	}
	delivered, err := checker.Delivered(ctx, invocationID, assignmentToken)
	if err != nil {
		m.logger.Warn("delivered check failed, delivering anyway",
			"invocation", invocationID, "error", err)
		return false
	}
	return delivered
}

func (m *Manager) publishUndelivered(ctx context.Context, inv Invocation, cause error) {
	if m.undelivered == nil {
		return
	}
	kind := ErrorKind(cause)
	if kind != KindRouting && kind != KindConfiguration {
		return
	}
	if err := m.undelivered.PublishUndelivered(ctx, inv, cause); err != nil {
		m.logger.Error("failed to publish undelivered invocation",
			"invocation", inv.ID, "device", inv.DeviceToken, "error", err)
		return
	}
	m.metrics.Undelivered(kind)
}

func (m *Manager) succeed(ctx context.Context, d delivery, start time.Time) {
	m.logger.Debug("command delivered",
		"invocation", d.inv.ID,
		"device", d.inv.DeviceToken,
		"command", d.command,
		"destination", d.destination,
		"assignment", d.assignment,
	)
	m.record(ctx, d, StatusDelivered, start, nil)
}

func (m *Manager) fail(ctx context.Context, d delivery, start time.Time, err error) {
	kind := ErrorKind(err)
	args := []any{
		"invocation", d.inv.ID,
		"device", d.inv.DeviceToken,
		"command", d.command,
		"destination", d.destination,
		"assignment", d.assignment,
		"error_kind", kind,
		"error", err,
	}
	if kind == KindInternal || kind == KindConfiguration {
		m.logger.Error("command delivery failed", args...)
	} else {
		m.logger.Warn("command delivery failed", args...)
	}
	m.record(ctx, d, StatusFailed, start, err)
}

func (m *Manager) record(ctx context.Context, d delivery, status OutcomeStatus, start time.Time, err error) {
	now := time.Now()
	o := Outcome{
		InvocationID:    d.inv.ID,
		DeviceToken:     d.inv.DeviceToken,
		CommandToken:    d.command,
		AssignmentToken: d.assignment,
		DestinationID:   d.destination,
		Status:          status,
		ErrorKind:       ErrorKind(err),
		Latency:         now.Sub(start),
		RecordedAt:      now,
	}
	if d.device != nil {
		o.DeviceType = d.device.DeviceTypeID
	}
	if err != nil {
		o.Error = err.Error()
	}

	m.metrics.DeliveryCompleted(o.DestinationID, string(status), o.ErrorKind, o.Latency)

	if m.recorder == nil {
		return
	}
	if recErr := m.recorder.Record(ctx, o); recErr != nil {
		m.logger.Warn("failed to record delivery outcome",
			"invocation", o.InvocationID, "status", status, "error", recErr)
	}
}

// dataError marks resolver lookup failures as data errors. Other errors
// (database down) stay internal.
func dataError(err error) error {
	switch {
	case errors.Is(err, ErrData):
		return err
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, device.ErrCommandNotFound),
		errors.Is(err, device.ErrGatewayNotFound),
		errors.Is(err, device.ErrNestingCycle),
		errors.Is(err, device.ErrNestingTooDeep),
		errors.Is(err, device.ErrInvalidDevice):
		return fmt.Errorf("%w: %w", ErrData, err)
	default:
		return err
	}
}

// keyedMutex hands out one mutex per key and forgets it when the last
// holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
