package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Consumer defaults.
const (
	DefaultWorkers         = 5
	DefaultQueueSize       = 100
	DefaultBlockTimeout    = 2 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// OverflowPolicy decides what Received does when the queue is full.
type OverflowPolicy string

// Overflow policies.
const (
	// OverflowReject drops the invocation immediately.
	OverflowReject OverflowPolicy = "reject"

	// OverflowBlock waits up to BlockTimeout for room, then drops.
	OverflowBlock OverflowPolicy = "block"
)

// Consumer result labels reported to Metrics.
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultInvalid  = "invalid"
)

// Processor handles decoded invocations. *Manager satisfies it.
type Processor interface {
	ProcessCommandInvocation(ctx context.Context, inv Invocation)
	ProcessSystemCommand(ctx context.Context, deviceToken string, cmd SystemCommand)
}

// ConsumerOptions configures a Consumer. Zero values take the defaults.
type ConsumerOptions struct {
	Workers         int
	QueueSize       int
	Overflow        OverflowPolicy
	BlockTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          Logger
	Metrics         Metrics
}

// ConsumerStats is a snapshot of consumer counters.
type ConsumerStats struct {
	Received  uint64
	Rejected  uint64
	Invalid   uint64
	Processed uint64
	Dropped   uint64
	Panics    uint64
}

// task is one queued unit of work: an invocation or a system command.
type task struct {
	key        string
	invocation *EnrichedInvocation
	system     *SystemCommandRequest
}

// Consumer decodes inbound messages into a bounded queue drained by a fixed
// pool of workers. A panic in one task is recovered and does not affect
// other tasks or the bus client.
//
// Invocations for the same device are not ordered once queued.
type Consumer struct {
	processor Processor
	opts      ConsumerOptions
	logger    Logger
	metrics   Metrics

	queue chan task

	// mu guards started/stopped and the send side of queue. Senders hold
	// the read lock so Stop cannot close the queue under them.
	mu      sync.RWMutex
	started bool
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	received  atomic.Uint64
	rejected  atomic.Uint64
	invalid   atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// NewConsumer creates a consumer feeding processor.
func NewConsumer(processor Processor, opts ConsumerOptions) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowReject
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = DefaultBlockTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	c := &Consumer{
		processor: processor,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		queue:     make(chan task, opts.QueueSize),
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	return c
}

// Start launches the worker pool. Workers keep draining after ctx is
// cancelled; only Stop ends them.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	if c.stopped {
		return ErrConsumerStopped
	}
	c.started = true

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	for range c.opts.Workers {
		c.wg.Add(1)
		go c.worker(workerCtx)
	}

	c.logger.Info("invocation consumer started",
		"workers", c.opts.Workers,
		"queue_size", c.opts.QueueSize,
		"overflow", c.opts.Overflow,
	)
	return nil
}

// Received decodes an enriched invocation and queues it. key identifies
// the message source (the topic) for logging.
//
// Returns ErrInvalidPayload, ErrQueueFull or ErrConsumerStopped; in each
// case nothing is queued.
func (c *Consumer) Received(key string, payload []byte) error {
	var env EnrichedInvocation
	if err := json.Unmarshal(payload, &env); err != nil {
		return c.invalidPayload(key, err)
	}
	if env.Invocation.DeviceToken == "" || env.Invocation.CommandToken == "" {
		return c.invalidPayload(key, fmt.Errorf("device and command tokens are required"))
	}
	if env.Invocation.ID == "" {
		env.Invocation.ID = uuid.NewString()
	}

	return c.enqueue(task{key: key, invocation: &env})
}

// ReceivedSystem decodes a system command request and queues it.
func (c *Consumer) ReceivedSystem(key string, payload []byte) error {
	var req SystemCommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return c.invalidPayload(key, err)
	}
	if req.DeviceToken == "" || req.Command.Type == "" {
		return c.invalidPayload(key, fmt.Errorf("device token and command type are required"))
	}

	return c.enqueue(task{key: key, system: &req})
}

// HandleMessage adapts Received to an MQTT handler. Failures are logged and
// never returned to the bus loop.
func (c *Consumer) HandleMessage(topic string, payload []byte) error {
	if err := c.Received(topic, payload); err != nil {
		c.logger.Debug("invocation not accepted", "topic", topic, "error", err)
	}
	return nil
}

// HandleSystemMessage adapts ReceivedSystem to an MQTT handler.
func (c *Consumer) HandleSystemMessage(topic string, payload []byte) error {
	if err := c.ReceivedSystem(topic, payload); err != nil {
		c.logger.Debug("system command not accepted", "topic", topic, "error", err)
	}
	return nil
}

func (c *Consumer) invalidPayload(key string, err error) error {
	c.invalid.Add(1)
	c.metrics.InvocationReceived(resultInvalid)
	c.logger.Warn("discarding invalid invocation payload", "key", key, "error", err)
	return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
}

func (c *Consumer) enqueue(t task) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		return ErrConsumerStopped
	}

	select {
	case c.queue <- t:
		return c.accepted()
	default:
	}

	if c.opts.Overflow == OverflowBlock {
		timer := time.NewTimer(c.opts.BlockTimeout)
		defer timer.Stop()
		select {
		case c.queue <- t:
			return c.accepted()
		case <-timer.C:
		}
	}

	c.rejected.Add(1)
	c.metrics.InvocationReceived(resultRejected)
	c.logger.Warn("invocation queue full, dropping invocation",
		"key", t.key,
		"invocation", t.invocationID(),
		"queue_size", c.opts.QueueSize,
		"overflow", c.opts.Overflow,
	)
	return ErrQueueFull
}

func (c *Consumer) accepted() error {
	c.received.Add(1)
	c.metrics.InvocationReceived(resultAccepted)
	c.metrics.QueueDepth(len(c.queue))
	return nil
}

func (t task) invocationID() string {
	if t.invocation != nil {
		return t.invocation.Invocation.ID
	}
	return ""
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()

	for t := range c.queue {
		c.metrics.QueueDepth(len(c.queue))
		if ctx.Err() != nil {
			c.dropped.Add(1)
			continue
		}
		c.process(ctx, t)
	}
}

// process runs one task with its own panic recovery.
func (c *Consumer) process(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.metrics.WorkerPanic()
			c.logger.Error("invocation processing panic recovered",
				"key", t.key,
				"invocation", t.invocationID(),
				"panic", r,
			)
		}
	}()

	switch {
	case t.invocation != nil:
		c.logger.Debug("processing invocation",
			"invocation", t.invocation.Invocation.ID,
			"tenant", t.invocation.Context.TenantID,
			"event", t.invocation.Context.EventID,
			"device", t.invocation.Invocation.DeviceToken,
		)
		c.processor.ProcessCommandInvocation(ctx, t.invocation.Invocation)
	case t.system != nil:
		c.processor.ProcessSystemCommand(ctx, t.system.DeviceToken, t.system.Command)
	}
	c.processed.Add(1)
}

// Stop stops accepting work and waits for queued tasks to drain, up to
// ShutdownTimeout or ctx. On timeout the worker context is cancelled,
// interrupting in-flight deliveries that honour it. Queued tasks no worker
// has picked up are dropped and counted, and ErrShutdownTimeout is
// returned.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.queue)
	started := c.started
	c.mu.Unlock()

	if !started {
		if n := len(c.queue); n > 0 {
			c.logger.Warn("consumer stopped before start, dropping queued invocations", "count", n)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		c.cancel()
		c.logger.Info("invocation consumer stopped", "processed", c.processed.Load())
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	c.cancel()
	for range c.queue {
		c.dropped.Add(1)
	}
	c.metrics.QueueDepth(0)

	c.logger.Warn("invocation consumer shutdown timed out, cancelled in-flight work",
		"timeout", c.opts.ShutdownTimeout,
		"dropped", c.dropped.Load(),
	)
	return ErrShutdownTimeout
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Received:  c.received.Load(),
		Rejected:  c.rejected.Load(),
		Invalid:   c.invalid.Load(),
		Processed: c.processed.Load(),
		Dropped:   c.dropped.Load(),
		Panics:    c.panics.Load(),
	}
}
