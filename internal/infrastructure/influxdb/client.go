package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointWriter is the subset of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client records delivery outcomes as InfluxDB points.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes never block: points are batched by the write API and flushed
//     on an interval and on Close.
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter

	connected atomic.Bool
	written   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	mu      sync.RWMutex
	onError func(err error)
}

// WriteStats counts points since the client was created. Dropped points
// were written while the client was closed; failed ones were rejected by
// the server after batching.
type WriteStats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Connect creates the client, pings the server and starts the batching
// write API for cfg.Org/cfg.Bucket. It returns ErrDisabled when InfluxDB
// is turned off so callers can fall back to SQLite-only recording.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg)).
		SetFlushInterval(flushIntervalMillis(cfg))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !healthy:
		client.Close()
		return nil, fmt.Errorf("%w: %s: server not healthy", ErrConnectionFailed, cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{client: client, writeAPI: writeAPI}
	c.connected.Store(true)

	go c.handleWriteErrors(writeAPI.Errors())
	return c, nil
}

func batchSize(cfg config.InfluxDBConfig) uint {
	if cfg.BatchSize <= 0 {
		return defaultBatchSize
	}
	return uint(cfg.BatchSize) // #nosec G115 -- positive
}

// flushIntervalMillis converts the configured seconds to the milliseconds
// the client library expects.
func flushIntervalMillis(cfg config.InfluxDBConfig) uint {
	interval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		interval = time.Duration(cfg.FlushInterval) * time.Second
	}
	return uint(interval.Milliseconds()) // #nosec G115 -- positive
}

func (c *Client) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// write hands p to the batching write API, or drops it after Close.
func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}

// Close flushes pending points and closes the client. Closing a nil or
// already closed client is not an error.
func (c *Client) Close() error {
	if c == nil || c.writeAPI == nil {
		return nil
	}
	if !c.connected.Swap(false) {
		return nil
	}

	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}
	return nil
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SetOnError sets a callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Stats returns the write counters.
func (c *Client) Stats() WriteStats {
	return WriteStats{
		Written: c.written.Load(),
		Dropped: c.dropped.Load(),
		Failed:  c.failed.Load(),
	}
}
