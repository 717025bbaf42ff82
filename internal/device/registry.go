package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry resolves devices, assignments and commands for command delivery.
// Devices and commands are cached by token. Assignments are not cached:
// their active flag is owned by device management and must be current.
//
// All public methods are thread-safe and return deep copies.
type Registry struct {
	repo     Repository
	devices  map[string]*Device
	commands map[string]*Command
	mu       sync.RWMutex
	logger   Logger
}

// NewRegistry creates a new device registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		devices:  make(map[string]*Device),
		commands: make(map[string]*Command),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices and drops cached commands.
// Called on startup and after seeding.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(devices))
	for i := range devices {
		r.devices[devices[i].Token] = devices[i].DeepCopy()
	}
	r.commands = make(map[string]*Command)

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDeviceByToken retrieves a device by token.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetDeviceByToken(ctx context.Context, token string) (*Device, error) {
	r.mu.RLock()
	cached, ok := r.devices[token]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.devices[token] = d.DeepCopy()
	r.mu.Unlock()

	return d, nil
}

// GetActiveAssignments returns the device's active assignments, oldest first.
func (r *Registry) GetActiveAssignments(ctx context.Context, deviceID string) ([]Assignment, error) {
	return r.repo.ListActiveAssignments(ctx, deviceID)
}

// GetCommandByToken retrieves a command definition.
// Returns ErrCommandNotFound if the command does not exist.
func (r *Registry) GetCommandByToken(ctx context.Context, token string) (*Command, error) {
	r.mu.RLock()
	cached, ok := r.commands[token]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	c, err := r.repo.GetCommandByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.commands[token] = c.DeepCopy()
	r.mu.Unlock()

	return c, nil
}

// CachedDevices returns the number of cached devices.
func (r *Registry) CachedDevices() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
