package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu          sync.Mutex
	devices     map[string]*Device
	assignments map[string][]Assignment
	commands    map[string]*Command
	getCalls    int
	listErr     error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices:     make(map[string]*Device),
		assignments: make(map[string][]Assignment),
		commands:    make(map[string]*Command),
	}
}

func (m *MockRepository) GetByToken(_ context.Context, token string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if d, ok := m.devices[token]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) ListActiveAssignments(_ context.Context, deviceID string) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments[deviceID] {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockRepository) GetCommandByToken(_ context.Context, token string) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.commands[token]; ok {
		return c.DeepCopy(), nil
	}
	return nil, ErrCommandNotFound
}

func (m *MockRepository) UpsertDevice(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = "id-" + d.Token
	}
	m.devices[d.Token] = d.DeepCopy()
	return nil
}

func (m *MockRepository) UpsertAssignment(_ context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.DeviceID] = append(m.assignments[a.DeviceID], *a)
	return nil
}

func (m *MockRepository) UpsertCommand(_ context.Context, c *Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[c.Token] = c.DeepCopy()
	return nil
}

func TestRegistry_GetDeviceByToken_CachesAndCopies(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = &Device{ID: "1", Token: "dev-1", DeviceTypeID: "sensor", Metadata: map[string]string{"k": "v"}}
	reg := NewRegistry(repo)
	ctx := context.Background()

	first, err := reg.GetDeviceByToken(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDeviceByToken() error = %v", err)
	}
	first.Metadata["k"] = "mutated"

	second, err := reg.GetDeviceByToken(ctx, "dev-1")
	if err != nil {
		t.Fatalf("GetDeviceByToken() error = %v", err)
	}
	if second.Metadata["k"] != "v" {
		t.Errorf("cached device mutated through returned copy: %q", second.Metadata["k"])
	}
	if repo.getCalls != 1 {
		t.Errorf("repository GetByToken calls = %d, want 1 (second lookup cached)", repo.getCalls)
	}

}

func TestRegistry_GetDeviceByToken_NotFound(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	_, err := reg.GetDeviceByToken(context.Background(), "missing")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_GetCommandByToken(t *testing.T) {
	repo := NewMockRepository()
	repo.commands["cmd-ping"] = &Command{Token: "cmd-ping", Name: "ping"}
	reg := NewRegistry(repo)

	c, err := reg.GetCommandByToken(context.Background(), "cmd-ping")
	if err != nil {
		t.Fatalf("GetCommandByToken() error = %v", err)
	}
	if c.Name != "ping" {
		t.Errorf("Name = %q, want ping", c.Name)
	}

	if _, err := reg.GetCommandByToken(context.Background(), "nope"); !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("error = %v, want ErrCommandNotFound", err)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["a"] = &Device{ID: "1", Token: "a", DeviceTypeID: "t"}
	repo.devices["b"] = &Device{ID: "2", Token: "b", DeviceTypeID: "t"}
	reg := NewRegistry(repo)

	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if got := reg.CachedDevices(); got != 2 {
		t.Errorf("CachedDevices() = %d, want 2", got)
	}

	repo.listErr = errors.New("boom")
	if err := reg.RefreshCache(context.Background()); err == nil {
		t.Error("RefreshCache() expected error")
	}
}

func TestRegistry_ApplySeed(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	inactive := false

	seed := &Seed{
		Devices: []SeedDevice{
			{
				Device:      Device{Token: "gw-1", DeviceTypeID: "gateway"},
				Assignments: []SeedAssignment{{Token: "gw-a1"}, {Token: "gw-a2", Active: &inactive}},
			},
			{Device: Device{Token: "leaf-1", DeviceTypeID: "sensor", ParentToken: "gw-1"}},
		},
		Commands: []Command{{Token: "cmd-ping", Name: "ping"}},
	}

	if err := reg.ApplySeed(context.Background(), seed); err != nil {
		t.Fatalf("ApplySeed() error = %v", err)
	}

	gw, err := reg.GetDeviceByToken(context.Background(), "gw-1")
	if err != nil {
		t.Fatalf("GetDeviceByToken(gw-1) error = %v", err)
	}
	active, err := reg.GetActiveAssignments(context.Background(), gw.ID)
	if err != nil {
		t.Fatalf("GetActiveAssignments() error = %v", err)
	}
	if len(active) != 1 || active[0].Token != "gw-a1" {
		t.Errorf("active assignments = %+v, want only gw-a1", active)
	}
	if reg.CachedDevices() != 2 {
		t.Errorf("CachedDevices() = %d, want 2", reg.CachedDevices())
	}
}

func TestRegistry_ConcurrentLookups(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = &Device{ID: "1", Token: "dev-1", DeviceTypeID: "t"}
	reg := NewRegistry(repo)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.GetDeviceByToken(context.Background(), "dev-1"); err != nil {
				t.Errorf("GetDeviceByToken() error = %v", err)
			}
			if err := reg.RefreshCache(context.Background()); err != nil {
				t.Errorf("RefreshCache() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
