package device

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document applied at startup to populate the resolver.
//
//	devices:
//	  - token: gw-1
//	    device_type: gateway
//	    metadata: {sms_phone: "+15551234567"}
//	    assignments: [{token: gw-1-a}]
//	  - token: sensor-1
//	    device_type: sensor
//	    parent: gw-1
//	commands:
//	  - token: cmd-ping
//	    device_type: sensor
//	    name: ping
type Seed struct {
	Devices  []SeedDevice `yaml:"devices"`
	Commands []Command    `yaml:"commands"`
}

// SeedDevice is a device with its assignments.
type SeedDevice struct {
	Device      `yaml:",inline"`
	Assignments []SeedAssignment `yaml:"assignments"`
}

// SeedAssignment declares an assignment. Active defaults to true.
type SeedAssignment struct {
	Token  string `yaml:"token"`
	Active *bool  `yaml:"active"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed upserts every device, assignment and command in seed, in file
// order, then refreshes the cache. Assignment order in the file is the
// order GetActiveAssignments reports.
func (r *Registry) ApplySeed(ctx context.Context, seed *Seed) error {
	for i := range seed.Devices {
		sd := &seed.Devices[i]
		d := sd.Device
		if err := r.repo.UpsertDevice(ctx, &d); err != nil {
			return fmt.Errorf("seeding device %d: %w", i, err)
		}

		for _, sa := range sd.Assignments {
			a := Assignment{Token: sa.Token, DeviceID: d.ID, Active: sa.Active == nil || *sa.Active}
			if err := r.repo.UpsertAssignment(ctx, &a); err != nil {
				return fmt.Errorf("seeding assignment for %q: %w", d.Token, err)
			}
		}
	}

	for i := range seed.Commands {
		if err := r.repo.UpsertCommand(ctx, &seed.Commands[i]); err != nil {
			return fmt.Errorf("seeding command %d: %w", i, err)
		}
	}

	r.logger.Info("device seed applied", "devices", len(seed.Devices), "commands", len(seed.Commands))
	return r.RefreshCache(ctx)
}
