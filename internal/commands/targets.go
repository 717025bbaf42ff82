package commands

import (
	"fmt"

	"github.com/nerrad567/gray-logic-commands/internal/device"
)

// TargetKindAssignment marks an invocation addressed to one assignment.
const TargetKindAssignment = "assignment"

// TargetPolicy selects which active assignments receive an invocation.
// active is ordered oldest first and never empty.
type TargetPolicy interface {
	Name() string
	Select(inv Invocation, active []device.Assignment) ([]device.Assignment, error)
}

// FirstActive delivers to the oldest active assignment.
type FirstActive struct{}

func (FirstActive) Name() string { return "first_active" }

func (FirstActive) Select(_ Invocation, active []device.Assignment) ([]device.Assignment, error) {
	return active[:1:1], nil
}

// AllActive fans out to every active assignment.
type AllActive struct{}

func (AllActive) Name() string { return "all_active" }

func (AllActive) Select(_ Invocation, active []device.Assignment) ([]device.Assignment, error) {
	out := make([]device.Assignment, len(active))
	copy(out, active)
	return out, nil
}

// ExplicitTarget delivers to the assignment named by the invocation's
// target (TargetKind "assignment", TargetID the assignment token).
type ExplicitTarget struct{}

func (ExplicitTarget) Name() string { return "explicit_target" }

func (ExplicitTarget) Select(inv Invocation, active []device.Assignment) ([]device.Assignment, error) {
	if inv.TargetKind != TargetKindAssignment || inv.TargetID == "" {
		return nil, fmt.Errorf("%w: invocation %q does not target an assignment", ErrData, inv.ID)
	}
	for _, a := range active {
		if a.Token == inv.TargetID {
			return []device.Assignment{a}, nil
		}
	}
	return nil, fmt.Errorf("%w: assignment %q is not active on device %q", ErrData, inv.TargetID, inv.DeviceToken)
}

// TargetPolicyByName returns the policy for a config value. Empty selects
// FirstActive.
func TargetPolicyByName(name string) (TargetPolicy, error) {
	switch name {
	case "", FirstActive{}.Name():
		return FirstActive{}, nil
	case AllActive{}.Name():
		return AllActive{}, nil
	case ExplicitTarget{}.Name():
		return ExplicitTarget{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown target policy %q", ErrConfiguration, name)
	}
}
