package plan

import "context"

// Requirement is the external collaborator of spec §6: "an external
// planner task whose requirements field is an Instance Requirements
// object". A caller embedding this engine in a larger framework supplies
// its own Requirement implementations; internal/instantiate ships a
// concrete default (BasicRequirement) driven by a component-model
// registry, so the engine is runnable standalone.
type Requirement interface {
	// FulfilledModel names the component model this requirement expects
	// its instantiated task to fulfill.
	FulfilledModel() string
	// ResolvedDependencyInjection maps a master-driver-service argument
	// name (e.g. "camera_dev") to the selected device name, ahead of
	// instantiation.
	ResolvedDependencyInjection() map[string]string
	// Instantiate produces the concrete subgraph this requirement asks
	// for, rooted at the returned task, within tx.
	Instantiate(ctx context.Context, tx *Transaction) (*Task, error)
}

// RequirementTask pairs one Requirement with the abstract placeholder Task
// the instantiator will eventually merge away once a concrete task is
// available (spec §3's "Requirement Task").
type RequirementTask struct {
	Requirement Requirement
	Placeholder *Task
}

// FindDeviceByName returns the existing device task with the given
// identifying name, if one is already present in the plan. Device
// allocation (spec §4.2) reuses it instead of creating a duplicate, which
// is what keeps repeated resolve passes idempotent (spec §8, P1).
func (p *Plan) FindDeviceByName(name string) (*Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.tasks {
		if t.Kind == KindDevice && t.OrocosName == name {
			return t, true
		}
	}
	return nil, false
}
