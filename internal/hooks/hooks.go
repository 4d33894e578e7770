// Package hooks implements the five ordered post-processing hook stages of
// spec §9 ("Registered post-processing hooks"): instantiation,
// instantiated-network, system-network, deployment, and final-network.
// Each stage is an ordered sequence of named callbacks invoked
// synchronously with (context, plan); hooks must not open transactions of
// their own, so they receive the plan directly rather than a transaction
// handle.
package hooks

import (
	"context"
	"fmt"

	"github.com/vk/netgen/internal/plan"
)

// Stage names one of the five registration points in the resolve pipeline.
type Stage int

const (
	Instantiation Stage = iota
	InstantiatedNetwork
	SystemNetwork
	Deployment
	FinalNetwork
)

func (s Stage) String() string {
	switch s {
	case Instantiation:
		return "instantiation"
	case InstantiatedNetwork:
		return "instantiated_network"
	case SystemNetwork:
		return "system_network"
	case Deployment:
		return "deployment"
	default:
		return "final_network"
	}
}

// Func is one hook callback.
type Func func(ctx context.Context, wp *plan.Plan) error

type entry struct {
	name string
	fn   Func
}

// Registry holds the ordered callback list for each stage. The zero value
// is ready to use.
type Registry struct {
	stages map[Stage][]entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[Stage][]entry)}
}

// Register appends fn to the named stage under name. Registering two hooks
// with the same name on the same stage panics, mirroring the teacher
// registry's duplicate-registration guard — this is a programming error
// caught at startup, not a runtime condition to recover from.
func (r *Registry) Register(stage Stage, name string, fn Func) {
	if r.stages == nil {
		r.stages = make(map[Stage][]entry)
	}
	for _, e := range r.stages[stage] {
		if e.name == name {
			panic(fmt.Sprintf("hooks: stage %s already has a hook named %q", stage, name))
		}
	}
	r.stages[stage] = append(r.stages[stage], entry{name: name, fn: fn})
}

// Run invokes every hook registered on stage, in registration order,
// stopping at the first error (spec §7: "no stage recovers internally").
func (r *Registry) Run(ctx context.Context, stage Stage, wp *plan.Plan) error {
	for _, e := range r.stages[stage] {
		if err := e.fn(ctx, wp); err != nil {
			return fmt.Errorf("hook %q on stage %s: %w", e.name, stage, err)
		}
	}
	return nil
}

// Names returns the registered hook names for a stage, in order. Used by
// tests and diagnostics.
func (r *Registry) Names(stage Stage) []string {
	names := make([]string, 0, len(r.stages[stage]))
	for _, e := range r.stages[stage] {
		names = append(names, e.name)
	}
	return names
}
