// Package instantiate implements the Instantiator (spec §4.2): for each
// requirement task it expands a concrete subgraph rooted at one task,
// allocates devices from the requirement's dependency-injection
// selections, and records the fulfilled-model triple the resolver later
// rewrites required_instances through.
package instantiate

import (
	"context"
	"fmt"

	"github.com/vk/netgen/internal/ctxlog"
	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/hooks"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
	"github.com/zclconf/go-cty/cty"
)

func stringArgument(v string) cty.Value { return cty.StringVal(v) }

// ResolvedRoot is the fulfilled-model triple spec §4.2 tags a newly
// instantiated root with: the concrete model, the data-service models it
// also provides (its fulfilled models restricted to data services), and
// the subset of arguments retained from the actual task.
type ResolvedRoot struct {
	Task            *plan.Task
	Model           *portmodel.ComponentModel
	DataServices    []string
	RetainedArgs    map[string]bool
}

// Instantiator expands requirement tasks into concrete subgraphs.
type Instantiator struct {
	registry *portmodel.Registry
	hooks    *hooks.Registry

	// required maps a requirement's placeholder handle to the root task
	// instantiated for it, for the resolver's later apply_merge_to_stored_instances
	// / fix_toplevel_tasks steps (spec §4.8 steps 5-6).
	required map[plan.Handle]*ResolvedRoot
}

// New returns an Instantiator backed by reg. hookReg may be nil, in which
// case no post-instantiation hooks run.
func New(reg *portmodel.Registry, hookReg *hooks.Registry) *Instantiator {
	return &Instantiator{registry: reg, hooks: hookReg, required: make(map[plan.Handle]*ResolvedRoot)}
}

// RequiredInstances returns the requirement→resolved-root map built by the
// most recent InstantiateAll call.
func (in *Instantiator) RequiredInstances() map[plan.Handle]*ResolvedRoot {
	return in.required
}

// InstantiateAll expands every requirement task in reqs, in turn, and runs the registered Instantiation-stage hooks once per
// requirement (spec §4.2 "post-instantiation hooks run in registration
// order").
func (in *Instantiator) InstantiateAll(ctx context.Context, tx *plan.Transaction, reqs []*plan.RequirementTask) error {
	logger := ctxlog.FromContext(ctx)
	for _, req := range reqs {
		root, err := req.Requirement.Instantiate(ctx, tx)
		if err != nil {
			return fmt.Errorf("instantiating requirement for model %q: %w", req.Requirement.FulfilledModel(), err)
		}
		tx.MarkPermanent(root)

		if err := in.allocateDevices(tx, root, req.Requirement.ResolvedDependencyInjection()); err != nil {
			return err
		}

		model := root.Model
		resolved := &ResolvedRoot{Task: root, Model: model, RetainedArgs: make(map[string]bool)}
		if model != nil {
			for _, f := range model.FulfilledModels {
				if sub, ok := in.registry.ModelFor(f); ok && sub.Role == portmodel.RoleDataService {
					resolved.DataServices = append(resolved.DataServices, f)
				}
			}
		}
		for name, v := range root.Arguments {
			if v.Known {
				resolved.RetainedArgs[name] = true
			}
		}
		in.required[req.Placeholder.Handle] = resolved

		if in.hooks != nil {
			if err := in.hooks.Run(ctx, hooks.Instantiation, tx.Plan()); err != nil {
				return err
			}
		}
		logger.Debug("Requirement instantiated.", "model", req.Requirement.FulfilledModel(), "root", root.String())
	}
	return nil
}

// allocateDevices implements the device-allocation pass: for every
// device-carrying task in root's subtree, for each master driver service
// with no device yet bound, it looks up "<service>_dev" in selections, the
// requirement's one dependency-injection map; a service with no entry is
// left unset (the validator reports it). Selections are not gathered per
// ancestor, so disagreeing ancestor selections are not detected.
//
// Per spec §9's note on diamond-shaped ancestor traversal, the memoization
// here is scoped to this single call: a device name resolves to the same
// *plan.Task object for every descendant task processed within this
// InstantiateAll pass, whether or not one already exists in the plan from
// a prior resolve.
func (in *Instantiator) allocateDevices(tx *plan.Transaction, root *plan.Task, selections map[string]string) error {
	memo := make(map[string]*plan.Task)
	var walk func(t *plan.Task) error
	walk = func(t *plan.Task) error {
		if t.Caps.Has(plan.HasMasterDrivers) && t.Model != nil {
			for _, svc := range t.Model.MasterDrivers {
				if _, bound := t.Devices[svc.Name]; bound {
					continue
				}
				deviceName, ok := selections[svc.ArgName()]
				if !ok {
					continue // left unset; validator reports DeviceAllocationFailed
				}
				dev, ok := memo[deviceName]
				if !ok {
					if existing, found := tx.Plan().FindDeviceByName(deviceName); found {
						dev = existing
					} else {
						dev = tx.NewTask(plan.KindDevice, nil)
						dev.OrocosName = deviceName
					}
					memo[deviceName] = dev
				}
				t.Devices[svc.Name] = dev
				t.SetArgument(svc.ArgName(), stringArgument(deviceName))
			}
		}
		for _, c := range t.Children {
			if c.Task != nil {
				if err := walk(c.Task); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return err
	}
	return nil
}

// internalErrorIfNil is a small guard used by BasicRequirement.Instantiate
// to turn an unreachable nil-model case into the typed InternalError spec
// §9 asks for, instead of a panic.
func internalErrorIfNil(model *portmodel.ComponentModel, modelName string) error {
	if model == nil {
		return &errs.InternalError{Reason: fmt.Sprintf("component model %q not found in registry", modelName)}
	}
	return nil
}
