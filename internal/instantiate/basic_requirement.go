package instantiate

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
	"github.com/zclconf/go-cty/cty"
)

// BasicRequirement is the concrete default Requirement implementation
// (spec §6's "Requirement" external collaborator): it expands a named
// component model into a task tree purely from the component-model
// registry's declared children, with no framework-specific instantiation
// logic beyond a registry-driven specialization search for abstract child
// models. A caller with richer requirement semantics supplies its own
// plan.Requirement instead.
type BasicRequirement struct {
	registry   *portmodel.Registry
	model      string
	selections map[string]string
	arguments  map[string]cty.Value
	strict     bool
}

// NewBasicRequirement builds a requirement asking for an instance of
// model, with child selections and fixed argument overrides.
func NewBasicRequirement(reg *portmodel.Registry, model string, selections map[string]string, arguments map[string]cty.Value) *BasicRequirement {
	return &BasicRequirement{registry: reg, model: model, selections: selections, arguments: arguments}
}

// WithStrictMode toggles strict specialization mode (spec §9's
// AmbiguousSpecialization): when a composition child names an abstract
// model with no explicit selection and more than one registered model
// fulfills it, strict mode reports the ambiguity instead of picking one by
// stable name order. Returns r for chaining.
func (r *BasicRequirement) WithStrictMode(strict bool) *BasicRequirement {
	r.strict = strict
	return r
}

func (r *BasicRequirement) FulfilledModel() string { return r.model }

func (r *BasicRequirement) ResolvedDependencyInjection() map[string]string { return r.selections }

// Instantiate builds the subgraph for r.model: a composition's named
// children are resolved either by the requirement's own selections (keyed
// by child name) or, if the child model is already concrete, directly. An
// optional child with no selection is skipped. Any other child naming an
// abstract model goes through resolveSpecialization; if no registered model
// fulfills it, an optional child is skipped and a required one is an
// InternalError.
func (r *BasicRequirement) Instantiate(ctx context.Context, tx *plan.Transaction) (*plan.Task, error) {
	return r.instantiateModel(tx, r.model)
}

func (r *BasicRequirement) instantiateModel(tx *plan.Transaction, modelName string) (*plan.Task, error) {
	model, ok := r.registry.ModelFor(modelName)
	if !ok {
		if sel, ok := r.selections[modelName]; ok {
			model, ok = r.registry.ModelFor(sel)
			if !ok {
				return nil, fmt.Errorf("instantiate: selected model %q for %q not found in registry", sel, modelName)
			}
		}
	}
	if err := internalErrorIfNil(model, modelName); err != nil {
		return nil, err
	}

	kind := plan.KindTaskContext
	if model.Role == portmodel.RoleComposition {
		kind = plan.KindComposition
	} else if model.Role == portmodel.RoleDevice {
		kind = plan.KindDevice
	}

	task := tx.NewTask(kind, model)
	for name, v := range r.arguments {
		if _, isPort := model.InputPort(name); isPort {
			continue
		}
		task.SetArgument(name, v)
	}

	for _, child := range model.Children {
		sel, hasSelection := r.selections[child.Name]
		if child.Optional && !hasSelection {
			continue // optional child with no explicit selection is left unresolved (spec scenario 5)
		}

		childModelName := child.Model
		if hasSelection {
			childModelName = sel
		}
		childModel, err := r.resolveSpecialization(childModelName, fmt.Sprintf("%s.%s", task.String(), child.Name))
		if err != nil {
			return nil, err
		}
		if childModel == nil {
			if !child.Optional {
				return nil, &errs.InternalError{Reason: fmt.Sprintf("component model %q (child %q of %q) not found in registry", childModelName, child.Name, modelName)}
			}
			continue // unresolved optional child; left for the optional-child-narrowing step
		}
		childTask, err := r.instantiateModel(tx, childModel.Name)
		if err != nil {
			return nil, err
		}
		childTask.Roles[task.Handle] = append(childTask.Roles[task.Handle], child.Name)
		task.Children = append(task.Children, plan.ChildRef{Name: child.Name, Task: childTask, Optional: child.Optional})
	}

	return task, nil
}

// resolveSpecialization resolves name to a concrete component model. If name
// is itself a registered model it is returned directly. Otherwise name is
// treated as an abstract category and the registry is searched for every
// model that fulfills it (composition specialization selection, spec §9):
// zero matches report unresolved (nil, nil), exactly one is the obvious
// choice, and more than one is only an error when r.strict is set
// (AmbiguousSpecialization) — otherwise the ambiguity is broken by stable
// name ordering so the result stays deterministic.
func (r *BasicRequirement) resolveSpecialization(name, taskID string) (*portmodel.ComponentModel, error) {
	if model, ok := r.registry.ModelFor(name); ok {
		return model, nil
	}

	var candidates []*portmodel.ComponentModel
	r.registry.EachSubmodel(name, func(m *portmodel.ComponentModel) {
		candidates = append(candidates, m)
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		if !r.strict {
			return candidates[0], nil
		}
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Name
		}
		return nil, &errs.AmbiguousSpecialization{TaskID: taskID, Candidates: names}
	}
}
