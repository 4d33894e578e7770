// Package resolver implements the Pipeline Driver (spec §4.8): the
// `Resolve` entry point that sequences every other stage package
// (instantiate, merge, buslink, deploy, reconcile, validate) into the full
// seven-step resolve pass, with the `on_error` failure disposition.
package resolver

import (
	"context"
	"errors"

	"github.com/vk/netgen/internal/buslink"
	"github.com/vk/netgen/internal/ctxlog"
	"github.com/vk/netgen/internal/deploy"
	"github.com/vk/netgen/internal/dotgraph"
	"github.com/vk/netgen/internal/hooks"
	"github.com/vk/netgen/internal/instantiate"
	"github.com/vk/netgen/internal/merge"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
	"github.com/vk/netgen/internal/reconcile"
	"github.com/vk/netgen/internal/validate"
)

// ErrorDisposition selects what happens to the staging transaction when
// resolve fails (spec §4.8 "Failure policy").
type ErrorDisposition int

const (
	// Drop discards the staging transaction; the real plan is unmodified.
	Drop ErrorDisposition = iota
	// Save dumps dataflow/hierarchy dot files before discarding.
	Save
	// Commit commits the staging state anyway, for debugging.
	Commit
)

// Options configures one Resolve call (spec §6's configuration table).
type Options struct {
	// RequirementTasks overrides the set of requirements; nil discovers
	// them from the real plan's registered requirements.
	RequirementTasks []*plan.RequirementTask

	// ComputeDeployments, if false, stops after the abstract/generated
	// network; no deployment selection or reconciliation runs.
	ComputeDeployments bool
	// GarbageCollect, if false, retains instantiated-but-unused tasks
	// (debug).
	GarbageCollect bool

	// ValidateAbstractNetwork, ValidateGeneratedNetwork,
	// ValidateDeployedNetwork, ValidateFinalNetwork individually enable or
	// disable each Validator Suite stage.
	ValidateAbstractNetwork  bool
	ValidateGeneratedNetwork bool
	ValidateDeployedNetwork  bool
	ValidateFinalNetwork     bool

	// SavePlans always dumps dot files on success (debug), in addition to
	// whatever OnError dictates on failure.
	SavePlans bool
	// OnError selects the staging transaction's post-failure disposition.
	OnError ErrorDisposition
	// DotDir is the destination directory for dot dumps (Save/SavePlans).
	DotDir string
	// DotIndex distinguishes successive dumps from the same process.
	DotIndex int
}

// DefaultOptions returns the options every stage runs with unless
// overridden.
func DefaultOptions() Options {
	return Options{
		ComputeDeployments:       true,
		GarbageCollect:           true,
		ValidateAbstractNetwork:  true,
		ValidateGeneratedNetwork: true,
		ValidateDeployedNetwork:  true,
		ValidateFinalNetwork:     true,
		OnError:                  Drop,
	}
}

// Resolver is the Pipeline Driver. It is stateless across Resolve calls
// except for the injected registry and hook registry (spec §9's "expose
// global registries as a single configuration object injected into the
// engine constructor").
type Resolver struct {
	registry *portmodel.Registry
	hooks    *hooks.Registry
}

// New returns a Resolver driven by reg and hookReg. hookReg may be nil if
// no post-processing hooks are registered.
func New(reg *portmodel.Registry, hookReg *hooks.Registry) *Resolver {
	return &Resolver{registry: reg, hooks: hookReg}
}

// runHooks runs stage's hooks if a hook registry was supplied; a Resolver
// constructed with a nil registry simply has no hooks on any stage.
func (r *Resolver) runHooks(ctx context.Context, stage hooks.Stage, p *plan.Plan) error {
	if r.hooks == nil {
		return nil
	}
	return r.hooks.Run(ctx, stage, p)
}

// Resolve runs one full resolve pass against p (spec §4.8). On success the
// staging transaction is committed into p. On failure, opts.OnError decides
// whether to save dot dumps, commit the half-built state anyway, or drop
// it; the finalize step always releases the transaction.
func (r *Resolver) Resolve(ctx context.Context, p *plan.Plan, opts Options) error {
	log := ctxlog.FromContext(ctx)
	tx := p.Begin()
	solver := merge.New(p)

	reqs := opts.RequirementTasks
	if reqs == nil {
		reqs = p.Requirements()
	}

	in := instantiate.New(r.registry, r.hooks)

	err := r.runPipeline(ctx, tx, solver, in, reqs, opts)
	if err != nil {
		log.Error("resolve failed", "error", err)
		return r.fail(p, tx, opts, err)
	}

	if opts.SavePlans {
		r.dump(p, opts)
	}

	if err := tx.Commit(); err != nil {
		return r.fail(p, tx, opts, err)
	}
	return nil
}

func (r *Resolver) runPipeline(ctx context.Context, tx *plan.Transaction, solver *merge.Solver, in *instantiate.Instantiator, reqs []*plan.RequirementTask, opts Options) error {
	p := tx.Plan()

	if err := r.computeSystemNetwork(ctx, tx, solver, in, reqs, opts); err != nil {
		return err
	}

	var instances []*plan.Task
	if opts.ComputeDeployments {
		idx := deploy.Build(r.registry)
		selector := deploy.NewSelector(idx, r.registry)
		if err := selector.SelectAll(tx, solver); err != nil {
			return err
		}
		if opts.ValidateDeployedNetwork {
			if err := validate.DeployedNetwork(p, idx); err != nil {
				return err
			}
		}
		if err := r.runHooks(ctx, hooks.Deployment, p); err != nil {
			return err
		}
		instances = selector.Instances()

		if err := reconcile.New().Reconcile(tx, solver, instances); err != nil {
			return err
		}
	}

	if err := fixToplevelTasks(solver, in, reqs); err != nil {
		return err
	}

	if err := r.runHooks(ctx, hooks.FinalNetwork, p); err != nil {
		return err
	}
	if opts.ValidateFinalNetwork {
		if err := validate.FinalNetwork(p); err != nil {
			return err
		}
	}

	return nil
}

// computeSystemNetwork implements spec §4.8 step 2: instantiate, merge,
// run instantiated-network hooks, link to busses, merge again, narrow
// optional composition children, static-garbage-collect, run
// system-network hooks, then validate the abstract and generated networks.
//
// Step 2's "freeze default configuration" sub-step has no effect here: the
// component-model registry in this engine carries no default-argument
// metadata (a Requirement is expected to supply every argument it cares
// about at instantiation time), so there is nothing to freeze.
func (r *Resolver) computeSystemNetwork(ctx context.Context, tx *plan.Transaction, solver *merge.Solver, in *instantiate.Instantiator, reqs []*plan.RequirementTask, opts Options) error {
	p := tx.Plan()

	if err := in.InstantiateAll(ctx, tx, reqs); err != nil {
		return err
	}
	if err := solver.MergeIdenticalTasks(); err != nil {
		return err
	}

	if err := r.runHooks(ctx, hooks.InstantiatedNetwork, p); err != nil {
		return err
	}

	buslink.New().LinkAll(p)
	if err := solver.MergeIdenticalTasks(); err != nil {
		return err
	}

	narrowOptionalChildren(p)

	if opts.GarbageCollect {
		p.StaticGarbageCollect(nil)
	}

	for _, resolved := range in.RequiredInstances() {
		tx.UnmarkPermanent(resolved.Task)
	}

	if err := r.runHooks(ctx, hooks.SystemNetwork, p); err != nil {
		return err
	}

	if opts.ValidateAbstractNetwork {
		if err := validate.AbstractNetwork(p); err != nil {
			return err
		}
	}
	if opts.ValidateGeneratedNetwork {
		if err := validate.GeneratedNetwork(p); err != nil {
			return err
		}
	}
	return nil
}

// narrowOptionalChildren implements spec §4.8 step 2's unresolved-child
// cleanup: an unresolved (still-abstract) child task may be bound into its
// parent composition under more than one role slot, each independently
// marked optional or not. If every role it was bound under turns out to be
// optional, the child is dropped entirely; otherwise its optional role
// slots are dropped and the remaining, required ones are kept with their
// ChildRef.Roles narrowed to exactly that required set. A Requirement that
// resolves its own children (internal/instantiate's BasicRequirement
// included) already omits a lone optional, unselected slot at instantiation
// time; this is the safety net for a Requirement implementation that does
// not, and for the genuinely multi-role diamond case neither implementation
// avoids up front.
func narrowOptionalChildren(p *plan.Plan) {
	for _, t := range p.AllTasks() {
		if t.Kind != plan.KindComposition {
			continue
		}

		slotsByChild := make(map[plan.Handle][]int)
		for i, c := range t.Children {
			if c.Task != nil && c.Task.Abstract {
				slotsByChild[c.Task.Handle] = append(slotsByChild[c.Task.Handle], i)
			}
		}

		drop := make(map[int]bool)
		for handle, idxs := range slotsByChild {
			allOptional := true
			for _, i := range idxs {
				if !t.Children[i].Optional {
					allOptional = false
					break
				}
			}

			child, _ := p.TaskByHandle(handle)
			if allOptional {
				for _, i := range idxs {
					drop[i] = true
				}
				if child != nil {
					delete(child.Roles, t.Handle)
				}
				continue
			}

			var required []string
			for _, i := range idxs {
				if t.Children[i].Optional {
					drop[i] = true
				} else {
					required = append(required, t.Children[i].Name)
				}
			}
			for _, i := range idxs {
				if !drop[i] {
					t.Children[i].Roles = required
				}
			}
			if child != nil {
				child.Roles[t.Handle] = required
			}
		}

		if len(drop) == 0 {
			continue
		}
		kept := t.Children[:0]
		for i, c := range t.Children {
			if !drop[i] {
				kept = append(kept, c)
			}
		}
		t.Children = kept
	}
}

// fixToplevelTasks implements spec §4.8 steps 5-6: every requirement's
// placeholder is replaced by its resolved (and, by now, deployed and
// reconciled) task. Plan.Replace already rewrites required_instances and
// redirects every relation — including the planning relation — incident on
// the placeholder, so "rewrite required_instances through the replacement
// graph" and "switch the planning relation" both fall out of the one
// RegisterReplacement call.
func fixToplevelTasks(solver *merge.Solver, in *instantiate.Instantiator, reqs []*plan.RequirementTask) error {
	for _, req := range reqs {
		resolved, ok := in.RequiredInstances()[req.Placeholder.Handle]
		if !ok {
			continue
		}
		final := solver.ReplacementFor(resolved.Task)
		if req.Placeholder.Handle == final.Handle {
			continue
		}
		if err := solver.RegisterReplacement(req.Placeholder, final); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) fail(p *plan.Plan, tx *plan.Transaction, opts Options, cause error) error {
	switch opts.OnError {
	case Save:
		r.dump(p, opts)
		if err := tx.Discard(); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	case Commit:
		if err := tx.Commit(); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	default: // Drop
		if err := tx.Discard(); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	}
}

func (r *Resolver) dump(p *plan.Plan, opts Options) {
	o := dotgraph.Options{Dir: opts.DotDir, Index: opts.DotIndex}
	_ = dotgraph.Dataflow(p, o)
	_ = dotgraph.Hierarchy(p, o)
}
