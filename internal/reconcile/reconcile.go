// Package reconcile implements the Reconciliation Engine (spec §4.6): once
// the deployed network has been built in the staging transaction, it adapts
// each new deployment instance against whatever the same process is already
// running in the committed plan, reusing compatible task contexts and
// spawning fresh replacements where a reconfiguration requires one.
package reconcile

import (
	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/merge"
	"github.com/vk/netgen/internal/plan"
)

// Engine is the Reconciliation Engine. It holds no state across calls.
type Engine struct{}

// New returns a ready Engine.
func New() *Engine { return &Engine{} }

// Reconcile adapts each deployment instance in newDeployments (the
// KindDeployment tasks the Deployment Selector just materialized in this
// pass) against the running plan, using solver to carry out every merge it
// decides on.
func (e *Engine) Reconcile(tx *plan.Transaction, solver *merge.Solver, newDeployments []*plan.Task) error {
	p := tx.Plan()
	scrub(p)

	for _, d := range newDeployments {
		existing, err := findRunningDeployment(p, d)
		if err != nil {
			return err
		}
		if existing == nil {
			continue
		}
		if err := e.reconcileAgainst(tx, solver, d, existing); err != nil {
			return err
		}
	}
	return nil
}

// findRunningDeployment locates the single, non-finished, non-finishing
// committed deployment with the same process name as d, if any.
func findRunningDeployment(p *plan.Plan, d *plan.Task) (*plan.Task, error) {
	var matches []*plan.Task
	for _, t := range p.AllTasks() {
		if t.Kind != plan.KindDeployment || !t.Committed || t.Handle == d.Handle {
			continue
		}
		if t.ProcessName != d.ProcessName {
			continue
		}
		if !plan.NotFinished(t) || !plan.NotFinishing(t) {
			continue
		}
		matches = append(matches, t)
	}
	if len(matches) > 1 {
		return nil, &errs.InternalError{Reason: "more than one running deployment matches process name " + d.ProcessName}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// reconcileAgainst adapts D's hosted tasks against E's.
func (e *Engine) reconcileAgainst(tx *plan.Transaction, solver *merge.Solver, d, existing *plan.Task) error {
	p := tx.Plan()

	for _, hosted := range append([]*plan.Task(nil), d.HostedTasks...) {
		match := findByOrocosName(existing.HostedTasks, hosted.OrocosName)

		if match != nil && canBeDeployedBy(hosted, match) {
			before := snapshotStaticEdges(p, match)
			if err := solver.Merge(hosted, match); err != nil {
				return err
			}
			survivor := solver.ReplacementFor(match)
			if match.SetupDone && staticPortsChanged(p, before, survivor) {
				if _, err := swapInFreshReplacement(tx, solver, existing, survivor); err != nil {
					return err
				}
			}
			continue
		}

		fresh := tx.NewTask(plan.KindTaskContext, hosted.Model)
		fresh.OrocosName = hosted.OrocosName
		fresh.ExecutionAgent = existing
		existing.HostedTasks = append(existing.HostedTasks, fresh)

		if match != nil {
			detachFromParents(p, match)
			p.AddPlanningOrder(match, fresh)
		}
		if err := solver.Merge(hosted, fresh); err != nil {
			return err
		}
	}

	// Every hosted task has now been merged onto one of existing's own
	// slots, so d itself represents nothing new; collapse it into existing
	// rather than leaving a redundant, unreferenced deployment instance
	// behind.
	if err := solver.Merge(d, existing); err != nil {
		return err
	}

	if finishing := findFinishingDeployment(p, existing.ProcessName); finishing != nil && finishing.Handle != existing.Handle {
		p.AddPlanningOrder(finishing, existing)
	}

	return nil
}

func findByOrocosName(tasks []*plan.Task, name string) *plan.Task {
	var pending *plan.Task
	for _, t := range tasks {
		if t.OrocosName != name {
			continue
		}
		if t.State == plan.Running {
			return t
		}
		if pending == nil {
			pending = t
		}
	}
	return pending
}

func findFinishingDeployment(p *plan.Plan, processName string) *plan.Task {
	for _, t := range p.AllTasks() {
		if t.Kind == plan.KindDeployment && t.ProcessName == processName && t.State == plan.Finishing {
			return t
		}
	}
	return nil
}

// canBeDeployedBy reports whether candidate's model and bound arguments are
// compatible with what running already carries, i.e. running may be reused
// in place of spawning a fresh replacement.
func canBeDeployedBy(candidate, running *plan.Task) bool {
	if candidate.Model == nil || running.Model == nil || candidate.Model.Name != running.Model.Name {
		return false
	}
	for name, v := range candidate.Arguments {
		if existing, ok := running.Arguments[name]; ok && existing.Known && v.Known {
			if !existing.Value.RawEquals(v.Value) {
				return false
			}
		}
	}
	return true
}

// detachFromParents removes t from every composition's Children list,
// leaving it orphaned pending its stop. Its execution agent is left
// unchanged.
func detachFromParents(p *plan.Plan, t *plan.Task) {
	for _, parent := range p.AllTasks() {
		kept := parent.Children[:0]
		for _, c := range parent.Children {
			if c.Task == nil || c.Task.Handle != t.Handle {
				kept = append(kept, c)
			}
		}
		parent.Children = kept
	}
}

type staticEdgeKey struct {
	from plan.Handle
	pair plan.PortPair
}

// snapshotStaticEdges records, for every static input port on t, which
// upstream task currently drives it, so a post-merge comparison can detect
// a static-port change (spec §4.6).
func snapshotStaticEdges(p *plan.Plan, t *plan.Task) map[staticEdgeKey]bool {
	snap := make(map[staticEdgeKey]bool)
	if t.Model == nil {
		return snap
	}
	for _, e := range p.DataflowTo(t) {
		for pair := range e.Connections {
			if port, ok := t.Model.InputPort(pair.Sink); ok && port.Static {
				snap[staticEdgeKey{from: e.From, pair: pair}] = true
			}
		}
	}
	return snap
}

func staticPortsChanged(p *plan.Plan, before map[staticEdgeKey]bool, survivor *plan.Task) bool {
	after := snapshotStaticEdges(p, survivor)
	if len(before) != len(after) {
		return true
	}
	for k := range after {
		if !before[k] {
			return true
		}
	}
	return false
}

// swapInFreshReplacement spawns a fresh task context on the same execution
// agent, orders its configuration after survivor's stop, and merges
// survivor into it so every other reference follows the swap.
func swapInFreshReplacement(tx *plan.Transaction, solver *merge.Solver, agent, survivor *plan.Task) (*plan.Task, error) {
	fresh := tx.NewTask(plan.KindTaskContext, survivor.Model)
	fresh.OrocosName = survivor.OrocosName
	fresh.ExecutionAgent = agent
	agent.HostedTasks = append(agent.HostedTasks, fresh)

	tx.Plan().AddPlanningOrder(survivor, fresh)

	if err := solver.Merge(survivor, fresh); err != nil {
		return nil, err
	}
	return solver.ReplacementFor(fresh), nil
}

// scrub implements the pre-merge cleanup spec §4.6 requires: a
// non-reusable task has its edges cleared, an abstract proxy is removed
// outright, and any dataflow connection whose port pair is no longer
// present on both endpoints' models is dropped.
func scrub(p *plan.Plan) {
	for _, t := range p.AllTasks() {
		if t.Abstract && t.TransactionProxy {
			p.RemoveTask(t)
			continue
		}
		if !t.Reusable {
			p.ClearEdges(t)
		}
	}

	for _, t := range p.AllTasks() {
		for _, e := range p.DataflowFrom(t) {
			to, ok := p.TaskByHandle(e.To)
			if !ok {
				continue
			}
			for pair := range e.Connections {
				if !portPairValid(t, to, pair) {
					p.RemoveDataflowEdge(t, to, pair)
				}
			}
		}
	}
}

func portPairValid(from, to *plan.Task, pair plan.PortPair) bool {
	if from.Model == nil || to.Model == nil {
		return false
	}
	if _, ok := from.Model.OutputPort(pair.Source); !ok {
		return false
	}
	if _, ok := to.Model.InputPort(pair.Sink); !ok {
		return false
	}
	return true
}
