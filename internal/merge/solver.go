// Package merge implements the Merge Solver (spec §4.1): it finds
// equivalence classes of tasks that can be unified and rewrites the working
// plan's graph accordingly.
//
// The solver keeps its own replacement graph (a handle→handle map) on top
// of Plan.Replace, because once Plan.Replace splices a task out of the plan
// its handle is no longer resolvable through plan.TaskByHandle — callers
// holding onto a stale *plan.Task (e.g. a requirement's recorded root,
// spec §4.8 step 5 "apply_merge_to_stored_instances") still need to follow
// the chain to the current representative.
package merge

import (
	"sort"

	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/plan"
)

// Pair is one `from → to` entry of a merge group.
type Pair struct {
	From, To *plan.Task
}

// Solver maintains the replacement graph over one Plan.
type Solver struct {
	plan       *plan.Plan
	replacedBy map[plan.Handle]plan.Handle
}

// New returns a Solver operating on p.
func New(p *plan.Plan) *Solver {
	return &Solver{plan: p, replacedBy: make(map[plan.Handle]plan.Handle)}
}

// ReplacementFor follows the transitive closure of the replacement graph
// and returns the current representative for t.
func (s *Solver) ReplacementFor(t *plan.Task) *plan.Task {
	h := t.Handle
	for {
		next, ok := s.replacedBy[h]
		if !ok {
			break
		}
		h = next
	}
	if h == t.Handle {
		return t
	}
	if real, ok := s.plan.TaskByHandle(h); ok {
		return real
	}
	return t
}

// Merge records that from is replaced by to, redirects every relation
// incident on from onto to via Plan.Replace, and removes from from the
// plan. Both arguments are first resolved through the existing replacement
// graph, so merging an already-replaced task acts on its current
// representative; it is a no-op only when both resolve to the same task.
func (s *Solver) Merge(from, to *plan.Task) error {
	ra := s.ReplacementFor(from)
	rb := s.ReplacementFor(to)
	if ra.Handle == rb.Handle {
		return nil
	}
	if err := s.checkConflict(ra, rb); err != nil {
		return err
	}
	if err := s.plan.Replace(ra, rb); err != nil {
		return err
	}
	s.replacedBy[ra.Handle] = rb.Handle
	return nil
}

// ApplyMergeGroup applies a batch of replacements as a single group (spec
// §4.1's apply_merge_group). Pairs are applied in order, each resolved
// against the replacement graph as updated by the prior pairs in the same
// group, so a chain a→b, b→c collapses correctly.
func (s *Solver) ApplyMergeGroup(pairs []Pair) error {
	for _, pr := range pairs {
		if err := s.Merge(pr.From, pr.To); err != nil {
			return err
		}
	}
	return nil
}

// RegisterReplacement is ApplyMergeGroup for the single-pair case used when
// committing the staging transaction (spec §4.1).
func (s *Solver) RegisterReplacement(proxy, real *plan.Task) error {
	return s.Merge(proxy, real)
}

// checkConflict implements the "connection sets are unioned; conflicting
// policies... fail with MergeConflict" half of spec §4.1. Plan.Replace
// itself performs the structural splice without re-checking for conflicts,
// so the solver must reject an incompatible pair before delegating to it.
func (s *Solver) checkConflict(a, b *plan.Task) error {
	type key struct {
		other plan.Handle
		pair  plan.PortPair
	}
	existingOut := make(map[key]plan.Policy)
	for _, e := range s.plan.DataflowFrom(b) {
		for pair, pol := range e.Connections {
			existingOut[key{e.To, pair}] = pol
		}
	}
	for _, e := range s.plan.DataflowFrom(a) {
		for pair, pol := range e.Connections {
			if ex, ok := existingOut[key{e.To, pair}]; ok && !ex.Equal(pol) {
				return &errs.MergeConflict{
					TaskA: a.String(), TaskB: b.String(),
					SourcePort: pair.Source, SinkPort: pair.Sink,
				}
			}
		}
	}

	existingIn := make(map[key]plan.Policy)
	for _, e := range s.plan.DataflowTo(b) {
		for pair, pol := range e.Connections {
			existingIn[key{e.From, pair}] = pol
		}
	}
	for _, e := range s.plan.DataflowTo(a) {
		for pair, pol := range e.Connections {
			if ex, ok := existingIn[key{e.From, pair}]; ok && !ex.Equal(pol) {
				return &errs.MergeConflict{
					TaskA: a.String(), TaskB: b.String(),
					SourcePort: pair.Source, SinkPort: pair.Sink,
				}
			}
		}
	}
	return nil
}

// Mergeable reports whether a and b satisfy every condition spec §4.1
// requires of a mergeable pair: same concrete model, compatible arguments,
// same (or both-unassigned) execution agent, structurally compatible input
// connections, and no cycle introduced.
func (s *Solver) Mergeable(a, b *plan.Task) bool {
	if a.Handle == b.Handle {
		return false
	}
	if a.Model == nil || b.Model == nil || a.Model.Name != b.Model.Name {
		return false
	}
	if !argumentsCompatible(a, b) {
		return false
	}
	if (a.ExecutionAgent == nil) != (b.ExecutionAgent == nil) {
		return false
	}
	if a.ExecutionAgent != nil && b.ExecutionAgent != nil && a.ExecutionAgent.Handle != b.ExecutionAgent.Handle {
		return false
	}
	if s.checkConflict(a, b) != nil {
		return false
	}
	if s.wouldCreateCycle(a, b) {
		return false
	}
	return true
}

func argumentsCompatible(a, b *plan.Task) bool {
	for name, av := range a.Arguments {
		if !av.Known {
			continue
		}
		if bv, ok := b.Arguments[name]; ok && bv.Known {
			if !av.Value.RawEquals(bv.Value) {
				return false
			}
		}
	}
	return true
}

// wouldCreateCycle reports whether redirecting a's incident edges onto b
// would introduce a cycle: true exactly when b can already reach a through
// dataflow, hierarchy, or dependency edges.
func (s *Solver) wouldCreateCycle(a, b *plan.Task) bool {
	return s.reachable(b, a)
}

func (s *Solver) reachable(from, to *plan.Task) bool {
	seen := map[plan.Handle]bool{from.Handle: true}
	stack := []*plan.Task{from}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if t.Handle == to.Handle {
			return true
		}
		for _, e := range s.plan.DataflowFrom(t) {
			if n, ok := s.plan.TaskByHandle(e.To); ok && !seen[n.Handle] {
				seen[n.Handle] = true
				stack = append(stack, n)
			}
		}
		for _, c := range t.Children {
			if c.Task != nil && !seen[c.Task.Handle] {
				seen[c.Task.Handle] = true
				stack = append(stack, c.Task)
			}
		}
		for _, n := range s.plan.TaskRelationGraphFor(plan.DependencyRelation).Successors(t) {
			if !seen[n.Handle] {
				seen[n.Handle] = true
				stack = append(stack, n)
			}
		}
	}
	return false
}

// preferred implements the tie-break rule of spec §4.1: prefer the
// candidate with more already-assigned arguments; then the one already
// deployed; then stable ordering by creation index.
func preferred(a, b *plan.Task) (winner, loser *plan.Task) {
	if na, nb := a.AssignedArgumentCount(), b.AssignedArgumentCount(); na != nb {
		if na > nb {
			return a, b
		}
		return b, a
	}
	ad, bd := a.ExecutionAgent != nil, b.ExecutionAgent != nil
	if ad != bd {
		if ad {
			return a, b
		}
		return b, a
	}
	if a.CreationIndex <= b.CreationIndex {
		return a, b
	}
	return b, a
}

// MergeIdenticalTasks runs the iterative fixed-point described in spec
// §4.1: repeatedly scan tasks sharing a concrete model for a mergeable
// pair, applying the tie-break rule, until a full pass makes no change.
// Each iteration strictly reduces the task count (a merge removes one
// task) or leaves the plan unchanged, so the loop terminates.
func (s *Solver) MergeIdenticalTasks() error {
	for {
		changed, err := s.mergePass()
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

func (s *Solver) mergePass() (bool, error) {
	groups := make(map[string][]*plan.Task)
	for _, t := range s.plan.AllTasks() {
		if t.Model == nil {
			continue
		}
		groups[t.Model.Name] = append(groups[t.Model.Name], t)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := false
	for _, name := range names {
		group := groups[name]
		sort.Slice(group, func(i, j int) bool { return group[i].CreationIndex < group[j].CreationIndex })
		for i := 0; i < len(group); i++ {
			a := group[i]
			if _, ok := s.plan.TaskByHandle(a.Handle); !ok {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				b := group[j]
				if _, ok := s.plan.TaskByHandle(b.Handle); !ok {
					continue
				}
				if !s.Mergeable(a, b) {
					continue
				}
				winner, loser := preferred(a, b)
				if err := s.Merge(loser, winner); err != nil {
					return changed, err
				}
				changed = true
				break
			}
		}
	}
	return changed, nil
}
