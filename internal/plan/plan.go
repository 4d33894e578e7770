package plan

import (
	"sync"

	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/portmodel"
)

// Plan is the in-memory default implementation of the plan-database engine
// external collaborator (spec §6). It holds every task the resolver knows
// about — both the long-lived, already-committed network and, while a
// Transaction is open, the tasks that transaction has created — plus the
// dataflow edges and relation graphs between them.
//
// Plan is safe for concurrent use; the resolver pipeline itself runs one
// stage at a time, but callers inspecting a committed Plan from another
// goroutine (e.g. a status endpoint) need not synchronize externally.
type Plan struct {
	mu sync.RWMutex

	tasks     map[Handle]*Task
	edges     map[Handle][]*Edge // outgoing, keyed by From
	relations map[Relation]map[Handle]map[Handle]struct{}

	requirements map[Handle]*RequirementTask

	creationCounter int
}

// New returns an empty Plan.
func New() *Plan {
	return &Plan{
		tasks: make(map[Handle]*Task),
		edges: make(map[Handle][]*Edge),
		relations: map[Relation]map[Handle]map[Handle]struct{}{
			DependencyRelation: make(map[Handle]map[Handle]struct{}),
			PlanningRelation:   make(map[Handle]map[Handle]struct{}),
		},
		requirements: make(map[Handle]*RequirementTask),
	}
}

// newTaskLocked allocates and inserts a new task. Caller must hold mu.
func (p *Plan) newTaskLocked(kind Kind, model *portmodel.ComponentModel) *Task {
	p.creationCounter++
	t := newTask(kind, model, p.creationCounter)
	p.tasks[t.Handle] = t
	return t
}

// NewTask allocates a fresh, non-permanent, non-committed task of the given
// kind and inserts it into the plan directly. Most callers go through a
// Transaction instead so the allocation is tracked for discard/commit; this
// method exists for building the initial committed network in tests and
// for the Transaction's own bookkeeping.
func (p *Plan) NewTask(kind Kind, model *portmodel.ComponentModel) *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.newTaskLocked(kind, model)
}

// Add inserts a task created elsewhere (e.g. by a Transaction) into the
// plan's bookkeeping. It is a no-op if the task is already present.
func (p *Plan) Add(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tasks[t.Handle]; ok {
		return
	}
	if t.CreationIndex == 0 {
		p.creationCounter++
		t.CreationIndex = p.creationCounter
	}
	p.tasks[t.Handle] = t
}

// AddPermanentTask marks t as a GC root and ensures it is present in the plan.
func (p *Plan) AddPermanentTask(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tasks[t.Handle]; !ok {
		p.tasks[t.Handle] = t
	}
	t.Permanent = true
}

// UnmarkPermanentTask clears t's GC-root flag. The task itself is left in
// place until the next StaticGarbageCollect pass.
func (p *Plan) UnmarkPermanentTask(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.Permanent = false
}

// RemoveTask drops a task and every edge or relation referencing it.
func (p *Plan) RemoveTask(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeTaskLocked(t.Handle)
}

func (p *Plan) removeTaskLocked(h Handle) {
	delete(p.tasks, h)
	delete(p.edges, h)
	for from, tos := range p.edges {
		kept := tos[:0]
		for _, e := range tos {
			if e.To != h {
				kept = append(kept, e)
			}
		}
		p.edges[from] = kept
	}
	for _, rel := range p.relations {
		delete(rel, h)
		for _, tos := range rel {
			delete(tos, h)
		}
	}
	delete(p.requirements, h)
}

// ClearEdges drops every dataflow edge and relation incident on t (as
// either endpoint) without removing t itself from the plan. Used by
// reconciliation's non-reusable-task scrub (spec §4.6).
func (p *Plan) ClearEdges(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.edges, t.Handle)
	for from, tos := range p.edges {
		kept := tos[:0]
		for _, e := range tos {
			if e.To != t.Handle {
				kept = append(kept, e)
			}
		}
		p.edges[from] = kept
	}
	for _, rel := range p.relations {
		delete(rel, t.Handle)
		for _, tos := range rel {
			delete(tos, t.Handle)
		}
	}
}

// RemoveDataflowEdge drops the single connection for pair on the edge from
// `from` to `to`, if present, pruning the edge entirely once it carries no
// connections. Used to drop stale connections whose port pair is no longer
// present on both endpoints after a reconfiguration (spec §4.6).
func (p *Plan) RemoveDataflowEdge(from, to *Task, pair PortPair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tos := p.edges[from.Handle]
	kept := tos[:0]
	for _, e := range tos {
		if e.To == to.Handle {
			delete(e.Connections, pair)
			if len(e.Connections) == 0 {
				continue
			}
		}
		kept = append(kept, e)
	}
	p.edges[from.Handle] = kept
}

// Replace redirects every edge, relation, requirement placeholder, and
// parent-child slot pointing at `from` to point at `to`, then removes
// `from` from the plan. This is the core of merge_identical_tasks
// (spec §4.1) and of reconciliation's task-context reuse (spec §4.6).
func (p *Plan) Replace(from, to *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if from.Handle == to.Handle {
		return nil
	}
	if _, ok := p.tasks[from.Handle]; !ok {
		return &errs.InternalError{Reason: "Replace: source task not present in plan"}
	}

	for _, e := range p.edges[from.Handle] {
		if e.To == from.Handle { // self-loop edge case, avoid re-adding as to->to
			continue
		}
		p.edges[to.Handle] = append(p.edges[to.Handle], &Edge{From: to.Handle, To: e.To, Connections: e.Connections})
	}
	for h, tos := range p.edges {
		for i := range tos {
			if tos[i].To == from.Handle {
				tos[i].To = to.Handle
			}
		}
		p.edges[h] = tos
	}

	for _, rel := range p.relations {
		if froms, ok := rel[from.Handle]; ok {
			if rel[to.Handle] == nil {
				rel[to.Handle] = make(map[Handle]struct{})
			}
			for h := range froms {
				rel[to.Handle][h] = struct{}{}
			}
		}
		for _, tos := range rel {
			if _, ok := tos[from.Handle]; ok {
				delete(tos, from.Handle)
				tos[to.Handle] = struct{}{}
			}
		}
	}

	for _, parent := range p.tasks {
		for i := range parent.Children {
			if parent.Children[i].Task != nil && parent.Children[i].Task.Handle == from.Handle {
				parent.Children[i].Task = to
			}
		}
		if parent.ExecutionAgent != nil && parent.ExecutionAgent.Handle == from.Handle {
			parent.ExecutionAgent = to
		}
		for i, ht := range parent.HostedTasks {
			if ht.Handle == from.Handle {
				parent.HostedTasks[i] = to
			}
		}
	}

	if req, ok := p.requirements[from.Handle]; ok {
		req.Placeholder = to
		p.requirements[to.Handle] = req
		delete(p.requirements, from.Handle)
	}

	if from.Permanent {
		to.Permanent = true
	}

	unionTaskState(from, to)

	p.removeTaskLocked(from.Handle)
	return nil
}

// unionTaskState merges from's own argument/device/child/role bindings
// into to, for every key to does not already carry. Edges and relations
// are redirected by Replace itself; this only covers the fields a Task
// carries directly, so a merge genuinely unifies both sides rather than
// silently dropping whichever task is not kept.
func unionTaskState(from, to *Task) {
	for name, v := range from.Arguments {
		if _, ok := to.Arguments[name]; !ok {
			to.Arguments[name] = v
		}
	}
	for name, dev := range from.Devices {
		if _, ok := to.Devices[name]; !ok {
			to.Devices[name] = dev
		}
	}
	if len(to.Children) == 0 && len(from.Children) > 0 {
		to.Children = from.Children
	}
	for parent, roles := range from.Roles {
		to.Roles[parent] = append(to.Roles[parent], roles...)
	}
	if to.OrocosName == "" {
		to.OrocosName = from.OrocosName
	}
	if len(to.DeploymentHints) == 0 {
		to.DeploymentHints = from.DeploymentHints
	}
	if to.ExecutionAgent == nil {
		to.ExecutionAgent = from.ExecutionAgent
	}
	if from.SetupDone {
		to.SetupDone = true
	}
}

// AddDependency records `from.depends_on(to)` (spec §4.3): from requires to
// to remain present, so to must not be finished before from.
func (p *Plan) AddDependency(from, to *Task) { p.addRelation(DependencyRelation, from, to) }

// AddPlanningOrder records that to is ordered after an event of from, e.g.
// "task.configure after bus.start" (spec §4.3) or "t''.configure after
// t'.stop" (spec §4.6). The relation does not record which event of from
// is meant.
func (p *Plan) AddPlanningOrder(from, to *Task) { p.addRelation(PlanningRelation, from, to) }

func (p *Plan) addRelation(rel Relation, from, to *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.relations[rel][from.Handle] == nil {
		p.relations[rel][from.Handle] = make(map[Handle]struct{})
	}
	p.relations[rel][from.Handle][to.Handle] = struct{}{}
}

// RelationView exposes one relation's adjacency for traversal; it is the
// in-memory shape returned by TaskRelationGraphFor (spec §6).
type RelationView struct {
	kind Relation
	p    *Plan
}

// TaskRelationGraphFor returns a view over the named relation.
func (p *Plan) TaskRelationGraphFor(rel Relation) RelationView {
	return RelationView{kind: rel, p: p}
}

// Successors returns every task `t` points to in this relation.
func (v RelationView) Successors(t *Task) []*Task {
	v.p.mu.RLock()
	defer v.p.mu.RUnlock()
	var out []*Task
	for h := range v.p.relations[v.kind][t.Handle] {
		if task, ok := v.p.tasks[h]; ok {
			out = append(out, task)
		}
	}
	return out
}

// Predecessors returns every task that points to `t` in this relation.
func (v RelationView) Predecessors(t *Task) []*Task {
	v.p.mu.RLock()
	defer v.p.mu.RUnlock()
	var out []*Task
	for from, tos := range v.p.relations[v.kind] {
		if _, ok := tos[t.Handle]; ok {
			if task, ok := v.p.tasks[from]; ok {
				out = append(out, task)
			}
		}
	}
	return out
}

// AddDataflow records (or merges into) a Dataflow Edge between two tasks.
// A second call for the same (from, to, PortPair) with a different Policy
// is rejected: dataflow specifications must agree once connected, which is
// exactly what I3/the merge solver's conflicting-allocation check relies on.
func (p *Plan) AddDataflow(from, to *Task, pair PortPair, pol Policy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.edges[from.Handle] {
		if e.To == to.Handle {
			if existing, ok := e.Connections[pair]; ok {
				if !existing.Equal(pol) {
					return &errs.MultiplexingError{
						TaskID:   to.String(),
						PortName: pair.Sink,
						Sources:  []string{from.String(), pair.Source},
					}
				}
				return nil
			}
			e.Connections[pair] = pol
			return nil
		}
	}
	p.edges[from.Handle] = append(p.edges[from.Handle], &Edge{
		From: from.Handle, To: to.Handle,
		Connections: map[PortPair]Policy{pair: pol},
	})
	return nil
}

// DataflowFrom returns every dataflow edge leaving t.
func (p *Plan) DataflowFrom(t *Task) []*Edge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Edge, len(p.edges[t.Handle]))
	copy(out, p.edges[t.Handle])
	return out
}

// DataflowTo returns every dataflow edge entering t.
func (p *Plan) DataflowTo(t *Task) []*Edge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Edge
	for _, tos := range p.edges {
		for _, e := range tos {
			if e.To == t.Handle {
				out = append(out, e)
			}
		}
	}
	return out
}

// AllTasks returns every task currently in the plan, in creation order.
func (p *Plan) AllTasks() []*Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	sortByCreation(out)
	return out
}

func sortByCreation(ts []*Task) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].CreationIndex < ts[j-1].CreationIndex; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// TaskByHandle looks up a task by its stable handle.
func (p *Plan) TaskByHandle(h Handle) (*Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[h]
	return t, ok
}

// FindLocalTasks returns every task whose concrete model name is exactly
// modelName (spec §6's find_local_tasks).
func (p *Plan) FindLocalTasks(modelName string, filters ...func(*Task) bool) []*Task {
	return p.findTasks(func(t *Task) bool { return t.Model != nil && t.Model.Name == modelName }, filters)
}

// FindTasks returns every task whose concrete model fulfills modelName,
// i.e. the model itself or any of its submodels (spec §6's find_tasks).
func (p *Plan) FindTasks(modelName string, filters ...func(*Task) bool) []*Task {
	return p.findTasks(func(t *Task) bool { return t.Model != nil && t.Model.Fulfills(modelName) }, filters)
}

func (p *Plan) findTasks(match func(*Task) bool, filters []func(*Task) bool) []*Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Task
	for _, t := range p.tasks {
		if !match(t) {
			continue
		}
		ok := true
		for _, f := range filters {
			if !f(t) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, t)
		}
	}
	sortByCreation(out)
	return out
}

// StaticGarbageCollect removes every task that is neither Permanent, nor a
// registered requirement's placeholder, nor reachable (as a child, hosted
// task, or dataflow neighbor) from one of those, calling onRemove for each one before it is dropped
// (spec §4.8 step 2, "static-garbage-collect").
func (p *Plan) StaticGarbageCollect(onRemove func(*Task)) {
	p.mu.Lock()
	reachable := make(map[Handle]bool)
	var stack []*Task
	for _, t := range p.tasks {
		if t.Permanent {
			stack = append(stack, t)
			reachable[t.Handle] = true
		}
	}
	for h := range p.requirements {
		if t, ok := p.tasks[h]; ok && !reachable[h] {
			stack = append(stack, t)
			reachable[h] = true
		}
	}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		neighbors := p.neighborsLocked(t)
		for _, n := range neighbors {
			if !reachable[n.Handle] {
				reachable[n.Handle] = true
				stack = append(stack, n)
			}
		}
	}

	var doomed []*Task
	for h, t := range p.tasks {
		if !reachable[h] {
			doomed = append(doomed, t)
		}
	}
	sortByCreation(doomed)
	for _, t := range doomed {
		p.removeTaskLocked(t.Handle)
	}
	p.mu.Unlock()

	if onRemove != nil {
		for _, t := range doomed {
			onRemove(t)
		}
	}
}

func (p *Plan) neighborsLocked(t *Task) []*Task {
	var out []*Task
	for _, c := range t.Children {
		if c.Task != nil {
			out = append(out, c.Task)
		}
	}
	out = append(out, t.HostedTasks...)
	if t.ExecutionAgent != nil {
		out = append(out, t.ExecutionAgent)
	}
	for _, e := range p.edges[t.Handle] {
		if n, ok := p.tasks[e.To]; ok {
			out = append(out, n)
		}
	}
	for _, rel := range p.relations {
		for h := range rel[t.Handle] {
			if n, ok := p.tasks[h]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

// RegisterRequirement records a requirement task's placeholder so the
// instantiator and Transaction.Commit can find it by handle.
func (p *Plan) RegisterRequirement(req *RequirementTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requirements[req.Placeholder.Handle] = req
}

// Requirements returns every requirement task currently registered.
func (p *Plan) Requirements() []*RequirementTask {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*RequirementTask, 0, len(p.requirements))
	for _, r := range p.requirements {
		out = append(out, r)
	}
	return out
}
