// Package plan implements the working-plan data model of spec §3 (Task,
// Deployment Instance, Dataflow Edge, Merge Graph bookkeeping) plus the Plan
// Transaction Adapter (spec §4 component table): a concrete, in-memory
// default for the "plan-database engine" external collaborator enumerated
// in spec §6.
//
// Task identity is a stable integer Handle assigned once, at creation, from
// a single process-wide counter shared by every Plan and Transaction
// (spec §9 "Graph identity across transactions"). Because the counter is
// global rather than per-plan, a task's identity never needs to be
// remapped when it moves between a staging transaction and the committed
// plan — Transaction.WrapTask is therefore the identity function; see
// transaction.go.
package plan

import (
	"fmt"
	"sync/atomic"

	"github.com/vk/netgen/internal/portmodel"
	"github.com/zclconf/go-cty/cty"
)

// Handle is a stable, process-wide unique task identifier.
type Handle uint64

var handleCounter atomic.Uint64

func nextHandle() Handle {
	return Handle(handleCounter.Add(1))
}

// Kind tags a Task with its category, replacing the duck-typed
// respond_to?/kind_of? dispatch of the source system (spec §9).
type Kind int

const (
	KindTaskContext Kind = iota
	KindComposition
	KindDeployment
	KindDevice
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindTaskContext:
		return "task_context"
	case KindComposition:
		return "composition"
	case KindDeployment:
		return "deployment"
	case KindDevice:
		return "device"
	default:
		return "generic"
	}
}

// Capability is a bitmask of structural capabilities a Task exposes,
// replacing per-call respond_to? checks.
type Capability uint8

const (
	HasPorts Capability = 1 << iota
	HasChildren
	HasMasterDrivers
	IsExecutionAgent
)

func (c Capability) Has(flag Capability) bool { return c&flag != 0 }

// State is a task's lifecycle state (spec §3).
type State int

const (
	Pending State = iota
	Starting
	Running
	Finishing
	Finished
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Finishing:
		return "finishing"
	default:
		return "finished"
	}
}

// NotFinished and NotFinishing are the relation filters consumed from the
// Plan external interface (spec §6).
func NotFinished(t *Task) bool  { return t.State != Finished }
func NotFinishing(t *Task) bool { return t.State != Finishing }
func NotAbstract(t *Task) bool  { return !t.Abstract }

// Argument is one entry of a task's argument map: every argument is either
// set (Known=true, carrying Value) or unset.
type Argument struct {
	Known bool
	Value cty.Value
}

// ChildRef is one named child slot of a Composition task, bound to a
// concrete child task.
type ChildRef struct {
	Name     string
	Task     *Task
	Optional bool
	// Roles narrows which roles of the child are actually required; used
	// by the optional-child-narrowing step of compute_system_network
	// (spec §4.8 step 2).
	Roles []string
}

// DeploymentHint matches a deployment candidate either by deployment model
// identity or by a regex over the deployment-local name (spec §4.5).
type DeploymentHint struct {
	DeploymentModel string         // exact match against a candidate's deployment model name, if non-empty
	NamePattern     *hclRegexpLazy // compiled by CompilePattern; see hint.go
}

// Task is a mutable node in the working plan.
type Task struct {
	Handle Handle
	Kind   Kind
	Caps   Capability

	// Model is the concrete component model. Nil until the instantiator
	// resolves an abstract requirement into a concrete model.
	Model *portmodel.ComponentModel

	Arguments map[string]Argument

	// Abstract is true for a task created without a concrete model.
	// Deployment and device tasks carry no component model and are never
	// abstract.
	Abstract bool
	// Committed is true once this task has survived a transaction commit
	// into the long-lived plan. Tasks created within an open transaction
	// start out Committed=false; Transaction.Discard removes any task that
	// never reached Committed=true.
	Committed bool
	// TransactionProxy marks a task that stands in for an external
	// requirement's placeholder until it is replaced by a resolved task at
	// commit time (spec §3, §4.8 step 5-6).
	TransactionProxy bool
	// Permanent marks a task as a GC root for the duration of one resolve
	// pass (spec §4.8 step 2 "static-garbage-collect").
	Permanent bool

	// Roles lists, for each parent composition handle, the set of role
	// names this task fills under that parent.
	Roles map[Handle][]string

	ExecutionAgent *Task // nil until the deployment selector binds one

	OrocosName      string
	DeploymentHints []DeploymentHint

	State State

	// Reusable reports whether this task may be reused by reconciliation
	// instead of respawned. Defaults to true; the reconciliation engine's
	// "scrub non-reusable tasks" step clears edges for any task where this
	// is false.
	Reusable bool
	// SetupDone is true once the task has completed its configure step;
	// the reconciliation engine uses this to decide whether a static-port
	// change requires spawning a fresh replacement (spec §4.6).
	SetupDone bool

	// CreationIndex gives a total, deterministic order for tie-breaks and
	// stable iteration (spec §5), independent of Handle reuse concerns.
	CreationIndex int

	// Children holds named child bindings, populated for Kind==KindComposition.
	Children []ChildRef

	// Devices maps a master driver service name to the device task mastered
	// for it (spec §3's master driver services, §4.2's device allocation).
	Devices map[string]*Task

	// --- Deployment-instance-only fields (Kind == KindDeployment) ---
	ProcessName string
	HostName    string
	// DeploymentModel is the deployment model this instance materializes.
	DeploymentModel *portmodel.DeploymentModel
	HostedTasks     []*Task

	// Device-only fields (Kind == KindDevice): the device's conventional
	// identity is carried entirely by OrocosName/Arguments; no extra
	// fields are needed.
}

// newTask allocates a task with the next stable handle. Unexported: callers
// go through Plan/Transaction constructors so handle allocation and plan
// bookkeeping stay together.
func newTask(kind Kind, model *portmodel.ComponentModel, creationIndex int) *Task {
	caps := Capability(0)
	switch kind {
	case KindTaskContext:
		caps = HasPorts | HasMasterDrivers
	case KindComposition:
		caps = HasPorts | HasChildren
	case KindDeployment:
		caps = IsExecutionAgent
	case KindDevice:
		caps = HasPorts
	}
	return &Task{
		Handle:        nextHandle(),
		Kind:          kind,
		Caps:          caps,
		Model:         model,
		Arguments:     make(map[string]Argument),
		Abstract:      model == nil && kind != KindDeployment && kind != KindDevice,
		Roles:         make(map[Handle][]string),
		Devices:       make(map[string]*Task),
		Reusable:      true,
		CreationIndex: creationIndex,
	}
}

// String returns a display identifier for error messages and logging: the
// concrete model name if known, falling back to the task's kind, suffixed
// with its stable handle so two tasks of the same model stay distinguishable.
func (t *Task) String() string {
	name := t.Kind.String()
	if t.Model != nil {
		name = t.Model.Name
	}
	return fmt.Sprintf("%s#%d", name, t.Handle)
}

// SetArgument sets an argument to a known value.
func (t *Task) SetArgument(name string, v cty.Value) {
	t.Arguments[name] = Argument{Known: true, Value: v}
}

// ArgumentIsSet reports whether the named argument has a known value.
func (t *Task) ArgumentIsSet(name string) bool {
	a, ok := t.Arguments[name]
	return ok && a.Known
}

// AssignedArgumentCount is used by the merge solver's tie-break rule
// (spec §4.1: "prefer the candidate with the greater number of already-
// assigned arguments").
func (t *Task) AssignedArgumentCount() int {
	n := 0
	for _, a := range t.Arguments {
		if a.Known {
			n++
		}
	}
	return n
}

// hclRegexpLazy is a tiny indirection so this file does not need to import
// regexp directly; see hint.go for the concrete type and match logic.
type hclRegexpLazy = CompiledPattern
