package plan

import "github.com/zclconf/go-cty/cty"

// PortPair names one connection endpoint pair of a Dataflow Edge.
type PortPair struct {
	Source string
	Sink   string
}

// Policy is the opaque connection policy attached to one PortPair (buffer
// size, transport, sample vs. buffer semantics...). The resolver never
// interprets Policy itself; it only compares policies for equality when
// detecting conflicting dataflow specifications (Plan.AddDataflow and the
// merge solver, spec §4.1).
type Policy struct {
	Kind   string
	Params map[string]cty.Value
}

// Equal reports whether two policies are structurally identical. Unknown
// cty.Values compare equal only to themselves by RawEquals, which is the
// comparison semantics merge conflict detection wants: two unset/unknown
// policies never silently "agree".
func (p Policy) Equal(o Policy) bool {
	if p.Kind != o.Kind {
		return false
	}
	if len(p.Params) != len(o.Params) {
		return false
	}
	for k, v := range p.Params {
		ov, ok := o.Params[k]
		if !ok || !v.RawEquals(ov) {
			return false
		}
	}
	return true
}

// Edge is a directed Dataflow Edge between two tasks, labeled with the set
// of port connections it carries (spec §3).
type Edge struct {
	From, To    Handle
	Connections map[PortPair]Policy
}

// Relation distinguishes the different edge kinds the plan tracks beyond
// dataflow: dependency ("must not finish before"), planning ("configure
// after start"), and hierarchy is modeled directly via Task.Children rather
// than as a Relation, since composition membership is always singly-rooted.
type Relation int

const (
	DependencyRelation Relation = iota
	PlanningRelation
)

func (r Relation) String() string {
	if r == PlanningRelation {
		return "planning"
	}
	return "dependency"
}
