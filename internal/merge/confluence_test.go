package merge

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/plan"
	"github.com/zclconf/go-cty/cty"
)

// networkShape is an order-independent structural snapshot of a plan, used
// to compare two differently-ordered merge runs for confluence (spec §8,
// P5: merge_identical_tasks' result does not depend on processing order).
// It deliberately omits Handles, which are allocated from a process-wide
// counter and so differ between the two runs even when the resulting
// networks are structurally identical.
type networkShape struct {
	ModelCounts map[string]int
	Edges       []string
}

func snapshotShape(p *plan.Plan) networkShape {
	shape := networkShape{ModelCounts: make(map[string]int)}
	for _, t := range p.AllTasks() {
		shape.ModelCounts[t.Model.Name]++
		for _, e := range p.DataflowFrom(t) {
			to, ok := p.TaskByHandle(e.To)
			if !ok {
				continue
			}
			for pair := range e.Connections {
				shape.Edges = append(shape.Edges, t.Model.Name+"."+pair.Source+"->"+to.Model.Name+"."+pair.Sink)
			}
		}
	}
	sort.Strings(shape.Edges)
	return shape
}

// buildDuplicateNetwork creates three mergeable "M" tasks, each wired to a
// shared sink, in the given creation/linking order.
func buildDuplicateNetwork(order []int) *plan.Plan {
	p := plan.New()
	sink := p.NewTask(plan.KindTaskContext, model("Sink"))

	tasks := make([]*plan.Task, len(order))
	for _, i := range order {
		tasks[i] = p.NewTask(plan.KindTaskContext, model("M"))
		tasks[i].SetArgument("rate", cty.NumberIntVal(10))
	}
	for _, i := range order {
		_ = p.AddDataflow(tasks[i], sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{Kind: "buffer"})
	}
	return p
}

func TestMergeIdenticalTasksConfluentAcrossProcessingOrder(t *testing.T) {
	pA := buildDuplicateNetwork([]int{0, 1, 2})
	require.NoError(t, New(pA).MergeIdenticalTasks())

	pB := buildDuplicateNetwork([]int{2, 0, 1})
	require.NoError(t, New(pB).MergeIdenticalTasks())

	if diff := cmp.Diff(snapshotShape(pA), snapshotShape(pB)); diff != "" {
		t.Errorf("merge result depends on processing order (-orderA +orderB):\n%s", diff)
	}
}
