package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
	"github.com/zclconf/go-cty/cty"
)

func model(name string) *portmodel.ComponentModel {
	return &portmodel.ComponentModel{Name: name, Role: portmodel.RoleTaskContext}
}

func TestMergeReplacesAndRedirectsEdges(t *testing.T) {
	p := plan.New()
	a := p.NewTask(plan.KindTaskContext, model("M"))
	b := p.NewTask(plan.KindTaskContext, model("M"))
	sink := p.NewTask(plan.KindTaskContext, model("Sink"))
	require.NoError(t, p.AddDataflow(a, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{Kind: "buffer"}))

	s := New(p)
	require.NoError(t, s.Merge(a, b))

	_, ok := p.TaskByHandle(a.Handle)
	assert.False(t, ok)

	edges := p.DataflowTo(sink)
	require.Len(t, edges, 1)
	assert.Equal(t, b.Handle, edges[0].From)

	assert.Equal(t, b.Handle, s.ReplacementFor(a).Handle)
}

func TestMergeRejectsConflictingPolicy(t *testing.T) {
	p := plan.New()
	a := p.NewTask(plan.KindTaskContext, model("M"))
	b := p.NewTask(plan.KindTaskContext, model("M"))
	sink := p.NewTask(plan.KindTaskContext, model("Sink"))
	require.NoError(t, p.AddDataflow(a, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{Kind: "buffer"}))
	require.NoError(t, p.AddDataflow(b, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{Kind: "sample"}))

	s := New(p)
	err := s.Merge(a, b)
	require.Error(t, err)
}

func TestMergeRejectsCycle(t *testing.T) {
	p := plan.New()
	a := p.NewTask(plan.KindTaskContext, model("M"))
	b := p.NewTask(plan.KindTaskContext, model("M"))
	require.NoError(t, p.AddDataflow(b, a, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{Kind: "buffer"}))

	s := New(p)
	assert.False(t, s.Mergeable(a, b), "merging a into b would create a cycle since b already reaches a")
}

func TestMergeIdenticalTasksConvergesAndPrefersMoreArguments(t *testing.T) {
	p := plan.New()
	_ = p.NewTask(plan.KindTaskContext, model("M"))
	b := p.NewTask(plan.KindTaskContext, model("M"))
	b.SetArgument("rate", cty.NumberIntVal(10))

	s := New(p)
	require.NoError(t, s.MergeIdenticalTasks())

	remaining := p.FindTasks("M")
	require.Len(t, remaining, 1)
	assert.Equal(t, b.Handle, remaining[0].Handle, "the task with more assigned arguments should survive")
}

func TestMergeIdenticalTasksLeavesIncompatibleArgumentsUnmerged(t *testing.T) {
	p := plan.New()
	a := p.NewTask(plan.KindTaskContext, model("M"))
	b := p.NewTask(plan.KindTaskContext, model("M"))
	a.SetArgument("rate", cty.NumberIntVal(10))
	b.SetArgument("rate", cty.NumberIntVal(20))

	s := New(p)
	require.NoError(t, s.MergeIdenticalTasks())

	remaining := p.FindTasks("M")
	assert.Len(t, remaining, 2)
}

func TestApplyMergeGroupChainsReplacements(t *testing.T) {
	p := plan.New()
	a := p.NewTask(plan.KindTaskContext, model("M"))
	b := p.NewTask(plan.KindTaskContext, model("M"))
	c := p.NewTask(plan.KindTaskContext, model("M"))

	s := New(p)
	err := s.ApplyMergeGroup([]Pair{{From: a, To: b}, {From: b, To: c}})
	require.NoError(t, err)

	assert.Equal(t, c.Handle, s.ReplacementFor(a).Handle)
	assert.Equal(t, c.Handle, s.ReplacementFor(b).Handle)
}
