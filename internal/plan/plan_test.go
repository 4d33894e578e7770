package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/portmodel"
)

func sensorModel() *portmodel.ComponentModel {
	return &portmodel.ComponentModel{Name: "Sensor", Role: portmodel.RoleTaskContext}
}

func TestPlanNewTaskAssignsStableHandles(t *testing.T) {
	p := New()
	a := p.NewTask(KindTaskContext, sensorModel())
	b := p.NewTask(KindTaskContext, sensorModel())
	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Greater(t, uint64(b.Handle), uint64(a.Handle))
}

func TestPlanAddPermanentAndGarbageCollect(t *testing.T) {
	p := New()
	root := p.NewTask(KindComposition, nil)
	child := p.NewTask(KindTaskContext, sensorModel())
	orphan := p.NewTask(KindTaskContext, sensorModel())
	root.Children = append(root.Children, ChildRef{Name: "sensor", Task: child})

	p.AddPermanentTask(root)

	var removed []*Task
	p.StaticGarbageCollect(func(t *Task) { removed = append(removed, t) })

	require.Len(t, removed, 1)
	assert.Equal(t, orphan.Handle, removed[0].Handle)

	_, stillThere := p.TaskByHandle(child.Handle)
	assert.True(t, stillThere)
	_, gone := p.TaskByHandle(orphan.Handle)
	assert.False(t, gone)
}

func TestPlanReplaceRedirectsEdgesAndRelations(t *testing.T) {
	p := New()
	a := p.NewTask(KindTaskContext, sensorModel())
	b := p.NewTask(KindTaskContext, sensorModel())
	sink := p.NewTask(KindTaskContext, sensorModel())
	replacement := p.NewTask(KindTaskContext, sensorModel())

	require.NoError(t, p.AddDataflow(a, sink, PortPair{Source: "out", Sink: "in"}, Policy{Kind: "buffer"}))
	p.AddDependency(a, b)
	p.AddPermanentTask(a)

	require.NoError(t, p.Replace(a, replacement))

	_, ok := p.TaskByHandle(a.Handle)
	assert.False(t, ok, "replaced task should be removed")

	edges := p.DataflowTo(sink)
	require.Len(t, edges, 1)
	assert.Equal(t, replacement.Handle, edges[0].From)

	deps := p.TaskRelationGraphFor(DependencyRelation).Successors(replacement)
	require.Len(t, deps, 1)
	assert.Equal(t, b.Handle, deps[0].Handle)

	assert.True(t, replacement.Permanent, "permanent flag should carry over to the replacement")
}

func TestPlanAddDataflowRejectsConflictingPolicy(t *testing.T) {
	p := New()
	a := p.NewTask(KindTaskContext, sensorModel())
	b := p.NewTask(KindTaskContext, sensorModel())
	pair := PortPair{Source: "out", Sink: "in"}

	require.NoError(t, p.AddDataflow(a, b, pair, Policy{Kind: "buffer"}))
	err := p.AddDataflow(a, b, pair, Policy{Kind: "sample"})
	require.Error(t, err)
}

func TestPlanFindTasksByFulfilledModel(t *testing.T) {
	p := New()
	base := &portmodel.ComponentModel{Name: "Base", Role: portmodel.RoleTaskContext}
	concrete := &portmodel.ComponentModel{Name: "Concrete", Role: portmodel.RoleTaskContext, FulfilledModels: []string{"Base"}}

	p.NewTask(KindTaskContext, base)
	t2 := p.NewTask(KindTaskContext, concrete)

	found := p.FindTasks("Base")
	require.Len(t, found, 2)

	local := p.FindLocalTasks("Base")
	require.Len(t, local, 1)

	filtered := p.FindTasks("Base", func(tk *Task) bool { return tk.Handle == t2.Handle })
	require.Len(t, filtered, 1)
	assert.Equal(t, t2.Handle, filtered[0].Handle)
}

func TestTransactionDiscardLeavesPlanUntouched(t *testing.T) {
	p := New()
	existing := p.NewTask(KindTaskContext, sensorModel())
	p.AddPermanentTask(existing)

	before := len(p.AllTasks())

	tx := p.Begin()
	tx.NewTask(KindTaskContext, sensorModel())
	tx.NewTask(KindTaskContext, sensorModel())
	require.NoError(t, tx.Discard())

	assert.Len(t, p.AllTasks(), before)
	assert.True(t, tx.Finalized())
	assert.False(t, tx.Committed())
}

func TestTransactionCommitPersistsNewTasks(t *testing.T) {
	p := New()
	tx := p.Begin()
	created := tx.NewTask(KindTaskContext, sensorModel())
	require.NoError(t, tx.Commit())

	assert.True(t, created.Committed)

	// A second transaction's discard must not remove tasks the first
	// transaction already committed.
	tx2 := p.Begin()
	tx2.NewTask(KindTaskContext, sensorModel())
	require.NoError(t, tx2.Discard())

	_, ok := p.TaskByHandle(created.Handle)
	assert.True(t, ok)
}

func TestTransactionCommitFailsOnDanglingProxy(t *testing.T) {
	p := New()
	tx := p.Begin()
	proxy := tx.NewTask(KindTaskContext, nil)
	proxy.TransactionProxy = true

	err := tx.Commit()
	require.Error(t, err)
}

func TestWrapTaskIsIdentity(t *testing.T) {
	p := New()
	tx := p.Begin()
	real := p.NewTask(KindTaskContext, sensorModel())
	wrapped := tx.WrapTask(real)
	assert.Same(t, real, wrapped)
}
