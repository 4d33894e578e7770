package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/merge"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
	"github.com/zclconf/go-cty/cty"
)

func cameraModel() *portmodel.ComponentModel {
	return &portmodel.ComponentModel{
		Name: "Camera", Role: portmodel.RoleTaskContext,
		Ports: []portmodel.Port{{Name: "frame_rate", Direction: portmodel.Input, Static: true}},
	}
}

func TestReconcileReusesRunningTaskWithCompatibleArguments(t *testing.T) {
	p := plan.New()

	runningDeployment := p.NewTask(plan.KindDeployment, nil)
	runningDeployment.ProcessName = "cam_proc"
	runningDeployment.Committed = true
	runningTask := p.NewTask(plan.KindTaskContext, cameraModel())
	runningTask.OrocosName = "cam_slot"
	runningTask.State = plan.Running
	runningTask.Committed = true
	runningTask.ExecutionAgent = runningDeployment
	runningDeployment.HostedTasks = append(runningDeployment.HostedTasks, runningTask)

	tx := p.Begin()
	newDeployment := tx.NewTask(plan.KindDeployment, nil)
	newDeployment.ProcessName = "cam_proc"
	newHosted := tx.NewTask(plan.KindTaskContext, cameraModel())
	newHosted.OrocosName = "cam_slot"
	newDeployment.HostedTasks = append(newDeployment.HostedTasks, newHosted)

	solver := merge.New(p)
	eng := New()
	require.NoError(t, eng.Reconcile(tx, solver, []*plan.Task{newDeployment}))

	survivor := solver.ReplacementFor(newHosted)
	assert.Equal(t, runningTask.Handle, survivor.Handle, "a compatible running task must be reused rather than replaced")
}

func TestReconcileSpawnsFreshReplacementWhenIncompatible(t *testing.T) {
	p := plan.New()

	runningDeployment := p.NewTask(plan.KindDeployment, nil)
	runningDeployment.ProcessName = "cam_proc"
	runningDeployment.Committed = true
	runningTask := p.NewTask(plan.KindTaskContext, cameraModel())
	runningTask.OrocosName = "cam_slot"
	runningTask.State = plan.Running
	runningTask.Committed = true
	runningTask.SetArgument("frame_rate", cty.NumberIntVal(30))
	runningTask.ExecutionAgent = runningDeployment
	runningDeployment.HostedTasks = append(runningDeployment.HostedTasks, runningTask)

	tx := p.Begin()
	newDeployment := tx.NewTask(plan.KindDeployment, nil)
	newDeployment.ProcessName = "cam_proc"
	otherModel := &portmodel.ComponentModel{Name: "Thermal", Role: portmodel.RoleTaskContext}
	newHosted := tx.NewTask(plan.KindTaskContext, otherModel)
	newHosted.OrocosName = "cam_slot"
	newDeployment.HostedTasks = append(newDeployment.HostedTasks, newHosted)

	solver := merge.New(p)
	eng := New()
	require.NoError(t, eng.Reconcile(tx, solver, []*plan.Task{newDeployment}))

	survivor := solver.ReplacementFor(newHosted)
	assert.NotEqual(t, runningTask.Handle, survivor.Handle)
	assert.Equal(t, "Thermal", survivor.Model.Name)

	order := p.TaskRelationGraphFor(plan.PlanningRelation).Successors(runningTask)
	require.Len(t, order, 1)
	assert.Equal(t, survivor.Handle, order[0].Handle, "the replacement must be ordered to start after the old task stops")
}

func TestReconcileFailsOnMultipleRunningMatches(t *testing.T) {
	p := plan.New()

	for i := 0; i < 2; i++ {
		d := p.NewTask(plan.KindDeployment, nil)
		d.ProcessName = "cam_proc"
		d.Committed = true
	}

	tx := p.Begin()
	newDeployment := tx.NewTask(plan.KindDeployment, nil)
	newDeployment.ProcessName = "cam_proc"

	solver := merge.New(p)
	eng := New()
	err := eng.Reconcile(tx, solver, []*plan.Task{newDeployment})
	require.Error(t, err)
}

func TestScrubClearsEdgesOfNonReusableTasks(t *testing.T) {
	p := plan.New()
	a := p.NewTask(plan.KindTaskContext, cameraModel())
	b := p.NewTask(plan.KindTaskContext, cameraModel())
	a.Reusable = false
	require.NoError(t, p.AddDataflow(a, b, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{}))

	scrub(p)

	assert.Empty(t, p.DataflowFrom(a))
}
