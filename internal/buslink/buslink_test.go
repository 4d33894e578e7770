package buslink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
)

func TestLinkAllAttachesDependencyAndOrdering(t *testing.T) {
	p := plan.New()
	model := &portmodel.ComponentModel{Name: "Sensor", Role: portmodel.RoleTaskContext}
	task := p.NewTask(plan.KindTaskContext, model)
	bus := p.NewTask(plan.KindDevice, nil)
	bus.OrocosName = "can0"
	task.Devices["can"] = bus

	l := New()
	l.LinkAll(p)

	deps := p.TaskRelationGraphFor(plan.DependencyRelation).Successors(task)
	require.Len(t, deps, 1)
	assert.Equal(t, bus.Handle, deps[0].Handle)

	order := p.TaskRelationGraphFor(plan.PlanningRelation).Successors(bus)
	require.Len(t, order, 1)
	assert.Equal(t, task.Handle, order[0].Handle)
}

func TestLinkAllIsIdempotent(t *testing.T) {
	p := plan.New()
	model := &portmodel.ComponentModel{Name: "Sensor", Role: portmodel.RoleTaskContext}
	task := p.NewTask(plan.KindTaskContext, model)
	bus := p.NewTask(plan.KindDevice, nil)
	task.Devices["can"] = bus

	l := New()
	l.LinkAll(p)
	l.LinkAll(p)

	deps := p.TaskRelationGraphFor(plan.DependencyRelation).Successors(task)
	assert.Len(t, deps, 1, "a second link pass must not duplicate the dependency edge")
}
