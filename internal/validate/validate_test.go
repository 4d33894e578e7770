package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
)

func sinkModel(multiplexes bool) *portmodel.ComponentModel {
	return &portmodel.ComponentModel{
		Name: "Sink", Role: portmodel.RoleTaskContext,
		Ports: []portmodel.Port{{Name: "in", Direction: portmodel.Input, Multiplexes: multiplexes}},
	}
}

func sourceModel() *portmodel.ComponentModel {
	return &portmodel.ComponentModel{
		Name: "Source", Role: portmodel.RoleTaskContext,
		Ports: []portmodel.Port{{Name: "out", Direction: portmodel.Output}},
	}
}

func TestAbstractNetworkRejectsMultipleDriversOnNonMultiplexingPort(t *testing.T) {
	p := plan.New()
	sink := p.NewTask(plan.KindTaskContext, sinkModel(false))
	srcA := p.NewTask(plan.KindTaskContext, sourceModel())
	srcB := p.NewTask(plan.KindTaskContext, sourceModel())
	require.NoError(t, p.AddDataflow(srcA, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{}))
	require.NoError(t, p.AddDataflow(srcB, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{}))

	err := AbstractNetwork(p)
	require.Error(t, err)
	var mux *errs.MultiplexingError
	require.True(t, errors.As(err, &mux))
}

func TestAbstractNetworkAllowsMultiplexingPort(t *testing.T) {
	p := plan.New()
	sink := p.NewTask(plan.KindTaskContext, sinkModel(true))
	srcA := p.NewTask(plan.KindTaskContext, sourceModel())
	srcB := p.NewTask(plan.KindTaskContext, sourceModel())
	require.NoError(t, p.AddDataflow(srcA, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{}))
	require.NoError(t, p.AddDataflow(srcB, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{}))

	assert.NoError(t, AbstractNetwork(p))
}

func TestGeneratedNetworkReportsAbstractTasksAndMissingDevices(t *testing.T) {
	p := plan.New()
	abstract := p.NewTask(plan.KindTaskContext, nil)
	abstract.Abstract = true

	cam := p.NewTask(plan.KindTaskContext, &portmodel.ComponentModel{
		Name: "Camera", Role: portmodel.RoleTaskContext,
		MasterDrivers: []portmodel.MasterDriverService{{Name: "camera"}},
	})

	err := GeneratedNetwork(p)
	require.Error(t, err)
	var allocFailed *errs.TaskAllocationFailed
	require.True(t, errors.As(err, &allocFailed))
	assert.Contains(t, allocFailed.TaskIDs, abstract.String())

	var devFailed *errs.DeviceAllocationFailed
	require.True(t, errors.As(err, &devFailed))
	assert.Equal(t, cam.String(), devFailed.TaskID)
}

func TestGeneratedNetworkPassesWhenFullyAllocated(t *testing.T) {
	p := plan.New()
	cam := p.NewTask(plan.KindTaskContext, &portmodel.ComponentModel{
		Name: "Camera", Role: portmodel.RoleTaskContext,
		MasterDrivers: []portmodel.MasterDriverService{{Name: "camera"}},
	})
	dev := p.NewTask(plan.KindDevice, nil)
	dev.OrocosName = "cam0"
	cam.Devices["camera"] = dev

	assert.NoError(t, GeneratedNetwork(p))
}

func TestGeneratedNetworkReportsConflictingDeviceAllocation(t *testing.T) {
	p := plan.New()
	cameraModel := &portmodel.ComponentModel{
		Name: "Camera", Role: portmodel.RoleTaskContext,
		MasterDrivers: []portmodel.MasterDriverService{{Name: "camera"}},
	}

	camA := p.NewTask(plan.KindTaskContext, cameraModel)
	devA := p.NewTask(plan.KindDevice, nil)
	devA.OrocosName = "cam0"
	camA.Devices["camera"] = devA

	camB := p.NewTask(plan.KindTaskContext, cameraModel)
	devB := p.NewTask(plan.KindDevice, nil)
	devB.OrocosName = "cam0"
	camB.Devices["camera"] = devB

	err := GeneratedNetwork(p)
	require.Error(t, err)
	var conflict *errs.ConflictingDeviceAllocation
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "cam0", conflict.Device)
}

func TestDeployedNetworkReportsTaskWithoutExecutionAgent(t *testing.T) {
	p := plan.New()
	p.NewTask(plan.KindTaskContext, &portmodel.ComponentModel{Name: "Camera", Role: portmodel.RoleTaskContext})

	err := DeployedNetwork(p, nil)
	require.Error(t, err)
	var missing *errs.MissingDeployments
	require.True(t, errors.As(err, &missing))
	assert.Len(t, missing.Candidates, 1)
}

func TestFinalNetworkRejectsSurvivingTransactionProxy(t *testing.T) {
	p := plan.New()
	tx := p.Begin()
	placeholder := tx.NewTask(plan.KindGeneric, nil)
	placeholder.TransactionProxy = true
	p.RegisterRequirement(&plan.RequirementTask{Placeholder: placeholder})

	err := FinalNetwork(p)
	require.Error(t, err)
}

func TestFinalNetworkPassesForAttachedRequirement(t *testing.T) {
	p := plan.New()
	tx := p.Begin()
	placeholder := tx.NewTask(plan.KindGeneric, nil)
	tx.Commit()
	p.RegisterRequirement(&plan.RequirementTask{Placeholder: placeholder})

	assert.NoError(t, FinalNetwork(p))
}
