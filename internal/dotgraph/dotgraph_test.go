package dotgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
)

func TestDataflowWritesEdgesAndNodes(t *testing.T) {
	p := plan.New()
	src := p.NewTask(plan.KindTaskContext, &portmodel.ComponentModel{Name: "Source"})
	sink := p.NewTask(plan.KindTaskContext, &portmodel.ComponentModel{Name: "Sink"})
	require.NoError(t, p.AddDataflow(src, sink, plan.PortPair{Source: "out", Sink: "in"}, plan.Policy{}))

	dir := t.TempDir()
	require.NoError(t, Dataflow(p, Options{Dir: dir, Index: 1}))

	content, err := os.ReadFile(filepath.Join(dir, "syskit-plan-1.dataflow.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "digraph dataflow")
	assert.Contains(t, string(content), "out -> in")
}

func TestHierarchyWritesChildAndAgentEdges(t *testing.T) {
	p := plan.New()
	parent := p.NewTask(plan.KindComposition, &portmodel.ComponentModel{Name: "Rig"})
	child := p.NewTask(plan.KindTaskContext, &portmodel.ComponentModel{Name: "Camera"})
	parent.Children = append(parent.Children, plan.ChildRef{Name: "camera", Task: child})
	agent := p.NewTask(plan.KindDeployment, nil)
	child.ExecutionAgent = agent

	dir := t.TempDir()
	require.NoError(t, Hierarchy(p, Options{Dir: dir, Index: 2}))

	content, err := os.ReadFile(filepath.Join(dir, "syskit-plan-2.hierarchy.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "digraph hierarchy")
	assert.Contains(t, string(content), "hosted_by")
}
