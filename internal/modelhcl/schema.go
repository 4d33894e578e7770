package modelhcl

import "github.com/hashicorp/hcl/v2"

// portDef is the HCL-tagged mirror of an input or output port declaration.
type portDef struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Static      bool           `hcl:"static,optional"`
	Multiplexes bool           `hcl:"multiplexes,optional"`
}

// childDef is the HCL-tagged mirror of a composition's named child slot.
type childDef struct {
	Name     string `hcl:"name,label"`
	Model    string `hcl:"model"`
	Optional bool   `hcl:"optional,optional"`
}

// masterDriverDef is the HCL-tagged mirror of a master driver service.
type masterDriverDef struct {
	Name string `hcl:"name,label"`
}

// componentModelDef is the top-level `component_model "<role>" "<name>" {}` block.
type componentModelDef struct {
	Role          string             `hcl:"role,label"`
	Name          string             `hcl:"name,label"`
	Fulfills      []string           `hcl:"fulfills,optional"`
	Inputs        []*portDef         `hcl:"input,block"`
	Outputs       []*portDef         `hcl:"output,block"`
	Children      []*childDef        `hcl:"child,block"`
	MasterDrivers []*masterDriverDef `hcl:"master_driver_service,block"`
}

// deployedTaskDef is the HCL-tagged mirror of one task a deployment model hosts.
type deployedTaskDef struct {
	LocalName string `hcl:"local_name,label"`
	Model     string `hcl:"model"`
}

// deploymentModelDef is the top-level `deployment_model "<name>" {}` block.
type deploymentModelDef struct {
	Name  string             `hcl:"name,label"`
	Tasks []*deployedTaskDef `hcl:"task,block"`
}

// availableDeploymentDef is the top-level `available_deployment "<host>" "<deployment>" {}` block.
type availableDeploymentDef struct {
	Host       string `hcl:"host,label"`
	Deployment string `hcl:"deployment,label"`
}

// manifestFile is the top-level structure of one manifest file. A single
// file may declare any mix of the three block kinds.
type manifestFile struct {
	ComponentModels      []*componentModelDef      `hcl:"component_model,block"`
	DeploymentModels     []*deploymentModelDef     `hcl:"deployment_model,block"`
	AvailableDeployments []*availableDeploymentDef `hcl:"available_deployment,block"`
	Body                 hcl.Body                  `hcl:",remain"`
}
