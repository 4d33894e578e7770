// Package portmodel defines the immutable descriptors of the component
// model registry: component models (task contexts, compositions, data
// services, devices) and deployment models, together with their ports and
// master driver services.
//
// These types are the Go-native shape of spec §3's "Component Model" and
// "Deployment Model" entities. The registry that populates them from HCL
// manifests lives in internal/modelhcl; this package only carries the data.
package portmodel

import "github.com/zclconf/go-cty/cty"

// Direction distinguishes an input port from an output port.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Port is a single named, typed port on a component model.
type Port struct {
	Name        string
	Type        cty.Type
	Direction   Direction
	// Static is true if the port's type/identity cannot change while the
	// owning task is configured; changing it forces a full stop-reconfigure
	// cycle (spec §4.6).
	Static bool
	// Multiplexes is true if the port accepts more than one distinct
	// (source-task, source-port) driver without violating I4/P4.
	Multiplexes bool
}

// Child describes one named child slot of a Composition.
type Child struct {
	Name     string
	Model    string // referenced component model name
	Optional bool
}

// MasterDriverService names a device dependency a task context requires.
// Its conventional argument name is "<Name>_dev" (spec §3).
type MasterDriverService struct {
	Name string
}

// ArgName returns the conventional argument name this service binds to.
func (s MasterDriverService) ArgName() string {
	return s.Name + "_dev"
}

// ModelRole classifies a ComponentModel. The four abstract roots
// (TaskContext, DataService, Composition, Component) are excluded from the
// deployed-model closure computed by the Deployment Candidate Index
// (spec §4.4).
type ModelRole int

const (
	RoleTaskContext ModelRole = iota
	RoleComposition
	RoleDataService
	RoleComponent // the universal abstract root
	RoleDevice
)

func (r ModelRole) IsAbstractRoot() bool {
	switch r {
	case RoleTaskContext, RoleDataService, RoleComposition, RoleComponent:
		return true
	}
	return false
}

// ComponentModel is an immutable descriptor: a set of models it fulfills, a
// set of named children (for compositions), a set of ports, and, for task
// contexts, a set of master driver services.
type ComponentModel struct {
	Name            string
	Role            ModelRole
	FulfilledModels []string // names of models this model is substitutable for
	Children        []Child
	Ports           []Port
	MasterDrivers   []MasterDriverService
}

// InputPort looks up a named input port.
func (m *ComponentModel) InputPort(name string) (Port, bool) {
	for _, p := range m.Ports {
		if p.Direction == Input && p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// OutputPort looks up a named output port.
func (m *ComponentModel) OutputPort(name string) (Port, bool) {
	for _, p := range m.Ports {
		if p.Direction == Output && p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Fulfills reports whether this model fulfills the named model, including
// itself (every model fulfills itself).
func (m *ComponentModel) Fulfills(name string) bool {
	if m.Name == name {
		return true
	}
	for _, f := range m.FulfilledModels {
		if f == name {
			return true
		}
	}
	return false
}

// DeployedTaskContext is one (deployment-local name, task-context model)
// pair enumerated by a Deployment Model.
type DeployedTaskContext struct {
	LocalName string
	Model     string // component model name, must have Role == RoleTaskContext
}

// DeploymentModel is an immutable descriptor enumerating the task contexts a
// single OS process will host.
type DeploymentModel struct {
	Name  string
	Tasks []DeployedTaskContext
}

// AvailableDeployment pairs a deployment model with a host it can run on.
// This is the seed data for the Deployment Candidate Index (spec §4.4).
type AvailableDeployment struct {
	Host       string
	Deployment *DeploymentModel
}

// Registry is the component-model registry external collaborator: all
// known component models, deployment models, and available deployments.
type Registry struct {
	Models               map[string]*ComponentModel
	Deployments          map[string]*DeploymentModel
	AvailableDeployments []AvailableDeployment
}

// New returns an empty, ready-to-populate Registry.
func New() *Registry {
	return &Registry{
		Models:      make(map[string]*ComponentModel),
		Deployments: make(map[string]*DeploymentModel),
	}
}

// ModelFor returns the component model for the given name, if known.
func (r *Registry) ModelFor(name string) (*ComponentModel, bool) {
	m, ok := r.Models[name]
	return m, ok
}

// EachSubmodel calls fn for every registered model that fulfills parent,
// including parent itself if registered.
func (r *Registry) EachSubmodel(parent string, fn func(*ComponentModel)) {
	for _, m := range r.Models {
		if m.Fulfills(parent) {
			fn(m)
		}
	}
}
