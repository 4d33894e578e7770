// Package deploy implements the Deployment Candidate Index and Deployment
// Selector (spec §4.4, §4.5): it turns the component-model registry's
// available deployments into a lookup table of deployable task-context
// models, then binds each un-deployed task context in the network to one of
// the candidate (host, deployment-model, local-name) slots it offers.
package deploy

import "github.com/vk/netgen/internal/portmodel"

// Candidate is one concrete slot a task context with the matching model
// could be deployed into.
type Candidate struct {
	Host            string
	Deployment      *portmodel.DeploymentModel
	LocalName       string
	TaskContextModel string
}

// Index is the Deployment Candidate Index: the closure of every model a
// registered deployment can satisfy, together with the candidate slots for
// each (spec §4.4).
type Index struct {
	closure    map[string]bool
	candidates map[string][]Candidate
}

// Build computes the Index from reg. The closure starts from every
// task-context model named by an available deployment, then iteratively
// expands by (i) every model such a model fulfills, restricted to
// non-abstract-root models, and (ii) every composition model whose children
// are all, themselves, in the closure (directly or via a fulfilled model) —
// a composition becomes deployable once everything under it is.
func Build(reg *portmodel.Registry) *Index {
	idx := &Index{
		closure:    make(map[string]bool),
		candidates: make(map[string][]Candidate),
	}
	abstractRoots := map[string]bool{"TaskContext": true, "DataService": true, "Composition": true, "Component": true}

	for _, ad := range reg.AvailableDeployments {
		for _, dtc := range ad.Deployment.Tasks {
			idx.closure[dtc.Model] = true
			idx.candidates[dtc.Model] = append(idx.candidates[dtc.Model], Candidate{
				Host:             ad.Host,
				Deployment:       ad.Deployment,
				LocalName:        dtc.LocalName,
				TaskContextModel: dtc.Model,
			})
		}
	}

	for {
		changed := false

		for _, m := range reg.Models {
			if !idx.closure[m.Name] {
				continue
			}
			for _, fulfilled := range m.FulfilledModels {
				if idx.closure[fulfilled] || abstractRoots[fulfilled] {
					continue
				}
				idx.closure[fulfilled] = true
				changed = true
			}
		}

		for _, m := range reg.Models {
			if m.Role != portmodel.RoleComposition || idx.closure[m.Name] || len(m.Children) == 0 {
				continue
			}
			allResolved := true
			for _, child := range m.Children {
				if child.Optional {
					continue
				}
				if !idx.closure[child.Model] {
					allResolved = false
					break
				}
			}
			if allResolved {
				idx.closure[m.Name] = true
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	for name := range abstractRoots {
		delete(idx.closure, name)
	}

	return idx
}

// Deployable reports whether modelName is reachable in the deployed-model
// closure.
func (idx *Index) Deployable(modelName string) bool {
	return idx.closure[modelName]
}

// CandidatesFor returns the candidate slots whose declared task-context
// model is exactly modelName.
func (idx *Index) CandidatesFor(modelName string) []Candidate {
	return idx.candidates[modelName]
}
