package deploy

import (
	"fmt"
	"sort"

	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/merge"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/portmodel"
)

// slotKey identifies one concrete deployment slot: a specific host running a
// specific deployment model's specific local task-context name.
type slotKey struct {
	host, deployment, localName string
}

// Selector is the Deployment Selector (spec §4.5): it binds every
// undeployed task context in a plan to a candidate slot from an Index and
// materializes the deployment (process) instances that host them.
type Selector struct {
	index *Index
	reg   *portmodel.Registry

	// instances memoizes the KindDeployment task created for each
	// (host, deployment model) pair encountered during this pass, so two
	// task contexts hosted by the same process share one instance.
	instances map[[2]string]*plan.Task
	// bound tracks which concrete slots have already been claimed during
	// this pass, so two task contexts never compete for the same slot.
	bound map[slotKey]string // -> bound task's display id
}

// NewSelector returns a Selector bound to idx and reg (reg is needed to look
// up the component model of each candidate's deployed task-context name).
func NewSelector(idx *Index, reg *portmodel.Registry) *Selector {
	return &Selector{
		index:     idx,
		reg:       reg,
		instances: make(map[[2]string]*plan.Task),
		bound:     make(map[slotKey]string),
	}
}

// Instances returns every deployment instance this Selector created or
// reused during SelectAll, in creation order, for the reconciliation engine to adapt against
// the running plan (spec §4.8 step 4).
func (s *Selector) Instances() []*plan.Task {
	out := make([]*plan.Task, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationIndex < out[j].CreationIndex })
	return out
}

// SelectAll binds every task context in tx's plan that has no execution
// agent yet to a deployment candidate, merging each into the deployment
// instance's hosted placeholder task via solver. It returns a
// *errs.MissingDeployments error listing every task context for which no
// (or no unambiguous) candidate could be found; all resolvable tasks are
// still bound even when some are reported missing.
func (s *Selector) SelectAll(tx *plan.Transaction, solver *merge.Solver) error {
	missing := map[string][]errs.MissingDeploymentCandidate{}

	for _, t := range tx.Plan().AllTasks() {
		if t.Kind != plan.KindTaskContext || t.Model == nil || t.ExecutionAgent != nil || t.Abstract {
			continue
		}

		cands := s.index.CandidatesFor(t.Model.Name)
		if len(cands) == 0 {
			missing[t.String()] = nil
			continue
		}

		chosen, rejected := s.disambiguate(t, cands)
		if chosen == nil {
			missing[t.String()] = rejected
			continue
		}

		if err := s.apply(tx, solver, t, *chosen); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		return &errs.MissingDeployments{Candidates: missing}
	}
	return nil
}

// disambiguate narrows cands down to exactly one candidate for t, in order:
// an exact orocos_name match against the candidate's local name, then every
// unbound candidate matched by any DeploymentHint (selecting it only if
// exactly one survives; more than one is reported ambiguous rather than
// picking arbitrarily), then the remaining unbound candidate if exactly one
// is left. It returns nil if no candidate is unbound and unambiguous,
// along with the considered-and-rejected candidates for reporting.
func (s *Selector) disambiguate(t *plan.Task, cands []Candidate) (*Candidate, []errs.MissingDeploymentCandidate) {
	unbound := make([]Candidate, 0, len(cands))
	rejected := make([]errs.MissingDeploymentCandidate, 0, len(cands))
	for _, c := range cands {
		if boundTo, ok := s.bound[slotKey{c.Host, c.Deployment.Name, c.LocalName}]; ok {
			rejected = append(rejected, errs.MissingDeploymentCandidate{
				Host: c.Host, DeploymentModel: c.Deployment.Name, Name: c.LocalName, AlreadyBoundToID: boundTo,
			})
			continue
		}
		unbound = append(unbound, c)
	}

	if t.OrocosName != "" {
		for _, c := range unbound {
			if c.LocalName == t.OrocosName {
				return &c, rejected
			}
		}
	}

	if len(t.DeploymentHints) > 0 {
		var hinted []Candidate
		for _, c := range unbound {
			for _, hint := range t.DeploymentHints {
				if hint.Matches(c.Deployment.Name, c.LocalName) {
					hinted = append(hinted, c)
					break
				}
			}
		}
		switch len(hinted) {
		case 0:
			// no hint matched anything; fall through to the unique-remaining rule
		case 1:
			return &hinted[0], rejected
		default:
			for _, c := range hinted {
				rejected = append(rejected, errs.MissingDeploymentCandidate{
					Host: c.Host, DeploymentModel: c.Deployment.Name, Name: c.LocalName,
				})
			}
			return nil, rejected
		}
	}

	if len(unbound) == 1 {
		return &unbound[0], rejected
	}

	for _, c := range unbound {
		rejected = append(rejected, errs.MissingDeploymentCandidate{
			Host: c.Host, DeploymentModel: c.Deployment.Name, Name: c.LocalName,
		})
	}
	return nil, rejected
}

// apply materializes (or reuses, within this pass) the deployment instance
// for c's (host, deployment model), creates or reuses its hosted
// placeholder task for c.LocalName, and merges original into it.
func (s *Selector) apply(tx *plan.Transaction, solver *merge.Solver, original *plan.Task, c Candidate) error {
	key := [2]string{c.Host, c.Deployment.Name}
	instance, ok := s.instances[key]
	if !ok {
		instance = tx.NewTask(plan.KindDeployment, nil)
		instance.HostName = c.Host
		instance.DeploymentModel = c.Deployment
		instance.ProcessName = c.Deployment.Name
		s.instances[key] = instance
	}

	var hosted *plan.Task
	for _, ht := range instance.HostedTasks {
		if ht.OrocosName == c.LocalName {
			hosted = ht
			break
		}
	}
	if hosted == nil {
		taskModel, ok := s.reg.ModelFor(c.TaskContextModel)
		if !ok {
			return &errs.InternalError{Reason: fmt.Sprintf("deployment %q names unknown task-context model %q", c.Deployment.Name, c.TaskContextModel)}
		}
		hosted = tx.NewTask(plan.KindTaskContext, taskModel)
		hosted.OrocosName = c.LocalName
		hosted.ExecutionAgent = instance
		instance.HostedTasks = append(instance.HostedTasks, hosted)
	}

	s.bound[slotKey{c.Host, c.Deployment.Name, c.LocalName}] = hosted.String()

	return solver.Merge(original, hosted)
}
