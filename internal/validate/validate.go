// Package validate implements the Validator Suite (spec §4.7): four
// independently runnable checks over a plan, each reporting every violation
// it finds in one returned error (the typed errors joined with errors.Join,
// or a single MissingDeployments) rather than failing fast on the first one.
package validate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vk/netgen/internal/deploy"
	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/plan"
)

// AbstractNetwork checks that no task-context input port not declared
// multiplexes? receives more than one distinct (source-task, source-port)
// pair.
func AbstractNetwork(p *plan.Plan) error {
	var violations []error

	for _, t := range p.AllTasks() {
		if t.Model == nil {
			continue
		}
		bySink := map[string]map[string]bool{}
		for _, e := range p.DataflowTo(t) {
			for pair := range e.Connections {
				key := fmt.Sprintf("%d:%s", e.From, pair.Source)
				if bySink[pair.Sink] == nil {
					bySink[pair.Sink] = map[string]bool{}
				}
				bySink[pair.Sink][key] = true
			}
		}
		sinks := make([]string, 0, len(bySink))
		for sink := range bySink {
			sinks = append(sinks, sink)
		}
		sort.Strings(sinks)
		for _, sink := range sinks {
			sources := bySink[sink]
			port, ok := t.Model.InputPort(sink)
			if !ok || port.Multiplexes || len(sources) <= 1 {
				continue
			}
			list := make([]string, 0, len(sources))
			for s := range sources {
				list = append(list, s)
			}
			sort.Strings(list)
			violations = append(violations, &errs.MultiplexingError{
				TaskID: t.String(), PortName: sink, Sources: list,
			})
		}
	}

	return errors.Join(violations...)
}

// GeneratedNetwork checks that no task remains abstract, other than a
// registered requirement's placeholder (replaced later, by
// fix_toplevel_tasks), and that every master driver service is bound to a
// unique device.
func GeneratedNetwork(p *plan.Plan) error {
	var violations []error

	placeholders := map[plan.Handle]bool{}
	for _, req := range p.Requirements() {
		if req.Placeholder != nil {
			placeholders[req.Placeholder.Handle] = true
		}
	}
	var abstractIDs []string
	for _, t := range p.AllTasks() {
		if t.Abstract && plan.NotFinished(t) && !placeholders[t.Handle] {
			abstractIDs = append(abstractIDs, t.String())
		}
	}
	if len(abstractIDs) > 0 {
		violations = append(violations, &errs.TaskAllocationFailed{TaskIDs: abstractIDs})
	}

	deviceOwner := map[string]string{} // device orocos name -> owning task id
	for _, t := range p.AllTasks() {
		if !t.Caps.Has(plan.HasMasterDrivers) || t.Model == nil || t.Abstract {
			continue
		}
		for _, svc := range t.Model.MasterDrivers {
			dev, ok := t.Devices[svc.Name]
			if !ok || dev == nil {
				violations = append(violations, &errs.DeviceAllocationFailed{TaskID: t.String(), Service: svc.Name})
				continue
			}
			name := dev.OrocosName
			if name == "" {
				continue
			}
			if owner, bound := deviceOwner[name]; bound && owner != t.String() {
				violations = append(violations, &errs.ConflictingDeviceAllocation{Device: name, TaskA: owner, TaskB: t.String()})
			} else {
				deviceOwner[name] = t.String()
			}
		}
	}

	return errors.Join(violations...)
}

// DeployedNetwork checks that every non-abstract, non-finished task context
// has an execution agent. idx, if non-nil, enriches a violation's reported
// candidates; pass nil when no index is available (a bare "no agent" report
// is still useful).
func DeployedNetwork(p *plan.Plan, idx *deploy.Index) error {
	missing := map[string][]errs.MissingDeploymentCandidate{}

	for _, t := range p.AllTasks() {
		if t.Kind != plan.KindTaskContext || t.Abstract || !plan.NotFinished(t) {
			continue
		}
		if t.ExecutionAgent != nil {
			continue
		}
		var cands []errs.MissingDeploymentCandidate
		if idx != nil && t.Model != nil {
			for _, c := range idx.CandidatesFor(t.Model.Name) {
				cands = append(cands, errs.MissingDeploymentCandidate{
					Host: c.Host, DeploymentModel: c.Deployment.Name, Name: c.LocalName,
				})
			}
		}
		missing[t.String()] = cands
	}

	if len(missing) > 0 {
		return &errs.MissingDeployments{Candidates: missing}
	}
	return nil
}

// FinalNetwork checks that every required_instances entry still refers to a
// real, non-proxy task attached to p.
func FinalNetwork(p *plan.Plan) error {
	var violations []error

	for _, req := range p.Requirements() {
		t := req.Placeholder
		if t == nil {
			violations = append(violations, &errs.InternalError{Reason: "required instance has a nil placeholder"})
			continue
		}
		if _, ok := p.TaskByHandle(t.Handle); !ok {
			violations = append(violations, &errs.InternalError{
				Reason: fmt.Sprintf("required instance %s is no longer attached to the plan", t.String()),
			})
			continue
		}
		if t.TransactionProxy {
			violations = append(violations, &errs.InternalError{
				Reason: fmt.Sprintf("required instance %s is still a transaction proxy", t.String()),
			})
		}
	}

	return errors.Join(violations...)
}
