// Package errs declares the typed error taxonomy produced by the resolver
// pipeline. Every validator and stage raises one of these instead of a bare
// error string, so callers can branch on kind with errors.As instead of
// matching on message text.
package errs

import (
	"fmt"
	"sort"
	"strings"
)

// TaskAllocationFailed reports that at least one task remained abstract
// after the generated-network stage.
type TaskAllocationFailed struct {
	TaskIDs []string
}

func (e *TaskAllocationFailed) Error() string {
	return fmt.Sprintf("task allocation failed: %d task(s) remain abstract: %s",
		len(e.TaskIDs), strings.Join(e.TaskIDs, ", "))
}

// DeviceAllocationFailed reports that a master driver service has no bound device.
type DeviceAllocationFailed struct {
	TaskID  string
	Service string
}

func (e *DeviceAllocationFailed) Error() string {
	return fmt.Sprintf("device allocation failed: task %q has no device bound for service %q", e.TaskID, e.Service)
}

// ConflictingDeviceAllocation reports that a device is bound to two distinct tasks.
type ConflictingDeviceAllocation struct {
	Device  string
	TaskA   string
	TaskB   string
}

func (e *ConflictingDeviceAllocation) Error() string {
	return fmt.Sprintf("conflicting device allocation: device %q is bound to both %q and %q", e.Device, e.TaskA, e.TaskB)
}

// MultiplexingError reports that a non-multiplexing input port has more than
// one distinct (source-task, source-port) pair driving it.
type MultiplexingError struct {
	TaskID   string
	PortName string
	Sources  []string
}

func (e *MultiplexingError) Error() string {
	return fmt.Sprintf("multiplexing violation: input port %q of task %q has %d distinct drivers: %s",
		e.PortName, e.TaskID, len(e.Sources), strings.Join(e.Sources, ", "))
}

// MissingDeploymentCandidate describes the candidates considered (and
// rejected, or absent) for one task context during deployment selection.
type MissingDeploymentCandidate struct {
	Host             string
	DeploymentModel  string
	Name             string
	AlreadyBoundToID string // empty if the candidate was simply never matched
}

// MissingDeployments reports one or more task contexts with no deployable slot.
type MissingDeployments struct {
	// Candidates maps task ID to the candidates that were considered for it.
	Candidates map[string][]MissingDeploymentCandidate
}

func (e *MissingDeployments) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "missing deployments for %d task(s):", len(e.Candidates))
	taskIDs := make([]string, 0, len(e.Candidates))
	for taskID := range e.Candidates {
		taskIDs = append(taskIDs, taskID)
	}
	sort.Strings(taskIDs)
	for _, taskID := range taskIDs {
		cands := e.Candidates[taskID]
		fmt.Fprintf(&sb, "\n- %s: %d candidate(s)", taskID, len(cands))
		for _, c := range cands {
			fmt.Fprintf(&sb, "\n    (%s, %s, %s)", c.Host, c.DeploymentModel, c.Name)
		}
	}
	return sb.String()
}

// AmbiguousSpecialization reports a composition specialization selection
// that is non-unique while strict mode is enabled.
type AmbiguousSpecialization struct {
	TaskID      string
	Candidates  []string
}

func (e *AmbiguousSpecialization) Error() string {
	return fmt.Sprintf("ambiguous specialization for task %q: candidates %s",
		e.TaskID, strings.Join(e.Candidates, ", "))
}

// MergeConflict reports that two structurally mergeable tasks carry
// incompatible connection policies for the same (source-port, sink-port) pair.
type MergeConflict struct {
	TaskA, TaskB       string
	SourcePort, SinkPort string
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("merge conflict between %q and %q: incompatible policy for (%s -> %s)",
		e.TaskA, e.TaskB, e.SourcePort, e.SinkPort)
}

// InternalError reports an invariant violation that should not be reachable
// through normal operation (duplicate running deployments, proxies
// surviving commit, and similar).
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Reason)
}
