// Package dotgraph is the concrete default for the "Graphviz" external
// collaborator (spec §6): minimal DOT-format dumps of a plan's dataflow and
// hierarchy graphs, written on the save_plans / on_error=save dispositions
// of the pipeline driver (spec §4.8).
package dotgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/netgen/internal/plan"
)

// Options configures where dumps are written.
type Options struct {
	// Dir is the destination directory (the host's log directory).
	Dir string
	// Index distinguishes successive dumps from the same resolve process,
	// per spec §6's "syskit-plan-<index>.*.dot" naming.
	Index int
}

func (o Options) path(suffix string) string {
	return filepath.Join(o.Dir, fmt.Sprintf("syskit-plan-%d.%s.dot", o.Index, suffix))
}

// Dataflow writes p's dataflow graph (one node per task, one edge per
// dataflow connection) to options.Dir/syskit-plan-<index>.dataflow.dot.
func Dataflow(p *plan.Plan, options Options) error {
	var b strings.Builder
	b.WriteString("digraph dataflow {\n")
	for _, t := range p.AllTasks() {
		fmt.Fprintf(&b, "  %q [label=%q];\n", nodeID(t), label(t))
	}
	for _, t := range p.AllTasks() {
		for _, e := range p.DataflowFrom(t) {
			to, ok := p.TaskByHandle(e.To)
			if !ok {
				continue
			}
			for pair := range e.Connections {
				fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", nodeID(t), nodeID(to), pair.Source+" -> "+pair.Sink)
			}
		}
	}
	b.WriteString("}\n")

	return os.WriteFile(options.path("dataflow"), []byte(b.String()), 0o644)
}

// Hierarchy writes p's hierarchy graph (composition parent/child and
// execution-agent hosting edges) to
// options.Dir/syskit-plan-<index>.hierarchy.dot.
func Hierarchy(p *plan.Plan, options Options) error {
	var b strings.Builder
	b.WriteString("digraph hierarchy {\n")
	for _, t := range p.AllTasks() {
		fmt.Fprintf(&b, "  %q [label=%q];\n", nodeID(t), label(t))
	}
	for _, t := range p.AllTasks() {
		for _, c := range t.Children {
			if c.Task == nil {
				continue
			}
			fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", nodeID(t), nodeID(c.Task), c.Name)
		}
		if t.ExecutionAgent != nil {
			fmt.Fprintf(&b, "  %q -> %q [style=dashed, label=\"hosted_by\"];\n", nodeID(t), nodeID(t.ExecutionAgent))
		}
	}
	b.WriteString("}\n")

	return os.WriteFile(options.path("hierarchy"), []byte(b.String()), 0o644)
}

func nodeID(t *plan.Task) string {
	return fmt.Sprintf("n%d", t.Handle)
}

func label(t *plan.Task) string {
	if t.Model != nil {
		return fmt.Sprintf("%s#%d", t.Model.Name, t.Handle)
	}
	return fmt.Sprintf("%s#%d", t.Kind.String(), t.Handle)
}
