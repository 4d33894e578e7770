// Package buslink implements the Bus Linker (spec §4.3): it attaches
// device-carrying task contexts to the device (bus) tasks they require,
// ensuring exactly one bus task exists per bus device and ordering each
// task's configuration strictly after its bus has started.
package buslink

import (
	"github.com/vk/netgen/internal/plan"
)

// Linker attaches task contexts to their device tasks.
type Linker struct {
	// attached memoizes which (task, bus) pairs have already been linked,
	// so a repeated resolve pass over an already-linked plan is a no-op
	// (spec §8, P1).
	attached map[plan.Handle]map[plan.Handle]bool
}

// New returns an empty Linker.
func New() *Linker {
	return &Linker{attached: make(map[plan.Handle]map[plan.Handle]bool)}
}

// LinkAll enumerates every task in p carrying one or more bound devices and
// links it to each: adds `task.depends_on(bus)` and orders
// `task.configure` strictly after `bus.start` (spec §4.3). Because device
// allocation (internal/instantiate) already memoizes device tasks by name,
// "exactly one bus task per bus device" is already guaranteed by the time
// this runs; the Linker's job is purely the attachment bookkeeping.
func (l *Linker) LinkAll(p *plan.Plan) {
	for _, t := range p.AllTasks() {
		if len(t.Devices) == 0 {
			continue
		}
		for _, bus := range t.Devices {
			l.attach(p, t, bus)
		}
	}
}

func (l *Linker) attach(p *plan.Plan, task, bus *plan.Task) {
	if l.attached[task.Handle] == nil {
		l.attached[task.Handle] = make(map[plan.Handle]bool)
	}
	if l.attached[task.Handle][bus.Handle] {
		return
	}
	l.attached[task.Handle][bus.Handle] = true

	p.AddDependency(task, bus)
	p.AddPlanningOrder(bus, task)
}
