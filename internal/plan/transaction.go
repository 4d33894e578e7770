package plan

import (
	"fmt"

	"github.com/vk/netgen/internal/errs"
	"github.com/vk/netgen/internal/portmodel"
)

// Transaction is the Plan Transaction Adapter (spec §4 component table): it
// stages every task a resolve pass creates against a Plan and either
// commits them into the long-lived network or discards them, leaving the
// Plan exactly as it was before the transaction began.
//
// Because Task.Handle is allocated from a single process-wide counter
// (task.go), a task's identity is already stable across the transaction
// boundary — Transaction.WrapTask never needs to clone or remap a task, it
// only needs to track that the transaction referenced it.
type Transaction struct {
	plan *Plan

	added             []Handle
	permanentSnapshot map[Handle]bool

	committed bool
	discarded bool
}

// Begin opens a transaction against p.
func (p *Plan) Begin() *Transaction {
	return &Transaction{
		plan:              p,
		permanentSnapshot: make(map[Handle]bool),
	}
}

// Plan returns the underlying plan this transaction stages against. Reads
// (FindTasks, DataflowFrom, ...) are always done directly against it: the
// transaction only needs to track writes, for rollback.
func (tx *Transaction) Plan() *Plan { return tx.plan }

// NewTask allocates a task within this transaction. It is removed again if
// the transaction is discarded.
func (tx *Transaction) NewTask(kind Kind, model *portmodel.ComponentModel) *Task {
	tx.plan.mu.Lock()
	t := tx.plan.newTaskLocked(kind, model)
	tx.plan.mu.Unlock()
	tx.added = append(tx.added, t.Handle)
	return t
}

// WrapTask returns the transaction-local stand-in for a task from the
// underlying plan. In this implementation task identity is already stable
// across the transaction boundary, so WrapTask is the identity function;
// it exists to give the Plan Transaction Adapter's external interface
// (wrap_task(t)) a concrete home and a place to note that design decision
// (see DESIGN.md).
func (tx *Transaction) WrapTask(t *Task) *Task { return t }

// MarkPermanent records t as permanent for the lifetime of this
// transaction, snapshotting its previous flag so Discard can restore it.
func (tx *Transaction) MarkPermanent(t *Task) {
	if _, seen := tx.permanentSnapshot[t.Handle]; !seen {
		tx.permanentSnapshot[t.Handle] = t.Permanent
	}
	tx.plan.AddPermanentTask(t)
}

// UnmarkPermanent clears t's permanent flag for the lifetime of this
// transaction, snapshotting its previous flag so Discard can restore it.
func (tx *Transaction) UnmarkPermanent(t *Task) {
	if _, seen := tx.permanentSnapshot[t.Handle]; !seen {
		tx.permanentSnapshot[t.Handle] = t.Permanent
	}
	tx.plan.UnmarkPermanentTask(t)
}

// Commit finalizes every task this transaction created, marking it
// Committed so a later Discard on some OTHER transaction cannot remove it.
// It is an error to commit a transaction on which any task still carries
// TransactionProxy=true: that means some requirement's placeholder was
// never replaced by a resolved concrete task (spec §4.8 step 6,
// fix_toplevel_tasks, must have already run).
func (tx *Transaction) Commit() error {
	if tx.committed || tx.discarded {
		return &errs.InternalError{Reason: "transaction already finalized"}
	}
	for _, h := range tx.added {
		t, ok := tx.plan.TaskByHandle(h)
		if !ok {
			continue // removed by a merge during this same transaction
		}
		if t.TransactionProxy {
			return &errs.InternalError{Reason: fmt.Sprintf("task %d is still a transaction proxy at commit time", h)}
		}
		t.Committed = true
	}
	tx.committed = true
	return nil
}

// Discard removes every task this transaction created and restores any
// permanent-flag changes it made, leaving the underlying plan exactly as it
// was before Begin (spec §9's on_error=drop/save dispositions rely on this).
func (tx *Transaction) Discard() error {
	if tx.committed || tx.discarded {
		return &errs.InternalError{Reason: "transaction already finalized"}
	}
	for i := len(tx.added) - 1; i >= 0; i-- {
		h := tx.added[i]
		if t, ok := tx.plan.TaskByHandle(h); ok && !t.Committed {
			tx.plan.RemoveTask(t)
		}
	}
	for h, was := range tx.permanentSnapshot {
		if t, ok := tx.plan.TaskByHandle(h); ok {
			t.Permanent = was
		}
	}
	tx.discarded = true
	return nil
}

// Finalized reports whether Commit or Discard has already run.
func (tx *Transaction) Finalized() bool { return tx.committed || tx.discarded }

// Committed reports whether this transaction specifically ended in Commit
// (as opposed to Discard).
func (tx *Transaction) Committed() bool { return tx.committed }
