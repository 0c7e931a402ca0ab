package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// LockClass identifies the kind of row being locked. The declaration order
// is the mandated global acquisition order: Order before OrderLine before
// Variant, and Product before Variant. Order and Product rows are never
// locked in the same transaction, so a single total order covers both
// chains. Within one class, rows are always locked in ascending id order.
type LockClass int

const (
	LockOrderRow LockClass = iota
	LockOrderLine
	LockProduct
	LockVariant
)

func (c LockClass) String() string {
	switch c {
	case LockOrderRow:
		return "order"
	case LockOrderLine:
		return "order_line"
	case LockProduct:
		return "product"
	case LockVariant:
		return "variant"
	}
	return fmt.Sprintf("lock_class(%d)", int(c))
}

// AcquisitionOrder returns the given classes sorted into the mandated
// acquisition sequence.
func AcquisitionOrder(classes ...LockClass) []LockClass {
	ordered := make([]LockClass, len(classes))
	copy(ordered, classes)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	return ordered
}

// Acquisition is a single recorded lock acquisition.
type Acquisition struct {
	Class LockClass
	ID    int64
}

// Locker is the single gate every service goes through to take row locks.
// It enforces the global lock order at runtime instead of leaving it to code
// review, optionally layers Postgres advisory transaction locks on top of
// the row locks (migration aid, toggled by configuration), and can report
// each acquisition to a trace hook.
//
// A Locker is scoped to one transaction and is not safe for concurrent use.
type Locker struct {
	advisory  bool
	onAcquire func(Acquisition)
	last      *Acquisition
}

func NewLocker(advisory bool) *Locker {
	return &Locker{advisory: advisory}
}

// WithTrace registers a hook invoked for every acquisition, in order.
func (l *Locker) WithTrace(fn func(Acquisition)) *Locker {
	l.onAcquire = fn
	return l
}

// Reset clears the ordering state. Services call it at the start of each
// transaction attempt so a retried transaction starts from a clean slate.
func (l *Locker) Reset() {
	l.last = nil
}

// Acquire registers a lock acquisition on the given rows. Call it before
// the corresponding SELECT ... FOR UPDATE when the ids are known up front,
// or immediately after an ORDER BY id ... FOR UPDATE scan when they are not.
// ids must be ascending. Going back to an earlier class, or backwards within
// a class, is a programmer error and fails with ErrLockOrderViolated.
func (l *Locker) Acquire(ctx context.Context, tx *sql.Tx, class LockClass, ids ...int64) error {
	for _, id := range ids {
		if l.last != nil {
			if class < l.last.Class {
				return fmt.Errorf("%w: %s before %s", ErrLockOrderViolated, l.last.Class, class)
			}
			if class == l.last.Class && id <= l.last.ID {
				return fmt.Errorf("%w: %s id %d after id %d", ErrLockOrderViolated, class, id, l.last.ID)
			}
		}

		if l.advisory {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(class, id)); err != nil {
				return fmt.Errorf("advisory lock %s %d: %w", class, id, err)
			}
		}

		acq := Acquisition{Class: class, ID: id}
		l.last = &acq
		if l.onAcquire != nil {
			l.onAcquire(acq)
		}
	}

	return nil
}

// advisoryKey packs the class into the top bits of the 64-bit advisory lock
// keyspace so ids of different classes cannot collide.
func advisoryKey(class LockClass, id int64) int64 {
	return int64(class)<<56 | (id & (1<<56 - 1))
}
