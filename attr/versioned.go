// Package attr holds algorithm-owned amoebot state as versioned cells.
//
// A cell keeps the value an amoebot had at the start of the current round and
// an optional pending value written during the round. The engine commits or
// discards pending values at round boundaries and snapshots committed values
// into the round history; algorithms never see another round's writes.
package attr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAttribute is reported when an algorithm looks up a name that
	// was never declared.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrDuplicateAttribute is returned when a name is declared twice.
	ErrDuplicateAttribute = errors.New("attribute already declared")
	// ErrTypeMismatch is reported when a lookup asks for the wrong type.
	ErrTypeMismatch = errors.New("attribute type mismatch")
	// ErrReadOnly is reported when a cell is written outside an activation.
	ErrReadOnly = errors.New("attribute written outside an activation")
	// ErrSealed is returned when attributes are declared after round 0.
	ErrSealed = errors.New("attribute registry is sealed")
	// ErrSnapshotMismatch is returned when restoring an incompatible snapshot.
	ErrSnapshotMismatch = errors.New("attribute snapshot does not match registry")
)

// Cell is the engine-facing side of a versioned attribute.
type Cell interface {
	Name() string
	// Dirty reports whether a pending value was written this round.
	Dirty() bool
	// Commit makes the pending value (if any) the round-start value.
	Commit()
	// Discard drops the pending value.
	Discard()
	// Snapshot returns the committed value.
	Snapshot() any
	// Restore replaces the committed value and drops any pending write.
	Restore(v any) error
}

// Versioned is a typed attribute cell. T is restricted to comparable types
// so committed values can be copied into snapshots without aliasing.
type Versioned[T comparable] struct {
	name    string
	reg     *Registry
	value   T
	pending T
	written bool
}

// Name returns the attribute's declared name.
func (v *Versioned[T]) Name() string { return v.name }

// Get returns the value at the start of the current round.
func (v *Versioned[T]) Get() T { return v.value }

// GetCurrent returns the latest value written this round, falling back to
// the round-start value.
func (v *Versioned[T]) GetCurrent() T {
	if v.written {
		return v.pending
	}
	return v.value
}

// Set stages a new value. Writes outside an activation are recorded as a
// fault on the owning registry and otherwise ignored.
func (v *Versioned[T]) Set(val T) {
	if v.reg != nil && !v.reg.writable {
		v.reg.fault(fmt.Errorf("set %q: %w", v.name, ErrReadOnly))
		return
	}
	v.pending = val
	v.written = true
}

func (v *Versioned[T]) Dirty() bool { return v.written }

func (v *Versioned[T]) Commit() {
	if v.written {
		v.value = v.pending
	}
	v.Discard()
}

func (v *Versioned[T]) Discard() {
	var zero T
	v.pending = zero
	v.written = false
}

func (v *Versioned[T]) Snapshot() any { return v.value }

func (v *Versioned[T]) Restore(val any) error {
	typed, ok := val.(T)
	if !ok {
		return fmt.Errorf("restore %q with %T: %w", v.name, val, ErrTypeMismatch)
	}
	v.value = typed
	v.Discard()
	return nil
}
