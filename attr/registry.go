package attr

import "fmt"

// Registry is the ordered set of attribute cells owned by one amoebot.
// Registration order is stable and defines the layout of snapshots.
type Registry struct {
	cells    []Cell
	byName   map[string]Cell
	writable bool
	sealed   bool
	err      error
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Cell)}
}

// New declares a typed attribute with an initial value.
func New[T comparable](r *Registry, name string, initial T) (*Versioned[T], error) {
	if r.sealed {
		return nil, fmt.Errorf("declare %q: %w", name, ErrSealed)
	}
	if name == "" {
		return nil, fmt.Errorf("declare attribute: name is required")
	}
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("declare %q: %w", name, ErrDuplicateAttribute)
	}
	cell := &Versioned[T]{name: name, reg: r, value: initial}
	r.cells = append(r.cells, cell)
	r.byName[name] = cell
	return cell, nil
}

// MustNew is New for algorithm constructors that treat a declaration
// failure as a programming error.
func MustNew[T comparable](r *Registry, name string, initial T) *Versioned[T] {
	cell, err := New(r, name, initial)
	if err != nil {
		panic(err)
	}
	return cell
}

// Lookup finds a declared attribute by name. Failed lookups are also
// recorded as a registry fault so the engine can halt the round even if the
// caller drops the error.
func Lookup[T comparable](r *Registry, name string) (*Versioned[T], error) {
	cell, ok := r.byName[name]
	if !ok {
		err := fmt.Errorf("lookup %q: %w", name, ErrUnknownAttribute)
		r.fault(err)
		return nil, err
	}
	typed, ok := cell.(*Versioned[T])
	if !ok {
		err := fmt.Errorf("lookup %q: %w", name, ErrTypeMismatch)
		r.fault(err)
		return nil, err
	}
	return typed, nil
}

// Names returns attribute names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.cells))
	for i, c := range r.cells {
		names[i] = c.Name()
	}
	return names
}

// Len returns the number of declared attributes.
func (r *Registry) Len() int { return len(r.cells) }

// Seal forbids further declarations.
func (r *Registry) Seal() { r.sealed = true }

// SetWritable opens or closes the registry for writes. The engine opens it
// only while the owning amoebot is being activated.
func (r *Registry) SetWritable(w bool) { r.writable = w }

// Err returns the first fault recorded since the last ClearErr.
func (r *Registry) Err() error { return r.err }

// ClearErr resets the recorded fault.
func (r *Registry) ClearErr() { r.err = nil }

func (r *Registry) fault(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Commit applies all pending writes.
func (r *Registry) Commit() {
	for _, c := range r.cells {
		c.Commit()
	}
}

// Discard drops all pending writes.
func (r *Registry) Discard() {
	for _, c := range r.cells {
		c.Discard()
	}
}

// Snapshot returns committed values in registration order.
func (r *Registry) Snapshot() []any {
	values := make([]any, len(r.cells))
	for i, c := range r.cells {
		values[i] = c.Snapshot()
	}
	return values
}

// Restore replaces all committed values from a snapshot taken by Snapshot.
func (r *Registry) Restore(values []any) error {
	if len(values) != len(r.cells) {
		return fmt.Errorf("restore %d values into %d cells: %w", len(values), len(r.cells), ErrSnapshotMismatch)
	}
	for i, c := range r.cells {
		if err := c.Restore(values[i]); err != nil {
			return err
		}
	}
	return nil
}
