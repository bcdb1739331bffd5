// Package history keeps committed round states and a stepping cursor.
package history

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when no round has been committed yet.
	ErrEmpty = errors.New("history is empty")
	// ErrOutOfRange is returned for rounds that were never committed or have
	// been evicted by the retention limit.
	ErrOutOfRange = errors.New("round outside recorded history")
	// ErrAtLatestRound is returned by StepForward at the newest round; the
	// caller should simulate a new round instead.
	ErrAtLatestRound = errors.New("already at latest round")
	// ErrNotContiguous is returned when a commit skips or repeats a round.
	ErrNotContiguous = errors.New("committed round does not follow latest round")
	// ErrNotAtLatest is returned when committing while stepped back.
	ErrNotAtLatest = errors.New("cannot commit while stepped back in history")
)

// Manager stores one state per committed round, keyed by contiguous round
// numbers, and a cursor for backward/forward stepping. States are stored as
// given; callers must commit immutable values.
type Manager[S any] struct {
	first     int
	states    []S
	cursor    int
	retention int
}

// NewManager returns an empty manager. retention bounds the number of stored
// rounds; zero or negative keeps everything.
func NewManager[S any](retention int) *Manager[S] {
	return &Manager[S]{retention: retention}
}

// Commit appends the state for round. The first commit fixes the starting
// round number; later commits must be contiguous and happen at the latest
// round.
func (m *Manager[S]) Commit(round int, state S) error {
	if len(m.states) > 0 {
		if !m.IsAtLatestRound() {
			return ErrNotAtLatest
		}
		if want := m.latestRound() + 1; round != want {
			return fmt.Errorf("commit round %d, want %d: %w", round, want, ErrNotContiguous)
		}
	} else {
		m.first = round
	}
	m.states = append(m.states, state)
	m.evict()
	m.cursor = len(m.states) - 1
	return nil
}

func (m *Manager[S]) evict() {
	if m.retention <= 0 || len(m.states) <= m.retention {
		return
	}
	drop := len(m.states) - m.retention
	var zero S
	for i := 0; i < drop; i++ {
		m.states[i] = zero
	}
	m.states = append(m.states[:0:0], m.states[drop:]...)
	m.first += drop
}

// StepBackward moves the cursor one round back and returns that state.
func (m *Manager[S]) StepBackward() (S, error) {
	var zero S
	if len(m.states) == 0 {
		return zero, ErrEmpty
	}
	if m.cursor == 0 {
		return zero, fmt.Errorf("step back from round %d: %w", m.first, ErrOutOfRange)
	}
	m.cursor--
	return m.states[m.cursor], nil
}

// StepForward moves the cursor one round forward and returns that state.
func (m *Manager[S]) StepForward() (S, error) {
	var zero S
	if len(m.states) == 0 {
		return zero, ErrEmpty
	}
	if m.IsAtLatestRound() {
		return zero, ErrAtLatestRound
	}
	m.cursor++
	return m.states[m.cursor], nil
}

// Seek moves the cursor to round and returns its state.
func (m *Manager[S]) Seek(round int) (S, error) {
	state, err := m.At(round)
	if err != nil {
		return state, err
	}
	m.cursor = round - m.first
	return state, nil
}

// At returns the state committed for round without moving the cursor.
func (m *Manager[S]) At(round int) (S, error) {
	var zero S
	if len(m.states) == 0 {
		return zero, ErrEmpty
	}
	idx := round - m.first
	if idx < 0 || idx >= len(m.states) {
		return zero, fmt.Errorf("round %d (recorded %d..%d): %w", round, m.first, m.latestRound(), ErrOutOfRange)
	}
	return m.states[idx], nil
}

// Current returns the state under the cursor.
func (m *Manager[S]) Current() (S, error) {
	var zero S
	if len(m.states) == 0 {
		return zero, ErrEmpty
	}
	return m.states[m.cursor], nil
}

// IsAtLatestRound reports whether the cursor is on the newest round. An
// empty history counts as being at the latest round.
func (m *Manager[S]) IsAtLatestRound() bool {
	return len(m.states) == 0 || m.cursor == len(m.states)-1
}

// TruncateAfterCursor drops every round after the cursor so simulation can
// continue from the current round.
func (m *Manager[S]) TruncateAfterCursor() int {
	if len(m.states) == 0 {
		return 0
	}
	dropped := len(m.states) - 1 - m.cursor
	var zero S
	for i := m.cursor + 1; i < len(m.states); i++ {
		m.states[i] = zero
	}
	m.states = m.states[:m.cursor+1]
	return dropped
}

// Cursor returns the round number under the cursor.
func (m *Manager[S]) Cursor() int { return m.first + m.cursor }

// Earliest returns the oldest retained round number.
func (m *Manager[S]) Earliest() int { return m.first }

// Latest returns the newest committed round number, or -1 when empty.
func (m *Manager[S]) Latest() int {
	if len(m.states) == 0 {
		return -1
	}
	return m.latestRound()
}

// Len returns the number of retained rounds.
func (m *Manager[S]) Len() int { return len(m.states) }

func (m *Manager[S]) latestRound() int { return m.first + len(m.states) - 1 }
