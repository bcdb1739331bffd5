package state

import (
	"context"
	"errors"
	"sync"

	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/history"
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/kb"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

// Re-export history sentinel errors so observers can depend on state.*
// without importing the history package.
var (
	// ErrOutOfRange indicates a round outside the stored history.
	ErrOutOfRange = history.ErrOutOfRange
	// ErrAtLatestRound indicates a forward step at the newest round.
	ErrAtLatestRound = history.ErrAtLatestRound
	// ErrNotAtLatest indicates a mutation attempted while replaying history.
	ErrNotAtLatest = history.ErrNotAtLatest
	// ErrNoEngine indicates the state was built without an engine.
	ErrNoEngine = errors.New("simulation engine not configured")
)

// SimulationState guards a SimulationEngine so that one controller can step
// it while any number of observers read snapshots.
type SimulationState struct {
	// mu orders steps against composite reads. Take it before any engine
	// call that must be observed together with another.
	mu sync.RWMutex

	engine     *core.SimulationEngine
	population *kb.KnowledgeBase

	log     logging.Logger
	metrics PopulationRecorder
}

// RoundView is a consistent read of the cursor round and the stored range.
type RoundView struct {
	Snapshot *core.RoundSnapshot
	Earliest int
	Latest   int
	AtLatest bool
}

// PopulationRecorder receives population counts whenever the visible round
// changes.
type PopulationRecorder interface {
	SetPopulation(amoebots, occupiedNodes int)
}

// SimulationStateOption customises SimulationState construction.
type SimulationStateOption func(*SimulationState)

// WithPopulationRecorder attaches an optional recorder for population gauges.
func WithPopulationRecorder(m PopulationRecorder) SimulationStateOption {
	return func(s *SimulationState) {
		s.metrics = m
	}
}

// NewSimulationState wraps engine and the population store it mirrors into.
func NewSimulationState(engine *core.SimulationEngine, population *kb.KnowledgeBase, log logging.Logger, opts ...SimulationStateOption) *SimulationState {
	if log == nil {
		log = logging.Noop()
	}
	s := &SimulationState{
		engine:     engine,
		population: population,
		log:        log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.updateMetricsLocked()
	return s
}

// Engine exposes the wrapped engine.
func (s *SimulationState) Engine() *core.SimulationEngine {
	return s.engine
}

// Population exposes the population store mirroring the cursor round.
func (s *SimulationState) Population() *kb.KnowledgeBase {
	return s.population
}

// WithReadLock executes fn while holding the read lock. Callers must not
// invoke other SimulationState methods from inside fn.
func (s *SimulationState) WithReadLock(fn func() error) error {
	if fn == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// Step advances one round, replaying history when the cursor is behind.
func (s *SimulationState) Step(ctx context.Context) (*core.RoundSnapshot, error) {
	return s.mutate(ctx, "step", func() (*core.RoundSnapshot, error) {
		return s.engine.Step(ctx)
	})
}

// Run advances up to rounds rounds.
func (s *SimulationState) Run(ctx context.Context, rounds int) (*core.RoundSnapshot, error) {
	return s.mutate(ctx, "run", func() (*core.RoundSnapshot, error) {
		return s.engine.Run(ctx, rounds)
	})
}

// StepBackward moves the cursor one round back.
func (s *SimulationState) StepBackward(ctx context.Context) (*core.RoundSnapshot, error) {
	return s.mutate(ctx, "step_backward", s.engine.StepBackward)
}

// StepForward moves the cursor one stored round forward.
func (s *SimulationState) StepForward(ctx context.Context) (*core.RoundSnapshot, error) {
	return s.mutate(ctx, "step_forward", s.engine.StepForward)
}

// SeekRound moves the cursor to a stored round.
func (s *SimulationState) SeekRound(ctx context.Context, round int) (*core.RoundSnapshot, error) {
	return s.mutate(ctx, "seek", func() (*core.RoundSnapshot, error) {
		return s.engine.SeekRound(round)
	})
}

// TruncateHistory drops the rounds after the cursor.
func (s *SimulationState) TruncateHistory(ctx context.Context) int {
	if s.engine == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.engine.TruncateHistory()
	s.log.Debug(ctx, "history truncated", logging.Int("dropped", dropped))
	return dropped
}

// RemoveAmoebot schedules a removal for the next simulated round.
func (s *SimulationState) RemoveAmoebot(ctx context.Context, id model.AmoebotID) error {
	if s.engine == nil {
		return ErrNoEngine
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.RemoveAmoebot(id); err != nil {
		return err
	}
	s.log.Debug(ctx, "amoebot removal scheduled", logging.Amoebot(int(id)))
	return nil
}

// Snapshot returns the round under the cursor.
func (s *SimulationState) Snapshot() (*core.RoundSnapshot, error) {
	if s.engine == nil {
		return nil, ErrNoEngine
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Snapshot()
}

// SnapshotAt returns a stored round without moving the cursor.
func (s *SimulationState) SnapshotAt(round int) (*core.RoundSnapshot, error) {
	if s.engine == nil {
		return nil, ErrNoEngine
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.SnapshotAt(round)
}

// View returns the cursor round together with the stored range.
func (s *SimulationState) View() (RoundView, error) {
	if s.engine == nil {
		return RoundView{}, ErrNoEngine
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, err := s.engine.Snapshot()
	if err != nil {
		return RoundView{}, err
	}
	earliest, latest := s.engine.HistoryRange()
	return RoundView{
		Snapshot: snap,
		Earliest: earliest,
		Latest:   latest,
		AtLatest: s.engine.IsAtLatestRound(),
	}, nil
}

// HistoryRange returns the earliest and latest stored rounds.
func (s *SimulationState) HistoryRange() (earliest, latest int) {
	if s.engine == nil {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.HistoryRange()
}

func (s *SimulationState) mutate(ctx context.Context, op string, fn func() (*core.RoundSnapshot, error)) (*core.RoundSnapshot, error) {
	if s.engine == nil {
		return nil, ErrNoEngine
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := fn()
	if err != nil {
		s.log.Debug(ctx, "simulation state update failed",
			logging.String("operation", op),
			logging.Err(err),
		)
		return nil, err
	}
	s.updateMetricsLocked()
	return snap, nil
}

// updateMetricsLocked pushes the population counts into the recorder.
// Caller must hold s.mu.
func (s *SimulationState) updateMetricsLocked() {
	if s == nil || s.metrics == nil || s.population == nil {
		return
	}
	s.metrics.SetPopulation(s.population.Len(), s.population.OccupiedNodes())
}
