package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/signalsfoundry/amoebot-simulator/history"
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/kb"
	"github.com/signalsfoundry/amoebot-simulator/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/amoebot-simulator/core"

// MetricsRecorder receives statistics of every committed round.
type MetricsRecorder interface {
	ObserveRound(stats RoundStats)
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *SimulationEngine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder reports round statistics to m.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *SimulationEngine) { e.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *SimulationEngine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// SimulationEngine owns the amoebot system, runs rounds through the
// RoundScheduler and records every committed round in history. Calls are
// serialised; algorithm code must not call back into the engine.
type SimulationEngine struct {
	mu sync.Mutex

	cfg       Config
	kb        *kb.KnowledgeBase
	all       map[model.AmoebotID]*amoebot
	active    []*amoebot
	scheduler *RoundScheduler
	history   *history.Manager[*RoundSnapshot]
	anchor    anchor
	removals  map[model.AmoebotID]bool
	listeners []func(*RoundSnapshot)

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// NewSimulationEngine creates one amoebot per placement in population, runs
// factory for each of them and commits the initial state as round 0.
func NewSimulationEngine(cfg Config, population *kb.KnowledgeBase, factory AlgorithmFactory, opts ...EngineOption) (*SimulationEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if population == nil {
		return nil, fmt.Errorf("nil population: %w", ErrInvalidConfig)
	}
	if factory == nil {
		return nil, fmt.Errorf("nil algorithm factory: %w", ErrInvalidConfig)
	}
	if population.PinsPerEdge() != cfg.PinsPerEdge {
		return nil, fmt.Errorf("population uses %d pins per edge, config %d: %w",
			population.PinsPerEdge(), cfg.PinsPerEdge, ErrInvalidConfig)
	}

	e := &SimulationEngine{
		cfg:      cfg,
		kb:       population,
		all:      make(map[model.AmoebotID]*amoebot),
		history:  history.NewManager[*RoundSnapshot](cfg.HistoryRetention),
		removals: make(map[model.AmoebotID]bool),
		log:      logging.Noop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scheduler = newRoundScheduler(cfg, e.log, e.tracer)

	specs := population.ListAmoebots()
	for _, spec := range specs {
		a := newAmoebot(spec, cfg.PinsPerEdge)
		e.all[a.id] = a
		e.active = append(e.active, a)
	}
	view := occupancy(e.active, false)
	for _, a := range e.active {
		if err := initAmoebot(a, factory, cfg.PinsPerEdge, view, e.scheduler.agentRand(a.id, 0)); err != nil {
			return nil, err
		}
	}

	snap, err := e.initialSnapshot()
	if err != nil {
		return nil, err
	}
	if err := e.history.Commit(0, snap); err != nil {
		return nil, err
	}
	e.log.Info(context.Background(), "simulation initialised",
		logging.Int("amoebots", len(e.active)),
		logging.Int("pins_per_edge", cfg.PinsPerEdge),
	)
	return e, nil
}

func initAmoebot(a *amoebot, factory AlgorithmFactory, k int, view map[model.Node]model.AmoebotID, rng *rand.Rand) error {
	a.p.rng = rng
	ag := newAgent(a, PhaseInit, 0, k, view)
	a.attrs.SetWritable(true)
	defer a.attrs.SetWritable(false)

	var algo Algorithm
	callErr := safeCall(func() error {
		var ferr error
		algo, ferr = factory(ag)
		return ferr
	})
	switch {
	case ag.err != nil:
		return ag.err
	case callErr != nil:
		return &AlgorithmError{AmoebotID: a.id, Op: PhaseInit.String(), Err: callErr}
	case algo == nil:
		return &AlgorithmError{AmoebotID: a.id, Op: PhaseInit.String(), Err: errors.New("factory returned nil algorithm")}
	}
	if attrErr := a.attrs.Err(); attrErr != nil {
		return &AlgorithmError{AmoebotID: a.id, Op: "attribute", Err: attrErr}
	}
	a.algo = algo
	a.attrs.Seal()
	a.attrs.Commit()
	return nil
}

func (e *SimulationEngine) initialSnapshot() (*RoundSnapshot, error) {
	reqs := make([]MovementRequest, len(e.active))
	inputs := make([]CircuitInput, len(e.active))
	for i, a := range e.active {
		reqs[i] = MovementRequest{ID: a.id, Head: a.head, Tail: a.tail}
		inputs[i] = CircuitInput{ID: a.id, Head: a.head, Tail: a.tail, Compass: a.compass, Chirality: a.chirality, Pins: a.pins}
	}
	graph, err := ComputeCircuits(inputs, e.cfg.PinsPerEdge)
	if err != nil {
		return nil, err
	}
	snap := &RoundSnapshot{
		Round:    0,
		Amoebots: make([]AmoebotSnapshot, len(e.active)),
		Bonds:    ResolveMovements(MovementInput{Amoebots: reqs}).Bonds,
		Circuits: graph,
	}
	for i, a := range e.active {
		snap.Amoebots[i] = a.snapshot()
	}
	snap.Stats = RoundStats{
		Amoebots:      len(e.active),
		OccupiedNodes: snap.OccupiedNodes(),
		Circuits:      graph.NumCircuits(),
	}
	return snap, nil
}

// Config returns the engine configuration.
func (e *SimulationEngine) Config() Config { return e.cfg }

// Phase returns the scheduler phase.
func (e *SimulationEngine) Phase() Phase { return e.scheduler.Phase() }

// RegisterRoundListener adds a callback invoked after every newly committed
// round.
func (e *SimulationEngine) RegisterRoundListener(fn func(*RoundSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Step advances by one round. When the cursor is behind the latest round it
// replays the stored next round; otherwise it simulates a new one.
func (e *SimulationEngine) Step(ctx context.Context) (*RoundSnapshot, error) {
	e.mu.Lock()
	snap, fresh, err := e.stepLocked(ctx)
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fresh {
		for _, fn := range listeners {
			fn(snap)
		}
	}
	return snap, nil
}

func (e *SimulationEngine) stepLocked(ctx context.Context) (*RoundSnapshot, bool, error) {
	if !e.history.IsAtLatestRound() {
		snap, err := e.history.StepForward()
		if err != nil {
			return nil, false, err
		}
		return snap, false, e.restore(snap)
	}

	bots := make([]*amoebot, 0, len(e.active))
	for _, a := range e.active {
		if !e.removals[a.id] {
			bots = append(bots, a)
		}
	}
	round := e.history.Latest() + 1
	snap, err := e.scheduler.runRound(ctx, round, bots, e.anchor)
	if err != nil {
		return nil, false, err
	}
	if err := e.history.Commit(round, snap); err != nil {
		return nil, false, err
	}
	e.active = bots
	e.removals = make(map[model.AmoebotID]bool)
	if err := e.kb.Sync(specsOf(snap, e.cfg.PinsPerEdge)); err != nil {
		e.log.Warn(ctx, "population store out of sync", logging.Round(round), logging.Err(err))
	}
	if e.metrics != nil {
		e.metrics.ObserveRound(snap.Stats)
	}
	return snap, true, nil
}

// Run steps up to rounds times and returns the last snapshot.
func (e *SimulationEngine) Run(ctx context.Context, rounds int) (*RoundSnapshot, error) {
	var last *RoundSnapshot
	for i := 0; i < rounds; i++ {
		snap, err := e.Step(ctx)
		if err != nil {
			return last, err
		}
		last = snap
	}
	if last == nil {
		return e.Snapshot()
	}
	return last, nil
}

// StepBackward restores the previous committed round.
func (e *SimulationEngine) StepBackward() (*RoundSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.history.StepBackward()
	if err != nil {
		return nil, err
	}
	return snap, e.restore(snap)
}

// StepForward restores the next committed round. At the latest round it
// fails with history.ErrAtLatestRound; use Step to simulate further.
func (e *SimulationEngine) StepForward() (*RoundSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.history.StepForward()
	if err != nil {
		return nil, err
	}
	return snap, e.restore(snap)
}

// SeekRound restores a stored round.
func (e *SimulationEngine) SeekRound(round int) (*RoundSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, err := e.history.Seek(round)
	if err != nil {
		return nil, err
	}
	return snap, e.restore(snap)
}

// IsAtLatestRound reports whether the cursor is at the newest round.
func (e *SimulationEngine) IsAtLatestRound() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.IsAtLatestRound()
}

// Round returns the round under the cursor.
func (e *SimulationEngine) Round() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Cursor()
}

// HistoryRange returns the earliest and latest stored rounds.
func (e *SimulationEngine) HistoryRange() (earliest, latest int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Earliest(), e.history.Latest()
}

// TruncateHistory drops every round after the cursor so the next Step
// re-simulates from there. It returns the number of dropped rounds.
func (e *SimulationEngine) TruncateHistory() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := e.history.TruncateAfterCursor()
	if dropped > 0 {
		e.log.Info(context.Background(), "history truncated",
			logging.Round(e.history.Cursor()),
			logging.Int("dropped", dropped),
		)
	}
	return dropped
}

// Snapshot returns the committed state under the cursor.
func (e *SimulationEngine) Snapshot() (*RoundSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Current()
}

// SnapshotAt returns a stored round without moving the cursor.
func (e *SimulationEngine) SnapshotAt(round int) (*RoundSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.At(round)
}

// RemoveAmoebot schedules the removal of an amoebot. It disappears from the
// next simulated round; the request is dropped if the cursor moves first.
func (e *SimulationEngine) RemoveAmoebot(id model.AmoebotID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.history.IsAtLatestRound() {
		return fmt.Errorf("remove %s: %w", id, history.ErrNotAtLatest)
	}
	for _, a := range e.active {
		if a.id == id {
			e.removals[id] = true
			return nil
		}
	}
	return fmt.Errorf("remove %s: %w", id, ErrAmoebotNotFound)
}

// SetAnchor fixes the position of amoebot id during movement resolution.
func (e *SimulationEngine) SetAnchor(id model.AmoebotID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.all[id]; !ok {
		return fmt.Errorf("anchor %s: %w", id, ErrAmoebotNotFound)
	}
	e.anchor = anchor{id: id, set: true}
	return nil
}

// ClearAnchor returns to anchoring the lowest id of every component.
func (e *SimulationEngine) ClearAnchor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anchor = anchor{}
}

// restore makes snap the live state.
func (e *SimulationEngine) restore(snap *RoundSnapshot) error {
	active := make([]*amoebot, 0, len(snap.Amoebots))
	for _, s := range snap.Amoebots {
		a, ok := e.all[s.ID]
		if !ok {
			return fmt.Errorf("restore round %d: %s: %w", snap.Round, s.ID, ErrAmoebotNotFound)
		}
		if err := a.restore(s); err != nil {
			return fmt.Errorf("restore round %d: %s: %w", snap.Round, s.ID, err)
		}
		active = append(active, a)
	}
	e.active = active
	e.removals = make(map[model.AmoebotID]bool)
	return e.kb.Sync(specsOf(snap, e.cfg.PinsPerEdge))
}

func specsOf(snap *RoundSnapshot, k int) []model.AmoebotSpec {
	specs := make([]model.AmoebotSpec, len(snap.Amoebots))
	for i, a := range snap.Amoebots {
		specs[i] = model.AmoebotSpec{
			ID:          a.ID,
			Head:        a.Head,
			Tail:        a.Tail,
			Chirality:   a.Chirality,
			Compass:     a.Compass,
			PinsPerEdge: k,
		}
	}
	return specs
}
