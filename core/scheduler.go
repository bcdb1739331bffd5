package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Phase is the stage of a round.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInit
	PhaseActivatingMovement
	PhaseResolvingMovement
	PhaseActivatingBeep
	PhaseResolvingCircuits
	PhaseCommitted
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseActivatingMovement:
		return "activating_movement"
	case PhaseResolvingMovement:
		return "resolving_movement"
	case PhaseActivatingBeep:
		return "activating_beep"
	case PhaseResolvingCircuits:
		return "resolving_circuits"
	case PhaseCommitted:
		return "committed"
	default:
		return "idle"
	}
}

// Seed salts keep the scheduler's random streams independent.
const (
	orderStream uint64 = 0x6f72646572
	faultStream uint64 = 0x6661756c74
	agentStream uint64 = 0x6167656e74
)

// RoundScheduler drives the two activation phases of a round, resolves
// movements and circuits, and commits or discards pending state. A round
// either commits completely or leaves no trace.
type RoundScheduler struct {
	cfg    Config
	log    logging.Logger
	tracer trace.Tracer

	mu    sync.RWMutex
	phase Phase
}

func newRoundScheduler(cfg Config, log logging.Logger, tracer trace.Tracer) *RoundScheduler {
	return &RoundScheduler{cfg: cfg, log: log, tracer: tracer}
}

// Phase returns the current phase.
func (s *RoundScheduler) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *RoundScheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// expect fails with ErrWrongPhase unless the scheduler is in phase p.
func (s *RoundScheduler) expect(p Phase) error {
	if got := s.Phase(); got != p {
		return fmt.Errorf("in phase %s, want %s: %w", got, p, ErrWrongPhase)
	}
	return nil
}

// activationOrder returns the order amoebots are activated in a round.
func (s *RoundScheduler) activationOrder(round, n int) []int {
	if !s.cfg.RandomizeOrder {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	return rand.New(rand.NewPCG(s.cfg.Seed^orderStream, uint64(round))).Perm(n)
}

func (s *RoundScheduler) agentRand(id model.AmoebotID, round int) *rand.Rand {
	return rand.New(rand.NewPCG(s.cfg.Seed^agentStream^uint64(id)*0x9e3779b97f4a7c15, uint64(round)))
}

type anchor struct {
	id  model.AmoebotID
	set bool
}

// runRound simulates round and returns its snapshot. bots must be ordered
// by id. On any error all pending state is discarded.
func (s *RoundScheduler) runRound(ctx context.Context, round int, bots []*amoebot, anc anchor) (snap *RoundSnapshot, err error) {
	if err := s.expectStart(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "round", trace.WithAttributes(
		attribute.Int("round", round),
		attribute.Int("amoebots", len(bots)),
	))
	defer span.End()

	defer func() {
		if err != nil {
			for _, a := range bots {
				a.discard()
			}
			s.setPhase(PhaseIdle)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Warn(ctx, "round aborted", logging.Round(round), logging.Err(err))
		}
	}()

	for _, a := range bots {
		a.beginRound(s.agentRand(a.id, round))
	}
	order := s.activationOrder(round, len(bots))
	k := s.cfg.PinsPerEdge

	s.setPhase(PhaseActivatingMovement)
	view := occupancy(bots, false)
	if err := s.activate(ctx, PhaseActivatingMovement, round, bots, order, view, Algorithm.ActivateMovement); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.setPhase(PhaseResolvingMovement)
	moves, err := s.resolveMovements(ctx, bots, anc, k)
	if err != nil {
		return nil, err
	}

	s.setPhase(PhaseActivatingBeep)
	view = occupancy(bots, true)
	if err := s.activate(ctx, PhaseActivatingBeep, round, bots, order, view, Algorithm.ActivateBeep); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.setPhase(PhaseResolvingCircuits)
	graph, received, beepStats, err := s.resolveCircuits(ctx, round, bots, k)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, a := range bots {
		a.commit(received[a.id])
	}
	s.setPhase(PhaseCommitted)

	snap = &RoundSnapshot{
		Round:    round,
		Amoebots: make([]AmoebotSnapshot, len(bots)),
		Bonds:    moves.Bonds,
		Circuits: graph,
	}
	for i, a := range bots {
		snap.Amoebots[i] = a.snapshot()
	}
	snap.Stats = RoundStats{
		Round:          round,
		Amoebots:       len(bots),
		OccupiedNodes:  snap.OccupiedNodes(),
		Circuits:       graph.NumCircuits(),
		BeepsSent:      beepStats.Sent,
		BeepsDelivered: beepStats.Delivered,
		BeepsDropped:   beepStats.Dropped,
		MovesApplied:   moves.Applied,
		MovesRejected:  moves.Rejected,
		Duration:       time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("circuits", snap.Stats.Circuits),
		attribute.Int("moves_applied", moves.Applied),
		attribute.Int("moves_rejected", moves.Rejected),
	)
	s.log.Debug(ctx, "round committed",
		logging.Round(round),
		logging.Int("circuits", snap.Stats.Circuits),
		logging.Int("beeps_delivered", beepStats.Delivered),
		logging.Int("moves_rejected", moves.Rejected),
	)
	return snap, nil
}

func (s *RoundScheduler) expectStart() error {
	switch p := s.Phase(); p {
	case PhaseIdle, PhaseCommitted:
		return nil
	default:
		return fmt.Errorf("round already in phase %s: %w", p, ErrWrongPhase)
	}
}

func occupancy(bots []*amoebot, pending bool) map[model.Node]model.AmoebotID {
	view := make(map[model.Node]model.AmoebotID, 2*len(bots))
	for _, a := range bots {
		h, t := a.head, a.tail
		if pending {
			h, t = a.p.head, a.p.tail
		}
		view[h] = a.id
		view[t] = a.id
	}
	return view
}

type activation func(Algorithm, *Agent) error

func (s *RoundScheduler) activate(ctx context.Context, phase Phase, round int, bots []*amoebot, order []int, view map[model.Node]model.AmoebotID, fn activation) error {
	ctx, span := s.tracer.Start(ctx, phase.String())
	defer span.End()

	if s.cfg.Workers <= 1 {
		for _, i := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.activateOne(phase, round, bots[i], view, fn); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for pos, i := range order {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			errs[pos] = s.activateOne(phase, round, bots[i], view, fn)
			return errs[pos]
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return firstError(errs)
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *RoundScheduler) activateOne(phase Phase, round int, a *amoebot, view map[model.Node]model.AmoebotID, fn activation) (err error) {
	ag := newAgent(a, phase, round, s.cfg.PinsPerEdge, view)
	a.attrs.SetWritable(true)
	defer a.attrs.SetWritable(false)

	callErr := safeCall(func() error { return fn(a.algo, ag) })
	switch {
	case ag.err != nil:
		return ag.err
	case callErr != nil:
		var algErr *AlgorithmError
		if errors.As(callErr, &algErr) {
			return callErr
		}
		return &AlgorithmError{AmoebotID: a.id, Round: round, Op: phase.String(), Err: callErr}
	}
	if attrErr := a.attrs.Err(); attrErr != nil {
		a.attrs.ClearErr()
		return &AlgorithmError{AmoebotID: a.id, Round: round, Op: "attribute", Err: attrErr}
	}
	return nil
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAlgorithmPanic, r)
		}
	}()
	return fn()
}

func (s *RoundScheduler) resolveMovements(ctx context.Context, bots []*amoebot, anc anchor, k int) (MovementResult, error) {
	_, span := s.tracer.Start(ctx, PhaseResolvingMovement.String())
	defer span.End()

	in := MovementInput{Amoebots: make([]MovementRequest, len(bots)), Anchor: anc.id, HasAnchor: anc.set}
	for i, a := range bots {
		in.Amoebots[i] = a.movementRequest()
	}
	res := ResolveMovements(in)
	for i, a := range bots {
		a.applyMove(res.Moves[i], k)
	}
	span.SetAttributes(
		attribute.Int("applied", res.Applied),
		attribute.Int("rejected", res.Rejected),
	)
	return res, nil
}

func (s *RoundScheduler) resolveCircuits(ctx context.Context, round int, bots []*amoebot, k int) (*CircuitGraph, BeepSet, BeepStats, error) {
	_, span := s.tracer.Start(ctx, PhaseResolvingCircuits.String())
	defer span.End()

	inputs := make([]CircuitInput, len(bots))
	fired := make(BeepSet, len(bots))
	for i, a := range bots {
		inputs[i] = a.circuitInput()
		if a.p.beeps != nil {
			fired[a.id] = a.p.beeps
		}
	}
	graph, err := ComputeCircuits(inputs, k)
	if err != nil {
		return nil, nil, BeepStats{}, err
	}
	opts := BeepOptions{
		SelfDelivery:       s.cfg.SelfDelivery,
		FailureProbability: s.cfg.BeepFailureProbability,
		Rand:               rand.New(rand.NewPCG(s.cfg.Seed^faultStream, uint64(round))),
	}
	received, stats := PropagateBeeps(graph, fired, opts)
	span.SetAttributes(
		attribute.Int("circuits", graph.NumCircuits()),
		attribute.Int("beeps_sent", stats.Sent),
		attribute.Int("beeps_dropped", stats.Dropped),
	)
	return graph, received, stats, nil
}
