package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/history"
	"github.com/signalsfoundry/amoebot-simulator/kb"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

func contractedAt(id, x, y int) model.AmoebotSpec {
	n := model.Node{X: x, Y: y}
	return model.AmoebotSpec{ID: model.AmoebotID(id), Head: n, Tail: n, Chirality: model.CounterClockwise}
}

func population(t *testing.T, k int, specs ...model.AmoebotSpec) *kb.KnowledgeBase {
	t.Helper()
	store := kb.NewKnowledgeBase(k)
	if err := store.AddAmoebots(specs); err != nil {
		t.Fatalf("AddAmoebots: %v", err)
	}
	return store
}

func testConfig(k int) Config {
	cfg := DefaultConfig()
	cfg.PinsPerEdge = k
	cfg.RandomizeOrder = false
	return cfg
}

func newEngine(t *testing.T, cfg Config, factory AlgorithmFactory, specs ...model.AmoebotSpec) *SimulationEngine {
	t.Helper()
	e, err := NewSimulationEngine(cfg, population(t, cfg.PinsPerEdge, specs...), factory)
	if err != nil {
		t.Fatalf("NewSimulationEngine: %v", err)
	}
	return e
}

func funcs(movement, beep func(*Agent) error) AlgorithmFactory {
	return func(*Agent) (Algorithm, error) {
		return AlgorithmFuncs{Movement: movement, Beep: beep}, nil
	}
}

func liveAmoebots(e *SimulationEngine) []AmoebotSnapshot {
	out := make([]AmoebotSnapshot, len(e.active))
	for i, a := range e.active {
		out[i] = a.snapshot()
	}
	return out
}

func attrOf(t *testing.T, snap *RoundSnapshot, id model.AmoebotID, name string) any {
	t.Helper()
	a, ok := snap.Amoebot(id)
	if !ok {
		t.Fatalf("round %d has no %s", snap.Round, id)
	}
	v, ok := a.Attribute(name)
	if !ok {
		t.Fatalf("%s has no attribute %q", id, name)
	}
	return v
}

func TestNewSimulationEngineCommitsRoundZero(t *testing.T) {
	e := newEngine(t, testConfig(1), funcs(nil, nil), contractedAt(1, 0, 0), contractedAt(2, 1, 0))
	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Round != 0 || len(snap.Amoebots) != 2 || e.Round() != 0 || !e.IsAtLatestRound() {
		t.Fatalf("initial snapshot round=%d amoebots=%d", snap.Round, len(snap.Amoebots))
	}
	if len(snap.Bonds) != 1 || snap.Circuits.NumCircuits() != 11 {
		t.Fatalf("bonds=%d circuits=%d", len(snap.Bonds), snap.Circuits.NumCircuits())
	}
}

func TestNewSimulationEngineValidation(t *testing.T) {
	cfg := testConfig(1)
	if _, err := NewSimulationEngine(cfg, kb.NewKnowledgeBase(2), funcs(nil, nil)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("k mismatch err = %v", err)
	}
	bad := cfg
	bad.BeepFailureProbability = 2
	if _, err := NewSimulationEngine(bad, kb.NewKnowledgeBase(1), funcs(nil, nil)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("probability err = %v", err)
	}
	boom := errors.New("boom")
	failing := func(*Agent) (Algorithm, error) { return nil, boom }
	_, err := NewSimulationEngine(cfg, population(t, 1, contractedAt(1, 0, 0)), failing)
	var algErr *AlgorithmError
	if !errors.As(err, &algErr) || !errors.Is(err, boom) || algErr.AmoebotID != 1 {
		t.Fatalf("factory err = %v", err)
	}
}

func TestTwoAmoebotBeepAcrossRounds(t *testing.T) {
	for _, selfDelivery := range []bool{true, false} {
		t.Run(fmt.Sprintf("self_delivery=%v", selfDelivery), func(t *testing.T) {
			cfg := testConfig(1)
			cfg.SelfDelivery = selfDelivery
			factory := func(ag *Agent) (Algorithm, error) {
				heard := attr.MustNew(ag.Attributes(), "heard", false)
				return AlgorithmFuncs{
					Movement: func(ag *Agent) error {
						heard.Set(ag.AnyBeepReceived())
						return nil
					},
					Beep: func(ag *Agent) error {
						if err := ag.SetPinsGlobal(); err != nil {
							return err
						}
						if ag.ID() == 1 && ag.Round() == 1 {
							return ag.SendBeep(0)
						}
						return nil
					},
				}, nil
			}
			e := newEngine(t, cfg, factory, contractedAt(1, 0, 0), contractedAt(2, 1, 0))

			ctx := context.Background()
			first, err := e.Step(ctx)
			if err != nil {
				t.Fatalf("Step 1: %v", err)
			}
			sender, _ := first.Amoebot(1)
			receiver, _ := first.Amoebot(2)
			if !receiver.BeepsReceived[0] || sender.BeepsReceived[0] != selfDelivery {
				t.Fatalf("round 1 received: sender=%v receiver=%v", sender.BeepsReceived, receiver.BeepsReceived)
			}
			if !sender.BeepsSent[0] || receiver.BeepsSent[0] {
				t.Fatalf("round 1 sent: sender=%v receiver=%v", sender.BeepsSent, receiver.BeepsSent)
			}
			if first.Stats.Circuits != 1 || first.Stats.BeepsSent != 1 {
				t.Fatalf("round 1 stats = %+v", first.Stats)
			}
			if attrOf(t, first, 2, "heard") != false {
				t.Fatalf("beep visible in the round it was sent")
			}

			second, err := e.Step(ctx)
			if err != nil {
				t.Fatalf("Step 2: %v", err)
			}
			if attrOf(t, second, 2, "heard") != true {
				t.Fatalf("receiver did not observe the beep in round 2")
			}
			if attrOf(t, second, 1, "heard") != selfDelivery {
				t.Fatalf("sender heard its own beep = %v", attrOf(t, second, 1, "heard"))
			}
		})
	}
}

func TestRejectedMovementVisibleNextRound(t *testing.T) {
	factory := func(ag *Agent) (Algorithm, error) {
		rejected := attr.MustNew(ag.Attributes(), "rejected", false)
		return AlgorithmFuncs{Movement: func(ag *Agent) error {
			if ag.Round() == 1 {
				if ag.ID() == 1 {
					return ag.Expand(model.DirectionE)
				}
				return ag.Expand(model.DirectionW)
			}
			rejected.Set(ag.MovementRejected())
			return nil
		}}, nil
	}
	e := newEngine(t, testConfig(1), factory, contractedAt(1, 0, 0), contractedAt(2, 2, 0))

	snap, err := e.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	first, err := e.SnapshotAt(1)
	if err != nil {
		t.Fatalf("SnapshotAt(1): %v", err)
	}
	for _, a := range first.Amoebots {
		if a.Expanded() || a.Movement.Outcome != MovementRejected {
			t.Fatalf("%s after conflicting expansion: expanded=%v outcome=%s", a.ID, a.Expanded(), a.Movement.Outcome)
		}
	}
	if first.Stats.MovesRejected != 2 {
		t.Fatalf("MovesRejected = %d", first.Stats.MovesRejected)
	}
	for _, id := range []model.AmoebotID{1, 2} {
		if attrOf(t, snap, id, "rejected") != true {
			t.Fatalf("%s did not see its rejection", id)
		}
	}
}

func walker(ag *Agent) (Algorithm, error) {
	steps := attr.MustNew(ag.Attributes(), "steps", 0)
	return AlgorithmFuncs{
		Movement: func(ag *Agent) error {
			steps.Set(steps.Get() + 1)
			if ag.IsExpanded() {
				return ag.ContractHead()
			}
			return ag.Expand(model.DirectionE)
		},
		Beep: func(ag *Agent) error {
			if err := ag.SetPinsGlobal(); err != nil {
				return err
			}
			if ag.Round()%2 == 0 {
				return ag.SendBeep(0)
			}
			return nil
		},
	}, nil
}

func TestHistoryRoundTripIsBitIdentical(t *testing.T) {
	e := newEngine(t, testConfig(2), walker, contractedAt(1, 0, 0), contractedAt(2, 0, 5))
	ctx := context.Background()
	latest, err := e.Run(ctx, 6)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(liveAmoebots(e), latest.Amoebots) {
		t.Fatalf("live state differs from committed snapshot")
	}

	for i := 0; i < 4; i++ {
		if _, err := e.StepBackward(); err != nil {
			t.Fatalf("StepBackward #%d: %v", i, err)
		}
	}
	back, _ := e.SnapshotAt(2)
	if e.Round() != 2 || !reflect.DeepEqual(liveAmoebots(e), back.Amoebots) {
		t.Fatalf("restored round %d does not match snapshot 2", e.Round())
	}
	for i := 0; i < 4; i++ {
		if _, err := e.StepForward(); err != nil {
			t.Fatalf("StepForward #%d: %v", i, err)
		}
	}
	if !reflect.DeepEqual(liveAmoebots(e), latest.Amoebots) {
		t.Fatalf("state after stepping back and forth differs")
	}
	if _, err := e.StepForward(); !errors.Is(err, history.ErrAtLatestRound) {
		t.Fatalf("StepForward at latest = %v", err)
	}
}

func TestStepReplaysThenResimulates(t *testing.T) {
	e := newEngine(t, testConfig(1), walker, contractedAt(1, 0, 0))
	ctx := context.Background()
	latest, err := e.Run(ctx, 6)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := e.SeekRound(2); err != nil {
		t.Fatalf("SeekRound: %v", err)
	}
	replayed, err := e.Step(ctx)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	stored, _ := e.SnapshotAt(3)
	if replayed != stored {
		t.Fatalf("Step behind the latest round must replay history")
	}

	if dropped := e.TruncateHistory(); dropped != 3 {
		t.Fatalf("TruncateHistory dropped %d, want 3", dropped)
	}
	if !e.IsAtLatestRound() {
		t.Fatalf("cursor not at latest round after truncation")
	}
	again, err := e.Run(ctx, 3)
	if err != nil {
		t.Fatalf("Run after truncate: %v", err)
	}
	if again.Round != 6 || !reflect.DeepEqual(again.Amoebots, latest.Amoebots) {
		t.Fatalf("re-simulation diverged: round %d", again.Round)
	}
}

func TestWrongPhaseOperations(t *testing.T) {
	tests := []struct {
		name     string
		movement func(*Agent) error
		beep     func(*Agent) error
		want     error
	}{
		{name: "beep during movement", movement: func(a *Agent) error { return a.SendBeep(0) }, want: ErrWrongPhase},
		{name: "pins during movement", movement: func(a *Agent) error { return a.SetPinsGlobal() }, want: ErrWrongPhase},
		{name: "expand during beep", beep: func(a *Agent) error { return a.Expand(model.DirectionE) }, want: ErrWrongPhase},
		{name: "release bond during beep", beep: func(a *Agent) error { return a.ReleaseBond(0) }, want: ErrWrongPhase},
		{name: "swallowed error", movement: func(a *Agent) error { _ = a.SendBeep(0); return nil }, want: ErrWrongPhase},
		{name: "second movement", movement: func(a *Agent) error {
			if err := a.Expand(model.DirectionE); err != nil {
				return err
			}
			return a.Expand(model.DirectionW)
		}, want: ErrMovementAlreadyRequested},
		{name: "pins after beep", beep: func(a *Agent) error {
			if err := a.SendBeep(0); err != nil {
				return err
			}
			return a.SetPinsGlobal()
		}, want: ErrPinsLocked},
		{name: "unknown partition set", beep: func(a *Agent) error { return a.SendBeep(6) }, want: ErrInvalidPartitionSet},
		{name: "bad label", movement: func(a *Agent) error { return a.MarkBond(6) }, want: ErrInvalidLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, testConfig(1), funcs(tt.movement, tt.beep), contractedAt(1, 0, 0))
			_, err := e.Step(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Step err = %v, want %v", err, tt.want)
			}
			var algErr *AlgorithmError
			if !errors.As(err, &algErr) || algErr.AmoebotID != 1 || algErr.Round != 1 {
				t.Fatalf("error not attributed: %#v", err)
			}
			if e.Round() != 0 || e.Phase() != PhaseIdle {
				t.Fatalf("aborted round left round=%d phase=%s", e.Round(), e.Phase())
			}
		})
	}
}

func TestMalformedPartitionAbortsRound(t *testing.T) {
	beep := func(a *Agent) error { return a.SetPinPartition([][]int{{0, 1}}) }
	e := newEngine(t, testConfig(1), funcs(nil, beep), contractedAt(1, 0, 0))
	if _, err := e.Step(context.Background()); !errors.Is(err, ErrMalformedPartition) {
		t.Fatalf("Step err = %v, want ErrMalformedPartition", err)
	}
	if latest := e.history.Latest(); latest != 0 {
		t.Fatalf("aborted round committed as %d", latest)
	}
}

func TestCancellationDiscardsPendingState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelNow := true
	factory := func(ag *Agent) (Algorithm, error) {
		counter := attr.MustNew(ag.Attributes(), "counter", 0)
		return AlgorithmFuncs{Movement: func(ag *Agent) error {
			counter.Set(counter.GetCurrent() + 1)
			if cancelNow {
				cancel()
			}
			return ag.Expand(model.DirectionNNE)
		}}, nil
	}
	e := newEngine(t, testConfig(1), factory, contractedAt(1, 0, 0), contractedAt(2, 3, 0))

	if _, err := e.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step err = %v, want context.Canceled", err)
	}
	initial, _ := e.SnapshotAt(0)
	if e.Round() != 0 || !reflect.DeepEqual(liveAmoebots(e), initial.Amoebots) {
		t.Fatalf("cancelled round left pending state behind")
	}

	cancelNow = false
	snap, err := e.Step(context.Background())
	if err != nil {
		t.Fatalf("Step after cancel: %v", err)
	}
	if snap.Round != 1 || attrOf(t, snap, 1, "counter") != 1 {
		t.Fatalf("round %d counter %v, want round 1 counter 1", snap.Round, attrOf(t, snap, 1, "counter"))
	}
}

func TestAlgorithmPanicIsRecovered(t *testing.T) {
	e := newEngine(t, testConfig(1), funcs(func(*Agent) error { panic("bad state") }, nil), contractedAt(7, 0, 0))
	_, err := e.Step(context.Background())
	var algErr *AlgorithmError
	if !errors.Is(err, ErrAlgorithmPanic) || !errors.As(err, &algErr) || algErr.AmoebotID != 7 {
		t.Fatalf("Step err = %v", err)
	}
}

func TestAttributeWriteOutsideActivationFaults(t *testing.T) {
	var cell *attr.Versioned[int]
	factory := func(ag *Agent) (Algorithm, error) {
		cell = attr.MustNew(ag.Attributes(), "value", 0)
		return AlgorithmFuncs{}, nil
	}
	e := newEngine(t, testConfig(1), factory, contractedAt(1, 0, 0))

	cell.Set(5)
	if _, err := e.Step(context.Background()); !errors.Is(err, attr.ErrReadOnly) {
		t.Fatalf("Step err = %v, want attr.ErrReadOnly", err)
	}
	if _, err := e.Step(context.Background()); err != nil {
		t.Fatalf("fault reported twice: %v", err)
	}
	if cell.Get() != 0 {
		t.Fatalf("out-of-activation write leaked: %d", cell.Get())
	}
}

func TestAttributesCannotBeDeclaredAfterInit(t *testing.T) {
	movement := func(ag *Agent) error {
		_, err := attr.New(ag.Attributes(), "late", 1)
		return err
	}
	e := newEngine(t, testConfig(1), funcs(movement, nil), contractedAt(1, 0, 0))
	if _, err := e.Step(context.Background()); !errors.Is(err, attr.ErrSealed) {
		t.Fatalf("Step err = %v, want attr.ErrSealed", err)
	}
}

func TestRemoveAmoebot(t *testing.T) {
	store := population(t, 1, contractedAt(1, 0, 0), contractedAt(2, 1, 0), contractedAt(3, 2, 0))
	e, err := NewSimulationEngine(testConfig(1), store, funcs(nil, nil))
	if err != nil {
		t.Fatalf("NewSimulationEngine: %v", err)
	}
	if err := e.RemoveAmoebot(9); !errors.Is(err, ErrAmoebotNotFound) {
		t.Fatalf("remove unknown err = %v", err)
	}
	if err := e.RemoveAmoebot(2); err != nil {
		t.Fatalf("RemoveAmoebot: %v", err)
	}
	snap, err := e.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(snap.Amoebots) != 2 || store.Len() != 2 || snap.Stats.OccupiedNodes != 2 {
		t.Fatalf("after removal: snapshot %d amoebots, store %d", len(snap.Amoebots), store.Len())
	}
	if len(snap.Bonds) != 0 {
		t.Fatalf("bonds across removed amoebot: %+v", snap.Bonds)
	}

	if _, err := e.StepBackward(); err != nil {
		t.Fatalf("StepBackward: %v", err)
	}
	if store.Len() != 3 {
		t.Fatalf("store not restored with round 0: %d", store.Len())
	}
	if err := e.RemoveAmoebot(1); !errors.Is(err, history.ErrNotAtLatest) {
		t.Fatalf("remove behind latest err = %v", err)
	}
}

type recorder struct{ rounds []RoundStats }

func (r *recorder) ObserveRound(s RoundStats) { r.rounds = append(r.rounds, s) }

func TestMetricsAndListeners(t *testing.T) {
	rec := &recorder{}
	e, err := NewSimulationEngine(testConfig(1), population(t, 1, contractedAt(1, 0, 0)), walker, WithMetricsRecorder(rec))
	if err != nil {
		t.Fatalf("NewSimulationEngine: %v", err)
	}
	var seen []int
	e.RegisterRoundListener(func(s *RoundSnapshot) { seen = append(seen, s.Round) })

	ctx := context.Background()
	if _, err := e.Run(ctx, 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := e.StepBackward(); err != nil {
		t.Fatalf("StepBackward: %v", err)
	}
	if _, err := e.Step(ctx); err != nil {
		t.Fatalf("replay Step: %v", err)
	}
	if len(rec.rounds) != 3 || !reflect.DeepEqual(seen, []int{1, 2, 3}) {
		t.Fatalf("recorded %d rounds, listeners saw %v", len(rec.rounds), seen)
	}
	if rec.rounds[0].MovesApplied != 1 {
		t.Fatalf("round 1 stats = %+v", rec.rounds[0])
	}
}

func randomMover(ag *Agent) (Algorithm, error) {
	return AlgorithmFuncs{
		Movement: func(ag *Agent) error {
			r := ag.Rand()
			switch {
			case ag.IsExpanded() && r.IntN(2) == 0:
				return ag.ContractTail()
			case ag.IsExpanded():
				return ag.ContractHead()
			case r.IntN(3) == 0:
				return nil
			default:
				for label := 0; label < ag.NumEdges(); label++ {
					if r.IntN(2) == 0 {
						if err := ag.ReleaseBond(label); err != nil {
							return err
						}
					}
				}
				return ag.Expand(model.Direction(r.IntN(model.NumDirections)))
			}
		},
		Beep: func(ag *Agent) error {
			if err := ag.SetPinsGlobal(); err != nil {
				return err
			}
			if ag.Rand().IntN(4) == 0 {
				return ag.SendBeep(0)
			}
			return nil
		},
	}, nil
}

func TestParallelActivationsMatchSequential(t *testing.T) {
	var specs []model.AmoebotSpec
	for i := 0; i < 12; i++ {
		specs = append(specs, contractedAt(i+1, i%4, i/4))
	}
	run := func(workers int) []*RoundSnapshot {
		cfg := testConfig(1)
		cfg.Workers = workers
		cfg.RandomizeOrder = true
		cfg.Seed = 99
		cfg.BeepFailureProbability = 0.2
		e := newEngine(t, cfg, randomMover, specs...)
		var snaps []*RoundSnapshot
		for i := 0; i < 8; i++ {
			s, err := e.Step(context.Background())
			if err != nil {
				t.Fatalf("workers=%d Step: %v", workers, err)
			}
			snaps = append(snaps, s)
		}
		return snaps
	}
	seq, par := run(1), run(4)
	for i := range seq {
		if !reflect.DeepEqual(seq[i].Amoebots, par[i].Amoebots) || !reflect.DeepEqual(seq[i].Bonds, par[i].Bonds) {
			t.Fatalf("round %d differs between sequential and parallel runs", seq[i].Round)
		}
		nodes := map[model.Node]bool{}
		for _, a := range seq[i].Amoebots {
			for _, n := range parts(a.Head, a.Tail) {
				if nodes[n] {
					t.Fatalf("round %d: node %v held twice", seq[i].Round, n)
				}
				nodes[n] = true
			}
		}
		if len(seq[i].Amoebots) != len(specs) || len(nodes) != seq[i].Stats.OccupiedNodes {
			t.Fatalf("round %d: %d amoebots on %d nodes", seq[i].Round, len(seq[i].Amoebots), len(nodes))
		}
	}
}

func TestInitRandFollowsSeed(t *testing.T) {
	draws := func(seed uint64) map[model.AmoebotID]uint64 {
		out := map[model.AmoebotID]uint64{}
		factory := func(ag *Agent) (Algorithm, error) {
			out[ag.ID()] = ag.Rand().Uint64()
			return AlgorithmFuncs{}, nil
		}
		cfg := testConfig(1)
		cfg.Seed = seed
		newEngine(t, cfg, factory, contractedAt(1, 0, 0), contractedAt(2, 1, 0))
		return out
	}

	a, again, b := draws(7), draws(7), draws(8)
	if len(a) != 2 {
		t.Fatalf("factory ran for %d amoebots, want 2", len(a))
	}
	for id, v := range a {
		if again[id] != v {
			t.Fatalf("amoebot %d: same seed drew %d then %d", id, v, again[id])
		}
		if b[id] == v {
			t.Fatalf("amoebot %d: seeds 7 and 8 drew the same value %d", id, v)
		}
	}
	if a[1] == a[2] {
		t.Fatalf("amoebots share an init stream: %d", a[1])
	}
}
