package core

import (
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

// Agent is the handle an algorithm uses to observe and act for one amoebot.
// All directions and edge labels are local to the amoebot's compass and
// chirality. An Agent is valid only for the activation it was passed to.
type Agent struct {
	a     *amoebot
	phase Phase
	round int
	k     int
	view  map[model.Node]model.AmoebotID
	err   error
}

func newAgent(a *amoebot, phase Phase, round, k int, view map[model.Node]model.AmoebotID) *Agent {
	return &Agent{a: a, phase: phase, round: round, k: k, view: view}
}

// ID returns the amoebot's identifier.
func (ag *Agent) ID() model.AmoebotID { return ag.a.id }

// Round returns the round being simulated; 0 during initialisation.
func (ag *Agent) Round() int { return ag.round }

// Phase returns the phase of the activation.
func (ag *Agent) Phase() Phase { return ag.phase }

// PinsPerEdge returns k.
func (ag *Agent) PinsPerEdge() int { return ag.k }

// Attributes returns the amoebot's attribute registry.
func (ag *Agent) Attributes() *attr.Registry { return ag.a.attrs }

// Rand returns the amoebot's random source for this round. It is seeded
// from the simulation seed, the amoebot id and the round number.
func (ag *Agent) Rand() *rand.Rand { return ag.a.p.rng }

// body is the placement the agent currently observes: committed during the
// movement phase, post-movement during the beep phase.
func (ag *Agent) body() body {
	if ag.phase == PhaseActivatingBeep {
		return ag.a.pendingBody()
	}
	return ag.a.committedBody()
}

// IsExpanded reports whether the amoebot occupies two nodes.
func (ag *Agent) IsExpanded() bool { return ag.body().expanded() }

// ExpansionDirection returns the local direction from tail to head, or
// model.NoDirection when contracted.
func (ag *Agent) ExpansionDirection() model.Direction { return ag.body().shape().ExpansionDir }

// NumEdges returns the number of incident edges, 6 or 10.
func (ag *Agent) NumEdges() int { return ag.body().shape().NumEdges() }

// HeadLabel returns the label of the edge leaving the head in local
// direction d, or -1 if there is none.
func (ag *Agent) HeadLabel(d model.Direction) int { return ag.body().shape().Label(true, d) }

// TailLabel returns the label of the edge leaving the tail in local
// direction d, or -1 if there is none.
func (ag *Agent) TailLabel(d model.Direction) int { return ag.body().shape().Label(false, d) }

// HasNeighbor reports whether another amoebot occupies the node across the
// edge with the given label.
func (ag *Agent) HasNeighbor(label int) bool {
	b := ag.body()
	node, g, ok := b.edge(label)
	if !ok {
		return false
	}
	id, occupied := ag.view[node.Neighbor(g)]
	return occupied && id != ag.a.id
}

// HasNeighborInDirection reports whether a contracted amoebot has a
// neighbour in local direction d.
func (ag *Agent) HasNeighborInDirection(d model.Direction) bool {
	return ag.HasNeighbor(ag.HeadLabel(d))
}

// LastMovement returns the outcome of the amoebot's movement in the
// previous round.
func (ag *Agent) LastMovement() Move { return ag.a.move }

// MovementRejected reports whether the previous round's request was
// rejected.
func (ag *Agent) MovementRejected() bool { return ag.a.move.Outcome == MovementRejected }

// PinConfiguration returns the configuration in effect: the committed one
// during the movement phase, the pending one during the beep phase.
func (ag *Agent) PinConfiguration() *PinConfiguration {
	if ag.phase == PhaseActivatingBeep {
		return ag.a.p.pins
	}
	return ag.a.pins
}

// BeepReceived reports whether partition set id of the previous round's
// configuration received a beep.
func (ag *Agent) BeepReceived(id int) bool {
	return id >= 0 && id < len(ag.a.received) && ag.a.received[id]
}

// AnyBeepReceived reports whether any partition set received a beep in the
// previous round.
func (ag *Agent) AnyBeepReceived() bool {
	for _, r := range ag.a.received {
		if r {
			return true
		}
	}
	return false
}

// Expand requests an expansion of the head in local direction d.
func (ag *Agent) Expand(d model.Direction) error {
	return ag.request("expand", model.ActionExpand, d)
}

// ContractHead requests a contraction into the head.
func (ag *Agent) ContractHead() error {
	return ag.request("contract_head", model.ActionContractHead, model.NoDirection)
}

// ContractTail requests a contraction into the tail.
func (ag *Agent) ContractTail() error {
	return ag.request("contract_tail", model.ActionContractTail, model.NoDirection)
}

// Push requests a handover expansion into the expanded neighbour in local
// direction d, which contracts away.
func (ag *Agent) Push(d model.Direction) error {
	return ag.request("push", model.ActionPush, d)
}

// Pull requests a handover contraction into the head while the contracted
// neighbour of the tail in local direction d expands into the tail node.
func (ag *Agent) Pull(d model.Direction) error {
	return ag.request("pull", model.ActionPull, d)
}

func (ag *Agent) request(op string, kind model.ActionKind, d model.Direction) error {
	if ag.phase != PhaseActivatingMovement {
		return ag.fault(op, ErrWrongPhase)
	}
	if ag.a.p.requested {
		return ag.fault(op, ErrMovementAlreadyRequested)
	}
	global := model.NoDirection
	if kind == model.ActionExpand || kind == model.ActionPush || kind == model.ActionPull {
		if !d.Valid() {
			return ag.fault(op, fmt.Errorf("direction %d: %w", d, ErrInvalidLabel))
		}
		global = ag.a.committedBody().toGlobal(d)
	}
	ag.a.p.requested = true
	ag.a.p.action = model.Action{Kind: kind, Direction: global}
	return nil
}

// ReleaseBond drops the bond on the edge with the given label for this
// round.
func (ag *Agent) ReleaseBond(label int) error {
	key, err := ag.bondKey("release_bond", label)
	if err != nil {
		return err
	}
	if ag.a.p.released == nil {
		ag.a.p.released = make(map[BondKey]bool)
	}
	ag.a.p.released[key] = true
	return nil
}

// MarkBond makes the bond on the edge with the given label move with the
// head during this round's expansion. Marks have no effect on push and pull
// handovers, which keep every other bond of both amoebots in place.
func (ag *Agent) MarkBond(label int) error {
	key, err := ag.bondKey("mark_bond", label)
	if err != nil {
		return err
	}
	if ag.a.p.marked == nil {
		ag.a.p.marked = make(map[BondKey]bool)
	}
	ag.a.p.marked[key] = true
	return nil
}

func (ag *Agent) bondKey(op string, label int) (BondKey, error) {
	if ag.phase != PhaseActivatingMovement {
		return BondKey{}, ag.fault(op, ErrWrongPhase)
	}
	node, g, ok := ag.a.committedBody().edge(label)
	if !ok {
		return BondKey{}, ag.fault(op, fmt.Errorf("label %d: %w", label, ErrInvalidLabel))
	}
	return BondKey{Node: node, Dir: g}, nil
}

// SetPinPartition replaces the pin configuration with explicit partition
// sets over pin ids label*k + offset.
func (ag *Agent) SetPinPartition(sets [][]int) error {
	if err := ag.checkPins("set_pins"); err != nil {
		return err
	}
	pc, err := PinConfigurationFromSets(ag.a.pendingBody().shape(), ag.k, sets)
	if err != nil {
		return ag.fault("set_pins", err)
	}
	ag.a.p.pins = pc
	return nil
}

// SetPinsSingleton makes every pin its own partition set.
func (ag *Agent) SetPinsSingleton() error {
	if err := ag.checkPins("set_pins"); err != nil {
		return err
	}
	ag.a.p.pins = NewPinConfiguration(ag.a.pendingBody().shape(), ag.k)
	return nil
}

// SetPinsGlobal joins all pins into partition set 0.
func (ag *Agent) SetPinsGlobal() error {
	if err := ag.checkPins("set_pins"); err != nil {
		return err
	}
	ag.a.p.pins = GlobalPinConfiguration(ag.a.pendingBody().shape(), ag.k)
	return nil
}

func (ag *Agent) checkPins(op string) error {
	if ag.phase != PhaseActivatingBeep {
		return ag.fault(op, ErrWrongPhase)
	}
	if ag.a.p.beeped {
		return ag.fault(op, ErrPinsLocked)
	}
	return nil
}

// SendBeep sends a beep on partition set id of the pending configuration.
func (ag *Agent) SendBeep(id int) error {
	if ag.phase != PhaseActivatingBeep {
		return ag.fault("send_beep", ErrWrongPhase)
	}
	pins := ag.a.p.pins
	if id < 0 || id >= pins.NumSets() {
		return ag.fault("send_beep", fmt.Errorf("set %d of %d: %w", id, pins.NumSets(), ErrInvalidPartitionSet))
	}
	if ag.a.p.beeps == nil {
		ag.a.p.beeps = make([]bool, pins.NumSets())
	}
	ag.a.p.beeps[id] = true
	ag.a.p.beeped = true
	return nil
}

// fault records the first failure of the activation and returns it
// attributed to the amoebot.
func (ag *Agent) fault(op string, err error) error {
	wrapped := &AlgorithmError{AmoebotID: ag.a.id, Round: ag.round, Op: op, Err: err}
	if ag.err == nil {
		ag.err = wrapped
	}
	return wrapped
}
