package core

import (
	"math/rand/v2"

	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

// amoebot is the engine-owned state of one particle: committed values from
// the last round plus the pending values of the round in progress.
type amoebot struct {
	id        model.AmoebotID
	chirality model.Chirality
	compass   model.Compass

	head, tail model.Node
	pins       *PinConfiguration
	sent       []bool
	received   []bool
	move       Move

	attrs *attr.Registry
	algo  Algorithm

	p pendingState
}

type pendingState struct {
	active    bool
	rng       *rand.Rand
	requested bool
	action    model.Action
	released  map[BondKey]bool
	marked    map[BondKey]bool

	head, tail model.Node
	pins       *PinConfiguration
	beeps      []bool
	beeped     bool
	move       Move
}

func newAmoebot(spec model.AmoebotSpec, k int) *amoebot {
	a := &amoebot{
		id:        spec.ID,
		chirality: spec.Chirality,
		compass:   spec.Compass,
		head:      spec.Head,
		tail:      spec.Tail,
		attrs:     attr.NewRegistry(),
	}
	a.pins = NewPinConfiguration(a.committedBody().shape(), k)
	a.sent = make([]bool, a.pins.NumSets())
	a.received = make([]bool, a.pins.NumSets())
	return a
}

func (a *amoebot) committedBody() body {
	return body{head: a.head, tail: a.tail, compass: a.compass, chirality: a.chirality}
}

func (a *amoebot) pendingBody() body {
	return body{head: a.p.head, tail: a.p.tail, compass: a.compass, chirality: a.chirality}
}

// beginRound resets pending state for a new round.
func (a *amoebot) beginRound(rng *rand.Rand) {
	a.p = pendingState{
		active: true,
		rng:    rng,
		head:   a.head,
		tail:   a.tail,
	}
}

// applyMove records the resolved movement and prepares the pin
// configuration for the beep phase. A configuration survives only if the
// amoebot's shape is unchanged.
func (a *amoebot) applyMove(mv Move, k int) {
	a.p.move = mv
	a.p.head, a.p.tail = mv.Head, mv.Tail
	shape := a.pendingBody().shape()
	if a.pins.Matches(shape, k) {
		a.p.pins = a.pins
	} else {
		a.p.pins = NewPinConfiguration(shape, k)
	}
}

func (a *amoebot) commit(received []bool) {
	a.head, a.tail = a.p.head, a.p.tail
	a.pins = a.p.pins
	a.sent = a.p.beeps
	if a.sent == nil {
		a.sent = make([]bool, a.pins.NumSets())
	}
	a.received = received
	if a.received == nil {
		a.received = make([]bool, a.pins.NumSets())
	}
	a.move = a.p.move
	a.attrs.Commit()
	a.p = pendingState{}
}

func (a *amoebot) discard() {
	a.attrs.Discard()
	a.attrs.ClearErr()
	a.attrs.SetWritable(false)
	a.p = pendingState{}
}

func (a *amoebot) movementRequest() MovementRequest {
	return MovementRequest{
		ID:       a.id,
		Head:     a.head,
		Tail:     a.tail,
		Action:   a.p.action,
		Released: a.p.released,
		Marked:   a.p.marked,
	}
}

func (a *amoebot) circuitInput() CircuitInput {
	return CircuitInput{
		ID:        a.id,
		Head:      a.p.head,
		Tail:      a.p.tail,
		Compass:   a.compass,
		Chirality: a.chirality,
		Pins:      a.p.pins,
	}
}

func (a *amoebot) snapshot() AmoebotSnapshot {
	return AmoebotSnapshot{
		ID:             a.id,
		Head:           a.head,
		Tail:           a.tail,
		Chirality:      a.chirality,
		Compass:        a.compass,
		Pins:           a.pins,
		BeepsSent:      append([]bool(nil), a.sent...),
		BeepsReceived:  append([]bool(nil), a.received...),
		Movement:       a.move,
		AttributeNames: a.attrs.Names(),
		Attributes:     a.attrs.Snapshot(),
	}
}

func (a *amoebot) restore(s AmoebotSnapshot) error {
	a.head, a.tail = s.Head, s.Tail
	a.pins = s.Pins
	a.sent = append([]bool(nil), s.BeepsSent...)
	a.received = append([]bool(nil), s.BeepsReceived...)
	a.move = s.Movement
	a.p = pendingState{}
	return a.attrs.Restore(s.Attributes)
}
