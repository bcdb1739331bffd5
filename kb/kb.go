package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

var (
	// ErrAmoebotExists indicates a duplicate amoebot id.
	ErrAmoebotExists = errors.New("amoebot already exists")
	// ErrAmoebotNotFound indicates a requested amoebot was not found.
	ErrAmoebotNotFound = errors.New("amoebot not found")
	// ErrNodeOccupied indicates two amoebots were placed on one node.
	ErrNodeOccupied = errors.New("grid node already occupied")
	// ErrInvalidAmoebot indicates a malformed placement.
	ErrInvalidAmoebot = errors.New("invalid amoebot")
	// ErrPinsPerEdgeMismatch indicates an amoebot disagrees with the
	// system-wide pin count.
	ErrPinsPerEdgeMismatch = errors.New("inconsistent pins per edge")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventAmoebotAdded EventType = iota
	EventAmoebotRemoved
)

// Event is emitted to subscribers when the population changes.
type Event struct {
	Type    EventType
	Amoebot model.AmoebotSpec
}

// KnowledgeBase is an in-memory, thread-safe store for the initial amoebot
// population and its grid occupancy. It is filled by a generator before
// round 0 and only changes afterwards through explicit removals.
type KnowledgeBase struct {
	mu sync.RWMutex

	pinsPerEdge int
	amoebots    map[model.AmoebotID]model.AmoebotSpec
	occupancy   map[model.Node]model.AmoebotID

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB for amoebots with pinsPerEdge
// pins on every edge.
func NewKnowledgeBase(pinsPerEdge int) *KnowledgeBase {
	return &KnowledgeBase{
		pinsPerEdge: pinsPerEdge,
		amoebots:    make(map[model.AmoebotID]model.AmoebotSpec),
		occupancy:   make(map[model.Node]model.AmoebotID),
		subs:        make(map[int]func(Event)),
	}
}

// PinsPerEdge returns the system-wide pin count.
func (kb *KnowledgeBase) PinsPerEdge() int { return kb.pinsPerEdge }

// AddAmoebot validates and stores a placement.
func (kb *KnowledgeBase) AddAmoebot(spec model.AmoebotSpec) error {
	if err := kb.validate(spec); err != nil {
		return err
	}

	kb.mu.Lock()
	if _, exists := kb.amoebots[spec.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("amoebot %d: %w", spec.ID, ErrAmoebotExists)
	}
	for _, n := range spec.Nodes() {
		if other, taken := kb.occupancy[n]; taken {
			kb.mu.Unlock()
			return fmt.Errorf("amoebot %d at %v (held by %d): %w", spec.ID, n, other, ErrNodeOccupied)
		}
	}
	kb.amoebots[spec.ID] = spec
	for _, n := range spec.Nodes() {
		kb.occupancy[n] = spec.ID
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventAmoebotAdded, Amoebot: spec})
	return nil
}

// AddAmoebots adds all specs, stopping at the first error.
func (kb *KnowledgeBase) AddAmoebots(specs []model.AmoebotSpec) error {
	for _, s := range specs {
		if err := kb.AddAmoebot(s); err != nil {
			return err
		}
	}
	return nil
}

func (kb *KnowledgeBase) validate(spec model.AmoebotSpec) error {
	if !spec.Compass.Valid() {
		return fmt.Errorf("amoebot %d: compass %d: %w", spec.ID, spec.Compass, ErrInvalidAmoebot)
	}
	if spec.Expanded() && !spec.Head.Adjacent(spec.Tail) {
		return fmt.Errorf("amoebot %d: head %v and tail %v not adjacent: %w", spec.ID, spec.Head, spec.Tail, ErrInvalidAmoebot)
	}
	if spec.PinsPerEdge != 0 && spec.PinsPerEdge != kb.pinsPerEdge {
		return fmt.Errorf("amoebot %d has %d pins per edge, system uses %d: %w", spec.ID, spec.PinsPerEdge, kb.pinsPerEdge, ErrPinsPerEdgeMismatch)
	}
	return nil
}

// RemoveAmoebot deletes an amoebot and frees its nodes.
func (kb *KnowledgeBase) RemoveAmoebot(id model.AmoebotID) error {
	kb.mu.Lock()
	spec, ok := kb.amoebots[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("amoebot %d: %w", id, ErrAmoebotNotFound)
	}
	delete(kb.amoebots, id)
	for _, n := range spec.Nodes() {
		delete(kb.occupancy, n)
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventAmoebotRemoved, Amoebot: spec})
	return nil
}

// Sync replaces the stored population with specs, emitting add and remove
// events for the differences. Placements of amoebots present in both are
// updated silently. It is used to mirror the committed state of a round.
func (kb *KnowledgeBase) Sync(specs []model.AmoebotSpec) error {
	amoebots := make(map[model.AmoebotID]model.AmoebotSpec, len(specs))
	occupancy := make(map[model.Node]model.AmoebotID, 2*len(specs))
	for _, spec := range specs {
		if err := kb.validate(spec); err != nil {
			return err
		}
		if _, dup := amoebots[spec.ID]; dup {
			return fmt.Errorf("amoebot %d: %w", spec.ID, ErrAmoebotExists)
		}
		for _, n := range spec.Nodes() {
			if other, taken := occupancy[n]; taken {
				return fmt.Errorf("amoebot %d at %v (held by %d): %w", spec.ID, n, other, ErrNodeOccupied)
			}
			occupancy[n] = spec.ID
		}
		amoebots[spec.ID] = spec
	}

	kb.mu.Lock()
	var events []Event
	for id, old := range kb.amoebots {
		if _, ok := amoebots[id]; !ok {
			events = append(events, Event{Type: EventAmoebotRemoved, Amoebot: old})
		}
	}
	for id, spec := range amoebots {
		if _, ok := kb.amoebots[id]; !ok {
			events = append(events, Event{Type: EventAmoebotAdded, Amoebot: spec})
		}
	}
	kb.amoebots = amoebots
	kb.occupancy = occupancy
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Amoebot.ID < events[j].Amoebot.ID })
	for _, ev := range events {
		notify(subs, ev)
	}
	return nil
}

// GetAmoebot returns the placement for id.
func (kb *KnowledgeBase) GetAmoebot(id model.AmoebotID) (model.AmoebotSpec, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	spec, ok := kb.amoebots[id]
	return spec, ok
}

// OccupantAt returns the amoebot placed on node n.
func (kb *KnowledgeBase) OccupantAt(n model.Node) (model.AmoebotID, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, ok := kb.occupancy[n]
	return id, ok
}

// ListAmoebots returns all placements ordered by id.
func (kb *KnowledgeBase) ListAmoebots() []model.AmoebotSpec {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.AmoebotSpec, 0, len(kb.amoebots))
	for _, s := range kb.amoebots {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len returns the number of amoebots.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.amoebots)
}

// OccupiedNodes returns the number of occupied grid nodes.
func (kb *KnowledgeBase) OccupiedNodes() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.occupancy)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}

// Notify subscribers outside the lock to avoid deadlocks.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
