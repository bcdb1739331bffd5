package model

import "fmt"

// AmoebotID identifies an amoebot for the lifetime of a simulation.
type AmoebotID int

func (id AmoebotID) String() string { return fmt.Sprintf("amoebot-%d", int(id)) }

// AmoebotSpec describes an amoebot as placed by an initial generator,
// before round 0.
type AmoebotSpec struct {
	ID        AmoebotID
	Head      Node
	Tail      Node
	Chirality Chirality
	Compass   Compass

	// PinsPerEdge optionally pins the per-edge pin count for this amoebot.
	// Zero means "use the simulation default"; any other value must match it.
	PinsPerEdge int
}

// Expanded reports whether the placement covers two nodes.
func (s AmoebotSpec) Expanded() bool { return s.Head != s.Tail }

// Nodes returns the occupied nodes, head first.
func (s AmoebotSpec) Nodes() []Node {
	if s.Expanded() {
		return []Node{s.Head, s.Tail}
	}
	return []Node{s.Head}
}
