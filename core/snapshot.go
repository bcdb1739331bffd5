package core

import (
	"time"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

// RoundStats summarises one committed round.
type RoundStats struct {
	Round          int
	Amoebots       int
	OccupiedNodes  int
	Circuits       int
	BeepsSent      int
	BeepsDelivered int
	BeepsDropped   int
	MovesApplied   int
	MovesRejected  int
	Duration       time.Duration
}

// AmoebotSnapshot is the committed state of one amoebot at the end of a
// round.
type AmoebotSnapshot struct {
	ID        model.AmoebotID
	Head      model.Node
	Tail      model.Node
	Chirality model.Chirality
	Compass   model.Compass
	Pins      *PinConfiguration
	// BeepsSent and BeepsReceived are indexed by partition set of Pins.
	BeepsSent     []bool
	BeepsReceived []bool
	Movement      Move
	// Attributes holds attribute values in declaration order, named by
	// AttributeNames.
	AttributeNames []string
	Attributes     []any
}

// Expanded reports whether the amoebot occupies two nodes.
func (s AmoebotSnapshot) Expanded() bool { return s.Head != s.Tail }

// Attribute returns the committed value of a named attribute.
func (s AmoebotSnapshot) Attribute(name string) (any, bool) {
	for i, n := range s.AttributeNames {
		if n == name {
			return s.Attributes[i], true
		}
	}
	return nil, false
}

// RoundSnapshot is the complete committed state after a round. Round 0 is
// the initial configuration. Snapshots are never mutated after creation.
type RoundSnapshot struct {
	Round    int
	Amoebots []AmoebotSnapshot
	Bonds    []Bond
	Circuits *CircuitGraph
	Stats    RoundStats
}

// Amoebot returns the snapshot of amoebot id.
func (s *RoundSnapshot) Amoebot(id model.AmoebotID) (AmoebotSnapshot, bool) {
	for _, a := range s.Amoebots {
		if a.ID == id {
			return a, true
		}
	}
	return AmoebotSnapshot{}, false
}

// OccupiedNodes returns the number of grid nodes held by amoebots.
func (s *RoundSnapshot) OccupiedNodes() int {
	n := 0
	for _, a := range s.Amoebots {
		n++
		if a.Expanded() {
			n++
		}
	}
	return n
}
