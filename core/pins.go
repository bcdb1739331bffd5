package core

import (
	"fmt"
	"slices"
)

// PinConfiguration partitions an amoebot's pins into partition sets. Pin
// ids are label*k + offset; partition set ids are 0..NumSets()-1.
//
// A configuration is immutable once built; agents replace it wholesale.
type PinConfiguration struct {
	shape    Shape
	k        int
	pinToSet []int
	numSets  int
}

// NewPinConfiguration returns the singleton configuration: every pin is its
// own partition set, numbered like the pin.
func NewPinConfiguration(shape Shape, k int) *PinConfiguration {
	n := shape.PinCount(k)
	pc := &PinConfiguration{shape: shape, k: k, pinToSet: make([]int, n), numSets: n}
	for i := range pc.pinToSet {
		pc.pinToSet[i] = i
	}
	return pc
}

// GlobalPinConfiguration puts every pin into partition set 0.
func GlobalPinConfiguration(shape Shape, k int) *PinConfiguration {
	n := shape.PinCount(k)
	pc := &PinConfiguration{shape: shape, k: k, pinToSet: make([]int, n)}
	if n > 0 {
		pc.numSets = 1
	}
	return pc
}

// PinConfigurationFromSets builds a configuration from explicit partition
// sets; set i gets id i. Every pin must appear in exactly one non-empty set.
func PinConfigurationFromSets(shape Shape, k int, sets [][]int) (*PinConfiguration, error) {
	n := shape.PinCount(k)
	pc := &PinConfiguration{shape: shape, k: k, pinToSet: make([]int, n), numSets: len(sets)}
	for i := range pc.pinToSet {
		pc.pinToSet[i] = -1
	}
	for id, set := range sets {
		if len(set) == 0 {
			return nil, fmt.Errorf("partition set %d is empty: %w", id, ErrMalformedPartition)
		}
		for _, pin := range set {
			if pin < 0 || pin >= n {
				return nil, fmt.Errorf("pin %d outside 0..%d: %w", pin, n-1, ErrMalformedPartition)
			}
			if prev := pc.pinToSet[pin]; prev != -1 {
				return nil, fmt.Errorf("pin %d in partition sets %d and %d: %w", pin, prev, id, ErrMalformedPartition)
			}
			pc.pinToSet[pin] = id
		}
	}
	for pin, set := range pc.pinToSet {
		if set == -1 {
			return nil, fmt.Errorf("pin %d in no partition set: %w", pin, ErrMalformedPartition)
		}
	}
	return pc, nil
}

// Shape returns the edge layout the configuration was built for.
func (pc *PinConfiguration) Shape() Shape { return pc.shape }

// PinsPerEdge returns k.
func (pc *PinConfiguration) PinsPerEdge() int { return pc.k }

// NumPins returns the total number of pins.
func (pc *PinConfiguration) NumPins() int { return len(pc.pinToSet) }

// NumSets returns the number of partition sets.
func (pc *PinConfiguration) NumSets() int { return pc.numSets }

// PinID returns the id of pin offset on the edge with the given label.
func (pc *PinConfiguration) PinID(label, offset int) int { return label*pc.k + offset }

// SetOf returns the partition set containing pin.
func (pc *PinConfiguration) SetOf(pin int) int { return pc.pinToSet[pin] }

// Pins returns the pins of partition set id in ascending order.
func (pc *PinConfiguration) Pins(id int) []int {
	var pins []int
	for pin, set := range pc.pinToSet {
		if set == id {
			pins = append(pins, pin)
		}
	}
	return pins
}

// Sets returns the partition as explicit sets.
func (pc *PinConfiguration) Sets() [][]int {
	sets := make([][]int, pc.numSets)
	for pin, set := range pc.pinToSet {
		sets[set] = append(sets[set], pin)
	}
	return sets
}

// Matches reports whether the configuration fits shape and k.
func (pc *PinConfiguration) Matches(shape Shape, k int) bool {
	return pc.k == k && pc.shape == shape
}

// Equal reports whether two configurations are identical.
func (pc *PinConfiguration) Equal(o *PinConfiguration) bool {
	if pc == nil || o == nil {
		return pc == o
	}
	return pc.shape == o.shape && pc.k == o.k && pc.numSets == o.numSets && slices.Equal(pc.pinToSet, o.pinToSet)
}

// validate re-checks the partition invariants.
func (pc *PinConfiguration) validate() error {
	seen := make([]bool, pc.numSets)
	for pin, set := range pc.pinToSet {
		if set < 0 || set >= pc.numSets {
			return fmt.Errorf("pin %d assigned to set %d of %d: %w", pin, set, pc.numSets, ErrMalformedPartition)
		}
		seen[set] = true
	}
	for id, ok := range seen {
		if !ok {
			return fmt.Errorf("partition set %d is empty: %w", id, ErrMalformedPartition)
		}
	}
	return nil
}
