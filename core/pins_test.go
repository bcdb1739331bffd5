package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

func TestShapeLabelsRoundTrip(t *testing.T) {
	shapes := []Shape{Contracted}
	for d := model.Direction(0); d < model.NumDirections; d++ {
		shapes = append(shapes, ExpandedShape(d))
	}
	for _, s := range shapes {
		for label := 0; label < s.NumEdges(); label++ {
			head, dir, ok := s.Edge(label)
			if !ok {
				t.Fatalf("%+v: Edge(%d) not ok", s, label)
			}
			if got := s.Label(head, dir); got != label {
				t.Fatalf("%+v: Label(%v, %v) = %d, want %d", s, head, dir, got, label)
			}
		}
		if _, _, ok := s.Edge(s.NumEdges()); ok {
			t.Fatalf("%+v: label past the end accepted", s)
		}
	}
}

func TestExpandedShapeHasNoInternalEdge(t *testing.T) {
	s := ExpandedShape(model.DirectionE)
	if got := s.Label(true, model.DirectionW); got != -1 {
		t.Fatalf("head edge towards tail has label %d", got)
	}
	if got := s.Label(false, model.DirectionE); got != -1 {
		t.Fatalf("tail edge towards head has label %d", got)
	}
	if got := s.Label(true, model.DirectionE); got != 0 {
		t.Fatalf("first label = %d, want head edge in expansion direction", got)
	}
	if got := s.Label(false, model.DirectionNNE); got != 3 {
		t.Fatalf("tail NNE label = %d, want 3", got)
	}
}

func TestPinConfigurationFromSets(t *testing.T) {
	pc, err := PinConfigurationFromSets(Contracted, 1, [][]int{{0, 3}, {1}, {2}, {4, 5}})
	if err != nil {
		t.Fatalf("valid partition rejected: %v", err)
	}
	if pc.NumSets() != 4 || pc.SetOf(3) != 0 || pc.SetOf(5) != 3 {
		t.Fatalf("unexpected partition %v", pc.Sets())
	}
	if got := pc.Pins(0); len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Fatalf("Pins(0) = %v", got)
	}

	bad := map[string][][]int{
		"empty set":    {{0, 1, 2, 3, 4, 5}, {}},
		"duplicate":    {{0, 1, 2}, {2, 3, 4, 5}},
		"missing pin":  {{0, 1, 2, 3, 4}},
		"out of range": {{0, 1, 2, 3, 4, 5, 6}},
	}
	for name, sets := range bad {
		if _, err := PinConfigurationFromSets(Contracted, 1, sets); !errors.Is(err, ErrMalformedPartition) {
			t.Fatalf("%s: err = %v, want ErrMalformedPartition", name, err)
		}
	}
}

func TestSingletonAndGlobalConfigurations(t *testing.T) {
	s := NewPinConfiguration(ExpandedShape(model.DirectionNNE), 2)
	if s.NumPins() != 20 || s.NumSets() != 20 {
		t.Fatalf("singleton has %d pins, %d sets", s.NumPins(), s.NumSets())
	}
	g := GlobalPinConfiguration(Contracted, 3)
	if g.NumSets() != 1 || len(g.Pins(0)) != 18 {
		t.Fatalf("global has %d sets", g.NumSets())
	}
	if z := GlobalPinConfiguration(Contracted, 0); z.NumSets() != 0 {
		t.Fatalf("k=0 global has %d sets", z.NumSets())
	}
	if s.Equal(g) || !g.Equal(GlobalPinConfiguration(Contracted, 3)) {
		t.Fatalf("Equal is inconsistent")
	}
}
