package core

import "github.com/signalsfoundry/amoebot-simulator/model"

const (
	contractedEdges = 6
	expandedEdges   = 10
)

// Shape is an amoebot's local edge layout: contracted, or expanded with a
// local expansion direction pointing from tail to head.
type Shape struct {
	Expanded     bool
	ExpansionDir model.Direction
}

// Contracted is the shape of a single-node amoebot.
var Contracted = Shape{ExpansionDir: model.NoDirection}

// ExpandedShape returns the shape of an amoebot expanded in local
// direction d.
func ExpandedShape(d model.Direction) Shape {
	return Shape{Expanded: true, ExpansionDir: d}
}

// NumEdges returns the number of incident grid edges.
func (s Shape) NumEdges() int {
	if s.Expanded {
		return expandedEdges
	}
	return contractedEdges
}

// PinCount returns the number of pins for k pins per edge.
func (s Shape) PinCount(k int) int { return s.NumEdges() * k }

// Expanded edge labels run counter-clockwise around the outline, starting at
// the head edge that points in the expansion direction. Each entry is
// (head side, rotation relative to the expansion direction).
var expandedLabels = [expandedEdges]struct {
	head bool
	rot  int
}{
	{true, 0}, {true, 1}, {true, 2},
	{false, 1}, {false, 2}, {false, 3}, {false, 4}, {false, 5},
	{true, 4}, {true, 5},
}

// Edge resolves a label into the side it belongs to and its local
// direction. For contracted shapes head is always true.
func (s Shape) Edge(label int) (head bool, local model.Direction, ok bool) {
	if label < 0 || label >= s.NumEdges() {
		return false, model.NoDirection, false
	}
	if !s.Expanded {
		return true, model.Direction(label), true
	}
	e := expandedLabels[label]
	return e.head, s.ExpansionDir.Rotate(e.rot), true
}

// Label returns the label of the edge leaving the given side in local
// direction d, or -1 if that edge is internal or invalid.
func (s Shape) Label(head bool, d model.Direction) int {
	if !d.Valid() {
		return -1
	}
	if !s.Expanded {
		return int(d)
	}
	rot := int(d) - int(s.ExpansionDir)
	rot = ((rot % model.NumDirections) + model.NumDirections) % model.NumDirections
	for label, e := range expandedLabels {
		if e.head == head && e.rot == rot {
			return label
		}
	}
	return -1
}

// body is the placement of an amoebot in global terms, used to translate
// between local labels and grid edges.
type body struct {
	head, tail model.Node
	compass    model.Compass
	chirality  model.Chirality
}

func (b body) expanded() bool { return b.head != b.tail }

func (b body) shape() Shape {
	if !b.expanded() {
		return Contracted
	}
	global := b.tail.DirectionTo(b.head)
	return ExpandedShape(model.GlobalToLocal(global, b.compass, b.chirality))
}

func (b body) toGlobal(local model.Direction) model.Direction {
	return model.LocalToGlobal(local, b.compass, b.chirality)
}

func (b body) toLocal(global model.Direction) model.Direction {
	return model.GlobalToLocal(global, b.compass, b.chirality)
}

// edge returns the node and global direction of a label.
func (b body) edge(label int) (model.Node, model.Direction, bool) {
	head, local, ok := b.shape().Edge(label)
	if !ok {
		return model.Node{}, model.NoDirection, false
	}
	node := b.tail
	if head {
		node = b.head
	}
	return node, b.toGlobal(local), true
}

// labelAt returns the label of the edge leaving node in global direction g.
func (b body) labelAt(node model.Node, g model.Direction) int {
	return b.shape().Label(node == b.head, b.toLocal(g))
}
