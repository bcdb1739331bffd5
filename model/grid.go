package model

import (
	"fmt"
	"math"
)

// Direction is one of the six cardinal directions of the triangular grid.
// Directions are numbered counter-clockwise starting at East.
type Direction int

const (
	DirectionE Direction = iota
	DirectionNNE
	DirectionNNW
	DirectionW
	DirectionSSW
	DirectionSSE

	// NoDirection marks the absence of a direction (e.g. the expansion
	// direction of a contracted amoebot).
	NoDirection Direction = -1
)

// NumDirections is the number of neighbours of a grid node.
const NumDirections = 6

var directionVecs = [NumDirections]Node{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
	{X: 1, Y: -1},
}

var directionNames = [NumDirections]string{"E", "NNE", "NNW", "W", "SSW", "SSE"}

// Valid reports whether d is one of the six grid directions.
func (d Direction) Valid() bool { return d >= 0 && d < NumDirections }

// Vec returns the unit offset of d.
func (d Direction) Vec() Node {
	if !d.Valid() {
		return Node{}
	}
	return directionVecs[d]
}

// Rotate returns d rotated by n sixty-degree steps counter-clockwise.
// Negative n rotates clockwise.
func (d Direction) Rotate(n int) Direction {
	if !d.Valid() {
		return NoDirection
	}
	return Direction(mod6(int(d) + n))
}

// Opposite returns the direction rotated by 180 degrees.
func (d Direction) Opposite() Direction { return d.Rotate(3) }

func (d Direction) String() string {
	if !d.Valid() {
		return "none"
	}
	return directionNames[d]
}

// Node is a triangular grid node in axial coordinates.
type Node struct {
	X int
	Y int
}

// Add returns n + o.
func (n Node) Add(o Node) Node { return Node{X: n.X + o.X, Y: n.Y + o.Y} }

// Sub returns n - o.
func (n Node) Sub(o Node) Node { return Node{X: n.X - o.X, Y: n.Y - o.Y} }

// Neighbor returns the node adjacent to n in direction d.
func (n Node) Neighbor(d Direction) Node { return n.Add(d.Vec()) }

// DirectionTo returns the direction from n to an adjacent node o, or
// NoDirection if the nodes are not adjacent.
func (n Node) DirectionTo(o Node) Direction {
	diff := o.Sub(n)
	for d, v := range directionVecs {
		if v == diff {
			return Direction(d)
		}
	}
	return NoDirection
}

// Adjacent reports whether n and o are neighbours on the grid.
func (n Node) Adjacent(o Node) bool { return n.DirectionTo(o) != NoDirection }

// Distance returns the grid (hex) distance between two nodes.
func (n Node) Distance(o Node) int {
	dx := o.X - n.X
	dy := o.Y - n.Y
	return (abs(dx) + abs(dy) + abs(dx+dy)) / 2
}

// World returns the Cartesian position of n for consumers that draw the
// grid: x + y/2 horizontally and y*sqrt(3)/2 vertically.
func (n Node) World() (float64, float64) {
	return float64(n.X) + float64(n.Y)/2, float64(n.Y) * math.Sqrt(3) / 2
}

func (n Node) String() string { return fmt.Sprintf("(%d,%d)", n.X, n.Y) }

// Chirality is the fixed rotational sense of an amoebot.
type Chirality bool

const (
	CounterClockwise Chirality = true
	Clockwise        Chirality = false
)

func (c Chirality) String() string {
	if c == CounterClockwise {
		return "ccw"
	}
	return "cw"
}

// Compass is the global direction an amoebot perceives as its local
// direction 0.
type Compass = Direction

// LocalToGlobal maps a local direction to the global grid direction for an
// amoebot with the given compass and chirality.
func LocalToGlobal(local Direction, compass Compass, chirality Chirality) Direction {
	if !local.Valid() || !compass.Valid() {
		return NoDirection
	}
	if chirality == CounterClockwise {
		return Direction(mod6(int(compass) + int(local)))
	}
	return Direction(mod6(int(compass) - int(local)))
}

// GlobalToLocal is the inverse of LocalToGlobal.
func GlobalToLocal(global Direction, compass Compass, chirality Chirality) Direction {
	if !global.Valid() || !compass.Valid() {
		return NoDirection
	}
	if chirality == CounterClockwise {
		return Direction(mod6(int(global) - int(compass)))
	}
	return Direction(mod6(int(compass) - int(global)))
}

func mod6(v int) int { return ((v % NumDirections) + NumDirections) % NumDirections }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
