// Package initgen builds initial amoebot populations on the triangular grid.
package initgen

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/signalsfoundry/amoebot-simulator/kb"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

// ErrInvalidShape indicates generator arguments that describe no population.
var ErrInvalidShape = errors.New("invalid population shape")

const (
	orientationStream = 0x6f7269656e74 // "orient"
	blobStream        = 0x626c6f62     // "blob"
)

type options struct {
	origin      model.Node
	firstID     int
	chirality   model.Chirality
	compass     model.Compass
	randomize   bool
	orientSeed  uint64
	pinsPerEdge int
}

// Option customises a generator.
type Option func(*options)

// WithOrigin places the population relative to origin instead of (0,0).
func WithOrigin(n model.Node) Option {
	return func(o *options) { o.origin = n }
}

// WithFirstID numbers amoebots from id instead of 1.
func WithFirstID(id int) Option {
	return func(o *options) { o.firstID = id }
}

// WithOrientation gives every amoebot the same chirality and compass.
func WithOrientation(c model.Chirality, compass model.Compass) Option {
	return func(o *options) {
		o.chirality = c
		o.compass = compass
		o.randomize = false
	}
}

// WithRandomOrientation draws chirality and compass per amoebot from a
// deterministic stream seeded by seed.
func WithRandomOrientation(seed uint64) Option {
	return func(o *options) {
		o.randomize = true
		o.orientSeed = seed
	}
}

// WithPinsPerEdge records k on every generated spec.
func WithPinsPerEdge(k int) Option {
	return func(o *options) { o.pinsPerEdge = k }
}

func resolve(opts []Option) options {
	o := options{firstID: 1, chirality: model.CounterClockwise}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// specs turns relative node positions into contracted amoebots.
func (o options) specs(nodes []model.Node) []model.AmoebotSpec {
	var rng *rand.Rand
	if o.randomize {
		rng = rand.New(rand.NewPCG(o.orientSeed, orientationStream))
	}
	out := make([]model.AmoebotSpec, len(nodes))
	for i, n := range nodes {
		pos := o.origin.Add(n)
		spec := model.AmoebotSpec{
			ID:          model.AmoebotID(o.firstID + i),
			Head:        pos,
			Tail:        pos,
			Chirality:   o.chirality,
			Compass:     o.compass,
			PinsPerEdge: o.pinsPerEdge,
		}
		if rng != nil {
			spec.Chirality = model.Chirality(rng.IntN(2) == 0)
			spec.Compass = model.Compass(rng.IntN(model.NumDirections))
		}
		out[i] = spec
	}
	return out
}

// Line places n contracted amoebots in a straight line from the origin in
// global direction dir.
func Line(n int, dir model.Direction, opts ...Option) ([]model.AmoebotSpec, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: line of %d amoebots", ErrInvalidShape, n)
	}
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: direction %d", ErrInvalidShape, dir)
	}
	nodes := make([]model.Node, n)
	for i := 1; i < n; i++ {
		nodes[i] = nodes[i-1].Neighbor(dir)
	}
	return resolve(opts).specs(nodes), nil
}

// Hexagon fills every node within distance radius of the origin, numbered
// row by row.
func Hexagon(radius int, opts ...Option) ([]model.AmoebotSpec, error) {
	if radius < 0 {
		return nil, fmt.Errorf("%w: hexagon radius %d", ErrInvalidShape, radius)
	}
	var nodes []model.Node
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			n := model.Node{X: x, Y: y}
			if n.Distance(model.Node{}) <= radius {
				nodes = append(nodes, n)
			}
		}
	}
	return resolve(opts).specs(nodes), nil
}

// RandomBlob grows a connected blob of n amoebots from the origin by
// repeatedly attaching a node next to a random member. The same seed always
// yields the same blob.
func RandomBlob(n int, seed uint64, opts ...Option) ([]model.AmoebotSpec, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: blob of %d amoebots", ErrInvalidShape, n)
	}
	rng := rand.New(rand.NewPCG(seed, blobStream))
	nodes := []model.Node{{}}
	taken := map[model.Node]bool{{}: true}
	for len(nodes) < n {
		from := nodes[rng.IntN(len(nodes))]
		next := from.Neighbor(model.Direction(rng.IntN(model.NumDirections)))
		if taken[next] {
			continue
		}
		taken[next] = true
		nodes = append(nodes, next)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Y != nodes[j].Y {
			return nodes[i].Y < nodes[j].Y
		}
		return nodes[i].X < nodes[j].X
	})
	return resolve(opts).specs(nodes), nil
}

// Load creates a population store for k pins per edge holding specs.
func Load(k int, specs []model.AmoebotSpec) (*kb.KnowledgeBase, error) {
	store := kb.NewKnowledgeBase(k)
	if err := store.AddAmoebots(specs); err != nil {
		return nil, err
	}
	return store, nil
}

// Generate dispatches on a shape name, as used by the CLI: "line",
// "hexagon" or "blob". size is the amoebot count for line and blob and the
// radius for hexagon.
func Generate(shape string, size int, seed uint64, opts ...Option) ([]model.AmoebotSpec, error) {
	switch shape {
	case "line":
		return Line(size, model.DirectionE, opts...)
	case "hexagon":
		return Hexagon(size, opts...)
	case "blob":
		return RandomBlob(size, seed, opts...)
	}
	return nil, fmt.Errorf("%w: unknown shape %q", ErrInvalidShape, shape)
}
