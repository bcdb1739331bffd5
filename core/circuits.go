package core

import (
	"fmt"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

// CircuitInput is one amoebot's placement and pin configuration for a
// circuit computation.
type CircuitInput struct {
	ID        model.AmoebotID
	Head      model.Node
	Tail      model.Node
	Compass   model.Compass
	Chirality model.Chirality
	Pins      *PinConfiguration
}

func (in CircuitInput) body() body {
	return body{head: in.Head, tail: in.Tail, compass: in.Compass, chirality: in.Chirality}
}

// PinRef names one pin of one amoebot.
type PinRef struct {
	Amoebot model.AmoebotID
	Pin     int
}

// ExternalLink joins two pins across a shared grid edge.
type ExternalLink struct {
	A, B PinRef
}

// PartitionSetRef names one partition set of one amoebot.
type PartitionSetRef struct {
	Amoebot model.AmoebotID
	Set     int
}

// matchOffset maps pin offset j on one side of an edge to the offset it
// meets on the other side. Equal chiralities see the edge in opposite
// rotational order.
func matchOffset(j, k int, a, b model.Chirality) int {
	if a == b {
		return k - 1 - j
	}
	return j
}

// BuildExternalLinks pairs the pins of every grid edge shared by two
// different amoebots. Links are ordered by input order, then head before
// tail, then global direction.
func BuildExternalLinks(inputs []CircuitInput, k int) []ExternalLink {
	if k == 0 {
		return nil
	}
	occ := make(map[model.Node]int, 2*len(inputs))
	for i, in := range inputs {
		occ[in.Head] = i
		occ[in.Tail] = i
	}

	var links []ExternalLink
	for i, in := range inputs {
		bi := in.body()
		for _, p := range parts(in.Head, in.Tail) {
			for g := model.Direction(0); g < model.NumDirections; g++ {
				q := p.Neighbor(g)
				j, ok := occ[q]
				if !ok || j <= i {
					continue
				}
				other := inputs[j]
				la := bi.labelAt(p, g)
				lb := other.body().labelAt(q, g.Opposite())
				for off := 0; off < k; off++ {
					links = append(links, ExternalLink{
						A: PinRef{Amoebot: in.ID, Pin: la*k + off},
						B: PinRef{Amoebot: other.ID, Pin: lb*k + matchOffset(off, k, in.Chirality, other.Chirality)},
					})
				}
			}
		}
	}
	return links
}

// parts returns the distinct occupied nodes, head first.
func parts(head, tail model.Node) []model.Node {
	if head == tail {
		return []model.Node{head}
	}
	return []model.Node{head, tail}
}

// CircuitGraph is the result of a circuit computation: every partition set
// of every amoebot belongs to exactly one circuit. Circuit ids are dense and
// ordered by the first partition set that joins them.
type CircuitGraph struct {
	amoebots []model.AmoebotID
	index    map[model.AmoebotID]int
	offsets  []int
	circuit  []int
	count    int
	links    []ExternalLink
}

// ComputeCircuits builds circuits as connected components of partition sets
// joined by external links. It fails with ErrMalformedPartition if any
// amoebot's configuration does not fit its shape.
func ComputeCircuits(inputs []CircuitInput, k int) (*CircuitGraph, error) {
	g := &CircuitGraph{
		amoebots: make([]model.AmoebotID, len(inputs)),
		index:    make(map[model.AmoebotID]int, len(inputs)),
		offsets:  make([]int, len(inputs)+1),
	}
	for i, in := range inputs {
		if in.Pins == nil {
			return nil, fmt.Errorf("%s has no pin configuration: %w", in.ID, ErrMalformedPartition)
		}
		shape := in.body().shape()
		if !in.Pins.Matches(shape, k) {
			return nil, fmt.Errorf("%s pin configuration built for %+v k=%d, amoebot is %+v k=%d: %w",
				in.ID, in.Pins.Shape(), in.Pins.PinsPerEdge(), shape, k, ErrMalformedPartition)
		}
		if err := in.Pins.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", in.ID, err)
		}
		if _, dup := g.index[in.ID]; dup {
			return nil, fmt.Errorf("%s listed twice: %w", in.ID, ErrInvalidConfig)
		}
		g.amoebots[i] = in.ID
		g.index[in.ID] = i
		g.offsets[i+1] = g.offsets[i] + in.Pins.NumSets()
	}

	uf := newUnionFind(g.offsets[len(inputs)])
	g.links = BuildExternalLinks(inputs, k)
	for _, l := range g.links {
		a := g.offsets[g.index[l.A.Amoebot]] + inputs[g.index[l.A.Amoebot]].Pins.SetOf(l.A.Pin)
		b := g.offsets[g.index[l.B.Amoebot]] + inputs[g.index[l.B.Amoebot]].Pins.SetOf(l.B.Pin)
		uf.union(a, b)
	}

	g.circuit = make([]int, uf.len())
	ids := make(map[int]int)
	for s := range g.circuit {
		root := uf.find(s)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		g.circuit[s] = id
	}
	g.count = len(ids)
	return g, nil
}

// NumCircuits returns the number of circuits.
func (g *CircuitGraph) NumCircuits() int { return g.count }

// NumPartitionSets returns the number of partition sets over all amoebots.
func (g *CircuitGraph) NumPartitionSets() int { return len(g.circuit) }

// Links returns the external links the circuits were built from.
func (g *CircuitGraph) Links() []ExternalLink { return g.links }

// Amoebots returns the amoebots in input order.
func (g *CircuitGraph) Amoebots() []model.AmoebotID { return g.amoebots }

// NumSets returns the number of partition sets of amoebot id.
func (g *CircuitGraph) NumSets(id model.AmoebotID) int {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return g.offsets[i+1] - g.offsets[i]
}

// CircuitOf returns the circuit containing a partition set.
func (g *CircuitGraph) CircuitOf(ref PartitionSetRef) (int, bool) {
	s, ok := g.global(ref)
	if !ok {
		return 0, false
	}
	return g.circuit[s], true
}

// Members returns the partition sets of a circuit in amoebot order.
func (g *CircuitGraph) Members(circuit int) []PartitionSetRef {
	var refs []PartitionSetRef
	for i, id := range g.amoebots {
		for s := g.offsets[i]; s < g.offsets[i+1]; s++ {
			if g.circuit[s] == circuit {
				refs = append(refs, PartitionSetRef{Amoebot: id, Set: s - g.offsets[i]})
			}
		}
	}
	return refs
}

// CircuitIDs returns the circuit of every partition set of amoebot id.
func (g *CircuitGraph) CircuitIDs(id model.AmoebotID) []int {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return append([]int(nil), g.circuit[g.offsets[i]:g.offsets[i+1]]...)
}

func (g *CircuitGraph) global(ref PartitionSetRef) (int, bool) {
	i, ok := g.index[ref.Amoebot]
	if !ok || ref.Set < 0 || g.offsets[i]+ref.Set >= g.offsets[i+1] {
		return 0, false
	}
	return g.offsets[i] + ref.Set, true
}

type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) len() int { return len(uf.parent) }

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
