package core

import (
	"sort"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

// BondKey identifies one endpoint of a bond: the node of the amoebot part
// and the global direction of the edge leaving it.
type BondKey struct {
	Node model.Node
	Dir  model.Direction
}

// MovementRequest is one amoebot's placement and its requests for a round.
// All directions are global.
type MovementRequest struct {
	ID     model.AmoebotID
	Head   model.Node
	Tail   model.Node
	Action model.Action
	// Released bonds are dropped for this round.
	Released map[BondKey]bool
	// Marked bonds move with the head during an expansion.
	Marked map[BondKey]bool
}

// MovementInput is the full set of requests resolved jointly.
type MovementInput struct {
	Amoebots []MovementRequest
	// Anchor keeps its position; without one the first amoebot of each
	// bonded component does.
	Anchor    model.AmoebotID
	HasAnchor bool
}

// MovementOutcome tells an amoebot what happened to its request.
type MovementOutcome int

const (
	MovementIdle MovementOutcome = iota
	MovementApplied
	MovementHandover
	MovementRejected
)

func (o MovementOutcome) String() string {
	switch o {
	case MovementApplied:
		return "applied"
	case MovementHandover:
		return "handover"
	case MovementRejected:
		return "rejected"
	default:
		return "idle"
	}
}

// RejectReason explains a rejected movement.
type RejectReason string

const (
	ReasonNone         RejectReason = ""
	ReasonPrecondition RejectReason = "precondition"
	ReasonHandover     RejectReason = "handover_conflict"
	ReasonInconsistent RejectReason = "inconsistent_joint_movement"
	ReasonCollision    RejectReason = "collision"
)

// Move is the resolved movement of one amoebot.
type Move struct {
	ID        model.AmoebotID
	Requested model.Action
	// Performed is the action carried out, including one implied by a
	// neighbour's push or pull.
	Performed model.Action
	Outcome   MovementOutcome
	Reason    RejectReason
	Head      model.Node
	Tail      model.Node
	// Offset is the translation applied to the whole amoebot.
	Offset model.Node
}

// Bond connects two amoebots across a grid edge after movement.
type Bond struct {
	A, B         model.AmoebotID
	NodeA, NodeB model.Node
}

// MovementResult lists one Move per input amoebot, in input order.
type MovementResult struct {
	Moves    []Move
	Bonds    []Bond
	Applied  int
	Rejected int
}

// ResolveMovements resolves all requests of a round as one joint movement.
//
// Every amoebot is translated rigidly; each bond endpoint additionally
// shifts with its own amoebot's expansion or contraction. A bond forces
// both endpoints to end up with the same total displacement. Components of
// the bond graph whose constraints contradict have all their initiated
// requests rejected. Collisions, swaps and broken bonds reject only the
// initiators involved in them. Resolution repeats until the remaining
// movements are consistent.
func ResolveMovements(in MovementInput) MovementResult {
	r := newResolver(in)
	r.checkPreconditions()
	r.pairHandovers()
	for {
		r.buildBonds()
		if bad := r.solve(); len(bad) > 0 {
			r.rejectComponents(bad, ReasonInconsistent)
			continue
		}
		conflicts := r.verify()
		if len(conflicts) == 0 {
			break
		}
		r.rejectConflicts(conflicts)
	}
	return r.result()
}

type mover struct {
	req       *MovementRequest
	geom      model.Action
	performed model.Action
	initiator bool
	implied   bool
	handover  bool
	partner   int
	rejected  bool
	reason    RejectReason

	t        model.Node
	assigned bool
	comp     int
}

type bondEdge struct {
	a, b   int
	ka, kb BondKey
}

type resolver struct {
	in     MovementInput
	movers []mover
	index  map[model.AmoebotID]int
	occ    map[model.Node]int
	edges  []bondEdge
	adj    [][]int
}

func newResolver(in MovementInput) *resolver {
	r := &resolver{
		in:     in,
		movers: make([]mover, len(in.Amoebots)),
		index:  make(map[model.AmoebotID]int, len(in.Amoebots)),
		occ:    make(map[model.Node]int, 2*len(in.Amoebots)),
	}
	for i := range in.Amoebots {
		req := &in.Amoebots[i]
		r.movers[i] = mover{req: req, partner: -1}
		r.index[req.ID] = i
		r.occ[req.Head] = i
		r.occ[req.Tail] = i
	}
	return r
}

func (r *resolver) expanded(i int) bool {
	return r.movers[i].req.Head != r.movers[i].req.Tail
}

func (r *resolver) checkPreconditions() {
	for i := range r.movers {
		m := &r.movers[i]
		a := m.req.Action
		if a.Kind == model.ActionNone {
			continue
		}
		m.initiator = true
		m.performed = a
		switch a.Kind {
		case model.ActionExpand:
			if r.expanded(i) || !a.Direction.Valid() {
				r.fail(i, ReasonPrecondition)
				continue
			}
			m.geom = a
		case model.ActionContractHead, model.ActionContractTail:
			if !r.expanded(i) {
				r.fail(i, ReasonPrecondition)
				continue
			}
			m.geom = model.Action{Kind: a.Kind, Direction: model.NoDirection}
		case model.ActionPush:
			if r.expanded(i) || !a.Direction.Valid() {
				r.fail(i, ReasonPrecondition)
				continue
			}
			j, ok := r.occ[m.req.Head.Neighbor(a.Direction)]
			if !ok || !r.expanded(j) {
				r.fail(i, ReasonPrecondition)
				continue
			}
			m.geom = model.Action{Kind: model.ActionExpand, Direction: a.Direction}
			m.partner = j
		case model.ActionPull:
			if !r.expanded(i) || !a.Direction.Valid() {
				r.fail(i, ReasonPrecondition)
				continue
			}
			j, ok := r.occ[m.req.Tail.Neighbor(a.Direction)]
			if !ok || j == i || r.expanded(j) {
				r.fail(i, ReasonPrecondition)
				continue
			}
			m.geom = model.Action{Kind: model.ActionContractHead, Direction: model.NoDirection}
			m.partner = j
		default:
			r.fail(i, ReasonPrecondition)
		}
	}
}

// impliedAction is the movement a handover forces on the initiator's
// partner.
func (r *resolver) impliedAction(i int) model.Action {
	m := &r.movers[i]
	p := r.movers[m.partner].req
	if m.req.Action.Kind == model.ActionPush {
		if m.req.Head.Neighbor(m.req.Action.Direction) == p.Head {
			return model.Action{Kind: model.ActionContractTail, Direction: model.NoDirection}
		}
		return model.Action{Kind: model.ActionContractHead, Direction: model.NoDirection}
	}
	return model.Action{Kind: model.ActionExpand, Direction: p.Head.DirectionTo(m.req.Tail)}
}

func (r *resolver) pairHandovers() {
	claims := make(map[int][]int)
	for i := range r.movers {
		if m := &r.movers[i]; m.initiator && m.partner >= 0 {
			claims[m.partner] = append(claims[m.partner], i)
		}
	}
	targets := make([]int, 0, len(claims))
	for t := range claims {
		targets = append(targets, t)
	}
	sort.Ints(targets)

	for _, target := range targets {
		inits := claims[target]
		if len(inits) > 1 {
			for _, i := range inits {
				r.fail(i, ReasonHandover)
			}
			continue
		}
		i := inits[0]
		if !r.movers[i].initiator {
			continue
		}
		want := r.impliedAction(i)
		t := &r.movers[target]
		switch {
		case t.initiator && t.partner < 0 && t.req.Action == want:
			t.handover = true
			t.partner = i
		case t.initiator || t.rejected:
			r.fail(i, ReasonHandover)
			if t.initiator {
				r.fail(target, ReasonHandover)
			}
			continue
		default:
			t.geom = want
			t.performed = want
			t.implied = true
			t.handover = true
			t.partner = i
		}
		r.movers[i].handover = true
	}
}

// fail rejects an initiator and reverts the action it implied on a
// handover partner.
func (r *resolver) fail(i int, reason RejectReason) {
	m := &r.movers[i]
	if p := m.partner; p >= 0 {
		pm := &r.movers[p]
		if pm.partner == i {
			if pm.implied {
				*pm = mover{req: pm.req, partner: -1}
			} else {
				pm.handover = false
				pm.partner = -1
			}
		}
	}
	m.geom = model.Action{}
	m.initiator = false
	m.implied = false
	m.handover = false
	m.partner = -1
	m.rejected = true
	m.reason = reason
}

func (r *resolver) handoverPair(i, j int) bool {
	a, b := &r.movers[i], &r.movers[j]
	return (a.handover && a.partner == j) || (b.handover && b.partner == i)
}

func (r *resolver) buildBonds() {
	r.edges = r.edges[:0]
	r.adj = make([][]int, len(r.movers))
	for i := range r.movers {
		req := r.movers[i].req
		for _, p := range parts(req.Head, req.Tail) {
			for g := model.Direction(0); g < model.NumDirections; g++ {
				q := p.Neighbor(g)
				j, ok := r.occ[q]
				if !ok || j <= i {
					continue
				}
				ka := BondKey{Node: p, Dir: g}
				kb := BondKey{Node: q, Dir: g.Opposite()}
				if !r.handoverPair(i, j) && (req.Released[ka] || r.movers[j].req.Released[kb]) {
					continue
				}
				r.adj[i] = append(r.adj[i], len(r.edges))
				r.adj[j] = append(r.adj[j], len(r.edges))
				r.edges = append(r.edges, bondEdge{a: i, b: j, ka: ka, kb: kb})
			}
		}
	}
}

// shift is the displacement a bond endpoint receives from its own
// amoebot's movement, on top of the amoebot's translation.
func (r *resolver) shift(i int, key BondKey) model.Node {
	m := &r.movers[i]
	if m.handover {
		return model.Node{}
	}
	switch m.geom.Kind {
	case model.ActionExpand:
		if key.Dir == m.geom.Direction || m.req.Marked[key] {
			return m.geom.Direction.Vec()
		}
	case model.ActionContractHead:
		if key.Node == m.req.Tail {
			return m.req.Tail.DirectionTo(m.req.Head).Vec()
		}
	case model.ActionContractTail:
		if key.Node == m.req.Head {
			return model.Node{}.Sub(m.req.Tail.DirectionTo(m.req.Head).Vec())
		}
	}
	return model.Node{}
}

// solve assigns translations component by component and returns the
// components whose bond constraints contradict each other.
func (r *resolver) solve() map[int]bool {
	for i := range r.movers {
		r.movers[i].assigned = false
		r.movers[i].comp = -1
		r.movers[i].t = model.Node{}
	}
	order := make([]int, 0, len(r.movers)+1)
	if r.in.HasAnchor {
		if a, ok := r.index[r.in.Anchor]; ok {
			order = append(order, a)
		}
	}
	for i := range r.movers {
		order = append(order, i)
	}

	bad := make(map[int]bool)
	comp := 0
	for _, root := range order {
		if r.movers[root].assigned {
			continue
		}
		r.movers[root].assigned = true
		r.movers[root].comp = comp
		queue := []int{root}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, ei := range r.adj[u] {
				e := r.edges[ei]
				v, ku, kv := e.b, e.ka, e.kb
				if e.b == u {
					v, ku, kv = e.a, e.kb, e.ka
				}
				want := r.movers[u].t.Add(r.shift(u, ku)).Sub(r.shift(v, kv))
				mv := &r.movers[v]
				if !mv.assigned {
					mv.assigned = true
					mv.comp = comp
					mv.t = want
					queue = append(queue, v)
				} else if mv.t != want {
					bad[comp] = true
				}
			}
		}
		comp++
	}
	return bad
}

func (r *resolver) positions(i int) (head, tail model.Node) {
	m := &r.movers[i]
	switch m.geom.Kind {
	case model.ActionExpand:
		p := m.req.Head.Add(m.t)
		return p.Neighbor(m.geom.Direction), p
	case model.ActionContractHead:
		n := m.req.Head.Add(m.t)
		return n, n
	case model.ActionContractTail:
		n := m.req.Tail.Add(m.t)
		return n, n
	default:
		return m.req.Head.Add(m.t), m.req.Tail.Add(m.t)
	}
}

func (r *resolver) endpoint(i int, key BondKey) model.Node {
	return key.Node.Add(r.movers[i].t).Add(r.shift(i, key))
}

// verify returns the groups of amoebots involved in each collision, swap or
// broken bond. For a collision only the amoebots claiming a node they did
// not hold before are involved.
func (r *resolver) verify() [][]int {
	var conflicts [][]int
	owners := make(map[model.Node][]int, 2*len(r.movers))
	for i := range r.movers {
		h, t := r.positions(i)
		for _, n := range parts(h, t) {
			owners[n] = append(owners[n], i)
		}
	}
	nodes := make([]model.Node, 0, len(owners))
	for n, ids := range owners {
		if len(ids) > 1 {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(a, b int) bool {
		if nodes[a].Y != nodes[b].Y {
			return nodes[a].Y < nodes[b].Y
		}
		return nodes[a].X < nodes[b].X
	})
	for _, n := range nodes {
		var claimants []int
		for _, i := range owners[n] {
			if !r.held(i, n) {
				claimants = append(claimants, i)
			}
		}
		if len(claimants) == 0 {
			claimants = owners[n]
		}
		conflicts = append(conflicts, claimants)
	}

	for i := range r.movers {
		ti := r.movers[i].t
		if ti == (model.Node{}) {
			continue
		}
		req := r.movers[i].req
		for _, x := range parts(req.Head, req.Tail) {
			y := x.Add(ti)
			j, ok := r.occ[y]
			if !ok || j <= i {
				continue
			}
			if y.Add(r.movers[j].t) == x {
				conflicts = append(conflicts, []int{i, j})
			}
		}
	}

	for _, e := range r.edges {
		if !r.endpoint(e.a, e.ka).Adjacent(r.endpoint(e.b, e.kb)) {
			conflicts = append(conflicts, []int{e.a, e.b})
		}
	}
	return conflicts
}

// held reports whether amoebot i occupied node n before moving.
func (r *resolver) held(i int, n model.Node) bool {
	req := r.movers[i].req
	return req.Head == n || req.Tail == n
}

// responsible returns the initiator whose request moves amoebot i, or -1
// when i is only carried along by its bonds.
func (r *resolver) responsible(i int) int {
	m := &r.movers[i]
	switch {
	case m.initiator:
		return i
	case m.implied && m.partner >= 0:
		return m.partner
	}
	return -1
}

// rejectConflicts rejects the initiators directly involved in each
// conflict. A conflict between amoebots that are only carried along rejects
// the initiators of their components instead.
func (r *resolver) rejectConflicts(conflicts [][]int) {
	blamed := make(map[int]bool)
	carried := make(map[int]bool)
	for _, group := range conflicts {
		direct := false
		for _, i := range group {
			if j := r.responsible(i); j >= 0 {
				blamed[j] = true
				direct = true
			}
		}
		if !direct {
			for _, i := range group {
				carried[r.movers[i].comp] = true
			}
		}
	}
	for j := range blamed {
		r.fail(j, ReasonCollision)
	}
	if len(carried) > 0 || len(blamed) == 0 {
		r.rejectComponents(carried, ReasonCollision)
	}
}

// rejectComponents rejects every initiator in the given components. If
// none is left to reject it rejects all initiators, which always yields a
// consistent round.
func (r *resolver) rejectComponents(comps map[int]bool, reason RejectReason) {
	changed := false
	for i := range r.movers {
		if m := &r.movers[i]; m.initiator && comps[m.comp] {
			r.fail(i, reason)
			changed = true
		}
	}
	if changed {
		return
	}
	for i := range r.movers {
		if r.movers[i].initiator {
			r.fail(i, reason)
		}
	}
}

func (r *resolver) result() MovementResult {
	res := MovementResult{Moves: make([]Move, len(r.movers))}
	occ := make(map[model.Node]int, 2*len(r.movers))
	for i := range r.movers {
		m := &r.movers[i]
		h, t := r.positions(i)
		occ[h] = i
		occ[t] = i
		mv := Move{ID: m.req.ID, Requested: m.req.Action, Head: h, Tail: t, Offset: m.t}
		switch {
		case m.rejected:
			mv.Outcome = MovementRejected
			mv.Reason = m.reason
			res.Rejected++
		case m.implied:
			mv.Outcome = MovementHandover
			mv.Performed = m.performed
		case m.initiator:
			mv.Outcome = MovementApplied
			mv.Performed = m.performed
			res.Applied++
		}
		res.Moves[i] = mv
	}
	for _, e := range r.edges {
		pa, pb := r.endpoint(e.a, e.ka), r.endpoint(e.b, e.kb)
		a, b := occ[pa], occ[pb]
		if a == b {
			// A handover moved both endpoints into one amoebot.
			continue
		}
		res.Bonds = append(res.Bonds, Bond{
			A:     r.movers[a].req.ID,
			B:     r.movers[b].req.ID,
			NodeA: pa,
			NodeB: pb,
		})
	}
	return res
}
