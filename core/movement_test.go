package core

import (
	"testing"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

func at(x, y int) model.Node { return model.Node{X: x, Y: y} }

func still(id int, n model.Node) MovementRequest {
	return MovementRequest{ID: model.AmoebotID(id), Head: n, Tail: n}
}

func wants(id int, n model.Node, kind model.ActionKind, d model.Direction) MovementRequest {
	req := still(id, n)
	req.Action = model.Action{Kind: kind, Direction: d}
	return req
}

func expandedReq(id int, head, tail model.Node, kind model.ActionKind, d model.Direction) MovementRequest {
	return MovementRequest{ID: model.AmoebotID(id), Head: head, Tail: tail, Action: model.Action{Kind: kind, Direction: d}}
}

func checkMove(t *testing.T, mv Move, outcome MovementOutcome, head, tail model.Node) {
	t.Helper()
	if mv.Outcome != outcome {
		t.Fatalf("%s outcome = %s (%s), want %s", mv.ID, mv.Outcome, mv.Reason, outcome)
	}
	if mv.Head != head || mv.Tail != tail {
		t.Fatalf("%s at head %v tail %v, want %v %v", mv.ID, mv.Head, mv.Tail, head, tail)
	}
}

// checkInvariants verifies that no node is held twice and that every bond
// joins adjacent nodes of the amoebots it names.
func checkInvariants(t *testing.T, in MovementInput, res MovementResult) {
	t.Helper()
	owner := map[model.Node]model.AmoebotID{}
	nodes := 0
	for _, mv := range res.Moves {
		if mv.Head != mv.Tail && !mv.Head.Adjacent(mv.Tail) {
			t.Fatalf("%s head %v and tail %v not adjacent", mv.ID, mv.Head, mv.Tail)
		}
		for _, n := range parts(mv.Head, mv.Tail) {
			if other, ok := owner[n]; ok {
				t.Fatalf("node %v held by %s and %s", n, other, mv.ID)
			}
			owner[n] = mv.ID
			nodes++
		}
	}
	if len(res.Moves) != len(in.Amoebots) {
		t.Fatalf("got %d moves for %d amoebots", len(res.Moves), len(in.Amoebots))
	}
	if nodes != len(owner) {
		t.Fatalf("occupied nodes %d, distinct %d", nodes, len(owner))
	}
	for _, b := range res.Bonds {
		if !b.NodeA.Adjacent(b.NodeB) {
			t.Fatalf("bond %+v joins non-adjacent nodes", b)
		}
		if owner[b.NodeA] != b.A || owner[b.NodeB] != b.B {
			t.Fatalf("bond %+v endpoints owned by %s and %s", b, owner[b.NodeA], owner[b.NodeB])
		}
	}
}

func resolve(t *testing.T, in MovementInput) MovementResult {
	t.Helper()
	res := ResolveMovements(in)
	checkInvariants(t, in, res)
	return res
}

func TestExpandIntoEmptyNode(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionExpand, model.DirectionE),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(0, 0))
	if res.Applied != 1 || res.Rejected != 0 {
		t.Fatalf("applied=%d rejected=%d", res.Applied, res.Rejected)
	}
}

func TestTwoExpansionsIntoSameNodeAreRejected(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionExpand, model.DirectionE),
		wants(2, at(2, 0), model.ActionExpand, model.DirectionW),
	}})
	checkMove(t, res.Moves[0], MovementRejected, at(0, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementRejected, at(2, 0), at(2, 0))
	if res.Moves[0].Reason != ReasonCollision {
		t.Fatalf("reason = %q, want collision", res.Moves[0].Reason)
	}
}

func TestExpansionPushesBondedNeighbour(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionExpand, model.DirectionE),
		still(2, at(1, 0)),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementIdle, at(2, 0), at(2, 0))
	if res.Moves[1].Offset != at(1, 0) {
		t.Fatalf("neighbour offset = %v", res.Moves[1].Offset)
	}
}

func TestExpansionIntoReleasedNeighbourCollides(t *testing.T) {
	neighbour := still(2, at(1, 0))
	neighbour.Released = map[BondKey]bool{{Node: at(1, 0), Dir: model.DirectionW}: true}
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionExpand, model.DirectionE),
		neighbour,
	}})
	checkMove(t, res.Moves[0], MovementRejected, at(0, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementIdle, at(1, 0), at(1, 0))
}

func TestAnchorKeepsItsPosition(t *testing.T) {
	res := resolve(t, MovementInput{
		Amoebots: []MovementRequest{
			wants(1, at(0, 0), model.ActionExpand, model.DirectionE),
			still(2, at(1, 0)),
		},
		Anchor:    2,
		HasAnchor: true,
	})
	checkMove(t, res.Moves[0], MovementApplied, at(0, 0), at(-1, 0))
	checkMove(t, res.Moves[1], MovementIdle, at(1, 0), at(1, 0))
}

func TestContractionPullsHeadSideNeighbour(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		expandedReq(1, at(1, 0), at(0, 0), model.ActionContractTail, model.NoDirection),
		still(2, at(2, 0)),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(0, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementIdle, at(1, 0), at(1, 0))
}

func TestContractHeadLeavesHeadSideInPlace(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		expandedReq(1, at(1, 0), at(0, 0), model.ActionContractHead, model.NoDirection),
		still(2, at(2, 0)),
		still(3, at(-1, 0)),
	}})
	// Amoebot 1 is the anchor: its head part stays, the tail side follows.
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(1, 0))
	checkMove(t, res.Moves[1], MovementIdle, at(2, 0), at(2, 0))
	checkMove(t, res.Moves[2], MovementIdle, at(0, 0), at(0, 0))
}

func TestInconsistentJointMovementIsRejected(t *testing.T) {
	// A triangle: 1 pushes 2 east while 3, bonded to both, has no way to
	// follow both of them.
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionExpand, model.DirectionE),
		still(2, at(1, 0)),
		still(3, at(0, 1)),
	}})
	checkMove(t, res.Moves[0], MovementRejected, at(0, 0), at(0, 0))
	if res.Moves[0].Reason != ReasonInconsistent {
		t.Fatalf("reason = %q, want inconsistent", res.Moves[0].Reason)
	}
	checkMove(t, res.Moves[1], MovementIdle, at(1, 0), at(1, 0))
	checkMove(t, res.Moves[2], MovementIdle, at(0, 1), at(0, 1))
}

func TestMarkedBondTravelsWithHead(t *testing.T) {
	// 3 sits north-east of 1; marking that bond carries it along with the
	// expansion while 2 is pushed ahead.
	mover := wants(1, at(0, 0), model.ActionExpand, model.DirectionE)
	mover.Marked = map[BondKey]bool{{Node: at(0, 0), Dir: model.DirectionNNE}: true}
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		mover,
		still(2, at(1, 0)),
		still(3, at(0, 1)),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementIdle, at(2, 0), at(2, 0))
	checkMove(t, res.Moves[2], MovementIdle, at(1, 1), at(1, 1))
}

func TestPushHandover(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionPush, model.DirectionE),
		expandedReq(2, at(2, 0), at(1, 0), model.ActionNone, model.NoDirection),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementHandover, at(2, 0), at(2, 0))
	if res.Moves[1].Performed.Kind != model.ActionContractHead {
		t.Fatalf("partner performed %s", res.Moves[1].Performed.Kind)
	}
}

func TestPullHandover(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		expandedReq(1, at(1, 0), at(0, 0), model.ActionPull, model.DirectionW),
		still(2, at(-1, 0)),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(1, 0))
	checkMove(t, res.Moves[1], MovementHandover, at(0, 0), at(-1, 0))
	if res.Moves[1].Performed.Kind != model.ActionExpand || res.Moves[1].Performed.Direction != model.DirectionE {
		t.Fatalf("partner performed %+v", res.Moves[1].Performed)
	}
}

func TestHandoverConflicts(t *testing.T) {
	t.Run("two initiators claim one target", func(t *testing.T) {
		res := resolve(t, MovementInput{Amoebots: []MovementRequest{
			wants(1, at(0, 0), model.ActionPush, model.DirectionE),
			expandedReq(2, at(2, 0), at(1, 0), model.ActionNone, model.NoDirection),
			wants(3, at(1, 1), model.ActionPush, model.DirectionSSW),
		}})
		checkMove(t, res.Moves[0], MovementRejected, at(0, 0), at(0, 0))
		checkMove(t, res.Moves[1], MovementIdle, at(2, 0), at(1, 0))
		checkMove(t, res.Moves[2], MovementRejected, at(1, 1), at(1, 1))
		if res.Moves[0].Reason != ReasonHandover {
			t.Fatalf("reason = %q", res.Moves[0].Reason)
		}
	})
	t.Run("target requested something else", func(t *testing.T) {
		res := resolve(t, MovementInput{Amoebots: []MovementRequest{
			wants(1, at(0, 0), model.ActionPush, model.DirectionE),
			expandedReq(2, at(2, 0), at(1, 0), model.ActionContractTail, model.NoDirection),
		}})
		checkMove(t, res.Moves[0], MovementRejected, at(0, 0), at(0, 0))
		checkMove(t, res.Moves[1], MovementRejected, at(2, 0), at(1, 0))
	})
	t.Run("target agrees", func(t *testing.T) {
		res := resolve(t, MovementInput{Amoebots: []MovementRequest{
			wants(1, at(0, 0), model.ActionPush, model.DirectionE),
			expandedReq(2, at(2, 0), at(1, 0), model.ActionContractHead, model.NoDirection),
		}})
		checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(0, 0))
		checkMove(t, res.Moves[1], MovementApplied, at(2, 0), at(2, 0))
	})
}

func TestPreconditionFailures(t *testing.T) {
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		wants(1, at(0, 0), model.ActionContractHead, model.NoDirection),
		expandedReq(2, at(5, 0), at(4, 0), model.ActionExpand, model.DirectionE),
		wants(3, at(0, 5), model.ActionPush, model.DirectionE),
	}})
	for _, mv := range res.Moves {
		if mv.Outcome != MovementRejected || mv.Reason != ReasonPrecondition {
			t.Fatalf("%s outcome %s reason %q", mv.ID, mv.Outcome, mv.Reason)
		}
	}
}

func TestInchwormLineKeepsInvariants(t *testing.T) {
	// A line where every other amoebot expands east and the rest idle:
	// only the last one can move without breaking a bond.
	var reqs []MovementRequest
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			reqs = append(reqs, wants(i+1, at(i, 0), model.ActionExpand, model.DirectionE))
		} else {
			reqs = append(reqs, still(i+1, at(i, 0)))
		}
	}
	reqs = append(reqs, wants(7, at(6, 0), model.ActionExpand, model.DirectionE))
	res := resolve(t, MovementInput{Amoebots: reqs})
	if res.Applied+res.Rejected != 4 {
		t.Fatalf("applied=%d rejected=%d, want 4 decisions", res.Applied, res.Rejected)
	}
}

func TestCollisionLeavesUnrelatedMovesInComponent(t *testing.T) {
	// A bonded line where 2 and 3 both expand into (1,1). Amoebot 5, bonded
	// to the same line, expands into free space and must still move.
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		still(1, at(0, 0)),
		wants(2, at(1, 0), model.ActionExpand, model.DirectionNNE),
		wants(3, at(2, 0), model.ActionExpand, model.DirectionNNW),
		still(4, at(3, 0)),
		wants(5, at(4, 0), model.ActionExpand, model.DirectionSSE),
	}})
	checkMove(t, res.Moves[1], MovementRejected, at(1, 0), at(1, 0))
	checkMove(t, res.Moves[2], MovementRejected, at(2, 0), at(2, 0))
	if res.Moves[1].Reason != ReasonCollision || res.Moves[2].Reason != ReasonCollision {
		t.Fatalf("reasons = %q, %q, want collision", res.Moves[1].Reason, res.Moves[2].Reason)
	}
	checkMove(t, res.Moves[4], MovementApplied, at(5, -1), at(4, 0))
	if res.Applied != 1 || res.Rejected != 2 {
		t.Fatalf("applied=%d rejected=%d, want 1 and 2", res.Applied, res.Rejected)
	}
}

func TestSwapThroughEachOtherIsRejected(t *testing.T) {
	// 1 contracts into its head and drags 2 east through its tail bond; 3
	// does the same westwards to 4. 2 and 4 would trade nodes without ever
	// sharing one, so both contractions are rejected.
	carriedEast := still(2, at(0, 0))
	carriedEast.Released = map[BondKey]bool{
		{Node: at(0, 0), Dir: model.DirectionE}:   true,
		{Node: at(0, 0), Dir: model.DirectionSSW}: true,
		{Node: at(0, 0), Dir: model.DirectionSSE}: true,
	}
	carriedWest := still(4, at(1, 0))
	carriedWest.Released = map[BondKey]bool{
		{Node: at(1, 0), Dir: model.DirectionW}:   true,
		{Node: at(1, 0), Dir: model.DirectionNNE}: true,
		{Node: at(1, 0), Dir: model.DirectionNNW}: true,
	}
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		expandedReq(1, at(1, 1), at(0, 1), model.ActionContractHead, model.NoDirection),
		carriedEast,
		expandedReq(3, at(0, -1), at(1, -1), model.ActionContractHead, model.NoDirection),
		carriedWest,
	}})
	checkMove(t, res.Moves[0], MovementRejected, at(1, 1), at(0, 1))
	checkMove(t, res.Moves[2], MovementRejected, at(0, -1), at(1, -1))
	if res.Moves[0].Reason != ReasonCollision {
		t.Fatalf("reason = %q, want collision", res.Moves[0].Reason)
	}
	checkMove(t, res.Moves[1], MovementIdle, at(0, 0), at(0, 0))
	checkMove(t, res.Moves[3], MovementIdle, at(1, 0), at(1, 0))
}

func TestMarkedBondIgnoredByHandover(t *testing.T) {
	pusher := wants(1, at(0, 0), model.ActionPush, model.DirectionE)
	pusher.Marked = map[BondKey]bool{{Node: at(0, 0), Dir: model.DirectionNNE}: true}
	res := resolve(t, MovementInput{Amoebots: []MovementRequest{
		pusher,
		expandedReq(2, at(2, 0), at(1, 0), model.ActionNone, model.NoDirection),
		still(3, at(0, 1)),
	}})
	checkMove(t, res.Moves[0], MovementApplied, at(1, 0), at(0, 0))
	checkMove(t, res.Moves[1], MovementHandover, at(2, 0), at(2, 0))
	checkMove(t, res.Moves[2], MovementIdle, at(0, 1), at(0, 1))
}
