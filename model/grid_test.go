package model

import "testing"

func TestNeighborAndDirectionTo(t *testing.T) {
	origin := Node{X: 2, Y: -1}
	for d := DirectionE; d <= DirectionSSE; d++ {
		n := origin.Neighbor(d)
		if got := origin.DirectionTo(n); got != d {
			t.Fatalf("DirectionTo(%v) = %v, want %v", n, got, d)
		}
		if !origin.Adjacent(n) {
			t.Fatalf("expected %v adjacent to %v", n, origin)
		}
		if got := n.Neighbor(d.Opposite()); got != origin {
			t.Fatalf("opposite step from %v = %v, want %v", n, got, origin)
		}
	}
	if origin.Adjacent(Node{X: 4, Y: -1}) {
		t.Fatalf("nodes two steps apart reported adjacent")
	}
}

func TestConsecutiveDirectionVectorsFormTriangle(t *testing.T) {
	// v(d+1) - v(d) == v(d+2) holds on the triangular grid; movement code
	// relies on it when splitting bonds across head and tail.
	for d := DirectionE; d <= DirectionSSE; d++ {
		diff := d.Rotate(1).Vec().Sub(d.Vec())
		if diff != d.Rotate(2).Vec() {
			t.Fatalf("v(%v+1)-v(%v) = %v, want %v", d, d, diff, d.Rotate(2).Vec())
		}
	}
}

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b Node
		want int
	}{
		{Node{0, 0}, Node{0, 0}, 0},
		{Node{0, 0}, Node{1, 0}, 1},
		{Node{0, 0}, Node{-1, 1}, 1},
		{Node{0, 0}, Node{2, -1}, 2},
		{Node{0, 0}, Node{3, 3}, 6},
	}
	for _, tc := range cases {
		if got := tc.a.Distance(tc.b); got != tc.want {
			t.Fatalf("Distance(%v,%v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLocalGlobalRoundTrip(t *testing.T) {
	for compass := DirectionE; compass <= DirectionSSE; compass++ {
		for _, chir := range []Chirality{Clockwise, CounterClockwise} {
			for local := DirectionE; local <= DirectionSSE; local++ {
				g := LocalToGlobal(local, compass, chir)
				if back := GlobalToLocal(g, compass, chir); back != local {
					t.Fatalf("compass=%v chir=%v local=%v: round trip gave %v", compass, chir, local, back)
				}
			}
		}
	}
	if got := LocalToGlobal(DirectionNNE, DirectionE, Clockwise); got != DirectionSSE {
		t.Fatalf("clockwise local NNE = %v, want SSE", got)
	}
}
