package core

import (
	"math/rand/v2"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

// BeepSet holds one flag per partition set for every amoebot.
type BeepSet map[model.AmoebotID][]bool

// Has reports whether the partition set is flagged.
func (b BeepSet) Has(ref PartitionSetRef) bool {
	flags := b[ref.Amoebot]
	return ref.Set >= 0 && ref.Set < len(flags) && flags[ref.Set]
}

// BeepOptions tunes beep delivery.
type BeepOptions struct {
	SelfDelivery       bool
	FailureProbability float64
	// Rand draws fault decisions; required when FailureProbability > 0.
	Rand *rand.Rand
}

// BeepStats summarises one propagation.
type BeepStats struct {
	Sent      int
	Delivered int
	Dropped   int
}

// PropagateBeeps delivers beeps along circuits: a partition set receives a
// beep iff some partition set on its circuit beeped. Without self delivery
// a set that is the only sender on its circuit receives nothing. Each
// delivery may be dropped independently with the failure probability.
//
// The result has an entry for every amoebot of the graph.
func PropagateBeeps(g *CircuitGraph, fired BeepSet, opts BeepOptions) (BeepSet, BeepStats) {
	var stats BeepStats
	senders := make([]int, g.count)
	for i, id := range g.amoebots {
		flags := fired[id]
		for s := 0; s < g.offsets[i+1]-g.offsets[i] && s < len(flags); s++ {
			if flags[s] {
				senders[g.circuit[g.offsets[i]+s]]++
				stats.Sent++
			}
		}
	}

	received := make(BeepSet, len(g.amoebots))
	for i, id := range g.amoebots {
		n := g.offsets[i+1] - g.offsets[i]
		out := make([]bool, n)
		for s := 0; s < n; s++ {
			c := g.circuit[g.offsets[i]+s]
			if senders[c] == 0 {
				continue
			}
			if !opts.SelfDelivery && senders[c] == 1 && fired.Has(PartitionSetRef{Amoebot: id, Set: s}) {
				continue
			}
			if opts.FailureProbability > 0 && opts.Rand != nil && opts.Rand.Float64() < opts.FailureProbability {
				stats.Dropped++
				continue
			}
			out[s] = true
			stats.Delivered++
		}
		received[id] = out
	}
	return received, stats
}
