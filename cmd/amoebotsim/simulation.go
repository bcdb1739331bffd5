package main

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/internal/algorithms"
	"github.com/signalsfoundry/amoebot-simulator/internal/initgen"
	"github.com/signalsfoundry/amoebot-simulator/internal/logging"
	"github.com/signalsfoundry/amoebot-simulator/internal/observability"
	"github.com/signalsfoundry/amoebot-simulator/internal/sim/state"
	"github.com/signalsfoundry/amoebot-simulator/model"
	"github.com/spf13/cobra"
)

// simOptions are the flags shared by run and serve.
type simOptions struct {
	algorithm string
	params    []string

	shape             string
	size              int
	randomOrientation bool

	pinsPerEdge  int
	failure      float64
	selfDelivery bool
	retention    int
	seed         uint64
	workers      int
	shuffle      bool
	anchor       int
}

// tracingConfig reads tracing settings from the environment and tags the
// resource with this run's algorithm, seed and pin count.
func (o *simOptions) tracingConfig() observability.TracingConfig {
	return observability.TracingConfigFromEnv().WithSimulation(observability.SimulationInfo{
		Algorithm:   o.algorithm,
		Seed:        o.seed,
		PinsPerEdge: o.pinsPerEdge,
	})
}

func (o *simOptions) bind(cmd *cobra.Command) {
	defaults := core.DefaultConfig()
	f := cmd.Flags()
	f.StringVarP(&o.algorithm, "algorithm", "a", algorithms.BeepFlood, "Algorithm to run (see 'amoebotsim algorithms')")
	f.StringArrayVarP(&o.params, "param", "p", nil, "Algorithm parameter as key=value (repeatable)")
	f.StringVar(&o.shape, "shape", "hexagon", "Initial population: line, hexagon or blob")
	f.IntVar(&o.size, "size", 3, "Amoebot count for line and blob, radius for hexagon")
	f.BoolVar(&o.randomOrientation, "random-orientation", false, "Draw chirality and compass per amoebot from the seed")
	f.IntVarP(&o.pinsPerEdge, "pins", "k", defaults.PinsPerEdge, "Pins per edge")
	f.Float64Var(&o.failure, "beep-failure", defaults.BeepFailureProbability, "Probability that a beep delivery is dropped")
	f.BoolVar(&o.selfDelivery, "self-delivery", defaults.SelfDelivery, "Deliver a beep to the partition set that sent it")
	f.IntVar(&o.retention, "history", defaults.HistoryRetention, "Rounds kept in history (0 = unlimited)")
	f.Uint64Var(&o.seed, "seed", defaults.Seed, "Seed for activation order, faults, algorithms and generators")
	f.IntVar(&o.workers, "workers", defaults.Workers, "Concurrent activations per phase")
	f.BoolVar(&o.shuffle, "shuffle", defaults.RandomizeOrder, "Randomise activation order each round")
	f.IntVar(&o.anchor, "anchor", 0, "Amoebot ID that stays fixed during joint movements (0 = lowest ID)")
}

func (o *simOptions) config() core.Config {
	return core.Config{
		PinsPerEdge:            o.pinsPerEdge,
		BeepFailureProbability: o.failure,
		SelfDelivery:           o.selfDelivery,
		HistoryRetention:       o.retention,
		Seed:                   o.seed,
		Workers:                o.workers,
		RandomizeOrder:         o.shuffle,
	}
}

// build generates the population, instantiates the algorithm and wraps the
// engine in a SimulationState.
func (o *simOptions) build(log logging.Logger, engineOpts []core.EngineOption, stateOpts ...state.SimulationStateOption) (*state.SimulationState, error) {
	raw, err := parseParams(o.params)
	if err != nil {
		return nil, err
	}
	factory, err := algorithms.Build(o.algorithm, raw)
	if err != nil {
		return nil, err
	}

	var genOpts []initgen.Option
	if o.randomOrientation {
		genOpts = append(genOpts, initgen.WithRandomOrientation(o.seed))
	}
	specs, err := initgen.Generate(o.shape, o.size, o.seed, genOpts...)
	if err != nil {
		return nil, err
	}
	population, err := initgen.Load(o.pinsPerEdge, specs)
	if err != nil {
		return nil, fmt.Errorf("load population: %w", err)
	}

	opts := append([]core.EngineOption{core.WithLogger(log)}, engineOpts...)
	engine, err := core.NewSimulationEngine(o.config(), population, factory, opts...)
	if err != nil {
		return nil, err
	}
	if o.anchor > 0 {
		if err := engine.SetAnchor(model.AmoebotID(o.anchor)); err != nil {
			return nil, err
		}
	}
	return state.NewSimulationState(engine, population, log, stateOpts...), nil
}

// parseParams turns repeated key=value flags into a map.
func parseParams(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q: want key=value", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func summary(s core.RoundStats) string {
	return fmt.Sprintf("round %d: amoebots=%d nodes=%d circuits=%d beeps sent=%d delivered=%d dropped=%d moves applied=%d rejected=%d",
		s.Round, s.Amoebots, s.OccupiedNodes, s.Circuits,
		s.BeepsSent, s.BeepsDelivered, s.BeepsDropped,
		s.MovesApplied, s.MovesRejected)
}
