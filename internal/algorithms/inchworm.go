package algorithms

import (
	"fmt"

	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

// Inchworm moves a bonded line by alternating a joint expansion with a joint
// head contraction. Each cycle shifts the line one node in the given local
// direction.
const Inchworm = "inchworm"

func init() {
	Register(Descriptor{
		Name:        Inchworm,
		Description: "All amoebots expand then contract onto their heads, crawling a line forward.",
		Parameters: []Parameter{
			{Key: "direction", Type: ParamTypeInt, Default: "0", Description: "Local crawl direction, 0..5."},
			{Key: "cycles", Type: ParamTypeInt, Default: "0", Description: "Stop after this many cycles; 0 runs forever."},
		},
		New: newInchworm,
	})
}

type inchworm struct {
	dir    model.Direction
	cycles int
	steps  *attr.Versioned[int]
}

func newInchworm(p Params) (core.AlgorithmFactory, error) {
	dir := model.Direction(p.Int("direction"))
	if !dir.Valid() {
		return nil, fmt.Errorf("%s: %w: direction %d", Inchworm, ErrInvalidParameter, dir)
	}
	cycles := p.Int("cycles")
	if cycles < 0 {
		return nil, fmt.Errorf("%s: %w: negative cycles", Inchworm, ErrInvalidParameter)
	}
	return func(ag *core.Agent) (core.Algorithm, error) {
		return &inchworm{
			dir:    dir,
			cycles: cycles,
			steps:  attr.MustNew(ag.Attributes(), "steps", 0),
		}, nil
	}, nil
}

func (w *inchworm) ActivateMovement(ag *core.Agent) error {
	if ag.LastMovement().Outcome == core.MovementApplied && ag.LastMovement().Performed.Kind == model.ActionContractHead {
		w.steps.Set(w.steps.Get() + 1)
	}
	if w.cycles > 0 && w.steps.GetCurrent() >= w.cycles {
		return nil
	}
	if ag.IsExpanded() {
		return ag.ContractHead()
	}
	return ag.Expand(w.dir)
}

func (w *inchworm) ActivateBeep(*core.Agent) error { return nil }
