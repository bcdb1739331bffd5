package algorithms

import (
	"fmt"

	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/model"
)

// BeepFlood: a fixed source beeps on the global circuit every period rounds
// and every amoebot records when it first heard it.
const BeepFlood = "beep-flood"

func init() {
	Register(Descriptor{
		Name:        BeepFlood,
		Description: "Source amoebot broadcasts on a global circuit; others record the first round they hear it.",
		Parameters: []Parameter{
			{Key: "source", Type: ParamTypeInt, Default: "1", Description: "ID of the broadcasting amoebot."},
			{Key: "period", Type: ParamTypeInt, Default: "1", Description: "Rounds between broadcasts."},
		},
		New: newBeepFlood,
	})
}

type beepFlood struct {
	source   model.AmoebotID
	period   int
	informed *attr.Versioned[bool]
	heardAt  *attr.Versioned[int]
}

func newBeepFlood(p Params) (core.AlgorithmFactory, error) {
	period := p.Int("period")
	if period < 1 {
		return nil, fmt.Errorf("%s: %w: period must be at least 1", BeepFlood, ErrInvalidParameter)
	}
	source := model.AmoebotID(p.Int("source"))
	return func(ag *core.Agent) (core.Algorithm, error) {
		b := &beepFlood{
			source:   source,
			period:   period,
			informed: attr.MustNew(ag.Attributes(), "informed", ag.ID() == source),
			heardAt:  attr.MustNew(ag.Attributes(), "heard_at", -1),
		}
		return b, nil
	}, nil
}

func (b *beepFlood) ActivateMovement(*core.Agent) error { return nil }

func (b *beepFlood) ActivateBeep(ag *core.Agent) error {
	if err := ag.SetPinsGlobal(); err != nil {
		return err
	}
	if ag.AnyBeepReceived() && !b.informed.Get() {
		b.informed.Set(true)
		b.heardAt.Set(ag.Round())
	}
	if ag.ID() == b.source && (ag.Round()-1)%b.period == 0 {
		return ag.SendBeep(0)
	}
	return nil
}
