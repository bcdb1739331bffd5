package algorithms

import (
	"fmt"

	"github.com/signalsfoundry/amoebot-simulator/attr"
	"github.com/signalsfoundry/amoebot-simulator/core"
)

// LeaderElection runs coin-flip elimination on one global circuit. Each
// phase takes two rounds: heads candidates beep in the first, tails
// candidates beep in the second and withdraw if heads were heard. Once
// "confidence" phases in a row pass without a split, the surviving
// candidate declares itself leader and everyone stops.
const LeaderElection = "leader-election"

const (
	flagBits    = 6
	stageBits   = 1
	quietBits   = 6
	phaseBits   = 16
	electionMax = flagBits + stageBits + quietBits + phaseBits
)

// The packed state must fit a word.
const _ uint8 = attr.MaxBits - electionMax

var (
	electionLayout = attr.NewBitLayout(LeaderElection)
	fCandidate     = electionLayout.Flag("candidate")
	fLeader        = electionLayout.Flag("leader")
	fDone          = electionLayout.Flag("done")
	fHeads         = electionLayout.Flag("heads")
	fSent          = electionLayout.Flag("sent")
	fSawHeads      = electionLayout.Flag("saw_heads")
	fStage         = electionLayout.Field("stage", stageBits)
	fQuiet         = electionLayout.Field("quiet", quietBits)
	fPhase         = electionLayout.Field("phase", phaseBits)
)

func init() {
	Register(Descriptor{
		Name:        LeaderElection,
		Description: "Randomised coin-flip leader election on a global circuit.",
		Parameters: []Parameter{
			{Key: "confidence", Type: ParamTypeInt, Default: "10", Description: "Quiet phases required before terminating."},
		},
		New: newLeaderElection,
	})
}

// ElectionState is the decoded packed state of one amoebot.
type ElectionState struct {
	Candidate bool
	Leader    bool
	Done      bool
	Phase     int
	Quiet     int
}

// DecodeElection unpacks the "election" attribute.
func DecodeElection(word uint64) ElectionState {
	return ElectionState{
		Candidate: fCandidate.Bool(word),
		Leader:    fLeader.Bool(word),
		Done:      fDone.Bool(word),
		Phase:     int(fPhase.Get(word)),
		Quiet:     int(fQuiet.Get(word)),
	}
}

type leaderElection struct {
	confidence uint64
	state      *attr.Versioned[uint64]
}

func newLeaderElection(p Params) (core.AlgorithmFactory, error) {
	confidence := p.Int("confidence")
	if confidence < 1 || uint64(confidence) > fQuiet.Max() {
		return nil, fmt.Errorf("%s: %w: confidence must be in 1..%d", LeaderElection, ErrInvalidParameter, fQuiet.Max())
	}
	return func(ag *core.Agent) (core.Algorithm, error) {
		return &leaderElection{
			confidence: uint64(confidence),
			state:      attr.MustNew(ag.Attributes(), "election", fCandidate.SetBool(0, true)),
		}, nil
	}, nil
}

func (l *leaderElection) ActivateMovement(*core.Agent) error { return nil }

func (l *leaderElection) ActivateBeep(ag *core.Agent) error {
	if err := ag.SetPinsGlobal(); err != nil {
		return err
	}
	w := l.state.Get()
	if fDone.Bool(w) {
		return nil
	}

	// A set never hears itself with self-delivery off, so count our own beep.
	heard := ag.AnyBeepReceived() || fSent.Bool(w)
	w = fSent.SetBool(w, false)
	send := false

	if fStage.Get(w) == 0 {
		if phase := fPhase.Get(w); phase > 0 {
			quiet := fQuiet.Get(w)
			if fSawHeads.Bool(w) && heard {
				quiet = 0
			} else if quiet < fQuiet.Max() {
				quiet++
			}
			w = fQuiet.Set(w, quiet)
			if quiet >= l.confidence {
				w = fDone.SetBool(w, true)
				w = fLeader.SetBool(w, fCandidate.Bool(w))
				l.state.Set(w)
				return nil
			}
		}
		if fCandidate.Bool(w) {
			heads := ag.Rand().IntN(2) == 0
			w = fHeads.SetBool(w, heads)
			send = heads
		}
		w = fStage.Set(w, 1)
	} else {
		w = fSawHeads.SetBool(w, heard)
		if fCandidate.Bool(w) && !fHeads.Bool(w) {
			send = true
			if heard {
				w = fCandidate.SetBool(w, false)
			}
		}
		w = fStage.Set(w, 0)
		if phase := fPhase.Get(w); phase < fPhase.Max() {
			w = fPhase.Set(w, phase+1)
		}
	}

	w = fSent.SetBool(w, send)
	l.state.Set(w)
	if send {
		return ag.SendBeep(0)
	}
	return nil
}
