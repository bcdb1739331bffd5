package timectrl

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/signalsfoundry/amoebot-simulator/core"
)

// Stepper advances a simulation by one round. core.SimulationEngine and
// state.SimulationState both satisfy it.
type Stepper interface {
	Step(ctx context.Context) (*core.RoundSnapshot, error)
}

// Mode describes how the RoundController paces rounds.
type Mode int

const (
	// RealTime runs one round per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated runs rounds back to back as fast as the stepper allows.
	Accelerated
)

// String renders the mode for flags and logs.
func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// ParseMode maps "realtime" and "accelerated" onto a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "realtime", "real-time", "":
		return RealTime, true
	case "accelerated", "fast":
		return Accelerated, true
	}
	return RealTime, false
}

// RoundController drives a Stepper and notifies registered listeners after
// every round it runs.
type RoundController struct {
	mu       sync.RWMutex
	Interval time.Duration
	Mode     Mode

	stepper   Stepper
	round     int
	err       error
	listeners []func(*core.RoundSnapshot)
}

// NewRoundController constructs a controller.
func NewRoundController(stepper Stepper, interval time.Duration, mode Mode) *RoundController {
	return &RoundController{
		stepper:  stepper,
		Interval: interval,
		Mode:     mode,
	}
}

// Round returns the round of the last snapshot the controller produced.
func (rc *RoundController) Round() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.round
}

// Err returns the error that stopped the last run, if any. Context
// cancellation is not reported.
func (rc *RoundController) Err() error {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.err
}

// AddListener registers a callback invoked after every round.
func (rc *RoundController) AddListener(fn func(*core.RoundSnapshot)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.listeners = append(rc.listeners, fn)
}

// Start runs the controller for the given number of rounds (0 = until ctx is
// done) in a separate goroutine. It returns a channel that is closed when the
// controller finishes.
func (rc *RoundController) Start(ctx context.Context, rounds int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		rc.setErr(nil)

		var tick <-chan time.Time
		if rc.Mode == RealTime && rc.Interval > 0 {
			ticker := time.NewTicker(rc.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for n := 0; rounds <= 0 || n < rounds; n++ {
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return
			}

			snap, err := rc.stepper.Step(ctx)
			if err != nil {
				if ctx.Err() == nil {
					rc.setErr(err)
				}
				return
			}

			rc.mu.Lock()
			rc.round = snap.Round
			listeners := slices.Clone(rc.listeners)
			rc.mu.Unlock()

			for _, fn := range listeners {
				fn(snap)
			}
		}
	}()
	return done
}

func (rc *RoundController) setErr(err error) {
	rc.mu.Lock()
	rc.err = err
	rc.mu.Unlock()
}
