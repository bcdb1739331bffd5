package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/amoebot-simulator/model"
)

var (
	// ErrInvalidConfig indicates a rejected engine configuration.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrMalformedPartition indicates a pin configuration that is not a
	// partition of the amoebot's pins.
	ErrMalformedPartition = errors.New("malformed pin partition")
	// ErrWrongPhase indicates an operation issued outside the phase that
	// permits it.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
	// ErrInvalidLabel indicates an edge label outside the amoebot's shape.
	ErrInvalidLabel = errors.New("invalid edge label")
	// ErrInvalidPartitionSet indicates a partition set id that does not exist.
	ErrInvalidPartitionSet = errors.New("invalid partition set")
	// ErrMovementAlreadyRequested indicates a second movement request in one
	// activation.
	ErrMovementAlreadyRequested = errors.New("movement already requested this round")
	// ErrPinsLocked indicates a pin change after beeps were already sent on
	// the current configuration.
	ErrPinsLocked = errors.New("pin configuration locked after sending beeps")
	// ErrAlgorithmPanic wraps a recovered panic from algorithm code.
	ErrAlgorithmPanic = errors.New("algorithm panicked")
	// ErrAmoebotNotFound indicates an unknown amoebot id.
	ErrAmoebotNotFound = errors.New("amoebot not found")
)

// AlgorithmError attributes a failure to the amoebot and round where the
// algorithm caused it. Errors from activations are fatal for the round.
type AlgorithmError struct {
	AmoebotID model.AmoebotID
	Round     int
	Op        string
	Err       error
}

func (e *AlgorithmError) Error() string {
	return fmt.Sprintf("%s round %d %s: %v", e.AmoebotID, e.Round, e.Op, e.Err)
}

func (e *AlgorithmError) Unwrap() error { return e.Err }
