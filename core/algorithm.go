package core

// Algorithm is the per-amoebot program. The engine calls ActivateMovement
// once per round before movements are resolved and ActivateBeep once after,
// both with the amoebot's Agent. Returning an error or panicking aborts the
// round.
type Algorithm interface {
	ActivateMovement(a *Agent) error
	ActivateBeep(a *Agent) error
}

// AlgorithmFactory creates the program for one amoebot. It runs once before
// round 0 and is the only place attributes may be declared.
type AlgorithmFactory func(a *Agent) (Algorithm, error)

// AlgorithmFuncs adapts plain functions to Algorithm. Nil functions do
// nothing.
type AlgorithmFuncs struct {
	Movement func(a *Agent) error
	Beep     func(a *Agent) error
}

func (f AlgorithmFuncs) ActivateMovement(a *Agent) error {
	if f.Movement == nil {
		return nil
	}
	return f.Movement(a)
}

func (f AlgorithmFuncs) ActivateBeep(a *Agent) error {
	if f.Beep == nil {
		return nil
	}
	return f.Beep(a)
}
