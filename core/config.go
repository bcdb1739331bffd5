package core

import "fmt"

// Config holds the system-wide simulation parameters.
type Config struct {
	// PinsPerEdge is k, identical for every amoebot. Zero disables circuits.
	PinsPerEdge int
	// BeepFailureProbability is the chance that a delivery to one partition
	// set is dropped.
	BeepFailureProbability float64
	// SelfDelivery makes a partition set that beeped also receive its own
	// beep.
	SelfDelivery bool
	// HistoryRetention bounds the number of stored rounds; 0 keeps all.
	HistoryRetention int
	// Seed drives activation order, fault injection and per-amoebot
	// randomness.
	Seed uint64
	// Workers is the number of goroutines used for activations.
	Workers int
	// RandomizeOrder shuffles activation order every round.
	RandomizeOrder bool
}

// DefaultConfig returns a configuration with one pin per edge and
// deterministic single-worker activations.
func DefaultConfig() Config {
	return Config{
		PinsPerEdge:    1,
		SelfDelivery:   true,
		Seed:           1,
		Workers:        1,
		RandomizeOrder: true,
	}
}

// Validate reports whether the configuration can be used.
func (c Config) Validate() error {
	if c.PinsPerEdge < 0 {
		return fmt.Errorf("pins per edge %d: %w", c.PinsPerEdge, ErrInvalidConfig)
	}
	if c.BeepFailureProbability < 0 || c.BeepFailureProbability > 1 {
		return fmt.Errorf("beep failure probability %v outside [0,1]: %w", c.BeepFailureProbability, ErrInvalidConfig)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("history retention %d: %w", c.HistoryRetention, ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers %d: %w", c.Workers, ErrInvalidConfig)
	}
	return nil
}
