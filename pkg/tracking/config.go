package tracking

import (
	"errors"
	"time"
)

// Config holds the tunable parameters of the capture loop.
type Config struct {
	// Timing
	DetectionInterval time.Duration // Capture/estimate tick (20-30 Hz)

	// Absence handling
	NeutralAfterMisses int // Consecutive misses before returning to neutral
	LogMissesAt        int // Log once when the miss streak reaches this

	// Limits for runtime tuning
	MinDetectionHz float64
	MaxDetectionHz float64
}

// DefaultConfig returns the recommended configuration: 25 Hz, neutral after
// roughly half a second without a face.
func DefaultConfig() Config {
	return Config{
		DetectionInterval:  40 * time.Millisecond,
		NeutralAfterMisses: 12,
		LogMissesAt:        5,
		MinDetectionHz:     5,
		MaxDetectionHz:     30,
	}
}

// SlowConfig returns a configuration for low-power machines.
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.DetectionInterval = 66 * time.Millisecond // ~15 Hz
	cfg.NeutralAfterMisses = 8
	return cfg
}

// FastConfig returns a configuration for the highest camera rate.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.DetectionInterval = 33 * time.Millisecond // ~30 Hz
	cfg.NeutralAfterMisses = 15
	return cfg
}

// DetectionHz returns the tick rate.
func (c Config) DetectionHz() float64 {
	if c.DetectionInterval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(c.DetectionInterval)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.DetectionInterval <= 0 {
		errs = append(errs, errors.New("tracking: detection interval must be positive"))
	}
	if c.NeutralAfterMisses < 1 {
		errs = append(errs, errors.New("tracking: neutral_after_misses must be at least 1"))
	}
	if c.MinDetectionHz <= 0 || c.MaxDetectionHz < c.MinDetectionHz {
		errs = append(errs, errors.New("tracking: invalid detection rate limits"))
	}
	return errors.Join(errs...)
}
