package shared

import "time"

type MotionPhase string

const (
	MotionIdle   MotionPhase = "idle"
	MotionActive MotionPhase = "active"
)

func (p MotionPhase) String() string {
	return string(p)
}

type Camera struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BackoffConfig struct {
	Initial     time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func NormalizeBackoff(cfg BackoffConfig) BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return cfg
}

// Next doubles d, capped at MaxDelay.
func (cfg BackoffConfig) Next(d time.Duration) time.Duration {
	d *= 2
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}
