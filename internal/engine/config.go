package engine

import (
	"fmt"
	"time"
)

// Config holds engine configuration.
type Config struct {
	Workers              int           // concurrent job executors (default 4)
	ReservedInteractive  int           // workers that never take bulk jobs (default 1; negative disables)
	InteractiveThreshold int           // jobs with total below this run on the interactive lane (default 500)
	BatchSize            int           // candidates per batch (default 50)
	RetryAttempts        int           // tries per batch on an overloaded store (default 5)
	RetryBaseDelay       time.Duration // first retry delay (default 50ms)
	RetryMaxDelay        time.Duration // cap on retry delay (default 2s)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:              4,
		ReservedInteractive:  1,
		InteractiveThreshold: 500,
		BatchSize:            50,
		RetryAttempts:        5,
		RetryBaseDelay:       50 * time.Millisecond,
		RetryMaxDelay:        2 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.ReservedInteractive == 0 && c.Workers > 1 {
		c.ReservedInteractive = def.ReservedInteractive
	}
	if c.ReservedInteractive < 0 {
		c.ReservedInteractive = 0
	}
	if c.InteractiveThreshold <= 0 {
		c.InteractiveThreshold = def.InteractiveThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	return c
}

// Validate checks a defaulted config.
func (c Config) Validate() error {
	if c.ReservedInteractive >= c.Workers {
		return fmt.Errorf("reserved interactive workers (%d) must be fewer than workers (%d)", c.ReservedInteractive, c.Workers)
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry max delay %s is below base delay %s", c.RetryMaxDelay, c.RetryBaseDelay)
	}
	return nil
}
