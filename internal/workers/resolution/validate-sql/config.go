// internal/workers/resolution/validate-sql/config.go
package validatesql

import (
	"fmt"
	"time"
)

type Config struct {
	Timeout time.Duration
	// MaxRows is the LIMIT injected by the optimizer when the job gives none.
	MaxRows int
	// FailOnInvalid throws VALIDATION_FAILED instead of completing the job
	// with valid=false.
	FailOnInvalid bool
}

func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		MaxRows: 1000,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRows <= 0 {
		return fmt.Errorf("max_rows must be positive")
	}
	return nil
}
