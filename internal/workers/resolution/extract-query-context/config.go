// internal/workers/resolution/extract-query-context/config.go
package extractquerycontext

import (
	"fmt"
	"time"
)

type Config struct {
	Timeout       time.Duration
	MinConfidence float64
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:       5 * time.Second,
		MinConfidence: 0.3,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1]")
	}
	return nil
}
