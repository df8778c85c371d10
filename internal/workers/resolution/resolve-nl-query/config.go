// internal/workers/resolution/resolve-nl-query/config.go
package resolvenlquery

import (
	"fmt"
	"time"
)

type Config struct {
	Timeout time.Duration
	// IncludeRows copies result rows into the job variables unless the job
	// says otherwise.
	IncludeRows bool
	// MaxOutputRows caps the rows copied into the job variables.
	MaxOutputRows int
	// FailOnExhausted throws EXHAUSTED_FALLBACKS instead of completing the
	// job with success=false.
	FailOnExhausted bool
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		IncludeRows:   true,
		MaxOutputRows: 500,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxOutputRows < 0 {
		return fmt.Errorf("max_output_rows must not be negative")
	}
	return nil
}
