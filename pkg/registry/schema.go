package registry

import (
	"fmt"
	"time"
)

// Implementation states an activity moves through.
const (
	StatusPlanned     = "planned"
	StatusInProgress  = "in-progress"
	StatusImplemented = "implemented"
	StatusVerified    = "verified"
)

// ActivityRegistry is the catalogue of worker task types the BPMN models
// may reference.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	Workflows            []string               `json:"workflows"`
	Tags                 []string               `json:"tags"`
}

// KnownStatus reports whether s is one of the Status constants.
func KnownStatus(s string) bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusImplemented, StatusVerified:
		return true
	}
	return false
}

// TimeoutDuration parses Timeout. An unset timeout is zero.
func (a Activity) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("activity %s has invalid timeout %q", a.ID, a.Timeout)
	}
	if d < 0 {
		return 0, fmt.Errorf("activity %s has negative timeout %q", a.ID, a.Timeout)
	}
	return d, nil
}
