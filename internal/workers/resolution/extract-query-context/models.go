// internal/workers/resolution/extract-query-context/models.go
package extractquerycontext

import "nlq-resolver/internal/models"

type Input struct {
	Query         string   `json:"query"`
	MinConfidence *float64 `json:"minConfidence,omitempty"`
}

type Output struct {
	Context       models.QueryContext `json:"context"`
	LowConfidence bool                `json:"lowConfidence"`
	// SchemaAware is false when no snapshot could be loaded and only the
	// built-in nouns were used.
	SchemaAware bool `json:"schemaAware"`
}
