// internal/models/query_context.go
package models

// QueryContext is the structured reading of one natural-language request.
// It is built once by the extractor and treated as read-only afterwards.
type QueryContext struct {
	OriginalQuery       string            `json:"originalQuery"`
	EntitiesMentioned   []string          `json:"entitiesMentioned"`
	AttributesMentioned []string          `json:"attributesMentioned"`
	Operations          []OperationType   `json:"operations"`
	Filters             []Filter          `json:"filters"`
	Aggregations        []AggregationType `json:"aggregations"`
	TemporalReferences  []string          `json:"temporalReferences"`
	BusinessIntent      BusinessIntent    `json:"businessIntent"`
	ConfidenceScore     float64           `json:"confidenceScore"`
}

type Filter struct {
	Type     FilterType `json:"type"`
	Operator string     `json:"operator"`
	Value    string     `json:"value"`
	Field    string     `json:"field,omitempty"`
}

func (qc QueryContext) HasOperation(op OperationType) bool {
	for _, o := range qc.Operations {
		if o == op {
			return true
		}
	}
	return false
}

func (qc QueryContext) MentionsEntity(name string) bool {
	for _, e := range qc.EntitiesMentioned {
		if e == name {
			return true
		}
	}
	return false
}
