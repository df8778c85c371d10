// internal/models/plan.go
package models

type QueryPlan struct {
	PrimaryTables    []string    `json:"primaryTables"`
	RequiredJoins    []JoinSpec  `json:"requiredJoins"`
	SelectColumns    []string    `json:"selectColumns"`
	WhereConditions  []string    `json:"whereConditions"`
	Aggregations     []string    `json:"aggregations"`
	GroupBy          []string    `json:"groupBy,omitempty"`
	OrderBy          []string    `json:"orderBy"`
	ConfidenceScore  float64     `json:"confidenceScore"`
	AlternativePlans []QueryPlan `json:"alternativePlans,omitempty"`
}

func (p QueryPlan) IsEmpty() bool {
	return len(p.PrimaryTables) == 0
}
