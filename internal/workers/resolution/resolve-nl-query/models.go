// internal/workers/resolution/resolve-nl-query/models.go
package resolvenlquery

import "nlq-resolver/internal/models"

type Input struct {
	Query       string `json:"query"`
	MaxRows     int    `json:"maxRows,omitempty"`
	IncludeRows *bool  `json:"includeRows,omitempty"`
}

type Output struct {
	RequestID      string                   `json:"requestId"`
	Success        bool                     `json:"success"`
	SQL            string                   `json:"sql"`
	SQLExecuted    string                   `json:"sqlExecuted"`
	Intent         string                   `json:"intent"`
	PlanConfidence float64                  `json:"planConfidence"`
	ColumnNames    []string                 `json:"columnNames"`
	Rows           []models.Row             `json:"rows,omitempty"`
	RowCount       int                      `json:"rowCount"`
	Truncated      bool                     `json:"truncated"`
	Attempts       []models.FallbackAttempt `json:"attempts"`
	Warnings       []string                 `json:"warnings"`
	ErrorMessage   string                   `json:"errorMessage,omitempty"`
	DurationMs     int64                    `json:"durationMs"`
}
