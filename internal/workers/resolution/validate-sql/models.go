// internal/workers/resolution/validate-sql/models.go
package validatesql

import "nlq-resolver/internal/resolver/optimizer"

type Input struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"maxRows,omitempty"`
}

type Output struct {
	Valid                bool                         `json:"valid"`
	Errors               []optimizer.Diagnostic       `json:"errors"`
	Warnings             []optimizer.Diagnostic       `json:"warnings"`
	Tables               []string                     `json:"tables"`
	Columns              []string                     `json:"columns"`
	OptimizedSQL         string                       `json:"optimizedSql"`
	OptimizationsApplied []string                     `json:"optimizationsApplied"`
	PerformanceIssues    []optimizer.PerformanceIssue `json:"performanceIssues"`
	IndexSuggestions     []optimizer.IndexSuggestion  `json:"indexSuggestions"`
}
