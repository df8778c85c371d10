package optimizer

import (
	"fmt"
	"regexp"
	"strings"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/sqlgen"
	"nlq-resolver/internal/resolver/sqlscan"
)

const (
	IssueSelectStar          = "select-star"
	IssueMissingWhere        = "missing-where"
	IssueTooManyJoins        = "too-many-joins"
	IssueLeadingWildcardLike = "leading-wildcard-like"
	IssueMissingLimit        = "missing-limit"

	// MaxJoins is the join count above which a statement is flagged.
	MaxJoins = 2
)

type PerformanceIssue struct {
	Issue      string   `json:"issue"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

type IndexSuggestion struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	Statement string `json:"statement"`
	Reason    string `json:"reason"`
}

type OptimizationResult struct {
	OriginalSQL          string   `json:"originalSql"`
	OptimizedSQL         string   `json:"optimizedSql"`
	OptimizationsApplied []string `json:"optimizationsApplied"`
	Suggestions          []string `json:"suggestions"`
}

var (
	leadingWildcard = regexp.MustCompile(`(?i)\bLIKE\s+'%`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// CheckPerformanceIssues flags SELECT *, a missing WHERE, more than MaxJoins
// joins, LIKE patterns with a leading wildcard and a missing LIMIT.
func CheckPerformanceIssues(sql string) []PerformanceIssue {
	issues := []PerformanceIssue{}
	c, ok := sqlscan.Split(sql)
	if !ok {
		return issues
	}

	for _, item := range sqlscan.List(c.Select) {
		if item == "*" || strings.HasSuffix(item, ".*") {
			issues = append(issues, PerformanceIssue{
				Issue:      IssueSelectStar,
				Severity:   SeverityWarning,
				Message:    "SELECT * reads every column",
				Suggestion: "select only the columns you need",
			})
			break
		}
	}

	if c.From != "" && c.Where == "" {
		issues = append(issues, PerformanceIssue{
			Issue:      IssueMissingWhere,
			Severity:   SeverityWarning,
			Message:    "no WHERE clause; the whole table is scanned",
			Suggestion: "add a filter",
		})
	}

	joins := 0
	for _, r := range sqlscan.Tables(c.From) {
		if r.Join != "" {
			joins++
		}
	}
	if joins > MaxJoins {
		issues = append(issues, PerformanceIssue{
			Issue:      IssueTooManyJoins,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("%d joins", joins),
			Suggestion: "check that every join is needed",
		})
	}

	if leadingWildcard.MatchString(c.Where) {
		issues = append(issues, PerformanceIssue{
			Issue:      IssueLeadingWildcardLike,
			Severity:   SeverityInfo,
			Message:    "LIKE pattern starts with a wildcard and cannot use a b-tree index",
			Suggestion: "anchor the pattern or use a trigram index",
		})
	}

	if c.From != "" && c.Limit == "" {
		issues = append(issues, PerformanceIssue{
			Issue:      IssueMissingLimit,
			Severity:   SeverityWarning,
			Message:    "no LIMIT clause",
			Suggestion: "cap the rows returned",
		})
	}
	return issues
}

// SuggestIndexes proposes an index for each WHERE column that has none in md.
func SuggestIndexes(sql string, md *models.SemanticMetadata) []IndexSuggestion {
	suggestions := []IndexSuggestion{}
	c, ok := sqlscan.Split(sql)
	if !ok || c.Where == "" {
		return suggestions
	}
	sc := newScope(sqlscan.Tables(c.From), md)

	seen := map[string]bool{}
	for _, conj := range sqlscan.Conjuncts(c.Where) {
		ref, ok := sqlscan.PredicateColumn(conj)
		if !ok {
			continue
		}
		var table string
		if ref.Qualifier != "" {
			table, ok = sc.resolve(ref.Qualifier)
		} else if owners := sc.owners(ref.Column); len(owners) == 1 {
			table, ok = owners[0], true
		} else {
			ok = false
		}
		if !ok || !md.HasColumn(table, ref.Column) || md.IsIndexed(table, ref.Column) {
			continue
		}
		key := table + "." + ref.Column
		if seen[key] {
			continue
		}
		seen[key] = true
		suggestions = append(suggestions, IndexSuggestion{
			Table:     table,
			Column:    ref.Column,
			Statement: fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s (%s)", table, ref.Column, table, ref.Column),
			Reason:    fmt.Sprintf("%s is filtered on but not indexed", key),
		})
	}
	return suggestions
}

// OptimizeQuery normalises whitespace and injects a LIMIT. Every other
// finding is returned as a suggestion; nothing else is rewritten.
func OptimizeQuery(sql string, md *models.SemanticMetadata, maxRows int) OptimizationResult {
	result := OptimizationResult{
		OriginalSQL:          sql,
		OptimizedSQL:         sql,
		OptimizationsApplied: []string{},
		Suggestions:          []string{},
	}

	normalized := strings.TrimSpace(whitespace.ReplaceAllString(sql, " "))
	if normalized != sql {
		result.OptimizedSQL = normalized
		result.OptimizationsApplied = append(result.OptimizationsApplied, "normalized_whitespace")
	}

	if _, ok := sqlscan.Split(result.OptimizedSQL); ok && !sqlgen.HasLimit(result.OptimizedSQL) {
		result.OptimizedSQL = sqlgen.AddLimit(result.OptimizedSQL, maxRows)
		result.OptimizationsApplied = append(result.OptimizationsApplied, "added_limit")
	}

	for _, issue := range CheckPerformanceIssues(result.OptimizedSQL) {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("%s: %s", issue.Message, issue.Suggestion))
	}
	for _, idx := range SuggestIndexes(result.OptimizedSQL, md) {
		result.Suggestions = append(result.Suggestions, idx.Statement)
	}
	return result
}
