// Package sqlgen renders a QueryPlan as a single SQL statement.
//
// Rendering is a pure function of the plan and the row cap: the same inputs
// always produce byte-identical SQL.
package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	"nlq-resolver/internal/models"
)

// TestQuery is rendered for a plan that has no tables.
const TestQuery = "SELECT 1 as test_query"

// DefaultMaxRows is used when the caller passes a non-positive row cap.
const DefaultMaxRows = 1000

var (
	limitPattern      = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	literalPattern    = regexp.MustCompile(`'(?:[^']|'')*'`)
	qualifierPattern  = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.])([A-Za-z_][A-Za-z0-9_]*)\.(?:[A-Za-z_*])`)
)

// Generate renders plan. A plan CheckPlan rejects is rendered as BasicSelect
// over its first table.
func Generate(plan models.QueryPlan, maxRows int) string {
	if plan.IsEmpty() {
		return TestQuery
	}
	if err := CheckPlan(plan); err != nil {
		return BasicSelect(plan.PrimaryTables[0], maxRows)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectList(plan), ", "), plan.PrimaryTables[0])
	if joins := renderJoins(plan); len(joins) > 0 {
		query += " " + strings.Join(joins, " ")
	}
	if len(plan.WhereConditions) > 0 {
		query += " WHERE " + strings.Join(plan.WhereConditions, " AND ")
	}
	if len(plan.Aggregations) > 0 && len(plan.GroupBy) > 0 {
		query += " GROUP BY " + strings.Join(plan.GroupBy, ", ")
	}
	if len(plan.OrderBy) > 0 {
		query += " ORDER BY " + strings.Join(plan.OrderBy, ", ")
	}
	return AddLimit(query, maxRows)
}

// CheckPlan reports why a non-empty plan cannot be rendered as planned.
func CheckPlan(plan models.QueryPlan) error {
	if plan.IsEmpty() {
		return nil
	}
	for _, t := range plan.PrimaryTables {
		if !identifierPattern.MatchString(t) {
			return fmt.Errorf("invalid table name %q", t)
		}
	}
	if len(plan.SelectColumns) == 0 && len(plan.Aggregations) == 0 {
		return fmt.Errorf("plan selects nothing from %s", plan.PrimaryTables[0])
	}
	for _, j := range plan.RequiredJoins {
		for _, name := range []string{j.LeftTable, j.RightTable, j.LeftColumn, j.RightColumn} {
			if !identifierPattern.MatchString(name) {
				return fmt.Errorf("invalid join identifier %q", name)
			}
		}
	}
	ordered, unreachable := OrderJoins(plan.PrimaryTables[0], plan.RequiredJoins)
	if len(unreachable) > 0 {
		return fmt.Errorf("join %s-%s does not connect to %s", unreachable[0].LeftTable, unreachable[0].RightTable, plan.PrimaryTables[0])
	}

	scope := Scope(plan.PrimaryTables[0], ordered)
	clauses := [][]string{plan.SelectColumns, plan.Aggregations, plan.GroupBy, plan.OrderBy, plan.WhereConditions}
	for _, clause := range clauses {
		for _, expr := range clause {
			for _, q := range Qualifiers(expr) {
				if !scope[q] {
					return fmt.Errorf("%q references %s, which is not joined to %s", expr, q, plan.PrimaryTables[0])
				}
			}
		}
	}
	return nil
}

// Qualifiers lists the table qualifiers used in expr, in order of first use.
// Quoted literals are ignored.
func Qualifiers(expr string) []string {
	stripped := literalPattern.ReplaceAllString(expr, "''")
	var out []string
	seen := map[string]bool{}
	for _, m := range qualifierPattern.FindAllStringSubmatch(stripped, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Scope is the set of tables in FROM once the ordered joins are applied.
func Scope(root string, ordered []models.JoinSpec) map[string]bool {
	scope := map[string]bool{root: true}
	for _, j := range ordered {
		scope[j.LeftTable], scope[j.RightTable] = true, true
	}
	return scope
}

func selectList(plan models.QueryPlan) []string {
	if len(plan.Aggregations) == 0 {
		return plan.SelectColumns
	}
	if len(plan.GroupBy) == 0 {
		return plan.Aggregations
	}
	out := make([]string, 0, len(plan.GroupBy)+len(plan.Aggregations))
	out = append(out, plan.GroupBy...)
	return append(out, plan.Aggregations...)
}

// OrderJoins arranges joins so each one brings exactly one new table into
// scope, starting from root. Joins between tables already in scope are
// dropped; joins that never touch the scope are returned as unreachable.
func OrderJoins(root string, joins []models.JoinSpec) ([]models.JoinSpec, []models.JoinSpec) {
	scope := map[string]bool{root: true}
	pending := append([]models.JoinSpec(nil), joins...)
	var ordered []models.JoinSpec
	for progress := true; progress && len(pending) > 0; {
		progress = false
		rest := pending[:0:0]
		for _, j := range pending {
			left, right := scope[j.LeftTable], scope[j.RightTable]
			switch {
			case left && right:
				progress = true
			case left || right:
				scope[j.LeftTable], scope[j.RightTable] = true, true
				ordered = append(ordered, j)
				progress = true
			default:
				rest = append(rest, j)
			}
		}
		pending = rest
	}
	return ordered, pending
}

func renderJoins(plan models.QueryPlan) []string {
	ordered, _ := OrderJoins(plan.PrimaryTables[0], plan.RequiredJoins)
	scope := map[string]bool{plan.PrimaryTables[0]: true}
	out := make([]string, 0, len(ordered))
	for _, j := range ordered {
		joined := j.RightTable
		if scope[j.RightTable] {
			joined = j.LeftTable
		}
		scope[joined] = true
		out = append(out, fmt.Sprintf("%s JOIN %s ON %s.%s = %s.%s",
			joinType(j.Type), joined, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn))
	}
	return out
}

func joinType(t string) string {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "LEFT":
		return "LEFT"
	case "RIGHT":
		return "RIGHT"
	case "FULL":
		return "FULL"
	default:
		return "INNER"
	}
}

// HasLimit reports whether sql already carries a LIMIT clause.
func HasLimit(sql string) bool {
	return limitPattern.MatchString(sql)
}

// AddLimit appends a LIMIT clause unless one is present. Idempotent.
func AddLimit(sql string, maxRows int) string {
	if HasLimit(sql) {
		return sql
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	return fmt.Sprintf("%s LIMIT %d", strings.TrimSpace(trimmed), maxRows)
}

// BasicSelect is the last-resort statement for a table, or TestQuery when
// there is none.
func BasicSelect(table string, maxRows int) string {
	if table == "" {
		return TestQuery
	}
	return AddLimit("SELECT * FROM "+table, maxRows)
}
