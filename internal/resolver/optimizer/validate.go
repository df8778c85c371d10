// Package optimizer checks generated SQL against the schema snapshot and
// applies safe rewrites. All checks are structural text scans; see sqlscan.
package optimizer

import (
	"fmt"
	"strings"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/sqlscan"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

const (
	RuleNotSelect        = "not-select"
	RuleUnknownTable     = "unknown-table"
	RuleUnknownColumn    = "unknown-column"
	RuleUnknownQualifier = "unknown-qualifier"
	RuleAmbiguousColumn  = "ambiguous-column"
	RuleUnqualified      = "unqualified-column"
)

// Diagnostic is one finding about a statement.
type Diagnostic struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Table    string   `json:"table,omitempty"`
	Column   string   `json:"column,omitempty"`
}

type ValidationReport struct {
	Valid    bool         `json:"valid"`
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
	Tables   []string     `json:"tables"`
	Columns  []string     `json:"columns"`
}

func (r *ValidationReport) add(d Diagnostic) {
	if d.Severity == SeverityError {
		r.Errors = append(r.Errors, d)
		return
	}
	r.Warnings = append(r.Warnings, d)
}

// scope maps the names a statement uses for its relations to schema tables.
type scope struct {
	md       *models.SemanticMetadata
	byName   map[string]string
	ordered  []string
	complete bool // every relation is a known table
}

func newScope(refs []sqlscan.TableRef, md *models.SemanticMetadata) *scope {
	s := &scope{md: md, byName: map[string]string{}, complete: true}
	for _, r := range refs {
		if r.Name == "" {
			s.complete = false
			continue
		}
		s.byName[strings.ToLower(r.Qualifier())] = r.Name
		s.byName[strings.ToLower(r.Name)] = r.Name
		s.ordered = append(s.ordered, r.Name)
		if _, ok := md.Table(r.Name); !ok || r.Subquery {
			s.complete = false
		}
	}
	return s
}

func (s *scope) resolve(qualifier string) (string, bool) {
	t, ok := s.byName[strings.ToLower(qualifier)]
	return t, ok
}

// owners lists the in-scope tables that have column.
func (s *scope) owners(column string) []string {
	var out []string
	for _, t := range s.ordered {
		if s.md.HasColumn(t, column) {
			out = append(out, t)
		}
	}
	return out
}

// ValidateSQL checks that every table and column a statement references
// exists in md. Unknown names are errors; unqualified columns in multi-table
// statements are warnings. Subqueries are only checked at the top level.
func ValidateSQL(sql string, md *models.SemanticMetadata) ValidationReport {
	report := ValidationReport{Errors: []Diagnostic{}, Warnings: []Diagnostic{}, Tables: []string{}, Columns: []string{}}

	c, ok := sqlscan.Split(sql)
	if !ok {
		report.add(Diagnostic{RuleID: RuleNotSelect, Severity: SeverityError, Message: "statement is not a SELECT"})
		return report
	}

	refs := sqlscan.Tables(c.From)
	sc := newScope(refs, md)
	seenTable := map[string]bool{}
	for _, r := range refs {
		if r.Name == "" || seenTable[r.Name] {
			continue
		}
		seenTable[r.Name] = true
		report.Tables = append(report.Tables, r.Name)
		if _, ok := md.Table(r.Name); !ok {
			report.add(Diagnostic{
				RuleID:   RuleUnknownTable,
				Severity: SeverityError,
				Message:  fmt.Sprintf("table %q is not in the schema", r.Name),
				Table:    r.Name,
			})
		}
	}

	seenColumn := map[string]bool{}
	addColumn := func(table, column string) {
		key := table + "." + column
		if !seenColumn[key] {
			seenColumn[key] = true
			report.Columns = append(report.Columns, key)
		}
	}

	var exprs []string
	exprs = append(exprs, c.Select, c.Where, c.GroupBy, c.Having, c.OrderBy)
	for _, r := range refs {
		exprs = append(exprs, r.On)
	}
	reported := map[string]bool{}
	for _, expr := range exprs {
		for _, ref := range sqlscan.QualifiedRefs(expr) {
			table, known := sc.resolve(ref.Qualifier)
			if !known {
				if !reported[ref.String()] {
					reported[ref.String()] = true
					report.add(Diagnostic{
						RuleID:   RuleUnknownQualifier,
						Severity: SeverityError,
						Message:  fmt.Sprintf("%q does not name a table in FROM", ref.Qualifier),
						Column:   ref.String(),
					})
				}
				continue
			}
			if ref.Column == "*" {
				continue
			}
			if _, inSchema := md.Table(table); !inSchema {
				continue
			}
			if !md.HasColumn(table, ref.Column) {
				if !reported[ref.String()] {
					reported[ref.String()] = true
					report.add(Diagnostic{
						RuleID:   RuleUnknownColumn,
						Severity: SeverityError,
						Message:  fmt.Sprintf("column %q does not exist in %q", ref.Column, table),
						Table:    table,
						Column:   ref.Column,
					})
				}
				continue
			}
			addColumn(table, ref.Column)
		}
	}

	var bare []string
	for _, item := range sqlscan.List(c.Select) {
		if col, ok := sqlscan.BareColumn(item); ok {
			bare = append(bare, col)
		}
	}
	for _, conj := range sqlscan.Conjuncts(c.Where) {
		if ref, ok := sqlscan.PredicateColumn(conj); ok && ref.Qualifier == "" {
			bare = append(bare, ref.Column)
		}
	}
	for _, col := range bare {
		if reported[col] {
			continue
		}
		reported[col] = true
		checkBare(&report, sc, col, addColumn)
	}

	report.Valid = len(report.Errors) == 0
	return report
}

func checkBare(report *ValidationReport, sc *scope, col string, addColumn func(table, column string)) {
	owners := sc.owners(col)
	switch {
	case len(owners) == 0:
		if sc.complete && len(sc.ordered) > 0 {
			report.add(Diagnostic{
				RuleID:   RuleUnknownColumn,
				Severity: SeverityError,
				Message:  fmt.Sprintf("column %q does not exist in %s", col, strings.Join(sc.ordered, ", ")),
				Column:   col,
			})
		}
	case len(owners) > 1:
		report.add(Diagnostic{
			RuleID:   RuleAmbiguousColumn,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("column %q exists in %s; qualify it", col, strings.Join(owners, ", ")),
			Column:   col,
		})
	default:
		addColumn(owners[0], col)
		if len(sc.ordered) > 1 {
			report.add(Diagnostic{
				RuleID:   RuleUnqualified,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("column %q is unqualified in a multi-table query", col),
				Table:    owners[0],
				Column:   col,
			})
		}
	}
}
