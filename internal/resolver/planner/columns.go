package planner

import (
	"strings"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/heuristics"
)

// columnRef is a resolved table column.
type columnRef struct {
	table  string
	column models.ColumnMetadata
}

func (c columnRef) qualified() string {
	return c.table + "." + c.column.Name
}

// fieldMatches reports whether a column plausibly names the field: equal,
// same noun, or one of its underscore-separated parts (amount -> total_amount).
func fieldMatches(column, field string) bool {
	column, field = strings.ToLower(column), strings.ToLower(field)
	if column == field || heuristics.SameNoun(column, field) {
		return true
	}
	for _, part := range strings.Split(column, "_") {
		if part == field || heuristics.SameNoun(part, field) {
			return true
		}
	}
	return false
}

// resolveField finds a column for field across the given tables, in order.
// A column whose type suits the filter wins over the first name match.
func resolveField(field string, ft models.FilterType, tables []string, md *models.SemanticMetadata) (columnRef, bool) {
	if field == "" {
		return columnRef{}, false
	}
	var fallback *columnRef
	for _, name := range tables {
		t, ok := md.Table(name)
		if !ok {
			continue
		}
		for _, c := range t.Columns {
			if !fieldMatches(c.Name, field) {
				continue
			}
			ref := columnRef{table: t.Name, column: c}
			if typeSuits(c, ft) {
				return ref, true
			}
			if fallback == nil {
				fallback = &ref
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return columnRef{}, false
}

func typeSuits(c models.ColumnMetadata, ft models.FilterType) bool {
	switch ft {
	case models.FilterTypeDate:
		return c.IsTemporal()
	case models.FilterTypeNumeric:
		return c.IsNumeric()
	default:
		return !c.IsNumeric() && !c.IsTemporal()
	}
}

func isKeyColumn(c models.ColumnMetadata) bool {
	lower := strings.ToLower(c.Name)
	return c.IsPrimaryKey || c.IsForeignKey || lower == "id" || strings.HasSuffix(lower, "_id")
}

// guessColumn picks the most plausible column of a kind when the query did
// not name one. Higher rank wins; ties keep table order then column order.
func (p *Planner) guessColumn(ft models.FilterType, tables []string, md *models.SemanticMetadata) (columnRef, bool) {
	best, bestRank := columnRef{}, 0
	for _, name := range tables {
		t, ok := md.Table(name)
		if !ok {
			continue
		}
		for _, c := range t.Columns {
			rank := p.columnRank(c, ft)
			if rank > bestRank {
				best, bestRank = columnRef{table: t.Name, column: c}, rank
			}
		}
	}
	return best, bestRank > 0
}

func (p *Planner) columnRank(c models.ColumnMetadata, ft models.FilterType) int {
	lower := strings.ToLower(c.Name)
	switch ft {
	case models.FilterTypeDate:
		if !c.IsTemporal() {
			return 0
		}
		if lower == "date" || strings.HasSuffix(lower, "_date") {
			return 3
		}
		if containsFold(p.tables.DateColumnHints, lower) {
			return 2
		}
		return 1
	case models.FilterTypeNumeric:
		if !c.IsNumeric() || isKeyColumn(c) {
			return 0
		}
		for _, hint := range p.tables.NumericColumnHints {
			if fieldMatches(lower, hint) {
				return 2
			}
		}
		return 1
	default:
		if c.IsNumeric() || c.IsTemporal() || isKeyColumn(c) {
			return 0
		}
		for i, hint := range p.tables.TextColumnHints {
			if lower == hint {
				// earlier hints are better guesses
				return 2 + len(p.tables.TextColumnHints) - i
			}
		}
		return 1
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
