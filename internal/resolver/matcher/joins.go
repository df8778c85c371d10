package matcher

import (
	"strings"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/heuristics"
)

// Join confidences. Declared foreign keys are trusted; name-pattern joins are a guess.
const (
	DeclaredJoinConfidence = 1.0
	InferredJoinConfidence = 0.6
)

// DiscoverJoins looks at every pair of candidate tables. Declared
// relationships win; only pairs without one fall back to `<table>_id`
// naming inference.
func DiscoverJoins(tables []string, md *models.SemanticMetadata) []models.JoinSpec {
	if md == nil {
		return nil
	}
	var joins []models.JoinSpec
	for i := 0; i < len(tables); i++ {
		for j := i + 1; j < len(tables); j++ {
			a, b := tables[i], tables[j]
			if strings.EqualFold(a, b) {
				continue
			}
			declared := declaredJoins(a, b, md)
			if len(declared) > 0 {
				joins = append(joins, declared...)
				continue
			}
			joins = append(joins, inferredJoins(a, b, md)...)
		}
	}
	return dedupeJoins(joins)
}

func declaredJoins(a, b string, md *models.SemanticMetadata) []models.JoinSpec {
	var out []models.JoinSpec
	for _, rel := range md.Relationships {
		connects := (strings.EqualFold(rel.FromTable, a) && strings.EqualFold(rel.ToTable, b)) ||
			(strings.EqualFold(rel.FromTable, b) && strings.EqualFold(rel.ToTable, a))
		if !connects {
			continue
		}
		out = append(out, models.JoinSpec{
			Type:        "INNER",
			LeftTable:   canonicalName(rel.FromTable, a, b),
			RightTable:  canonicalName(rel.ToTable, a, b),
			LeftColumn:  rel.FromColumn,
			RightColumn: rel.ToColumn,
			Confidence:  DeclaredJoinConfidence,
		})
	}
	return out
}

// canonicalName returns whichever of a or b the relationship names, so join
// specs use the same spelling as the matches.
func canonicalName(name, a, b string) string {
	if strings.EqualFold(name, a) {
		return a
	}
	return b
}

func inferredJoins(a, b string, md *models.SemanticMetadata) []models.JoinSpec {
	var out []models.JoinSpec
	if j, ok := inferJoin(a, b, md); ok {
		out = append(out, j)
	}
	if j, ok := inferJoin(b, a, md); ok {
		out = append(out, j)
	}
	return out
}

// inferJoin finds a column on from named after to, like orders.customer_id -> customers.
func inferJoin(from, to string, md *models.SemanticMetadata) (models.JoinSpec, bool) {
	fromTable, ok := md.Table(from)
	if !ok {
		return models.JoinSpec{}, false
	}
	toTable, ok := md.Table(to)
	if !ok {
		return models.JoinSpec{}, false
	}

	for _, c := range fromTable.Columns {
		lower := strings.ToLower(c.Name)
		if !strings.HasSuffix(lower, "_id") {
			continue
		}
		prefix := strings.TrimSuffix(lower, "_id")
		if !heuristics.SameNoun(prefix, toTable.Name) {
			continue
		}
		target, ok := joinTargetColumn(toTable, c.Name)
		if !ok {
			continue
		}
		return models.JoinSpec{
			Type:        "INNER",
			LeftTable:   from,
			RightTable:  to,
			LeftColumn:  c.Name,
			RightColumn: target,
			Confidence:  InferredJoinConfidence,
		}, true
	}
	return models.JoinSpec{}, false
}

// joinTargetColumn prefers the primary key, then "id", then a same-named column.
func joinTargetColumn(t *models.TableMetadata, fkColumn string) (string, bool) {
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			return c.Name, true
		}
	}
	if c, ok := t.Column("id"); ok {
		return c.Name, true
	}
	if c, ok := t.Column(fkColumn); ok {
		return c.Name, true
	}
	return "", false
}

func dedupeJoins(joins []models.JoinSpec) []models.JoinSpec {
	out := make([]models.JoinSpec, 0, len(joins))
	seen := make(map[models.JoinSpec]struct{}, len(joins))
	for _, j := range joins {
		if _, ok := seen[j]; ok {
			continue
		}
		seen[j] = struct{}{}
		out = append(out, j)
	}
	return out
}
