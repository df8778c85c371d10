package metadata

import (
	"sort"
	"strings"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/matcher"
)

// MinRenameSimilarity is the edit similarity above which a missing table is
// treated as renamed rather than removed.
const MinRenameSimilarity = 0.75

type TableComparison struct {
	Table          string           `json:"table"`
	Counterpart    string           `json:"counterpart"`
	MatchType      models.MatchType `json:"matchType"`
	Similarity     float64          `json:"similarity"`
	AddedColumns   []string         `json:"addedColumns"`
	RemovedColumns []string         `json:"removedColumns"`
}

// Comparison describes how snapshot b differs from snapshot a.
type Comparison struct {
	Tables  []TableComparison `json:"tables"`
	Added   []string          `json:"added"`
	Removed []string          `json:"removed"`
}

// Unchanged reports whether every table matched exactly with the same columns.
func (c Comparison) Unchanged() bool {
	if len(c.Added) > 0 || len(c.Removed) > 0 {
		return false
	}
	for _, t := range c.Tables {
		if t.MatchType != models.MatchTypeExact || len(t.AddedColumns) > 0 || len(t.RemovedColumns) > 0 {
			return false
		}
	}
	return true
}

// Compare pairs every table of a with its counterpart in b. Equal names
// (ignoring case) match exactly with similarity 1.0; otherwise the closest
// unclaimed name by edit similarity is taken as a rename.
func Compare(a, b *models.SemanticMetadata) Comparison {
	out := Comparison{Tables: []TableComparison{}, Added: []string{}, Removed: []string{}}
	if a == nil || b == nil {
		return out
	}

	claimed := make(map[string]bool, len(b.Tables))
	var pending []models.TableMetadata
	for _, t := range a.Tables {
		other, ok := b.Table(t.Name)
		if !ok {
			pending = append(pending, t)
			continue
		}
		claimed[strings.ToLower(other.Name)] = true
		out.Tables = append(out.Tables, compareTable(t, *other, models.MatchTypeExact, 1.0))
	}

	for _, t := range pending {
		best, bestSim := -1, 0.0
		for i, candidate := range b.Tables {
			if claimed[strings.ToLower(candidate.Name)] {
				continue
			}
			if sim := matcher.EditSimilarity(strings.ToLower(t.Name), strings.ToLower(candidate.Name)); sim > bestSim {
				best, bestSim = i, sim
			}
		}
		if best < 0 || bestSim < MinRenameSimilarity {
			out.Removed = append(out.Removed, t.Name)
			continue
		}
		claimed[strings.ToLower(b.Tables[best].Name)] = true
		out.Tables = append(out.Tables, compareTable(t, b.Tables[best], models.MatchTypeFuzzy, bestSim))
	}

	for _, t := range b.Tables {
		if !claimed[strings.ToLower(t.Name)] {
			out.Added = append(out.Added, t.Name)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	return out
}

func compareTable(a, b models.TableMetadata, mt models.MatchType, sim float64) TableComparison {
	tc := TableComparison{
		Table:          a.Name,
		Counterpart:    b.Name,
		MatchType:      mt,
		Similarity:     sim,
		AddedColumns:   []string{},
		RemovedColumns: []string{},
	}
	for _, c := range b.Columns {
		if _, ok := a.Column(c.Name); !ok {
			tc.AddedColumns = append(tc.AddedColumns, c.Name)
		}
	}
	for _, c := range a.Columns {
		if _, ok := b.Column(c.Name); !ok {
			tc.RemovedColumns = append(tc.RemovedColumns, c.Name)
		}
	}
	return tc
}
