// Package matcher binds the entities mentioned in a query to tables and
// columns of the semantic metadata snapshot.
package matcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/heuristics"
)

// Similarity bands per tier. Exact matches always outrank fuzzy ones.
const (
	ExactSimilarity       = 1.0
	InflectedSimilarity   = 0.9
	SynonymSimilarity     = 0.75
	ContainmentSimilarity = 0.6
	MinEditSimilarity     = 0.75
	editBandLow           = 0.5
	editBandHigh          = 0.7
)

// EmbeddingStorage is the best-effort semantic lookup backing the second tier.
type EmbeddingStorage interface {
	SearchSimilarEntities(ctx context.Context, text string) ([]models.SearchResult, error)
}

type Matcher struct {
	tables          *heuristics.Tables
	storage         EmbeddingStorage
	semanticTimeout time.Duration
	log             logger.Logger
}

// New returns a matcher. storage may be nil, which disables the semantic tier.
func New(tables *heuristics.Tables, storage EmbeddingStorage, semanticTimeout time.Duration, log logger.Logger) *Matcher {
	if tables == nil {
		tables = heuristics.MustLoad()
	}
	return &Matcher{
		tables:          tables,
		storage:         storage,
		semanticTimeout: semanticTimeout,
		log:             logger.ForComponent(log, "matcher"),
	}
}

// Match runs the exact, semantic and fuzzy tiers for every mentioned entity,
// merges the candidates and attaches discovered joins. The result is sorted
// by similarity, highest first.
func (m *Matcher) Match(ctx context.Context, qc models.QueryContext, md *models.SemanticMetadata) []models.MetadataMatch {
	var candidates []models.MetadataMatch
	for _, entity := range qc.EntitiesMentioned {
		candidates = append(candidates, m.ExactMatches(entity, md)...)
		candidates = append(candidates, m.SemanticMatches(ctx, entity, md)...)
		candidates = append(candidates, m.FuzzyMatches(entity, md)...)
	}

	merged := Merge(candidates)
	joins := DiscoverJoins(candidateTables(merged), md)
	for i := range merged {
		merged[i].SuggestedJoins = joinsFor(merged[i].Table(), joins)
	}

	m.log.Debug("Entities matched", map[string]interface{}{
		"entities":   len(qc.EntitiesMentioned),
		"candidates": len(candidates),
		"matches":    len(merged),
		"joins":      len(joins),
	})
	return merged
}

// ExactMatches compares the entity to table and column names, ignoring case
// and tolerating singular/plural differences.
func (m *Matcher) ExactMatches(entity string, md *models.SemanticMetadata) []models.MetadataMatch {
	if md == nil {
		return nil
	}
	var out []models.MetadataMatch
	for _, t := range md.Tables {
		if score, ok := nameSimilarity(entity, t.Name); ok {
			out = append(out, tableMatch(t, models.MatchTypeExact, score))
		}
	}
	for _, t := range md.Tables {
		for _, c := range t.Columns {
			if score, ok := nameSimilarity(entity, c.Name); ok {
				out = append(out, columnMatch(t, c, models.MatchTypeExact, score))
			}
		}
	}
	return out
}

func nameSimilarity(entity, name string) (float64, bool) {
	switch {
	case strings.EqualFold(entity, name):
		return ExactSimilarity, true
	case heuristics.SameNoun(entity, name):
		return InflectedSimilarity, true
	default:
		return 0, false
	}
}

// SemanticMatches asks the embedding store for similar schema objects. Any
// failure, including the timeout, yields no matches.
func (m *Matcher) SemanticMatches(ctx context.Context, entity string, md *models.SemanticMetadata) []models.MetadataMatch {
	if m.storage == nil || md == nil {
		return nil
	}

	searchCtx := ctx
	if m.semanticTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, m.semanticTimeout)
		defer cancel()
	}

	results, err := m.storage.SearchSimilarEntities(searchCtx, entity)
	if err != nil {
		m.log.Warn("Semantic search degraded to empty result", map[string]interface{}{
			"entity": entity,
			"error":  errors.NewSemanticSearchFailedError(err).Details,
		})
		return nil
	}

	var out []models.MetadataMatch
	for _, r := range results {
		score := clip(r.SimilarityScore)
		switch models.EntityType(strings.ToLower(r.EntityType)) {
		case models.EntityTypeTable:
			if t, ok := md.Table(r.EntityName); ok {
				match := tableMatch(*t, models.MatchTypeSemantic, score)
				match.Metadata["semanticTags"] = r.SemanticTags
				out = append(out, match)
			}
		case models.EntityTypeColumn:
			tableName, columnName := splitColumnRef(r)
			if t, ok := md.Table(tableName); ok {
				if c, ok := t.Column(columnName); ok {
					out = append(out, columnMatch(*t, *c, models.MatchTypeSemantic, score))
				}
			}
		}
	}
	return out
}

// splitColumnRef reads "table.column" names, falling back to metadata["table"].
func splitColumnRef(r models.SearchResult) (string, string) {
	if i := strings.Index(r.EntityName, "."); i > 0 {
		return r.EntityName[:i], r.EntityName[i+1:]
	}
	if t, ok := r.Metadata["table"].(string); ok {
		return t, r.EntityName
	}
	return "", r.EntityName
}

// FuzzyMatches covers synonyms, substring containment and near-miss spellings.
// Only tables are considered.
func (m *Matcher) FuzzyMatches(entity string, md *models.SemanticMetadata) []models.MetadataMatch {
	if md == nil {
		return nil
	}
	lower := strings.ToLower(entity)
	canonical, hasSynonym := m.tables.Synonym(lower)

	var out []models.MetadataMatch
	for _, t := range md.Tables {
		name := strings.ToLower(t.Name)
		if heuristics.SameNoun(lower, name) {
			continue
		}

		switch {
		case hasSynonym && heuristics.SameNoun(canonical, name):
			out = append(out, tableMatch(t, models.MatchTypeFuzzy, SynonymSimilarity))
		case len(lower) >= 3 && (strings.Contains(name, heuristics.Singularize(lower)) || strings.Contains(lower, heuristics.Singularize(name))):
			out = append(out, tableMatch(t, models.MatchTypeFuzzy, ContainmentSimilarity))
		default:
			sim := EditSimilarity(heuristics.Singularize(lower), heuristics.Singularize(name))
			if sim >= MinEditSimilarity {
				out = append(out, tableMatch(t, models.MatchTypeFuzzy, editBand(sim)))
			}
		}
	}
	return out
}

// editBand maps an edit similarity in [MinEditSimilarity,1] onto the fuzzy band.
func editBand(sim float64) float64 {
	ratio := (sim - MinEditSimilarity) / (1 - MinEditSimilarity)
	return editBandLow + ratio*(editBandHigh-editBandLow)
}

// Merge keeps one match per entity name, the one with the highest
// similarity. Ties keep the earlier candidate. Output is sorted by
// similarity descending, stable on first appearance.
func Merge(candidates []models.MetadataMatch) []models.MetadataMatch {
	index := make(map[string]int, len(candidates))
	merged := make([]models.MetadataMatch, 0, len(candidates))
	for _, c := range candidates {
		if i, ok := index[c.EntityName]; ok {
			if c.SimilarityScore > merged[i].SimilarityScore {
				merged[i] = c
			}
			continue
		}
		index[c.EntityName] = len(merged)
		merged = append(merged, c)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SimilarityScore > merged[j].SimilarityScore
	})
	return merged
}

func tableMatch(t models.TableMetadata, mt models.MatchType, score float64) models.MetadataMatch {
	return models.MetadataMatch{
		EntityName:         t.Name,
		EntityType:         models.EntityTypeTable,
		MatchType:          mt,
		SimilarityScore:    score,
		RelevantAttributes: t.ColumnNames(),
		SuggestedJoins:     []models.JoinSpec{},
		Metadata: map[string]interface{}{
			"businessTags": t.BusinessTags,
			"confidence":   t.Confidence,
		},
	}
}

func columnMatch(t models.TableMetadata, c models.ColumnMetadata, mt models.MatchType, score float64) models.MetadataMatch {
	return models.MetadataMatch{
		EntityName:         t.Name + "." + c.Name,
		EntityType:         models.EntityTypeColumn,
		MatchType:          mt,
		SimilarityScore:    score,
		RelevantAttributes: []string{c.Name},
		SuggestedJoins:     []models.JoinSpec{},
		Metadata: map[string]interface{}{
			"table":    t.Name,
			"column":   c.Name,
			"dataType": c.DataType,
		},
	}
}

func candidateTables(matches []models.MetadataMatch) []string {
	seen := make(map[string]struct{})
	var tables []string
	for _, m := range matches {
		t := m.Table()
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tables = append(tables, t)
	}
	return tables
}

func joinsFor(table string, joins []models.JoinSpec) []models.JoinSpec {
	out := []models.JoinSpec{}
	for _, j := range joins {
		if j.LeftTable == table || j.RightTable == table {
			out = append(out, j)
		}
	}
	return out
}

func clip(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
