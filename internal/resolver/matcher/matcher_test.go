package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/fixtures"
	"nlq-resolver/internal/resolver/heuristics"
)

type fakeStorage struct {
	results []models.SearchResult
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeStorage) SearchSimilarEntities(ctx context.Context, text string) ([]models.SearchResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

func newTestMatcher(t *testing.T, storage EmbeddingStorage, timeout time.Duration) *Matcher {
	t.Helper()
	return New(heuristics.MustLoad(), storage, timeout, logger.NewTestLogger(t))
}

func findMatch(matches []models.MetadataMatch, name string) (models.MetadataMatch, bool) {
	for _, m := range matches {
		if m.EntityName == name {
			return m, true
		}
	}
	return models.MetadataMatch{}, false
}

// ==========================
// Tiers
// ==========================

func TestExactMatches_SelfMatchIsOne(t *testing.T) {
	m := newTestMatcher(t, nil, 0)
	md := fixtures.CommerceMetadata()

	for _, table := range md.Tables {
		matches := m.ExactMatches(table.Name, md)
		got, ok := findMatch(matches, table.Name)
		require.True(t, ok, table.Name)
		assert.Equal(t, 1.0, got.SimilarityScore)
		assert.Equal(t, models.MatchTypeExact, got.MatchType)
	}
}

func TestExactMatches_SingularAndColumns(t *testing.T) {
	m := newTestMatcher(t, nil, 0)
	md := fixtures.CommerceMetadata()

	matches := m.ExactMatches("Customer", md)
	got, ok := findMatch(matches, "customers")
	require.True(t, ok)
	assert.Equal(t, InflectedSimilarity, got.SimilarityScore)
	assert.Contains(t, got.RelevantAttributes, "email")

	cols := m.ExactMatches("email", md)
	col, ok := findMatch(cols, "customers.email")
	require.True(t, ok)
	assert.Equal(t, models.EntityTypeColumn, col.EntityType)
	assert.Equal(t, "customers", col.Table())
}

func TestFuzzyMatches(t *testing.T) {
	m := newTestMatcher(t, nil, 0)
	md := fixtures.CommerceMetadata()

	synonym, ok := findMatch(m.FuzzyMatches("clients", md), "customers")
	require.True(t, ok)
	assert.Equal(t, SynonymSimilarity, synonym.SimilarityScore)
	assert.Equal(t, models.MatchTypeFuzzy, synonym.MatchType)

	contained, ok := findMatch(m.FuzzyMatches("items", md), "order_items")
	require.True(t, ok)
	assert.Equal(t, ContainmentSimilarity, contained.SimilarityScore)

	typo, ok := findMatch(m.FuzzyMatches("custmers", md), "customers")
	require.True(t, ok)
	assert.GreaterOrEqual(t, typo.SimilarityScore, 0.5)
	assert.LessOrEqual(t, typo.SimilarityScore, 0.7)

	assert.Empty(t, m.FuzzyMatches("warehouses", md))
}

func TestSemanticMatches_FiltersUnknownAndClips(t *testing.T) {
	storage := &fakeStorage{results: []models.SearchResult{
		{EntityName: "orders", EntityType: "table", SimilarityScore: 1.3},
		{EntityName: "orders.total_amount", EntityType: "column", SimilarityScore: 0.82},
		{EntityName: "ghost_table", EntityType: "table", SimilarityScore: 0.99},
		{EntityName: "some document", EntityType: "document", SimilarityScore: 0.99},
	}}
	m := newTestMatcher(t, storage, time.Second)

	matches := m.SemanticMatches(context.Background(), "purchases", fixtures.CommerceMetadata())

	require.Len(t, matches, 2)
	assert.Equal(t, "orders", matches[0].EntityName)
	assert.Equal(t, 1.0, matches[0].SimilarityScore)
	assert.Equal(t, models.MatchTypeSemantic, matches[0].MatchType)
	assert.Equal(t, "orders.total_amount", matches[1].EntityName)
	assert.Equal(t, 0.82, matches[1].SimilarityScore)
}

func TestSemanticMatches_ErrorDegradesToEmpty(t *testing.T) {
	storage := &fakeStorage{err: errors.New("connection refused")}
	m := newTestMatcher(t, storage, time.Second)

	assert.Empty(t, m.SemanticMatches(context.Background(), "customers", fixtures.CommerceMetadata()))
	assert.Equal(t, 1, storage.calls)
}

func TestSemanticMatches_TimeoutDegradesToEmpty(t *testing.T) {
	storage := &fakeStorage{
		results: []models.SearchResult{{EntityName: "orders", EntityType: "table", SimilarityScore: 0.9}},
		delay:   time.Second,
	}
	m := newTestMatcher(t, storage, 20*time.Millisecond)

	start := time.Now()
	matches := m.SemanticMatches(context.Background(), "orders", fixtures.CommerceMetadata())

	assert.Empty(t, matches)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

// ==========================
// Merge & joins
// ==========================

func TestMerge_KeepsHighestPerEntity(t *testing.T) {
	merged := Merge([]models.MetadataMatch{
		{EntityName: "customers", MatchType: models.MatchTypeFuzzy, SimilarityScore: 0.75},
		{EntityName: "orders", MatchType: models.MatchTypeSemantic, SimilarityScore: 0.8},
		{EntityName: "customers", MatchType: models.MatchTypeExact, SimilarityScore: 1.0},
		{EntityName: "orders", MatchType: models.MatchTypeFuzzy, SimilarityScore: 0.6},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, "customers", merged[0].EntityName)
	assert.Equal(t, models.MatchTypeExact, merged[0].MatchType)
	assert.Equal(t, "orders", merged[1].EntityName)
	assert.Equal(t, models.MatchTypeSemantic, merged[1].MatchType)
}

func TestDiscoverJoins_DeclaredAndInferred(t *testing.T) {
	md := fixtures.CommerceMetadata()

	declared := DiscoverJoins([]string{"customers", "orders"}, md)
	require.Len(t, declared, 1)
	assert.Equal(t, models.JoinSpec{
		Type: "INNER", LeftTable: "orders", RightTable: "customers",
		LeftColumn: "customer_id", RightColumn: "customer_id", Confidence: 1.0,
	}, declared[0])

	inferred := DiscoverJoins([]string{"orders", "order_items"}, md)
	require.Len(t, inferred, 1)
	assert.Equal(t, "order_items", inferred[0].LeftTable)
	assert.Equal(t, "order_id", inferred[0].LeftColumn)
	assert.Equal(t, "orders", inferred[0].RightTable)
	assert.Equal(t, "order_id", inferred[0].RightColumn)
	assert.Equal(t, InferredJoinConfidence, inferred[0].Confidence)

	assert.Empty(t, DiscoverJoins([]string{"customers", "products"}, md))
}

func TestMatch_AttachesJoinsAndSorts(t *testing.T) {
	m := newTestMatcher(t, nil, 0)
	qc := models.QueryContext{EntitiesMentioned: []string{"clients", "orders"}}

	matches := m.Match(context.Background(), qc, fixtures.CommerceMetadata())

	require.NotEmpty(t, matches)
	assert.Equal(t, "orders", matches[0].EntityName)
	assert.Equal(t, 1.0, matches[0].SimilarityScore)

	customers, ok := findMatch(matches, "customers")
	require.True(t, ok)
	assert.Equal(t, SynonymSimilarity, customers.SimilarityScore)
	require.Len(t, customers.SuggestedJoins, 1)
	assert.True(t, customers.SuggestedJoins[0].Connects("orders", "customers"))

	names := map[string]int{}
	for _, mm := range matches {
		names[mm.EntityName]++
	}
	for name, n := range names {
		assert.Equal(t, 1, n, name)
	}
}

func TestEditSimilarity(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("orders", "orders"))
	assert.Equal(t, 1, LevenshteinDistance("order", "orders"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 1.0, EditSimilarity("", ""))
	assert.InDelta(t, 0.888, EditSimilarity("custmers", "customers"), 0.001)
}
