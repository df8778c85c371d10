package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/extractor"
	"nlq-resolver/internal/resolver/fixtures"
	"nlq-resolver/internal/resolver/heuristics"
	"nlq-resolver/internal/resolver/matcher"
	"nlq-resolver/internal/resolver/optimizer"
	"nlq-resolver/internal/resolver/sqlgen"
)

func newTestPlanner(t *testing.T, alternatives int) *Planner {
	t.Helper()
	return New(heuristics.MustLoad(), alternatives, logger.NewTestLogger(t))
}

func tableMatch(name string, score float64, attrs ...string) models.MetadataMatch {
	return models.MetadataMatch{
		EntityName:         name,
		EntityType:         models.EntityTypeTable,
		MatchType:          models.MatchTypeExact,
		SimilarityScore:    score,
		RelevantAttributes: attrs,
	}
}

// ==========================
// Full pipeline up to the plan
// ==========================

func TestPlan_CustomersOrdersScenario(t *testing.T) {
	md := fixtures.CommerceMetadata()
	tables := heuristics.MustLoad()
	log := logger.NewTestLogger(t)

	qc := extractor.New(tables, md, log).Extract("show me customers from orders placed after 2023-01-01 with total amount greater than 100")
	matches := matcher.New(tables, nil, 0, log).Match(context.Background(), qc, md)

	plan := newTestPlanner(t, 2).Plan(qc, matches, md)

	assert.ElementsMatch(t, []string{"customers", "orders"}, plan.PrimaryTables)
	require.NotEmpty(t, plan.RequiredJoins)
	assert.True(t, plan.RequiredJoins[0].Connects("orders", "customers"))
	assert.Equal(t, []string{
		"orders.order_date > '2023-01-01'",
		"orders.total_amount > 100",
	}, plan.WhereConditions)
	assert.Contains(t, plan.SelectColumns, "orders.total_amount")
	assert.Greater(t, plan.ConfidenceScore, 0.5)
	assert.LessOrEqual(t, plan.ConfidenceScore, 1.0)
}

func TestPlan_NoMatchesYieldsEmptyPlan(t *testing.T) {
	plan := newTestPlanner(t, 2).Plan(models.QueryContext{OriginalQuery: "weather tomorrow"}, nil, fixtures.CommerceMetadata())

	assert.True(t, plan.IsEmpty())
	assert.Empty(t, plan.PrimaryTables)
	assert.Empty(t, plan.AlternativePlans)
	assert.Equal(t, 0.0, plan.ConfidenceScore)
}

func TestPlan_CapsPrimaryTables(t *testing.T) {
	md := fixtures.CommerceMetadata()
	matches := []models.MetadataMatch{
		tableMatch("customers", 1.0),
		tableMatch("orders", 1.0),
		tableMatch("products", 0.95),
		tableMatch("order_items", 0.9),
	}

	plan := newTestPlanner(t, 2).Plan(models.QueryContext{}, matches, md)

	assert.Len(t, plan.PrimaryTables, MaxPrimaryTables)
	assert.Equal(t, []string{"customers", "orders", "products"}, plan.PrimaryTables)

	// no suggested joins, so only customers reaches FROM
	assert.Equal(t, []string{"customers.*"}, plan.SelectColumns)
	sql := sqlgen.Generate(plan, 10)
	assert.Equal(t, "SELECT customers.* FROM customers LIMIT 10", sql)
	assert.True(t, optimizer.ValidateSQL(sql, md).Valid)
}

// ==========================
// Primary tables without a connecting join
// ==========================

func TestPlan_UnjoinedPrimaryContributesNothing(t *testing.T) {
	md := fixtures.CommerceMetadata()
	matches := []models.MetadataMatch{
		tableMatch("customers", 1.0, "customer_id", "name", "email"),
		tableMatch("products", 0.95, "product_id", "name", "price"),
	}
	qc := models.QueryContext{
		AttributesMentioned: []string{"name", "price"},
		Filters:             []models.Filter{{Type: models.FilterTypeNumeric, Operator: ">", Value: "10", Field: "price"}},
	}

	plan := newTestPlanner(t, 0).Plan(qc, matches, md)

	assert.Equal(t, []string{"customers", "products"}, plan.PrimaryTables)
	assert.Empty(t, plan.RequiredJoins)
	assert.Equal(t, []string{"customers.name"}, plan.SelectColumns)
	assert.Empty(t, plan.WhereConditions, "price only exists on the unjoined table")

	sql := sqlgen.Generate(plan, 100)
	assert.Equal(t, "SELECT customers.name FROM customers LIMIT 100", sql)
	assert.NoError(t, sqlgen.CheckPlan(plan))
	assert.True(t, optimizer.ValidateSQL(sql, md).Valid)

	joined := newTestPlanner(t, 0).Plan(qc, matches[:1], md)
	assert.Less(t, plan.ConfidenceScore, joined.ConfidenceScore, "missing join and dropped filter are penalised")
}

func TestPlan_UnjoinedPrimaryFromFullPipeline(t *testing.T) {
	md := fixtures.CommerceMetadata()
	tables := heuristics.MustLoad()
	log := logger.NewTestLogger(t)

	qc := extractor.New(tables, md, log).Extract("show the name of customers and products with price greater than 10")
	matches := matcher.New(tables, nil, 0, log).Match(context.Background(), qc, md)
	plan := newTestPlanner(t, 2).Plan(qc, matches, md)
	require.NotEmpty(t, plan.PrimaryTables)

	sql := sqlgen.Generate(plan, 100)
	report := optimizer.ValidateSQL(sql, md)
	assert.True(t, report.Valid, "%s: %v", sql, report.Errors)
	assert.NoError(t, sqlgen.CheckPlan(plan))
	assert.Contains(t, sql, "FROM "+plan.PrimaryTables[0])
}

func TestPlan_AlternativesAreSingleTableAndNotNested(t *testing.T) {
	md := fixtures.CommerceMetadata()
	matches := []models.MetadataMatch{
		tableMatch("customers", 1.0),
		tableMatch("orders", 0.5),
		tableMatch("products", 0.4),
		tableMatch("order_items", 0.3),
	}

	plan := newTestPlanner(t, 2).Plan(models.QueryContext{}, matches, md)

	assert.Equal(t, []string{"customers"}, plan.PrimaryTables)
	require.Len(t, plan.AlternativePlans, 2)
	assert.Equal(t, []string{"orders"}, plan.AlternativePlans[0].PrimaryTables)
	assert.Equal(t, []string{"products"}, plan.AlternativePlans[1].PrimaryTables)
	for _, alt := range plan.AlternativePlans {
		assert.Empty(t, alt.AlternativePlans)
	}
}

func TestPlan_ZeroAlternatives(t *testing.T) {
	matches := []models.MetadataMatch{tableMatch("customers", 1.0), tableMatch("orders", 0.5)}

	plan := newTestPlanner(t, 0).Plan(models.QueryContext{}, matches, fixtures.CommerceMetadata())

	assert.Empty(t, plan.AlternativePlans)
}

// ==========================
// Ranking & joins
// ==========================

func TestRankTables_ColumnMatchesRankBelowTables(t *testing.T) {
	matches := []models.MetadataMatch{
		{EntityName: "customers.email", EntityType: models.EntityTypeColumn, SimilarityScore: 1.0, Metadata: map[string]interface{}{"table": "customers"}},
		tableMatch("orders", 1.0),
	}

	ranked := RankTables(models.QueryContext{}, matches)

	require.Len(t, ranked, 2)
	assert.Equal(t, "orders", ranked[0].Name)
	assert.InDelta(t, 0.9, ranked[1].Score, 1e-9)
}

func TestRankTables_TiePrefersMentioned(t *testing.T) {
	qc := models.QueryContext{EntitiesMentioned: []string{"order"}}
	matches := []models.MetadataMatch{tableMatch("customers", 0.8), tableMatch("orders", 0.8)}

	ranked := RankTables(qc, matches)

	assert.Equal(t, "orders", ranked[0].Name)
}

func TestIdentifyPrimaryTables_RelativeCutoff(t *testing.T) {
	ranked := []RankedTable{{Name: "a", Score: 1.0}, {Name: "b", Score: 0.75}, {Name: "c", Score: 0.6}}

	assert.Equal(t, []string{"a", "b"}, IdentifyPrimaryTables(ranked))
	assert.Nil(t, IdentifyPrimaryTables(nil))
}

func TestDetermineJoins_OnlyBetweenPrimaryTables(t *testing.T) {
	inside := models.JoinSpec{Type: "INNER", LeftTable: "orders", RightTable: "customers", LeftColumn: "customer_id", RightColumn: "customer_id", Confidence: 1}
	outside := models.JoinSpec{Type: "INNER", LeftTable: "order_items", RightTable: "products", LeftColumn: "product_id", RightColumn: "product_id", Confidence: 1}
	matches := []models.MetadataMatch{
		{EntityName: "orders", EntityType: models.EntityTypeTable, SuggestedJoins: []models.JoinSpec{inside, outside}},
		{EntityName: "customers", EntityType: models.EntityTypeTable, SuggestedJoins: []models.JoinSpec{inside}},
	}

	joins := DetermineJoins([]string{"orders", "customers"}, matches)

	assert.Equal(t, []models.JoinSpec{inside}, joins)
}

// ==========================
// Columns, conditions, aggregates
// ==========================

func TestMapSelectColumns(t *testing.T) {
	md := fixtures.CommerceMetadata()
	matches := []models.MetadataMatch{tableMatch("customers", 1.0, "customer_id", "name", "email")}

	cols := MapSelectColumns(models.QueryContext{AttributesMentioned: []string{"email", "name"}}, []string{"customers"}, matches, md)
	assert.Equal(t, []string{"customers.email", "customers.name"}, cols)

	cols = MapSelectColumns(models.QueryContext{AttributesMentioned: []string{"colour"}}, []string{"customers"}, matches, md)
	assert.Equal(t, []string{"customers.*"}, cols)
}

func TestGenerateWhereConditions_DropsUnplaceableFilter(t *testing.T) {
	p := newTestPlanner(t, 0)
	md := fixtures.CommerceMetadata()
	qc := models.QueryContext{Filters: []models.Filter{
		{Type: models.FilterTypeNumeric, Operator: ">", Value: "10", Field: "quantity"},
		{Type: models.FilterTypeDate, Operator: ">=", Value: "2024-01-01"},
	}}

	conds, dropped := p.GenerateWhereConditions(qc, []string{"order_items"}, md)

	assert.Equal(t, []string{"order_items.quantity > 10"}, conds)
	assert.Equal(t, 1, dropped)
}

func TestRenderCondition_EscapesQuotes(t *testing.T) {
	got := RenderCondition("customers.name", models.Filter{Type: models.FilterTypeText, Operator: "=", Value: "O'Brien"})
	assert.Equal(t, "customers.name = 'O''Brien'", got)

	got = RenderCondition("orders.total_amount", models.Filter{Type: models.FilterTypeNumeric, Value: "ten"})
	assert.Equal(t, "orders.total_amount = 'ten'", got)
}

func TestHandleAggregations(t *testing.T) {
	p := newTestPlanner(t, 0)
	md := fixtures.CommerceMetadata()
	qc := models.QueryContext{Aggregations: []models.AggregationType{models.AggregationCount, models.AggregationSum}}

	aggs, dropped := p.HandleAggregations(qc, []string{"orders"}, md)
	assert.Equal(t, []string{"COUNT(*)", "SUM(orders.total_amount)"}, aggs)
	assert.Zero(t, dropped)

	aggs, dropped = p.HandleAggregations(qc, []string{"customers"}, md)
	assert.Equal(t, []string{"COUNT(*)"}, aggs)
	assert.Equal(t, 1, dropped)
}

func TestPlan_GroupAndSort(t *testing.T) {
	md := fixtures.CommerceMetadata()
	qc := models.QueryContext{
		OriginalQuery:       "count orders grouped by status sorted by highest count",
		AttributesMentioned: []string{"status"},
		Operations:          []models.OperationType{models.OperationGroup, models.OperationSort},
		Aggregations:        []models.AggregationType{models.AggregationCount},
	}
	matches := []models.MetadataMatch{tableMatch("orders", 1.0, "order_id", "status", "total_amount")}

	plan := newTestPlanner(t, 0).Plan(qc, matches, md)

	assert.Equal(t, []string{"orders.status"}, plan.GroupBy)
	assert.Equal(t, []string{"orders.status"}, plan.SelectColumns)
	assert.Equal(t, []string{"COUNT(*)"}, plan.Aggregations)
	assert.Equal(t, []string{"COUNT(*) DESC"}, plan.OrderBy)
}

func TestPlan_SortWithoutColumnsGuessesDate(t *testing.T) {
	qc := models.QueryContext{
		OriginalQuery: "orders sorted by date",
		Operations:    []models.OperationType{models.OperationSort},
	}

	plan := newTestPlanner(t, 0).Plan(qc, []models.MetadataMatch{tableMatch("orders", 1.0)}, fixtures.CommerceMetadata())

	assert.Equal(t, []string{"orders.*"}, plan.SelectColumns)
	assert.Equal(t, []string{"orders.order_date ASC"}, plan.OrderBy)
}

// ==========================
// Confidence
// ==========================

func TestCalculatePlanConfidence(t *testing.T) {
	full := CalculatePlanConfidence(PlanSignals{AverageSimilarity: 1, TableCount: 2, ConnectedPairs: 1, HasSelect: true, HasExplicitSelect: true})
	assert.InDelta(t, 1.0, full, 1e-9)

	unjoined := CalculatePlanConfidence(PlanSignals{AverageSimilarity: 1, TableCount: 2, HasSelect: true, HasExplicitSelect: true})
	assert.InDelta(t, 0.8, unjoined, 1e-9)

	wildcard := CalculatePlanConfidence(PlanSignals{AverageSimilarity: 1, TableCount: 1, HasSelect: true})
	assert.InDelta(t, 0.9, wildcard, 1e-9)

	assert.Equal(t, 0.0, CalculatePlanConfidence(PlanSignals{}))
	assert.Equal(t, 0.0, CalculatePlanConfidence(PlanSignals{TableCount: 1, Dropped: 20}))
}

func TestCalculatePlanConfidence_AlwaysInRange(t *testing.T) {
	for _, sim := range []float64{0, 0.3, 0.75, 1} {
		for tables := 1; tables <= MaxPrimaryTables; tables++ {
			for dropped := 0; dropped < 4; dropped++ {
				got := CalculatePlanConfidence(PlanSignals{AverageSimilarity: sim, TableCount: tables, ConnectedPairs: tables - 1, HasSelect: true, Dropped: dropped})
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 1.0)
			}
		}
	}
}
