// Package planner turns a QueryContext and its metadata matches into a QueryPlan.
package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/heuristics"
	"nlq-resolver/internal/resolver/sqlgen"
)

const (
	// MaxPrimaryTables caps the tables a plan may touch.
	MaxPrimaryTables = 3
	// MinRelativeScore drops tables scoring far below the best match from
	// the primary set; they remain available to alternative plans.
	MinRelativeScore = 0.7
	// columnMatchDiscount ranks a table reached through one of its columns
	// below a direct table match of the same similarity.
	columnMatchDiscount = 0.9
	// DroppedConditionPenalty is charged per filter or aggregate the planner could not place.
	DroppedConditionPenalty = 0.1
)

type Planner struct {
	tables          *heuristics.Tables
	maxAlternatives int
	log             logger.Logger
}

func New(tables *heuristics.Tables, maxAlternatives int, log logger.Logger) *Planner {
	if tables == nil {
		tables = heuristics.MustLoad()
	}
	if maxAlternatives < 0 {
		maxAlternatives = 0
	}
	return &Planner{
		tables:          tables,
		maxAlternatives: maxAlternatives,
		log:             logger.ForComponent(log, "planner"),
	}
}

// RankedTable is a candidate table with the score it was ranked by.
type RankedTable struct {
	Name       string
	Score      float64
	Similarity float64
	Mentioned  bool
}

// Plan builds the best plan plus up to maxAlternatives single-table
// alternatives from the next ranked tables. No matches yields an empty plan.
func (p *Planner) Plan(qc models.QueryContext, matches []models.MetadataMatch, md *models.SemanticMetadata) models.QueryPlan {
	ranked := RankTables(qc, matches)
	primary := IdentifyPrimaryTables(ranked)
	if len(primary) == 0 {
		p.log.Debug("No tables to plan against", map[string]interface{}{"matches": len(matches)})
		return emptyPlan()
	}

	plan := p.buildPlan(qc, primary, ranked, matches, md)

	for _, alt := range ranked {
		if len(plan.AlternativePlans) >= p.maxAlternatives {
			break
		}
		if alt.Name == primary[0] {
			continue
		}
		plan.AlternativePlans = append(plan.AlternativePlans, p.buildPlan(qc, []string{alt.Name}, ranked, matches, md))
	}

	p.log.Debug("Plan built", map[string]interface{}{
		"primaryTables": plan.PrimaryTables,
		"joins":         len(plan.RequiredJoins),
		"conditions":    len(plan.WhereConditions),
		"alternatives":  len(plan.AlternativePlans),
		"confidence":    plan.ConfidenceScore,
	})
	return plan
}

func emptyPlan() models.QueryPlan {
	return models.QueryPlan{
		PrimaryTables:   []string{},
		RequiredJoins:   []models.JoinSpec{},
		SelectColumns:   []string{},
		WhereConditions: []string{},
		Aggregations:    []string{},
		OrderBy:         []string{},
	}
}

func (p *Planner) buildPlan(qc models.QueryContext, primary []string, ranked []RankedTable, matches []models.MetadataMatch, md *models.SemanticMetadata) models.QueryPlan {
	plan := emptyPlan()
	plan.PrimaryTables = primary

	// Only tables the joins connect to primary[0] reach FROM. Unjoined
	// primaries stay listed, and cost confidence, but contribute no columns.
	joins, _ := sqlgen.OrderJoins(primary[0], DetermineJoins(primary, matches))
	plan.RequiredJoins = joins
	scope, unjoined := splitScope(primary, joins)

	qc, droppedUnjoined := withoutUnjoinedFilters(qc, scope, unjoined, md)
	where, droppedFilters := p.GenerateWhereConditions(qc, scope, md)
	aggs, droppedAggs := p.HandleAggregations(qc, scope, md)
	plan.WhereConditions = where
	plan.Aggregations = aggs

	columns := MapSelectColumns(qc, scope, matches, md)
	if len(aggs) > 0 {
		if qc.HasOperation(models.OperationGroup) {
			plan.GroupBy = explicitColumns(columns)
		}
		plan.SelectColumns = explicitColumns(columns)
		if len(plan.GroupBy) == 0 {
			// without GROUP BY, only the aggregates are valid in the select list
			plan.SelectColumns = []string{}
		}
	} else {
		plan.SelectColumns = columns
	}
	plan.OrderBy = p.orderBy(qc, plan, md)

	plan.ConfidenceScore = CalculatePlanConfidence(PlanSignals{
		AverageSimilarity: averageSimilarity(primary, ranked),
		TableCount:        len(primary),
		ConnectedPairs:    connectedPairs(primary, plan.RequiredJoins),
		HasExplicitSelect: len(explicitColumns(plan.SelectColumns)) > 0 || len(aggs) > 0,
		HasSelect:         len(plan.SelectColumns) > 0 || len(aggs) > 0,
		Dropped:           droppedUnjoined + droppedFilters + droppedAggs,
	})
	return plan
}

// splitScope separates the primary tables the ordered joins reach from
// primary[0] from those they do not. Both keep primary order.
func splitScope(primary []string, joins []models.JoinSpec) (scope, unjoined []string) {
	reached := sqlgen.Scope(primary[0], joins)
	for _, t := range primary {
		if reached[t] {
			scope = append(scope, t)
		} else {
			unjoined = append(unjoined, t)
		}
	}
	return scope, unjoined
}

// withoutUnjoinedFilters drops filters whose field only an unjoined table
// has. Guessing an in-scope column for them would answer another question.
func withoutUnjoinedFilters(qc models.QueryContext, scope, unjoined []string, md *models.SemanticMetadata) (models.QueryContext, int) {
	if len(unjoined) == 0 || len(qc.Filters) == 0 {
		return qc, 0
	}
	kept := make([]models.Filter, 0, len(qc.Filters))
	dropped := 0
	for _, f := range qc.Filters {
		if _, ok := resolveField(f.Field, f.Type, scope, md); !ok {
			if _, elsewhere := resolveField(f.Field, f.Type, unjoined, md); elsewhere {
				dropped++
				continue
			}
		}
		kept = append(kept, f)
	}
	qc.Filters = kept
	return qc, dropped
}

// RankTables scores every table reachable from the matches. A table keeps its
// best score; ties go to tables the query names, then to first appearance.
func RankTables(qc models.QueryContext, matches []models.MetadataMatch) []RankedTable {
	index := map[string]int{}
	var ranked []RankedTable
	for _, m := range matches {
		table := m.Table()
		if table == "" {
			continue
		}
		score := m.SimilarityScore
		if m.EntityType == models.EntityTypeColumn {
			score *= columnMatchDiscount
		}
		if i, ok := index[table]; ok {
			if score > ranked[i].Score {
				ranked[i].Score = score
				ranked[i].Similarity = m.SimilarityScore
			}
			continue
		}
		index[table] = len(ranked)
		ranked = append(ranked, RankedTable{
			Name:       table,
			Score:      score,
			Similarity: m.SimilarityScore,
			Mentioned:  mentioned(qc, table),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Mentioned && !ranked[j].Mentioned
	})
	return ranked
}

func mentioned(qc models.QueryContext, table string) bool {
	for _, e := range qc.EntitiesMentioned {
		if heuristics.SameNoun(e, table) {
			return true
		}
	}
	return false
}

// IdentifyPrimaryTables takes at most MaxPrimaryTables of the ranked tables,
// skipping any that score below MinRelativeScore of the best.
func IdentifyPrimaryTables(ranked []RankedTable) []string {
	if len(ranked) == 0 {
		return nil
	}
	cutoff := ranked[0].Score * MinRelativeScore
	primary := make([]string, 0, MaxPrimaryTables)
	for _, r := range ranked {
		if len(primary) == MaxPrimaryTables {
			break
		}
		if r.Score < cutoff {
			continue
		}
		primary = append(primary, r.Name)
	}
	return primary
}

// DetermineJoins keeps the suggested joins whose two tables are both primary.
func DetermineJoins(primary []string, matches []models.MetadataMatch) []models.JoinSpec {
	in := make(map[string]struct{}, len(primary))
	for _, t := range primary {
		in[t] = struct{}{}
	}
	joins := []models.JoinSpec{}
	seen := map[models.JoinSpec]struct{}{}
	for _, m := range matches {
		for _, j := range m.SuggestedJoins {
			_, left := in[j.LeftTable]
			_, right := in[j.RightTable]
			if !left || !right {
				continue
			}
			if _, ok := seen[j]; ok {
				continue
			}
			seen[j] = struct{}{}
			joins = append(joins, j)
		}
	}
	return joins
}

// MapSelectColumns intersects the mentioned attributes with each primary
// table's relevant attributes. With no overlap every primary table is
// selected whole.
func MapSelectColumns(qc models.QueryContext, primary []string, matches []models.MetadataMatch, md *models.SemanticMetadata) []string {
	relevant := relevantAttributes(primary, matches, md)

	var columns []string
	seen := map[string]struct{}{}
	for _, attr := range qc.AttributesMentioned {
		for _, table := range primary {
			for _, col := range relevant[table] {
				if !fieldMatches(col, attr) {
					continue
				}
				q := table + "." + col
				if _, ok := seen[q]; ok {
					continue
				}
				seen[q] = struct{}{}
				columns = append(columns, q)
			}
		}
	}

	if len(columns) == 0 {
		columns = make([]string, 0, len(primary))
		for _, table := range primary {
			columns = append(columns, table+".*")
		}
	}
	return columns
}

func relevantAttributes(primary []string, matches []models.MetadataMatch, md *models.SemanticMetadata) map[string][]string {
	out := make(map[string][]string, len(primary))
	for _, m := range matches {
		if m.EntityType == models.EntityTypeTable {
			out[m.EntityName] = m.RelevantAttributes
		}
	}
	// tables reached only through a column match use the snapshot's columns
	for _, table := range primary {
		if _, ok := out[table]; ok {
			continue
		}
		if t, ok := md.Table(table); ok {
			out[table] = t.ColumnNames()
		}
	}
	return out
}

// GenerateWhereConditions renders each filter against a resolved or guessed
// column. It returns the number of filters it had to drop.
func (p *Planner) GenerateWhereConditions(qc models.QueryContext, primary []string, md *models.SemanticMetadata) ([]string, int) {
	conditions := []string{}
	dropped := 0
	for _, f := range qc.Filters {
		col, ok := resolveField(f.Field, f.Type, primary, md)
		if !ok {
			col, ok = p.guessColumn(f.Type, primary, md)
		}
		if !ok {
			dropped++
			continue
		}
		conditions = append(conditions, RenderCondition(col.qualified(), f))
	}
	return conditions, dropped
}

// RenderCondition renders `field op 'value'` for dates and text and
// `field op value` for numbers. Non-numeric numeric values are quoted.
func RenderCondition(column string, f models.Filter) string {
	op := f.Operator
	if op == "" {
		op = "="
	}
	if f.Type == models.FilterTypeNumeric {
		if _, err := strconv.ParseFloat(f.Value, 64); err == nil {
			return fmt.Sprintf("%s %s %s", column, op, f.Value)
		}
	}
	return fmt.Sprintf("%s %s '%s'", column, op, strings.ReplaceAll(f.Value, "'", "''"))
}

// HandleAggregations maps aggregate names to SQL. COUNT needs no column; the
// others use a mentioned numeric attribute or the best numeric guess.
func (p *Planner) HandleAggregations(qc models.QueryContext, primary []string, md *models.SemanticMetadata) ([]string, int) {
	exprs := []string{}
	dropped := 0
	for _, agg := range qc.Aggregations {
		if agg == models.AggregationCount {
			exprs = append(exprs, "COUNT(*)")
			continue
		}
		col, ok := p.numericTarget(qc, primary, md)
		if !ok {
			dropped++
			continue
		}
		exprs = append(exprs, fmt.Sprintf("%s(%s)", strings.ToUpper(string(agg)), col.qualified()))
	}
	return exprs, dropped
}

func (p *Planner) numericTarget(qc models.QueryContext, primary []string, md *models.SemanticMetadata) (columnRef, bool) {
	for _, attr := range qc.AttributesMentioned {
		if col, ok := resolveField(attr, models.FilterTypeNumeric, primary, md); ok && col.column.IsNumeric() && !isKeyColumn(col.column) {
			return col, true
		}
	}
	return p.guessColumn(models.FilterTypeNumeric, primary, md)
}

// orderBy sorts on the first explicit column, or the first aggregate when
// grouping. Descending keywords flip the direction.
func (p *Planner) orderBy(qc models.QueryContext, plan models.QueryPlan, md *models.SemanticMetadata) []string {
	if !qc.HasOperation(models.OperationSort) {
		return []string{}
	}
	direction := "ASC"
	lower := strings.ToLower(qc.OriginalQuery)
	for _, k := range p.tables.DescendingKeywords {
		if heuristics.ContainsKeyword(lower, k) {
			direction = "DESC"
			break
		}
	}

	var target string
	switch {
	case len(plan.Aggregations) > 0 && len(plan.GroupBy) > 0:
		target = plan.Aggregations[0]
	case len(plan.Aggregations) > 0:
		return []string{}
	default:
		if cols := explicitColumns(plan.SelectColumns); len(cols) > 0 {
			target = cols[0]
		} else if col, ok := p.guessColumn(models.FilterTypeDate, plan.PrimaryTables[:1], md); ok {
			target = col.qualified()
		} else if col, ok := p.guessColumn(models.FilterTypeNumeric, plan.PrimaryTables[:1], md); ok {
			target = col.qualified()
		}
	}
	if target == "" {
		return []string{}
	}
	return []string{target + " " + direction}
}

func explicitColumns(columns []string) []string {
	out := []string{}
	for _, c := range columns {
		if !strings.HasSuffix(c, "*") {
			out = append(out, c)
		}
	}
	return out
}

func averageSimilarity(primary []string, ranked []RankedTable) float64 {
	if len(primary) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range primary {
		for _, r := range ranked {
			if r.Name == t {
				sum += r.Similarity
				break
			}
		}
	}
	return sum / float64(len(primary))
}

// connectedPairs counts how many of the len(primary)-1 links needed to
// connect every primary table the joins provide.
func connectedPairs(primary []string, joins []models.JoinSpec) int {
	parent := make(map[string]string, len(primary))
	for _, t := range primary {
		parent[t] = t
	}
	var find func(string) string
	find = func(t string) string {
		if parent[t] != t {
			parent[t] = find(parent[t])
		}
		return parent[t]
	}
	linked := 0
	for _, j := range joins {
		if _, ok := parent[j.LeftTable]; !ok {
			continue
		}
		if _, ok := parent[j.RightTable]; !ok {
			continue
		}
		a, b := find(j.LeftTable), find(j.RightTable)
		if a != b {
			parent[a] = b
			linked++
		}
	}
	return linked
}
