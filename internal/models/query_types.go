// internal/models/query_types.go
package models

type OperationType string

const (
	OperationSelect OperationType = "select"
	OperationSort   OperationType = "sort"
	OperationGroup  OperationType = "group"
	OperationFilter OperationType = "filter"
)

type AggregationType string

const (
	AggregationCount AggregationType = "count"
	AggregationSum   AggregationType = "sum"
	AggregationAvg   AggregationType = "avg"
	AggregationMin   AggregationType = "min"
	AggregationMax   AggregationType = "max"
)

type FilterType string

const (
	FilterTypeDate    FilterType = "date"
	FilterTypeNumeric FilterType = "numeric"
	FilterTypeText    FilterType = "text"
)

type BusinessIntent string

const (
	IntentReporting BusinessIntent = "reporting"
	IntentAnalytics BusinessIntent = "analytics"
	IntentLookup    BusinessIntent = "lookup"
	IntentGeneral   BusinessIntent = "general"
)

type EntityType string

const (
	EntityTypeTable  EntityType = "table"
	EntityTypeColumn EntityType = "column"
)

type MatchType string

const (
	MatchTypeExact    MatchType = "exact"
	MatchTypeFuzzy    MatchType = "fuzzy"
	MatchTypeSemantic MatchType = "semantic"
)
