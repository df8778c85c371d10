package executor

import "strings"

// Strategy is one step of the fallback chain.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	StrategySimplifyQuery
	StrategyRemoveComplexJoins
	StrategyAddLimit
	StrategyTryAlternativeTables
	StrategyTryAlternativeColumns
	StrategyBasicSelect
)

// PrimaryAttempt names the first, unmodified statement in the attempt history.
const PrimaryAttempt = "primary"

var strategyNames = map[Strategy]string{
	StrategySimplifyQuery:         "simplify_query",
	StrategyRemoveComplexJoins:    "remove_complex_joins",
	StrategyAddLimit:              "add_limit",
	StrategyTryAlternativeTables:  "try_alternative_tables",
	StrategyTryAlternativeColumns: "try_alternative_columns",
	StrategyBasicSelect:           "basic_select",
}

// DefaultStrategies is the fixed fallback order.
var DefaultStrategies = []Strategy{
	StrategySimplifyQuery,
	StrategyRemoveComplexJoins,
	StrategyAddLimit,
	StrategyTryAlternativeTables,
	StrategyTryAlternativeColumns,
	StrategyBasicSelect,
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy maps a configured name to its Strategy. Unrecognised names
// map to StrategyUnknown, which the engine skips.
func ParseStrategy(name string) Strategy {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s
		}
	}
	return StrategyUnknown
}

// ParseStrategies keeps the configured order. Unknown names are kept as
// StrategyUnknown so the engine can log them where they sit in the chain.
func ParseStrategies(names []string) []Strategy {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		out = append(out, ParseStrategy(n))
	}
	return out
}
