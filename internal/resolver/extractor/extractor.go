// Package extractor turns a raw natural-language request into a QueryContext.
//
// Extraction is keyword and pattern driven. It never fails: a query with no
// recognisable signal yields empty lists and a confidence of zero.
package extractor

import (
	"regexp"
	"sort"
	"strings"

	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/heuristics"
)

var (
	doubleQuoted = regexp.MustCompile(`"([^"]+)"`)
	singleQuoted = regexp.MustCompile(`(?:^|\s)'([^']+)'`)
	wordPattern  = regexp.MustCompile(`[a-z][a-z0-9_]*`)
)

// Extractor is safe for concurrent use; it holds only read-only tables.
type Extractor struct {
	tables        *heuristics.Tables
	knownEntities []string
	attributes    map[string]struct{}
	log           logger.Logger
}

// New builds an extractor. Table names from md are added to the known nouns
// so schema-specific entities are recognised; md may be nil.
func New(tables *heuristics.Tables, md *models.SemanticMetadata, log logger.Logger) *Extractor {
	if tables == nil {
		tables = heuristics.MustLoad()
	}

	known := make([]string, 0, len(tables.EntityNouns)+len(md.TableNames()))
	seen := make(map[string]struct{})
	for _, n := range append(append([]string(nil), tables.EntityNouns...), md.TableNames()...) {
		n = strings.ToLower(n)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		known = append(known, n)
	}

	attrs := make(map[string]struct{}, len(tables.AttributeKeywords))
	for _, a := range tables.AttributeKeywords {
		attrs[strings.ToLower(a)] = struct{}{}
	}

	return &Extractor{
		tables:        tables,
		knownEntities: known,
		attributes:    attrs,
		log:           logger.ForComponent(log, "extractor"),
	}
}

// Extract runs every extraction step and scores the result.
func (e *Extractor) Extract(query string) models.QueryContext {
	qc := models.QueryContext{
		OriginalQuery:       query,
		EntitiesMentioned:   e.ExtractEntities(query),
		AttributesMentioned: e.ExtractAttributes(query),
		Operations:          e.ExtractOperations(query),
		Filters:             e.ExtractFilters(query),
		Aggregations:        e.ExtractAggregations(query),
		TemporalReferences:  e.ExtractTemporalReferences(query),
		BusinessIntent:      e.DetermineBusinessIntent(query),
	}
	qc.ConfidenceScore = CalculateConfidence(qc)

	e.log.Debug("Query context extracted", map[string]interface{}{
		"entities":   qc.EntitiesMentioned,
		"attributes": qc.AttributesMentioned,
		"filters":    len(qc.Filters),
		"intent":     string(qc.BusinessIntent),
		"confidence": qc.ConfidenceScore,
	})
	return qc
}

type positioned struct {
	pos   int
	value string
}

// ExtractEntities returns known nouns, synonym words and quoted substrings in
// first-occurrence order.
func (e *Extractor) ExtractEntities(query string) []string {
	lower := strings.ToLower(query)
	var found []positioned

	for _, loc := range doubleQuoted.FindAllStringSubmatchIndex(lower, -1) {
		if v := strings.TrimSpace(lower[loc[2]:loc[3]]); v != "" {
			found = append(found, positioned{loc[2], v})
		}
	}
	for _, loc := range singleQuoted.FindAllStringSubmatchIndex(lower, -1) {
		if v := strings.TrimSpace(lower[loc[2]:loc[3]]); v != "" {
			found = append(found, positioned{loc[2], v})
		}
	}

	unquoted := blankQuotes(lower)
	for _, loc := range wordPattern.FindAllStringIndex(unquoted, -1) {
		word := unquoted[loc[0]:loc[1]]
		if e.isEntityWord(word) {
			found = append(found, positioned{loc[0], word})
		}
	}

	return orderedUnique(found)
}

func (e *Extractor) isEntityWord(word string) bool {
	if _, ok := e.tables.Synonym(word); ok {
		return true
	}
	for _, k := range e.knownEntities {
		if heuristics.SameNoun(word, k) {
			return true
		}
	}
	return false
}

// ExtractAttributes scans for domain attribute keywords, then for noun lists
// introduced by verbs like "show" or "get".
func (e *Extractor) ExtractAttributes(query string) []string {
	lower := blankQuotes(strings.ToLower(query))
	var found []positioned

	for _, loc := range wordPattern.FindAllStringIndex(lower, -1) {
		word := lower[loc[0]:loc[1]]
		if _, ok := e.attributes[word]; ok {
			found = append(found, positioned{loc[0], word})
		}
	}

	found = append(found, e.listedNouns(lower)...)

	return orderedUnique(found)
}

// listedNouns reads comma or "and" separated items after a list verb.
func (e *Extractor) listedNouns(lower string) []positioned {
	var out []positioned
	words := wordPattern.FindAllStringIndex(lower, -1)

	for i := 0; i < len(words); i++ {
		if !containsString(e.tables.ListVerbs, lower[words[i][0]:words[i][1]]) {
			continue
		}

		var current []string
		start := -1
		flush := func() {
			if len(current) > 0 {
				out = append(out, positioned{start, strings.Join(current, "_")})
			}
			current, start = nil, -1
		}

		for j := i + 1; j < len(words); j++ {
			w := lower[words[j][0]:words[j][1]]
			if e.tables.IsListBoundary(w) || containsString(e.tables.ListVerbs, w) {
				break
			}
			// a comma between the previous word and this one closes an item
			if j > i+1 && strings.Contains(lower[words[j-1][1]:words[j][0]], ",") {
				flush()
			}
			if w == "and" {
				flush()
				continue
			}
			if e.tables.IsStopWord(w) || e.isEntityWord(w) {
				continue
			}
			if start < 0 {
				start = words[j][0]
			}
			current = append(current, w)
		}
		flush()
	}
	return out
}

// ExtractOperations maps keywords to canonical operation tags. The result
// follows the order of the operations table.
func (e *Extractor) ExtractOperations(query string) []models.OperationType {
	lower := strings.ToLower(query)
	ops := []models.OperationType{}
	for _, group := range e.tables.Operations {
		if containsAnyKeyword(lower, group.Keywords) {
			ops = append(ops, models.OperationType(group.Name))
		}
	}
	return ops
}

// ExtractAggregations maps keywords to canonical aggregate names.
func (e *Extractor) ExtractAggregations(query string) []models.AggregationType {
	lower := strings.ToLower(query)
	aggs := []models.AggregationType{}
	for _, group := range e.tables.Aggregations {
		if containsAnyKeyword(lower, group.Keywords) {
			aggs = append(aggs, models.AggregationType(group.Name))
		}
	}
	return aggs
}

// ExtractTemporalReferences returns relative-date phrases verbatim, in the
// order they appear.
func (e *Extractor) ExtractTemporalReferences(query string) []string {
	var found []positioned
	for _, re := range e.tables.TemporalRegexps() {
		for _, loc := range re.FindAllStringIndex(query, -1) {
			found = append(found, positioned{loc[0], query[loc[0]:loc[1]]})
		}
	}
	return orderedUnique(found)
}

// DetermineBusinessIntent checks intent groups in priority order; the first
// group with a matching keyword wins.
func (e *Extractor) DetermineBusinessIntent(query string) models.BusinessIntent {
	lower := strings.ToLower(query)
	for _, group := range e.tables.Intents {
		if containsAnyKeyword(lower, group.Keywords) {
			return models.BusinessIntent(group.Name)
		}
	}
	return models.IntentGeneral
}

func containsAnyKeyword(lower string, keywords []string) bool {
	for _, k := range keywords {
		if heuristics.ContainsKeyword(lower, k) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// blankQuotes replaces quoted sections with spaces so offsets stay valid.
func blankQuotes(s string) string {
	blank := func(m string) string { return strings.Repeat(" ", len(m)) }
	s = doubleQuoted.ReplaceAllStringFunc(s, blank)
	return singleQuoted.ReplaceAllStringFunc(s, blank)
}

func orderedUnique(items []positioned) []string {
	sort.SliceStable(items, func(i, j int) bool { return items[i].pos < items[j].pos })
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.value]; ok {
			continue
		}
		seen[it.value] = struct{}{}
		out = append(out, it.value)
	}
	return out
}
