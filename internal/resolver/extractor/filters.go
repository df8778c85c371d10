package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"nlq-resolver/internal/models"
)

const datePattern = `\d{4}-\d{2}-\d{2}(?:[ t]\d{2}:\d{2}(?::\d{2})?)?|\d{1,2}/\d{1,2}/\d{4}`

var (
	dateWordFilter = regexp.MustCompile(`(?i)\b(?:([a-z_][a-z0-9_]*)\s+)?(after|before|since|until|on)\s+(` + datePattern + `)`)
	dateSymFilter  = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*(>=|<=|>|<|=)\s*'?(` + datePattern + `)'?`)

	numericWordFilter = regexp.MustCompile(`(?i)\b(?:([a-z_][a-z0-9_]*)\s+(?:(?:is|are|was|of)\s+)?)?` +
		`(greater than or equal to|less than or equal to|greater than|more than|higher than|larger than|` +
		`less than|fewer than|lower than|smaller than|at least|at most|no more than|no less than|` +
		`over|above|exceeding|under|below|equal to)\s+\$?(-?\d+(?:\.\d+)?)`)
	numericSymFilter = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*(>=|<=|!=|<>|>|<|=)\s*(-?\d+(?:\.\d+)?)`)

	equalityFilter = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s+(?:is|equals|equal to)\s+(?:"([^"]*)"|'([^']*)'|([a-z0-9_.@-]+))`)
	namedFilter    = regexp.MustCompile(`(?i)\b(?:named|called)\s+(?:"([^"]*)"|'([^']*)'|([a-z0-9_.@-]+))`)
	isDate         = regexp.MustCompile(`^(?:` + datePattern + `)$`)
)

var dateOperators = map[string]string{
	"after":  ">",
	"since":  ">=",
	"before": "<",
	"until":  "<=",
	"on":     "=",
}

var numericOperators = map[string]string{
	"greater than or equal to": ">=",
	"less than or equal to":    "<=",
	"greater than":             ">",
	"more than":                ">",
	"higher than":              ">",
	"larger than":              ">",
	"over":                     ">",
	"above":                    ">",
	"exceeding":                ">",
	"less than":                "<",
	"fewer than":               "<",
	"lower than":               "<",
	"smaller than":             "<",
	"under":                    "<",
	"below":                    "<",
	"at least":                 ">=",
	"no less than":             ">=",
	"at most":                  "<=",
	"no more than":             "<=",
	"equal to":                 "=",
	"<>":                       "!=",
}

// Values that follow "is" but introduce a comparison rather than a value.
var notAValue = map[string]struct{}{
	"greater": {}, "less": {}, "more": {}, "fewer": {}, "over": {}, "under": {}, "above": {},
	"below": {}, "at": {}, "not": {}, "null": {}, "between": {}, "after": {}, "before": {},
	"equal": {}, "higher": {}, "lower": {}, "larger": {}, "smaller": {}, "no": {}, "the": {},
	"a": {}, "an": {}, "there": {}, "it": {},
}

type span struct{ start, end int }

type filterMatch struct {
	pos    int
	filter models.Filter
}

type filterScan struct {
	query    string
	consumed []span
	found    []filterMatch
	clean    func(string) string
}

func (s *filterScan) overlaps(start, end int) bool {
	for _, sp := range s.consumed {
		if start < sp.end && end > sp.start {
			return true
		}
	}
	return false
}

func (s *filterScan) add(loc []int, f models.Filter) {
	s.consumed = append(s.consumed, span{loc[0], loc[1]})
	s.found = append(s.found, filterMatch{pos: loc[0], filter: f})
}

func (s *filterScan) group(loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s.query[loc[2*n]:loc[2*n+1]]
}

// ExtractFilters recognises date comparisons, numeric comparisons and
// equality phrases. Field is the noun right before the comparison, when the
// query has one.
func (e *Extractor) ExtractFilters(query string) []models.Filter {
	s := &filterScan{query: query, clean: e.cleanField}

	for _, loc := range dateWordFilter.FindAllStringSubmatchIndex(query, -1) {
		op := dateOperators[strings.ToLower(s.group(loc, 2))]
		s.add(loc, models.Filter{Type: models.FilterTypeDate, Operator: op, Value: s.group(loc, 3), Field: s.clean(s.group(loc, 1))})
	}
	for _, loc := range dateSymFilter.FindAllStringSubmatchIndex(query, -1) {
		if s.overlaps(loc[0], loc[1]) {
			continue
		}
		s.add(loc, models.Filter{Type: models.FilterTypeDate, Operator: s.group(loc, 2), Value: s.group(loc, 3), Field: s.clean(s.group(loc, 1))})
	}

	for _, loc := range numericWordFilter.FindAllStringSubmatchIndex(query, -1) {
		if s.overlaps(loc[0], loc[1]) || continuesAsDate(query, loc[1]) {
			continue
		}
		op := numericOperators[strings.ToLower(s.group(loc, 2))]
		s.add(loc, models.Filter{Type: models.FilterTypeNumeric, Operator: op, Value: s.group(loc, 3), Field: s.clean(s.group(loc, 1))})
	}
	for _, loc := range numericSymFilter.FindAllStringSubmatchIndex(query, -1) {
		if s.overlaps(loc[0], loc[1]) || continuesAsDate(query, loc[1]) {
			continue
		}
		op := s.group(loc, 2)
		if mapped, ok := numericOperators[op]; ok {
			op = mapped
		}
		s.add(loc, models.Filter{Type: models.FilterTypeNumeric, Operator: op, Value: s.group(loc, 3), Field: s.clean(s.group(loc, 1))})
	}

	for _, loc := range equalityFilter.FindAllStringSubmatchIndex(query, -1) {
		if s.overlaps(loc[0], loc[1]) {
			continue
		}
		value, quoted := firstGroup(s, loc, 2, 3, 4)
		if !quoted {
			if _, skip := notAValue[strings.ToLower(value)]; skip {
				continue
			}
		}
		s.add(loc, classifyEquality(s.clean(s.group(loc, 1)), value, quoted))
	}
	for _, loc := range namedFilter.FindAllStringSubmatchIndex(query, -1) {
		if s.overlaps(loc[0], loc[1]) {
			continue
		}
		value, _ := firstGroup(s, loc, 1, 2, 3)
		s.add(loc, models.Filter{Type: models.FilterTypeText, Operator: "=", Value: value, Field: "name"})
	}

	sort.SliceStable(s.found, func(i, j int) bool { return s.found[i].pos < s.found[j].pos })

	filters := make([]models.Filter, 0, len(s.found))
	seen := make(map[models.Filter]struct{})
	for _, m := range s.found {
		if _, ok := seen[m.filter]; ok {
			continue
		}
		seen[m.filter] = struct{}{}
		filters = append(filters, m.filter)
	}
	return filters
}

// firstGroup returns the first non-empty alternative and whether it was quoted.
func firstGroup(s *filterScan, loc []int, dq, sq, bare int) (string, bool) {
	if loc[2*dq] >= 0 {
		return s.group(loc, dq), true
	}
	if loc[2*sq] >= 0 {
		return s.group(loc, sq), true
	}
	return s.group(loc, bare), false
}

func classifyEquality(field, value string, quoted bool) models.Filter {
	if !quoted {
		if isDate.MatchString(value) {
			return models.Filter{Type: models.FilterTypeDate, Operator: "=", Value: value, Field: field}
		}
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return models.Filter{Type: models.FilterTypeNumeric, Operator: "=", Value: value, Field: field}
		}
	}
	return models.Filter{Type: models.FilterTypeText, Operator: "=", Value: value, Field: field}
}

// continuesAsDate guards against reading the year of a date as a number.
func continuesAsDate(query string, end int) bool {
	return end < len(query) && (query[end] == '-' || query[end] == '/')
}

func (e *Extractor) cleanField(field string) string {
	field = strings.ToLower(field)
	if field == "" || e.tables.IsStopWord(field) {
		return ""
	}
	if _, ok := notAValue[field]; ok {
		return ""
	}
	return field
}
