package sqlscan

import (
	"regexp"
	"strings"
)

// TableRef is one relation in a FROM clause.
type TableRef struct {
	Name     string
	Alias    string
	Join     string // join keyword text, empty for the first relation
	On       string
	Subquery bool
	Text     string // the relation as written, without the join keyword
}

// Qualifier is the name other clauses use to refer to the relation.
func (t TableRef) Qualifier() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

var (
	joinKeyword = regexp.MustCompile(`(?i)\b(?:(?:INNER|LEFT|RIGHT|FULL|CROSS)\s+(?:OUTER\s+)?)?JOIN\b`)
	onKeyword   = regexp.MustCompile(`(?i)\b(?:ON|USING)\b`)
	relation    = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)(?:\s+(?:AS\s+)?([A-Za-z_]\w*))?$`)
	subAlias    = regexp.MustCompile(`(?i)\)\s*(?:AS\s+)?([A-Za-z_]\w*)\s*$`)
)

// Tables lists the relations of a FROM clause body in order, including joins
// and comma-separated relations.
func Tables(from string) []TableRef {
	var refs []TableRef
	last, joinText := 0, ""
	flush := func(segment string) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return
		}
		on, more := "", []string(nil)
		if locs := TopLevel(segment, onKeyword); len(locs) > 0 {
			// a comma after the join condition starts another relation
			cond := List(segment[locs[0][1]:])
			if len(cond) > 0 {
				on, more = cond[0], cond[1:]
			}
			segment = strings.TrimSpace(segment[:locs[0][0]])
		}
		for i, part := range append(List(segment), more...) {
			ref := parseRelation(part)
			if i == 0 {
				ref.Join = joinText
				ref.On = on
			}
			refs = append(refs, ref)
		}
	}
	for _, loc := range TopLevel(from, joinKeyword) {
		flush(from[last:loc[0]])
		joinText = strings.Join(strings.Fields(strings.ToUpper(from[loc[0]:loc[1]])), " ")
		last = loc[1]
	}
	flush(from[last:])
	return refs
}

func parseRelation(text string) TableRef {
	ref := TableRef{Text: text}
	if strings.HasPrefix(text, "(") {
		ref.Subquery = true
		if m := subAlias.FindStringSubmatch(text); m != nil {
			ref.Alias = m[1]
		}
		// the first table named inside stands in for the subquery
		if c, ok := Split(strings.TrimSuffix(strings.TrimPrefix(text[:strings.LastIndex(text, ")")+1], "("), ")")); ok {
			if inner := Tables(c.From); len(inner) > 0 {
				ref.Name = inner[0].Name
			}
		}
		return ref
	}
	if m := relation.FindStringSubmatch(text); m != nil {
		ref.Name = m[1]
		if alias := m[2]; alias != "" && !isReserved(alias) {
			ref.Alias = alias
		}
		return ref
	}
	ref.Name = strings.Fields(text)[0]
	return ref
}

// ColumnRef is a column reference, qualified or not.
type ColumnRef struct {
	Qualifier string
	Column    string
}

func (c ColumnRef) String() string {
	if c.Qualifier == "" {
		return c.Column
	}
	return c.Qualifier + "." + c.Column
}

var qualifiedRef = regexp.MustCompile(`\b([A-Za-z_]\w*)\.([A-Za-z_]\w*|\*)`)

// QualifiedRefs returns every qualifier.column reference outside string
// literals, in order of appearance.
func QualifiedRefs(s string) []ColumnRef {
	mask := literalMask(s)
	var out []ColumnRef
	for _, m := range qualifiedRef.FindAllStringSubmatchIndex(s, -1) {
		if !mask[m[0]] {
			continue
		}
		out = append(out, ColumnRef{Qualifier: s[m[2]:m[3]], Column: s[m[4]:m[5]]})
	}
	return out
}

// References reports whether expr mentions a column through qualifier.
func References(expr, qualifier string) bool {
	for _, r := range QualifiedRefs(expr) {
		if strings.EqualFold(r.Qualifier, qualifier) {
			return true
		}
	}
	return false
}

var bareItem = regexp.MustCompile(`(?i)^([A-Za-z_]\w*)(?:\s+(?:AS\s+)?[A-Za-z_]\w*)?$`)

// BareColumn returns the column of a select item that is a plain unqualified
// identifier, optionally aliased.
func BareColumn(item string) (string, bool) {
	m := bareItem.FindStringSubmatch(strings.TrimSpace(item))
	if m == nil || isReserved(m[1]) {
		return "", false
	}
	return m[1], true
}

var predicateLHS = regexp.MustCompile(`(?i)^\s*(?:([A-Za-z_]\w*)\.)?([A-Za-z_]\w*)\s*(?:=|<>|!=|<=|>=|<|>|\bNOT\s+LIKE\b|\bLIKE\b|\bILIKE\b|\bNOT\s+IN\b|\bIN\b|\bBETWEEN\b|\bIS\b)`)

// PredicateColumn returns the column on the left of a simple comparison.
func PredicateColumn(conjunct string) (ColumnRef, bool) {
	m := predicateLHS.FindStringSubmatch(conjunct)
	if m == nil || isReserved(m[2]) {
		return ColumnRef{}, false
	}
	return ColumnRef{Qualifier: m[1], Column: m[2]}, true
}

// literalMask marks bytes outside quoted text; parentheses do not matter.
func literalMask(s string) []bool {
	mask := make([]bool, len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				if quote == '\'' && i+1 < len(s) && s[i+1] == '\'' {
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
			continue
		}
		mask[i] = true
	}
	return mask
}

var reserved = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "group": {}, "by": {}, "having": {}, "order": {},
	"limit": {}, "offset": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {},
	"outer": {}, "cross": {}, "on": {}, "using": {}, "as": {}, "and": {}, "or": {}, "not": {},
	"null": {}, "true": {}, "false": {}, "distinct": {}, "case": {}, "when": {}, "then": {},
	"else": {}, "end": {}, "asc": {}, "desc": {}, "in": {}, "is": {}, "like": {}, "between": {},
	"exists": {}, "union": {}, "all": {},
}

func isReserved(word string) bool {
	_, ok := reserved[strings.ToLower(word)]
	return ok
}
