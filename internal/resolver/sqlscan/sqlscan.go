// Package sqlscan is a best-effort structural scanner for single SELECT
// statements. It is not a parser: it finds top-level clauses by keyword,
// ignoring text inside parentheses and quotes, and is only reliable for the
// flat statements the generator produces. Nested statements are handled
// partially; callers must tolerate odd splits.
package sqlscan

import (
	"regexp"
	"strings"
)

// Clauses is a SELECT statement cut at its top-level keywords. Each field
// holds the clause body without its keyword.
type Clauses struct {
	Select  string
	From    string
	Where   string
	GroupBy string
	Having  string
	OrderBy string
	Limit   string
}

var clauseKeyword = regexp.MustCompile(`(?i)^(SELECT|FROM|WHERE|GROUP\s+BY|HAVING|ORDER\s+BY|LIMIT)\b`)

// Split cuts sql into clauses. It reports false for anything that does not
// start with SELECT.
func Split(sql string) (Clauses, bool) {
	sql = strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
	active := Mask(sql)

	type mark struct {
		name       string
		start, end int
	}
	var marks []mark
	for i := 0; i < len(sql); i++ {
		if !active[i] || (i > 0 && isWordByte(sql[i-1])) {
			continue
		}
		m := clauseKeyword.FindStringIndex(sql[i:])
		if m == nil {
			continue
		}
		name := strings.Join(strings.Fields(strings.ToUpper(sql[i:i+m[1]])), " ")
		marks = append(marks, mark{name: name, start: i, end: i + m[1]})
		i += m[1] - 1
	}
	if len(marks) == 0 || marks[0].name != "SELECT" || marks[0].start != 0 {
		return Clauses{}, false
	}

	var c Clauses
	seen := map[string]bool{}
	for i, m := range marks {
		if seen[m.name] {
			continue
		}
		seen[m.name] = true
		end := len(sql)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		body := strings.TrimSpace(sql[m.end:end])
		switch m.name {
		case "SELECT":
			c.Select = body
		case "FROM":
			c.From = body
		case "WHERE":
			c.Where = body
		case "GROUP BY":
			c.GroupBy = body
		case "HAVING":
			c.Having = body
		case "ORDER BY":
			c.OrderBy = body
		case "LIMIT":
			c.Limit = body
		}
	}
	return c, true
}

// String reassembles the clauses in canonical order.
func (c Clauses) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(c.Select)
	write := func(keyword, body string) {
		if body == "" {
			return
		}
		b.WriteString(" ")
		b.WriteString(keyword)
		b.WriteString(" ")
		b.WriteString(body)
	}
	write("FROM", c.From)
	write("WHERE", c.Where)
	write("GROUP BY", c.GroupBy)
	write("HAVING", c.Having)
	write("ORDER BY", c.OrderBy)
	write("LIMIT", c.Limit)
	return b.String()
}

// Mask reports, per byte, whether s[i] is outside quotes and parentheses.
// A doubled single quote inside a literal is an escape; double quotes
// delimit identifiers.
func Mask(s string) []bool {
	active := make([]bool, len(s))
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				if quote == '\'' && i+1 < len(s) && s[i+1] == '\'' {
					i++
					continue
				}
				quote = 0
			}
			continue
		case ch == '\'' || ch == '"':
			quote = ch
			continue
		case ch == '(':
			depth++
			continue
		case ch == ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		active[i] = depth == 0
	}
	return active
}

// TopLevel returns the matches of re in s that start outside quotes and
// parentheses.
func TopLevel(s string, re *regexp.Regexp) [][]int {
	active := Mask(s)
	var out [][]int
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if active[loc[0]] {
			out = append(out, loc)
		}
	}
	return out
}

// SplitTopLevel cuts s at every top-level match of sep and trims the parts.
// Empty parts are dropped.
func SplitTopLevel(s string, sep *regexp.Regexp) []string {
	var parts []string
	last := 0
	for _, loc := range TopLevel(s, sep) {
		if p := strings.TrimSpace(s[last:loc[0]]); p != "" {
			parts = append(parts, p)
		}
		last = loc[1]
	}
	if p := strings.TrimSpace(s[last:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

var (
	commaSep = regexp.MustCompile(`,`)
	andSep   = regexp.MustCompile(`(?i)\bAND\b`)
)

// List splits a comma-separated clause body such as a select list.
func List(s string) []string {
	return SplitTopLevel(s, commaSep)
}

// Conjuncts splits a WHERE or HAVING body on top-level AND. BETWEEN x AND y
// is split too; callers that care must rejoin it.
func Conjuncts(s string) []string {
	return SplitTopLevel(s, andSep)
}

func isWordByte(b byte) bool {
	return b == '_' || b == '.' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
