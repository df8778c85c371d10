package executor

import (
	"regexp"
	"strings"

	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/sqlgen"
	"nlq-resolver/internal/resolver/sqlscan"
)

// attemptInput is everything a strategy may look at when producing the next
// statement. Strategies are pure: same input, same SQL.
type attemptInput struct {
	SQL       string
	Plan      models.QueryPlan
	LastError string
	MaxRows   int
	Metadata  *models.SemanticMetadata
	Tried     func(sql string) bool
}

// apply returns the statement a strategy proposes, or "" when it has nothing
// to offer.
func apply(s Strategy, in attemptInput) string {
	switch s {
	case StrategySimplifyQuery:
		return SimplifyQuery(in.SQL)
	case StrategyRemoveComplexJoins:
		return RemoveComplexJoins(in.SQL)
	case StrategyAddLimit:
		return sqlgen.AddLimit(in.SQL, in.MaxRows)
	case StrategyTryAlternativeTables:
		return TryAlternativeTables(in.Plan, in.MaxRows, in.Tried)
	case StrategyTryAlternativeColumns:
		return TryAlternativeColumns(in.SQL, in.LastError, in.Metadata)
	case StrategyBasicSelect:
		return BasicSelect(in.SQL, in.Plan, in.MaxRows)
	default:
		return ""
	}
}

var (
	casePattern     = regexp.MustCompile(`(?is)\bCASE\b.*?\bEND\b`)
	subqueryStart   = regexp.MustCompile(`(?i)\(\s*SELECT\b`)
	predicatePrefix = regexp.MustCompile(`(?i)(?:\b(?:[A-Za-z_][\w.]*)\s+(?:NOT\s+)?IN\s*|\b(?:NOT\s+)?EXISTS\s*|\b[A-Za-z_][\w.]*\s*(?:=|<>|!=|<=|>=|<|>)\s*)$`)
	fromPrefix      = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s*$`)
	spaces          = regexp.MustCompile(`\s+`)
)

// SimplifyQuery replaces CASE expressions with NULL, subqueries with their
// first table (in FROM) or a true predicate (in WHERE), and drops GROUP BY and
// HAVING. Nested CASE expressions are only partially removed.
func SimplifyQuery(sql string) string {
	out := casePattern.ReplaceAllString(sql, "NULL")
	out = replaceSubqueries(out)

	c, ok := sqlscan.Split(out)
	if !ok {
		return collapse(out)
	}
	c.Where = dropTrivialConjuncts(c.Where)
	c.GroupBy, c.Having = "", ""
	return collapse(c.String())
}

func replaceSubqueries(sql string) string {
	for {
		loc := subqueryStart.FindStringIndex(sql)
		if loc == nil {
			return sql
		}
		end := closingParen(sql, loc[0])
		if end < 0 {
			return sql
		}
		inner := sql[loc[0]+1 : end]
		prefix := sql[:loc[0]]

		switch {
		case fromPrefix.MatchString(prefix):
			table := "dual"
			if c, ok := sqlscan.Split(inner); ok {
				if refs := sqlscan.Tables(c.From); len(refs) > 0 && refs[0].Name != "" {
					table = refs[0].Name
				}
			}
			sql = prefix + table + sql[end+1:]
		case predicatePrefix.MatchString(prefix):
			m := predicatePrefix.FindStringIndex(prefix)
			sql = prefix[:m[0]] + "1=1" + sql[end+1:]
		default:
			sql = prefix + "NULL" + sql[end+1:]
		}
	}
}

// closingParen finds the parenthesis that closes the one at open, skipping
// quoted text.
func closingParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func dropTrivialConjuncts(where string) string {
	if where == "" {
		return ""
	}
	var kept []string
	for _, c := range sqlscan.Conjuncts(where) {
		if strings.ReplaceAll(c, " ", "") == "1=1" {
			continue
		}
		kept = append(kept, c)
	}
	return strings.Join(kept, " AND ")
}

// RemoveComplexJoins keeps only the first relation of the FROM clause and
// drops select items, predicates and sort keys that reference the others.
func RemoveComplexJoins(sql string) string {
	c, ok := sqlscan.Split(sql)
	if !ok {
		return ""
	}
	refs := sqlscan.Tables(c.From)
	if len(refs) < 2 {
		return sql
	}
	var dropped []string
	for _, r := range refs[1:] {
		dropped = append(dropped, r.Qualifier())
		if r.Alias != "" {
			dropped = append(dropped, r.Name)
		}
	}
	c.From = refs[0].Text
	c.Select = strings.Join(withoutRefs(sqlscan.List(c.Select), dropped), ", ")
	if c.Select == "" {
		c.Select = "*"
	}
	c.Where = strings.Join(withoutRefs(sqlscan.Conjuncts(c.Where), dropped), " AND ")
	c.GroupBy = strings.Join(withoutRefs(sqlscan.List(c.GroupBy), dropped), ", ")
	c.Having = strings.Join(withoutRefs(sqlscan.Conjuncts(c.Having), dropped), " AND ")
	c.OrderBy = strings.Join(withoutRefs(sqlscan.List(c.OrderBy), dropped), ", ")
	return c.String()
}

func withoutRefs(items []string, qualifiers []string) []string {
	var kept []string
	for _, item := range items {
		keep := true
		for _, q := range qualifiers {
			if sqlscan.References(item, q) {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, item)
		}
	}
	return kept
}

// TryAlternativeTables renders the first alternative plan not yet tried,
// then falls back to a basic select over the remaining primary tables.
func TryAlternativeTables(plan models.QueryPlan, maxRows int, tried func(string) bool) string {
	if tried == nil {
		tried = func(string) bool { return false }
	}
	for _, alt := range plan.AlternativePlans {
		if sql := sqlgen.Generate(alt, maxRows); !alt.IsEmpty() && !tried(sql) {
			return sql
		}
	}
	if len(plan.PrimaryTables) > 1 {
		for _, t := range plan.PrimaryTables[1:] {
			if sql := sqlgen.BasicSelect(t, maxRows); !tried(sql) {
				return sql
			}
		}
	}
	return ""
}

var missingColumnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)column "?([\w.]+)"? does not exist`),
	regexp.MustCompile(`(?i)no such column:\s*([\w.]+)`),
	regexp.MustCompile(`(?i)unknown column '([\w.]+)'`),
}

// MissingColumn extracts the column a driver error complains about.
func MissingColumn(errText string) (string, bool) {
	for _, re := range missingColumnPatterns {
		if m := re.FindStringSubmatch(errText); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// TryAlternativeColumns drops the column named in the error from every
// clause. When nothing is left to select, the table's other known columns are
// selected, or * when the table is unknown. Errors that name no column yield
// no statement.
func TryAlternativeColumns(sql, lastError string, md *models.SemanticMetadata) string {
	bad, found := MissingColumn(lastError)
	if !found {
		return ""
	}
	c, ok := sqlscan.Split(sql)
	if !ok {
		return ""
	}
	c.Select = strings.Join(withoutColumn(sqlscan.List(c.Select), bad), ", ")
	c.Where = strings.Join(withoutColumn(sqlscan.Conjuncts(c.Where), bad), " AND ")
	c.GroupBy = strings.Join(withoutColumn(sqlscan.List(c.GroupBy), bad), ", ")
	c.Having = strings.Join(withoutColumn(sqlscan.Conjuncts(c.Having), bad), " AND ")
	c.OrderBy = strings.Join(withoutColumn(sqlscan.List(c.OrderBy), bad), ", ")
	if c.Select == "" {
		c.Select = knownColumns(sqlscan.Tables(c.From), md, bad)
	}
	return c.String()
}

func withoutColumn(items []string, column string) []string {
	qualifier, name := "", column
	if i := strings.LastIndex(column, "."); i >= 0 {
		qualifier, name = column[:i], column[i+1:]
	}
	pattern := regexp.MustCompile(`(?i)(^|[^\w.])` + regexp.QuoteMeta(name) + `\b`)
	var kept []string
	for _, item := range items {
		hit := false
		for _, r := range sqlscan.QualifiedRefs(item) {
			if strings.EqualFold(r.Column, name) && (qualifier == "" || strings.EqualFold(r.Qualifier, qualifier)) {
				hit = true
				break
			}
		}
		if !hit && qualifier == "" && pattern.MatchString(item) {
			hit = true
		}
		if !hit {
			kept = append(kept, item)
		}
	}
	return kept
}

func knownColumns(refs []sqlscan.TableRef, md *models.SemanticMetadata, exclude string) string {
	if len(refs) == 0 {
		return "*"
	}
	t, ok := md.Table(refs[0].Name)
	if !ok {
		return "*"
	}
	if i := strings.LastIndex(exclude, "."); i >= 0 {
		exclude = exclude[i+1:]
	}
	var cols []string
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, exclude) {
			continue
		}
		cols = append(cols, refs[0].Qualifier()+"."+c.Name)
	}
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ", ")
}

// BasicSelect selects everything from the statement's first table, or the
// plan's, or renders the no-table sentinel.
func BasicSelect(sql string, plan models.QueryPlan, maxRows int) string {
	if c, ok := sqlscan.Split(sql); ok {
		if refs := sqlscan.Tables(c.From); len(refs) > 0 && refs[0].Name != "" {
			return sqlgen.BasicSelect(refs[0].Name, maxRows)
		}
	}
	if len(plan.PrimaryTables) > 0 {
		return sqlgen.BasicSelect(plan.PrimaryTables[0], maxRows)
	}
	return sqlgen.TestQuery
}

func collapse(sql string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(sql, " "))
}
