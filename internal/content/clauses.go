package content

import (
	"fmt"
	"strings"
)

// ConcatenateClauses joins the non-empty where-clause fragments with AND.
// Every fragment is wrapped in parentheses so that OR inside a fragment keeps its meaning.
func ConcatenateClauses(clauses ...string) string {
	var sb strings.Builder
	for _, clause := range clauses {
		if strings.TrimSpace(clause) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString("(")
		sb.WriteString(clause)
		sb.WriteString(")")
	}

	return sb.String()
}

// EqualityClause returns "column = 'value'" with value escaped as a SQL string literal.
func EqualityClause(column, value string) string {
	return fmt.Sprintf("%s = %s", column, EscapeString(value))
}

// EscapeString quotes s as a SQL string literal.
func EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
