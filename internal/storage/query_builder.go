package storage

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/rancher/vmstatus/internal/database"
)

// QueryBuilder builds SELECT statements over one table.
// Every projected or sorted column must belong to the projection map.
type QueryBuilder struct {
	table         string
	projectionMap ProjectionMap
}

func NewQueryBuilder(table string, projectionMap ProjectionMap) *QueryBuilder {
	return &QueryBuilder{
		table:         table,
		projectionMap: projectionMap,
	}
}

// Build returns the SELECT statement and the names of the columns it returns.
// An empty projection selects every column of the projection map.
func (b *QueryBuilder) Build(
	builder sq.StatementBuilderType, projection []string, selection string, selectionArgs []any, sortOrder string,
) (sq.SelectBuilder, []string, error) {
	columns, expressions, err := b.computeProjection(projection)
	if err != nil {
		return sq.SelectBuilder{}, nil, err
	}

	orderBy, err := b.computeSortOrder(sortOrder)
	if err != nil {
		return sq.SelectBuilder{}, nil, err
	}

	query := builder.Select(expressions...).From(b.table)

	if strings.TrimSpace(selection) != "" {
		if err := ValidateSelection(selection); err != nil {
			return sq.SelectBuilder{}, nil, err
		}
		query = query.Where(sq.Expr("("+selection+")", selectionArgs...))
	}

	if len(orderBy) > 0 {
		query = query.OrderBy(orderBy...)
	}

	return query, columns, nil
}

// Query runs the statement built from the arguments on db.
func (b *QueryBuilder) Query(
	ctx context.Context, db *database.DB, projection []string, selection string, selectionArgs []any, sortOrder string,
) (*sqlx.Rows, []string, error) {
	query, columns, err := b.Build(db.Builder(), projection, selection, selectionArgs, sortOrder)
	if err != nil {
		return nil, nil, err
	}

	statement, args, err := query.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build query on %s: %w", b.table, err)
	}

	rows, err := db.QueryxContext(ctx, statement, args...)
	if err != nil {
		return nil, nil, err
	}

	return rows, columns, nil
}

func (b *QueryBuilder) computeProjection(projection []string) ([]string, []string, error) {
	if len(projection) == 0 {
		projection = b.projectionMap.Columns()
	}

	columns := make([]string, 0, len(projection))
	expressions := make([]string, 0, len(projection))
	for _, column := range projection {
		expression, ok := b.projectionMap.Expression(column)
		if !ok {
			return nil, nil, &InvalidColumnError{Column: column, Clause: "projection"}
		}
		if expression != column {
			expression += " AS " + column
		}

		columns = append(columns, column)
		expressions = append(expressions, expression)
	}

	return columns, expressions, nil
}

// computeSortOrder parses "col [COLLATE name] [ASC|DESC], ...".
func (b *QueryBuilder) computeSortOrder(sortOrder string) ([]string, error) {
	if strings.TrimSpace(sortOrder) == "" {
		return nil, nil
	}

	var terms []string
	for _, term := range strings.Split(sortOrder, ",") {
		fields := strings.Fields(term)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: empty term in sort order %q", ErrInvalidSelection, sortOrder)
		}

		expression, ok := b.projectionMap.Expression(fields[0])
		if !ok {
			return nil, &InvalidColumnError{Column: fields[0], Clause: "sort order"}
		}

		rest := fields[1:]
		out := []string{expression}
		if len(rest) >= 2 && strings.EqualFold(rest[0], "COLLATE") {
			if !isIdentifier(rest[1]) {
				return nil, fmt.Errorf("%w: invalid collation %q", ErrInvalidSelection, rest[1])
			}
			out = append(out, "COLLATE", rest[1])
			rest = rest[2:]
		}
		if len(rest) == 1 && (strings.EqualFold(rest[0], "ASC") || strings.EqualFold(rest[0], "DESC")) {
			out = append(out, strings.ToUpper(rest[0]))
			rest = rest[1:]
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("%w: unexpected %q in sort order", ErrInvalidSelection, strings.Join(rest, " "))
		}

		terms = append(terms, strings.Join(out, " "))
	}

	return terms, nil
}

// ValidateSelection rejects a caller supplied selection that could escape the parentheses it is
// wrapped in before being combined with other clauses, or that hides text in a comment.
func ValidateSelection(selection string) error {
	depth := 0
	inString := false
	var prev rune
	for _, r := range selection {
		switch {
		case r == '\'':
			inString = !inString
		case inString:
		case r == ';':
			return fmt.Errorf("%w: %q contains a statement separator", ErrInvalidSelection, selection)
		case (r == '-' && prev == '-') || (r == '*' && prev == '/'):
			return fmt.Errorf("%w: %q contains a comment", ErrInvalidSelection, selection)
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: %q has unbalanced parentheses", ErrInvalidSelection, selection)
			}
		}
		if inString {
			prev = 0
		} else {
			prev = r
		}
	}
	if depth != 0 || inString {
		return fmt.Errorf("%w: %q is not terminated", ErrInvalidSelection, selection)
	}

	return nil
}

func isIdentifier(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}

	return s != ""
}
