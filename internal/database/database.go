package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// RowIDColumn is the integer primary key of every provider table.
const RowIDColumn = "_id"

var ErrEmptyValues = errors.New("empty values")

// DB wraps a connection pool with single-statement table helpers.
type DB struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

func New(db *sqlx.DB, logger *slog.Logger) *DB {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if db.DriverName() == DriverPgx {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	return &DB{
		db:      db,
		builder: builder,
		logger:  logger.With("component", "database", "driver", db.DriverName()),
	}
}

// Builder returns a statement builder using the placeholder format of the driver.
// Statements are written with "?" placeholders.
func (d *DB) Builder() sq.StatementBuilderType {
	return d.builder
}

func (d *DB) DriverName() string {
	return d.db.DriverName()
}

// Unwrap returns the underlying pool.
func (d *DB) Unwrap() *sqlx.DB {
	return d.db
}

// Insert inserts one row and returns its row id.
// It returns -1 when the database declined the row; the cause is logged.
func (d *DB) Insert(ctx context.Context, table string, columns []string, values []any) int64 {
	id, err := d.InsertOrError(ctx, table, columns, values)
	if err != nil {
		d.logger.ErrorContext(ctx, "Error inserting row", "table", table, "error", err)

		return -1
	}

	return id
}

// InsertOrError is like Insert but returns the cause of a declined row.
func (d *DB) InsertOrError(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	if len(columns) != len(values) {
		return -1, fmt.Errorf("insert into %s: %d columns but %d values", table, len(columns), len(values))
	}

	var (
		query string
		args  []any
		err   error
	)
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", table, RowIDColumn)
	} else {
		query, args, err = d.builder.Insert(table).
			Columns(columns...).
			Values(values...).
			Suffix("RETURNING " + RowIDColumn).
			ToSql()
		if err != nil {
			return -1, fmt.Errorf("failed to build insert into %s: %w", table, err)
		}
	}

	var id int64
	if err := d.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return -1, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	return id, nil
}

// Delete deletes the rows matching whereClause and returns how many were deleted.
// An empty whereClause deletes every row.
func (d *DB) Delete(ctx context.Context, table, whereClause string, whereArgs []any) (int64, error) {
	builder := d.builder.Delete(table)
	if whereClause != "" {
		builder = builder.Where(sq.Expr(whereClause, whereArgs...))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete from %s: %w", table, err)
	}

	return d.exec(ctx, query, args)
}

// Update assigns values to columns in the rows matching whereClause and returns how many were updated.
func (d *DB) Update(
	ctx context.Context, table string, columns []string, values []any, whereClause string, whereArgs []any,
) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, ErrEmptyValues)
	}
	if len(columns) != len(values) {
		return 0, fmt.Errorf("update %s: %d columns but %d values", table, len(columns), len(values))
	}

	builder := d.builder.Update(table)
	for i, column := range columns {
		builder = builder.Set(column, values[i])
	}
	if whereClause != "" {
		builder = builder.Where(sq.Expr(whereClause, whereArgs...))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update of %s: %w", table, err)
	}

	return d.exec(ctx, query, args)
}

func (d *DB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	d.logger.DebugContext(ctx, "Running query", "query", query)

	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}

	return rows, nil
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to exec statement: %w", err)
	}

	return result, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) exec(ctx context.Context, query string, args []any) (int64, error) {
	d.logger.DebugContext(ctx, "Executing statement", "query", query)

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute %q: %w", query, err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return count, nil
}
