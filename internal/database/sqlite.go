package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	defaultReaderConns = 4
)

// OpenSQLite opens the SQLite database at path.
// File databases use WAL so that the reader pool does not block the single writer.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*OpenHelper, error) {
	if path == MemoryPath {
		writer, err := connectSQLite(ctx, MemoryPath, 1)
		if err != nil {
			return nil, err
		}

		return NewOpenHelper(New(writer, logger), nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	writer, err := connectSQLite(ctx, sqliteDSN(path,
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"foreign_keys(1)",
	), 1)
	if err != nil {
		return nil, err
	}

	reader, err := connectSQLite(ctx, sqliteDSN(path,
		"busy_timeout(5000)",
		"query_only(1)",
	), defaultReaderConns)
	if err != nil {
		writer.Close()
		return nil, err
	}

	logger.InfoContext(ctx, "Opened database", "path", path)

	return NewOpenHelper(New(writer, logger), New(reader, logger)), nil
}

func connectSQLite(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	return db, nil
}

func sqliteDSN(path string, pragmas ...string) string {
	params := make([]string, 0, len(pragmas))
	for _, pragma := range pragmas {
		params = append(params, "_pragma="+url.QueryEscape(pragma))
	}

	return "file:" + path + "?" + strings.Join(params, "&")
}
