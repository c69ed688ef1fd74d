package storage

import (
	"context"
	"log/slog"
	"net/url"
	"os"

	"github.com/rancher/vmstatus/api/v1alpha1"
	"github.com/rancher/vmstatus/internal/content"
	"github.com/rancher/vmstatus/internal/database"
)

// DBHelper hands out the database handles of the provider.
type DBHelper interface {
	WritableDatabase() *database.DB
	ReadableDatabase() *database.DB
}

// DelegateHelper performs the checks and side effects shared by the table delegates.
//
//go:generate go run github.com/vektra/mockery/v2@v2.46.2 --name DelegateHelper
type DelegateHelper interface {
	// CheckAndAddSourcePackageIntoValues makes sure values carry the source package of the caller.
	CheckAndAddSourcePackageIntoValues(ctx context.Context, uriData content.UriData, values *content.ContentValues) error
	// NotifyChange tells observers that the data behind uri changed.
	NotifyChange(ctx context.Context, uri *url.URL, action string)
}

var _ DBHelper = &database.OpenHelper{}

// StatusTable implements the operations on the voicemail status table.
type StatusTable struct {
	tableName      string
	dbHelper       DBHelper
	delegateHelper DelegateHelper
	resolver       ChangeWatcher
	queryBuilder   *QueryBuilder
	logger         *slog.Logger
}

func NewStatusTable(
	tableName string, dbHelper DBHelper, delegateHelper DelegateHelper, resolver ChangeWatcher, logger *slog.Logger,
) *StatusTable {
	return &StatusTable{
		tableName:      tableName,
		dbHelper:       dbHelper,
		delegateHelper: delegateHelper,
		resolver:       resolver,
		queryBuilder:   NewQueryBuilder(tableName, StatusProjectionMap),
		logger:         logger.With("component", "status-table", "table", tableName),
	}
}

// Insert inserts one row and returns its URI.
// It returns a nil URI and no error when the database declined the row.
func (t *StatusTable) Insert(ctx context.Context, uriData content.UriData, values *content.ContentValues) (*url.URL, error) {
	t.logger.DebugContext(ctx, "Inserting row", "uri", uriData.String(), "values", values)

	copiedValues := content.NewContentValues()
	if values != nil {
		copiedValues = values.Clone()
	}
	if err := t.delegateHelper.CheckAndAddSourcePackageIntoValues(ctx, uriData, copiedValues); err != nil {
		return nil, err
	}

	db := t.dbHelper.WritableDatabase()
	rowID := db.Insert(ctx, t.tableName, copiedValues.Keys(), copiedValues.Values())
	if rowID <= 0 {
		return nil, nil //nolint:nilnil // a declined row is not an error
	}

	newURI := content.WithAppendedID(uriData.URI(), rowID)
	t.delegateHelper.NotifyChange(ctx, newURI, v1alpha1.ActionProviderChanged)

	return newURI, nil
}

func (t *StatusTable) BulkInsert(_ context.Context, _ content.UriData, _ []*content.ContentValues) (int, error) {
	return 0, unsupported("bulkInsert is not supported for status table")
}

// Delete deletes the rows addressed by uriData that match selection.
func (t *StatusTable) Delete(ctx context.Context, uriData content.UriData, selection string, selectionArgs []any) (int64, error) {
	t.logger.DebugContext(ctx, "Deleting rows", "uri", uriData.String(), "selection", selection)

	if err := ValidateSelection(selection); err != nil {
		return 0, err
	}
	combinedClause := content.ConcatenateClauses(selection, uriData.WhereClause())

	db := t.dbHelper.WritableDatabase()
	count, err := db.Delete(ctx, t.tableName, combinedClause, selectionArgs)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		t.delegateHelper.NotifyChange(ctx, uriData.URI(), v1alpha1.ActionProviderChanged)
	}

	return count, nil
}

// Query returns the rows addressed by uriData that match selection.
// Projecting or sorting by a column outside StatusProjectionMap fails with an *InvalidColumnError.
func (t *StatusTable) Query(
	ctx context.Context, uriData content.UriData, projection []string, selection string, selectionArgs []any, sortOrder string,
) (*Cursor, error) {
	t.logger.DebugContext(ctx, "Querying rows",
		"uri", uriData.String(), "projection", projection, "selection", selection, "sortOrder", sortOrder)

	if err := ValidateSelection(selection); err != nil {
		return nil, err
	}
	combinedClause := content.ConcatenateClauses(selection, uriData.WhereClause())

	db := t.dbHelper.ReadableDatabase()
	rows, columns, err := t.queryBuilder.Query(ctx, db, projection, combinedClause, selectionArgs, sortOrder)
	if err != nil {
		return nil, err
	}

	cursor := newCursor(rows, columns, t.logger)
	cursor.SetNotificationURI(t.resolver, v1alpha1.StatusContentURI)

	return cursor, nil
}

// Update assigns values to the rows addressed by uriData that match selection.
func (t *StatusTable) Update(
	ctx context.Context, uriData content.UriData, values *content.ContentValues, selection string, selectionArgs []any,
) (int64, error) {
	t.logger.DebugContext(ctx, "Updating rows", "uri", uriData.String(), "values", values, "selection", selection)

	if err := ValidateSelection(selection); err != nil {
		return 0, err
	}
	combinedClause := content.ConcatenateClauses(selection, uriData.WhereClause())

	if values == nil {
		values = content.NewContentValues()
	}

	db := t.dbHelper.WritableDatabase()
	count, err := db.Update(ctx, t.tableName, values.Keys(), values.Values(), combinedClause, selectionArgs)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		t.delegateHelper.NotifyChange(ctx, uriData.URI(), v1alpha1.ActionProviderChanged)
	}

	return count, nil
}

// GetType returns the MIME type of the data addressed by uriData.
func (t *StatusTable) GetType(uriData content.UriData) string {
	if uriData.HasID() {
		return v1alpha1.ItemType
	}

	return v1alpha1.DirType
}

func (t *StatusTable) OpenFile(_ context.Context, _ content.UriData, _ string) (*os.File, error) {
	return nil, unsupported("file operation is not supported for status table")
}
