package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"k8s.io/utils/ptr"

	"github.com/rancher/vmstatus/api/v1alpha1"
	"github.com/rancher/vmstatus/internal/content"
	"github.com/rancher/vmstatus/internal/database"
	"github.com/rancher/vmstatus/internal/notify"
	"github.com/rancher/vmstatus/internal/storage/mocks"
)

const statusURI = v1alpha1.StatusContentURI

type statusTableTestSuite struct {
	suite.Suite
	dbHelper       *database.OpenHelper
	delegateHelper *mocks.DelegateHelper
	resolver       *notify.Resolver
	table          *StatusTable
}

func (suite *statusTableTestSuite) SetupTest() {
	ctx := context.Background()

	dbHelper, err := database.OpenSQLite(ctx, database.MemoryPath, slog.Default())
	suite.Require().NoError(err)
	suite.Require().NoError(dbHelper.Migrate(ctx, CreateStatusTableSQL))

	suite.dbHelper = dbHelper
	suite.delegateHelper = mocks.NewDelegateHelper(suite.T())
	suite.resolver = notify.NewResolver(notify.DefaultQueueLength, slog.Default())
	suite.table = NewStatusTable(StatusTableName, dbHelper, suite.delegateHelper, suite.resolver, slog.Default())
}

func (suite *statusTableTestSuite) TearDownTest() {
	suite.resolver.Shutdown()
	suite.Require().NoError(suite.dbHelper.Close())
}

func TestStatusTableTestSuite(t *testing.T) {
	suite.Run(t, &statusTableTestSuite{})
}

func (suite *statusTableTestSuite) insertRow(id int64, sourcePackage string, configurationState int64) {
	suite.dbHelper.WritableDatabase().Unwrap().MustExec(
		"INSERT INTO voicemail_status (_id, source_package, configuration_state) VALUES (?, ?, ?)",
		id, sourcePackage, configurationState,
	)
}

// resetTable empties the table and replaces the helper mock, for subtests sharing the suite database.
func (suite *statusTableTestSuite) resetTable() {
	suite.dbHelper.WritableDatabase().Unwrap().MustExec("DELETE FROM voicemail_status")

	suite.delegateHelper = mocks.NewDelegateHelper(suite.T())
	suite.table = NewStatusTable(StatusTableName, suite.dbHelper, suite.delegateHelper, suite.resolver, slog.Default())
}

func (suite *statusTableTestSuite) countRows() int {
	var count int
	err := suite.dbHelper.ReadableDatabase().Unwrap().Get(&count, "SELECT COUNT(*) FROM voicemail_status")
	suite.Require().NoError(err)

	return count
}

func (suite *statusTableTestSuite) expectSourcePackage(sourcePackage string) {
	suite.delegateHelper.On("CheckAndAddSourcePackageIntoValues", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			values := args.Get(2).(*content.ContentValues)
			values.Put(v1alpha1.ColumnSourcePackage, sourcePackage)
		}).
		Return(nil).
		Once()
}

func (suite *statusTableTestSuite) expectNotification(uri string) {
	suite.delegateHelper.On("NotifyChange", mock.Anything, mock.MatchedBy(func(u *url.URL) bool {
		return u.String() == uri
	}), v1alpha1.ActionProviderChanged).Return().Once()
}

func (suite *statusTableTestSuite) TestInsert() {
	suite.insertRow(6, "com.other", v1alpha1.ConfigurationStateOK)
	suite.expectSourcePackage("com.example")
	suite.expectNotification(statusURI + "/7")

	values := content.NewContentValues().Put(v1alpha1.ColumnConfigurationState, v1alpha1.ConfigurationStateOK)
	uri, err := suite.table.Insert(context.Background(), content.MustParseURIData(statusURI), values)
	suite.Require().NoError(err)
	suite.Require().NotNil(uri)

	suite.Equal(statusURI+"/7", uri.String())
	suite.False(values.ContainsKey(v1alpha1.ColumnSourcePackage), "the caller's values must not be modified")
	suite.delegateHelper.AssertNumberOfCalls(suite.T(), "NotifyChange", 1)

	var status v1alpha1.Status
	err = suite.dbHelper.ReadableDatabase().Unwrap().Get(&status, "SELECT * FROM voicemail_status WHERE _id = 7")
	suite.Require().NoError(err)
	suite.Equal("com.example", status.SourcePackage)
	suite.Equal(ptr.To(int64(v1alpha1.ConfigurationStateOK)), status.ConfigurationState)
}

func (suite *statusTableTestSuite) TestInsertKeepsQueryParameters() {
	suite.expectSourcePackage("com.example")
	suite.expectNotification(statusURI + "/1?source_package=com.example")

	uri, err := suite.table.Insert(
		context.Background(),
		content.MustParseURIData(statusURI+"?source_package=com.example"),
		content.NewContentValues(),
	)
	suite.Require().NoError(err)
	suite.Equal(statusURI+"/1?source_package=com.example", uri.String())
}

func (suite *statusTableTestSuite) TestInsertDeclined() {
	suite.insertRow(1, "com.example", v1alpha1.ConfigurationStateOK)
	suite.expectSourcePackage("com.example")

	uri, err := suite.table.Insert(context.Background(), content.MustParseURIData(statusURI), content.NewContentValues())
	suite.Require().NoError(err)
	suite.Nil(uri)

	suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
	suite.Equal(1, suite.countRows())
}

func (suite *statusTableTestSuite) TestInsertUnknownColumnDeclined() {
	suite.expectSourcePackage("com.example")

	values := content.NewContentValues().Put("no_such_column", 1)
	uri, err := suite.table.Insert(context.Background(), content.MustParseURIData(statusURI), values)
	suite.Require().NoError(err)
	suite.Nil(uri)

	suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *statusTableTestSuite) TestInsertIdentityRejected() {
	rejected := errors.New("caller is not allowed to write com.example")
	suite.delegateHelper.On("CheckAndAddSourcePackageIntoValues", mock.Anything, mock.Anything, mock.Anything).
		Return(rejected).
		Once()

	uri, err := suite.table.Insert(context.Background(), content.MustParseURIData(statusURI), content.NewContentValues())
	suite.Require().ErrorIs(err, rejected)
	suite.Nil(uri)

	suite.Equal(0, suite.countRows())
	suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *statusTableTestSuite) TestUnsupportedOperations() {
	ctx := context.Background()

	for _, uri := range []string{statusURI, statusURI + "/1"} {
		uriData := content.MustParseURIData(uri)

		count, err := suite.table.BulkInsert(ctx, uriData, []*content.ContentValues{content.NewContentValues()})
		suite.Require().ErrorIs(err, ErrUnsupportedOperation)
		suite.Equal(0, count)

		count, err = suite.table.BulkInsert(ctx, uriData, nil)
		suite.Require().ErrorIs(err, ErrUnsupportedOperation)
		suite.Equal(0, count)

		file, err := suite.table.OpenFile(ctx, uriData, "r")
		suite.Require().ErrorIs(err, ErrUnsupportedOperation)
		suite.Nil(file)
	}

	suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *statusTableTestSuite) TestDelete() {
	tests := []struct {
		name          string
		uri           string
		selection     string
		selectionArgs []any
		expectedCount int64
		expectedRows  int
	}{
		{
			name:          "row matching the selection",
			uri:           statusURI + "/5",
			selection:     "configuration_state = 0",
			expectedCount: 1,
			expectedRows:  4,
		},
		{
			name:          "row not matching the selection",
			uri:           statusURI + "/5",
			selection:     "configuration_state = ?",
			selectionArgs: []any{v1alpha1.ConfigurationStateNotConfigured},
			expectedCount: 0,
			expectedRows:  5,
		},
		{
			name:          "or inside the selection stays within the row",
			uri:           statusURI + "/5",
			selection:     "configuration_state = 0 OR configuration_state = 1",
			expectedCount: 1,
			expectedRows:  4,
		},
		{
			name:          "whole table with selection",
			uri:           statusURI,
			selection:     "configuration_state = ?",
			selectionArgs: []any{v1alpha1.ConfigurationStateNotConfigured},
			expectedCount: 2,
			expectedRows:  3,
		},
		{
			name:          "source package parameter",
			uri:           statusURI + "?source_package=com.example.4",
			expectedCount: 1,
			expectedRows:  4,
		},
		{
			name:          "whole table",
			uri:           statusURI,
			expectedCount: 5,
			expectedRows:  0,
		},
		{
			name:          "missing row",
			uri:           statusURI + "/42",
			expectedCount: 0,
			expectedRows:  5,
		},
	}

	for _, test := range tests {
		suite.Run(test.name, func() {
			suite.resetTable()

			for id := int64(1); id <= 5; id++ {
				state := int64(v1alpha1.ConfigurationStateOK)
				if id%2 == 0 {
					state = v1alpha1.ConfigurationStateNotConfigured
				}
				suite.insertRow(id, fmt.Sprintf("com.example.%d", id), state)
			}
			if test.expectedCount > 0 {
				suite.expectNotification(test.uri)
			}

			count, err := suite.table.Delete(
				context.Background(), content.MustParseURIData(test.uri), test.selection, test.selectionArgs,
			)
			suite.Require().NoError(err)
			suite.Equal(test.expectedCount, count)
			suite.Equal(test.expectedRows, suite.countRows())

			if test.expectedCount > 0 {
				suite.delegateHelper.AssertNumberOfCalls(suite.T(), "NotifyChange", 1)
			} else {
				suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func (suite *statusTableTestSuite) TestDeleteInvalidSelection() {
	suite.insertRow(1, "com.example", v1alpha1.ConfigurationStateOK)

	_, err := suite.table.Delete(context.Background(), content.MustParseURIData(statusURI+"/1"), "1) OR (1", nil)
	suite.Require().ErrorIs(err, ErrInvalidSelection)

	_, err = suite.table.Delete(context.Background(), content.MustParseURIData(statusURI), "no_such_column = 1", nil)
	suite.Require().Error(err)

	suite.Equal(1, suite.countRows())
}

func (suite *statusTableTestSuite) TestSelectionCannotEscapeURIScope() {
	ctx := context.Background()
	uriData := content.MustParseURIData(statusURI + "/5")
	selections := []string{
		"configuration_state = 0) OR (1=1",
		"1=1) OR (1=1",
		"configuration_state = 0 -- ",
		"configuration_state = 0 /* ",
	}

	for _, selection := range selections {
		suite.Run(selection, func() {
			suite.resetTable()
			suite.insertRow(5, "com.example.5", v1alpha1.ConfigurationStateOK)
			suite.insertRow(6, "com.example.6", v1alpha1.ConfigurationStateOK)
			suite.insertRow(7, "com.example.7", v1alpha1.ConfigurationStateOK)

			_, err := suite.table.Delete(ctx, uriData, selection, nil)
			suite.Require().ErrorIs(err, ErrInvalidSelection)

			values := content.NewContentValues().Put(v1alpha1.ColumnDataChannelState, v1alpha1.DataChannelStateNoConnection)
			_, err = suite.table.Update(ctx, uriData, values, selection, nil)
			suite.Require().ErrorIs(err, ErrInvalidSelection)

			_, err = suite.table.Query(ctx, uriData, nil, selection, nil, "")
			suite.Require().ErrorIs(err, ErrInvalidSelection)

			suite.Equal(3, suite.countRows())
		})
	}

	suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *statusTableTestSuite) TestIDScopedDeleteRemovesAtMostOneRow() {
	suite.insertRow(5, "com.example.5", v1alpha1.ConfigurationStateOK)
	suite.insertRow(6, "com.example.6", v1alpha1.ConfigurationStateOK)
	suite.insertRow(7, "com.example.7", v1alpha1.ConfigurationStateOK)
	suite.expectNotification(statusURI + "/5")

	count, err := suite.table.Delete(context.Background(), content.MustParseURIData(statusURI+"/5"),
		"configuration_state = 0 OR data_channel_state = 0", nil)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)
	suite.Equal(2, suite.countRows())
}

func (suite *statusTableTestSuite) TestUpdate() {
	ctx := context.Background()
	suite.insertRow(1, "com.example.1", v1alpha1.ConfigurationStateOK)
	suite.insertRow(2, "com.example.2", v1alpha1.ConfigurationStateOK)

	suite.expectNotification(statusURI + "/2")
	values := content.NewContentValues().
		Put(v1alpha1.ColumnDataChannelState, v1alpha1.DataChannelStateNoConnection).
		Put(v1alpha1.ColumnSettingsURI, "content://settings")

	count, err := suite.table.Update(ctx, content.MustParseURIData(statusURI+"/2"), values, "", nil)
	suite.Require().NoError(err)
	suite.Equal(int64(1), count)
	suite.delegateHelper.AssertNumberOfCalls(suite.T(), "NotifyChange", 1)

	var status v1alpha1.Status
	err = suite.dbHelper.ReadableDatabase().Unwrap().Get(&status, "SELECT * FROM voicemail_status WHERE _id = 2")
	suite.Require().NoError(err)
	suite.Equal(ptr.To(int64(v1alpha1.DataChannelStateNoConnection)), status.DataChannelState)
	suite.Equal(ptr.To("content://settings"), status.SettingsURI)

	count, err = suite.table.Update(ctx, content.MustParseURIData(statusURI+"/2"), values, "configuration_state = ?", []any{2})
	suite.Require().NoError(err)
	suite.Equal(int64(0), count)
	suite.delegateHelper.AssertNumberOfCalls(suite.T(), "NotifyChange", 1)

	suite.expectNotification(statusURI)
	count, err = suite.table.Update(ctx, content.MustParseURIData(statusURI), values, "", nil)
	suite.Require().NoError(err)
	suite.Equal(int64(2), count)
	suite.delegateHelper.AssertNumberOfCalls(suite.T(), "NotifyChange", 2)
}

func (suite *statusTableTestSuite) TestUpdateErrors() {
	ctx := context.Background()
	suite.insertRow(1, "com.example", v1alpha1.ConfigurationStateOK)

	_, err := suite.table.Update(ctx, content.MustParseURIData(statusURI), content.NewContentValues(), "", nil)
	suite.Require().ErrorIs(err, database.ErrEmptyValues)

	_, err = suite.table.Update(ctx, content.MustParseURIData(statusURI),
		content.NewContentValues().Put("no_such_column", 1), "", nil)
	suite.Require().Error(err)

	suite.delegateHelper.AssertNotCalled(suite.T(), "NotifyChange", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *statusTableTestSuite) TestQuery() {
	suite.insertRow(1, "com.example.1", v1alpha1.ConfigurationStateOK)
	suite.insertRow(2, "com.example.2", v1alpha1.ConfigurationStateNotConfigured)

	tests := []struct {
		name          string
		uri           string
		projection    []string
		selection     string
		selectionArgs []any
		sortOrder     string
		expected      []map[string]any
	}{
		{
			name:       "projection subset sorted descending",
			uri:        statusURI,
			projection: []string{v1alpha1.ColumnID, v1alpha1.ColumnSourcePackage},
			sortOrder:  "_id DESC",
			expected: []map[string]any{
				{"_id": int64(2), "source_package": "com.example.2"},
				{"_id": int64(1), "source_package": "com.example.1"},
			},
		},
		{
			name:       "single row",
			uri:        statusURI + "/2",
			projection: []string{v1alpha1.ColumnConfigurationState},
			expected: []map[string]any{
				{"configuration_state": int64(v1alpha1.ConfigurationStateNotConfigured)},
			},
		},
		{
			name:          "selection",
			uri:           statusURI,
			projection:    []string{v1alpha1.ColumnID},
			selection:     "source_package = ?",
			selectionArgs: []any{"com.example.1"},
			expected: []map[string]any{
				{"_id": int64(1)},
			},
		},
		{
			name:       "no match",
			uri:        statusURI + "/3",
			projection: []string{v1alpha1.ColumnID},
			expected:   nil,
		},
	}

	for _, test := range tests {
		suite.Run(test.name, func() {
			cursor, err := suite.table.Query(context.Background(), content.MustParseURIData(test.uri),
				test.projection, test.selection, test.selectionArgs, test.sortOrder)
			suite.Require().NoError(err)

			rows, err := cursor.ReadAll()
			suite.Require().NoError(err)
			suite.Empty(cmp.Diff(test.expected, rows))
		})
	}
}

func (suite *statusTableTestSuite) TestQueryDefaultProjection() {
	suite.insertRow(1, "com.example", v1alpha1.ConfigurationStateOK)

	cursor, err := suite.table.Query(context.Background(), content.MustParseURIData(statusURI), nil, "", nil, "")
	suite.Require().NoError(err)
	defer cursor.Close()

	suite.Equal(StatusProjectionMap.Columns(), cursor.Columns())

	suite.Require().True(cursor.Next())
	var status v1alpha1.Status
	suite.Require().NoError(cursor.StructScan(&status))
	suite.Equal(int64(1), status.ID)
	suite.Equal("com.example", status.SourcePackage)
	suite.Nil(status.SettingsURI)
	suite.False(cursor.Next())
	suite.NoError(cursor.Err())
}

func (suite *statusTableTestSuite) TestQueryInvalidColumns() {
	tests := []struct {
		name       string
		projection []string
		sortOrder  string
		column     string
	}{
		{
			name:       "projection",
			projection: []string{v1alpha1.ColumnID, "secret"},
			column:     "secret",
		},
		{
			name:      "sort order",
			sortOrder: "source_package ASC, secret DESC",
			column:    "secret",
		},
		{
			name:       "expression in projection",
			projection: []string{"COUNT(*)"},
			column:     "COUNT(*)",
		},
	}

	for _, test := range tests {
		suite.Run(test.name, func() {
			cursor, err := suite.table.Query(context.Background(), content.MustParseURIData(statusURI),
				test.projection, "", nil, test.sortOrder)
			suite.Require().ErrorIs(err, ErrInvalidColumn)
			suite.Nil(cursor)

			var invalidColumnErr *InvalidColumnError
			suite.Require().ErrorAs(err, &invalidColumnErr)
			suite.Equal(test.column, invalidColumnErr.Column)
		})
	}
}

func (suite *statusTableTestSuite) TestQueryFailurePropagates() {
	cursor, err := suite.table.Query(context.Background(), content.MustParseURIData(statusURI),
		nil, "no_such_column = 1", nil, "")
	suite.Require().Error(err)
	suite.Nil(cursor)
	suite.NotErrorIs(err, ErrInvalidColumn)
}

func (suite *statusTableTestSuite) TestQueryNotificationURI() {
	suite.insertRow(1, "com.example", v1alpha1.ConfigurationStateOK)

	cursor, err := suite.table.Query(context.Background(), content.MustParseURIData(statusURI+"/1"), nil, "", nil, "")
	suite.Require().NoError(err)
	defer cursor.Close()

	suite.Equal(v1alpha1.StatusContentURI, cursor.NotificationURI())
	for cursor.Next() {
	}
	suite.Require().NoError(cursor.Err())

	suite.Require().NoError(suite.resolver.NotifyChange(statusURI+"/2", v1alpha1.ActionProviderChanged))

	select {
	case event := <-cursor.Changes():
		changeEvent, ok := event.Object.(*notify.ChangeEvent)
		suite.Require().True(ok)
		suite.Equal(statusURI+"/2", changeEvent.URI)
	case <-time.After(5 * time.Second):
		suite.Fail("no change delivered to the cursor")
	}
}

func (suite *statusTableTestSuite) TestGetType() {
	suite.Equal(v1alpha1.DirType, suite.table.GetType(content.MustParseURIData(statusURI)))
	suite.Equal(v1alpha1.DirType, suite.table.GetType(content.MustParseURIData(statusURI+"?source_package=com.example")))
	suite.Equal(v1alpha1.ItemType, suite.table.GetType(content.MustParseURIData(statusURI+"/1")))

	suite.Equal(0, suite.countRows())
}
