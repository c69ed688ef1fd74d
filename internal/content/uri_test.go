package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIData(t *testing.T) {
	tests := []struct {
		name                string
		uri                 string
		expectedTable       string
		expectedHasID       bool
		expectedID          int64
		expectedPackage     string
		expectedWhereClause string
		expectedErr         bool
	}{
		{
			name:          "collection",
			uri:           "content://com.android.voicemail/status",
			expectedTable: "status",
		},
		{
			name:                "single row",
			uri:                 "content://com.android.voicemail/status/5",
			expectedTable:       "status",
			expectedHasID:       true,
			expectedID:          5,
			expectedWhereClause: "(_id = 5)",
		},
		{
			name:                "collection restricted to a package",
			uri:                 "content://com.android.voicemail/status?source_package=com.example",
			expectedTable:       "status",
			expectedPackage:     "com.example",
			expectedWhereClause: "(source_package = 'com.example')",
		},
		{
			name:                "row restricted to a package with a quote",
			uri:                 "content://com.android.voicemail/status/7?source_package=o'neil",
			expectedTable:       "status",
			expectedHasID:       true,
			expectedID:          7,
			expectedPackage:     "o'neil",
			expectedWhereClause: "(_id = 7) AND (source_package = 'o''neil')",
		},
		{
			name:        "non numeric id",
			uri:         "content://com.android.voicemail/status/abc",
			expectedErr: true,
		},
		{
			name:        "wrong scheme",
			uri:         "https://com.android.voicemail/status",
			expectedErr: true,
		},
		{
			name:        "missing authority",
			uri:         "content:///status",
			expectedErr: true,
		},
		{
			name:        "too many segments",
			uri:         "content://com.android.voicemail/status/1/extra",
			expectedErr: true,
		},
		{
			name:        "no table",
			uri:         "content://com.android.voicemail",
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ParseURIData(tt.uri)
			if tt.expectedErr {
				require.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.expectedTable, data.Table())
			assert.Equal(t, tt.expectedHasID, data.HasID())
			assert.Equal(t, tt.expectedID, data.ID())
			assert.Equal(t, tt.expectedPackage, data.SourcePackage())
			assert.Equal(t, tt.expectedWhereClause, data.WhereClause())
			assert.Equal(t, "com.android.voicemail", data.Authority())
			assert.Equal(t, tt.uri, data.String())
		})
	}
}

func TestUriDataURIIsACopy(t *testing.T) {
	data := MustParseURIData("content://com.android.voicemail/status")

	u := data.URI()
	u.Path = "/other"

	assert.Equal(t, "/status", data.URI().Path)
}

func TestWithAppendedID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		id       int64
		expected string
	}{
		{
			name:     "plain collection",
			uri:      "content://com.android.voicemail/status",
			id:       7,
			expected: "content://com.android.voicemail/status/7",
		},
		{
			name:     "trailing slash",
			uri:      "content://com.android.voicemail/status/",
			id:       12,
			expected: "content://com.android.voicemail/status/12",
		},
		{
			name:     "query is preserved",
			uri:      "content://com.android.voicemail/status?source_package=com.example",
			id:       3,
			expected: "content://com.android.voicemail/status/3?source_package=com.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MustParseURIData(tt.uri)

			out := WithAppendedID(data.URI(), tt.id)

			assert.Equal(t, tt.expected, out.String())
			assert.Equal(t, tt.uri, data.String())
		})
	}
}
