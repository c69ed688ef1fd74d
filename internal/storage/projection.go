package storage

import (
	"errors"
	"fmt"

	"github.com/rancher/vmstatus/api/v1alpha1"
)

// ProjectionMap is the immutable set of columns a query may read or sort by,
// each mapped to the SQL expression selecting it.
type ProjectionMap struct {
	columns     []string
	expressions map[string]string
}

// ProjectionMapBuilder collects columns for a ProjectionMap.
type ProjectionMapBuilder struct {
	columns     []string
	expressions map[string]string
	errs        []error
}

func NewProjectionMapBuilder() *ProjectionMapBuilder {
	return &ProjectionMapBuilder{
		expressions: make(map[string]string),
	}
}

// Add adds a column selected as itself.
func (b *ProjectionMapBuilder) Add(column string) *ProjectionMapBuilder {
	return b.AddAs(column, column)
}

// AddAs adds a column selected through expression.
func (b *ProjectionMapBuilder) AddAs(column, expression string) *ProjectionMapBuilder {
	switch {
	case column == "" || expression == "":
		b.errs = append(b.errs, errors.New("empty column in projection map"))
	case b.expressions[column] != "":
		b.errs = append(b.errs, fmt.Errorf("duplicate column %q in projection map", column))
	default:
		b.columns = append(b.columns, column)
		b.expressions[column] = expression
	}

	return b
}

func (b *ProjectionMapBuilder) Build() (ProjectionMap, error) {
	if err := errors.Join(b.errs...); err != nil {
		return ProjectionMap{}, err
	}

	m := ProjectionMap{
		columns:     make([]string, len(b.columns)),
		expressions: make(map[string]string, len(b.expressions)),
	}
	copy(m.columns, b.columns)
	for k, v := range b.expressions {
		m.expressions[k] = v
	}

	return m, nil
}

// MustBuild is like Build but panics on error.
func (b *ProjectionMapBuilder) MustBuild() ProjectionMap {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}

	return m
}

// Columns returns the columns in the order they were added.
func (m ProjectionMap) Columns() []string {
	columns := make([]string, len(m.columns))
	copy(columns, m.columns)

	return columns
}

func (m ProjectionMap) Contains(column string) bool {
	_, ok := m.expressions[column]
	return ok
}

func (m ProjectionMap) Expression(column string) (string, bool) {
	expression, ok := m.expressions[column]
	return expression, ok
}

func (m ProjectionMap) Len() int {
	return len(m.columns)
}

// StatusProjectionMap holds the columns of the status table visible to queries.
var StatusProjectionMap = NewProjectionMapBuilder().
	Add(v1alpha1.ColumnID).
	Add(v1alpha1.ColumnConfigurationState).
	Add(v1alpha1.ColumnDataChannelState).
	Add(v1alpha1.ColumnNotificationChannelState).
	Add(v1alpha1.ColumnSettingsURI).
	Add(v1alpha1.ColumnSourcePackage).
	Add(v1alpha1.ColumnVoicemailAccessURI).
	MustBuild()
