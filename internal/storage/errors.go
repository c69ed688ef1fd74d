package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation is returned by operations a table does not offer.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidColumn is returned when a query references a column outside the projection map.
	ErrInvalidColumn = errors.New("invalid column")

	// ErrInvalidSelection is returned when a selection cannot be safely embedded in a statement.
	ErrInvalidSelection = errors.New("invalid selection")
)

// InvalidColumnError names the column a query was not allowed to read or sort by.
type InvalidColumnError struct {
	Column string
	// Clause is either "projection" or "sort order".
	Clause string
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("invalid column %q in %s", e.Column, e.Clause)
}

func (e *InvalidColumnError) Is(target error) bool {
	return target == ErrInvalidColumn
}

func unsupported(message string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedOperation, message)
}
