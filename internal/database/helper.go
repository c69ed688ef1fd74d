package database

import (
	"context"
	"errors"
	"fmt"
)

// OpenHelper hands out the handles used by the table delegates.
// The writable handle holds a single connection so that writers are serialized.
type OpenHelper struct {
	writer  *DB
	reader  *DB
	closers []func() error
}

// NewOpenHelper returns a helper over writer and reader. A nil reader reads through writer.
func NewOpenHelper(writer, reader *DB) *OpenHelper {
	h := &OpenHelper{
		writer:  writer,
		reader:  reader,
		closers: []func() error{writer.Close},
	}
	if reader == nil {
		h.reader = writer
	} else {
		h.closers = append(h.closers, reader.Close)
	}

	return h
}

func (h *OpenHelper) WritableDatabase() *DB {
	return h.writer
}

func (h *OpenHelper) ReadableDatabase() *DB {
	return h.reader
}

// Migrate runs the given statements on the writable handle.
func (h *OpenHelper) Migrate(ctx context.Context, statements ...string) error {
	for _, statement := range statements {
		if _, err := h.writer.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}

	return nil
}

func (h *OpenHelper) Close() error {
	var errs []error
	for _, closer := range h.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *OpenHelper) onClose(f func() error) {
	h.closers = append(h.closers, f)
}
